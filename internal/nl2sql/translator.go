package nl2sql

import (
	"context"
	"errors"
	"fmt"
)

var ErrNoColumns = errors.New("at least one column is required")

type Request struct {
	Columns  []string `json:"columns"`
	Question string   `json:"question"`
}

// Result is the outcome of one question. SQL is empty when the completion
// contained no recognizable statement; that is not an error.
type Result struct {
	Prompt   string `json:"-"`
	Raw      string `json:"raw"`
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

// Pipeline builds the prompt, asks the completer once and extracts the first
// statement from the reply.
type Pipeline struct {
	completer Completer
}

func NewPipeline(completer Completer) (*Pipeline, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	return &Pipeline{completer: completer}, nil
}

func (p *Pipeline) Translate(ctx context.Context, req Request) (Result, error) {
	if len(req.Columns) == 0 {
		return Result{}, ErrNoColumns
	}
	result := Result{
		Prompt:   BuildPrompt(req.Columns, req.Question),
		Provider: p.completer.Provider(),
		Model:    p.completer.Model(),
	}

	raw, err := p.completer.Complete(ctx, result.Prompt)
	if err != nil {
		return result, err
	}
	result.Raw = raw
	result.SQL = ExtractSQL(raw)
	return result, nil
}
