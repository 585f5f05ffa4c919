package nl2sql

import (
	"context"
	"errors"
	"fmt"
)

// ErrorMarker prefixes completion failures rendered as plain text.
const ErrorMarker = "❌ Error:"

type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindStatus  ErrorKind = "status"
	KindDecode  ErrorKind = "decode"
)

// Completer sends a single prompt to a text-generation backend and returns
// the raw completion text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Provider() string
	Model() string
}

// CompletionError describes why a completion request produced no text.
type CompletionError struct {
	Kind       ErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *CompletionError) Error() string {
	switch e.Kind {
	case KindStatus:
		if e.Body != "" {
			return fmt.Sprintf("completion failed status=%d body=%s", e.StatusCode, e.Body)
		}
		return fmt.Sprintf("completion failed status=%d", e.StatusCode)
	default:
		if e.Err == nil {
			return fmt.Sprintf("completion %s error", e.Kind)
		}
		return fmt.Sprintf("completion %s error: %v", e.Kind, e.Err)
	}
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// KindOf reports the completion failure kind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var completionErr *CompletionError
	if errors.As(err, &completionErr) {
		return completionErr.Kind, true
	}
	return "", false
}

// FailSoftText renders err the way display surfaces show completion
// failures inline.
func FailSoftText(err error) string {
	if err == nil {
		return ""
	}
	return ErrorMarker + " " + err.Error()
}

func networkError(err error) error {
	return &CompletionError{Kind: KindNetwork, Err: err}
}

func statusError(status int, body string) error {
	return &CompletionError{Kind: KindStatus, StatusCode: status, Body: truncate(body, 512)}
}

func decodeError(err error) error {
	return &CompletionError{Kind: KindDecode, Err: err}
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
