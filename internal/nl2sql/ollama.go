package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "llama3.2:latest"
)

type OllamaConfig struct {
	BaseURL string
	Model   string
	// Timeout bounds the whole round trip. Zero leaves the request unbounded.
	Timeout time.Duration
}

// OllamaClient talks to the /api/generate endpoint of a local Ollama server
// in non-streaming mode.
type OllamaClient struct {
	model  string
	client *resty.Client
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response *string `json:"response"`
}

func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultOllamaModel
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &OllamaClient{model: model, client: client}
}

func (c *OllamaClient) Provider() string { return "ollama" }

func (c *OllamaClient) Model() string { return c.model }

func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(ollamaGenerateRequest{Model: c.model, Prompt: prompt, Stream: false}).
		Post("/api/generate")
	if err != nil {
		return "", networkError(fmt.Errorf("request generate: %w", err))
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return "", statusError(resp.StatusCode(), string(resp.Body()))
	}

	var parsed ollamaGenerateResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", decodeError(fmt.Errorf("decode generate response: %w", err))
	}
	if parsed.Response == nil {
		return "", decodeError(fmt.Errorf("generate response has no %q field", "response"))
	}
	return strings.TrimSpace(*parsed.Response), nil
}
