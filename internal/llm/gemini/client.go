// Package gemini adapts the Google Generative AI API to the llm.Provider
// contract.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Config for the Gemini provider.
type Config struct {
	APIKey      string
	Model       string // e.g. "gemini-1.5-pro"
	Temperature float32
}

type Client struct {
	cfg    Config
	api    *genai.Client
	model  *genai.GenerativeModel
	logger *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-pro"
	}
	if logger == nil {
		logger = slog.Default()
	}
	api, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	model := api.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)
	model.ResponseMIMEType = "application/json"
	return &Client{cfg: cfg, api: api, model: model, logger: logger}, nil
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) Close() error { return c.api.Close() }

// Complete runs one generation with the system text as system instruction
// and returns the concatenated text parts. Documents are processed one at a
// time, so mutating the model's system instruction per call is safe.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	c.model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	resp, err := c.model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini: resposta sem candidatos")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("gemini: resposta sem texto")
	}
	c.logger.Debug("gemini.complete",
		"model", c.cfg.Model,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return b.String(), nil
}
