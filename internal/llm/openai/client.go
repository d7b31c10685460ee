// Package openai adapts the OpenAI chat-completions API (or any compatible
// endpoint) to the llm.Provider contract.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gopenai "github.com/sashabaranov/go-openai"
)

// Config for the OpenAI provider.
type Config struct {
	APIKey      string
	BaseURL     string // optional; OpenAI-compatible endpoints
	Model       string // e.g. "gpt-4o-mini"
	Temperature float32
	Timeout     time.Duration
}

type Client struct {
	cfg    Config
	api    *gopenai.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	cc := gopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{cfg: cfg, api: gopenai.NewClientWithConfig(cc), logger: logger}
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Close() error { return nil }

// Complete runs one chat completion in JSON-object mode and returns the
// message content.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, gopenai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		ResponseFormat: &gopenai.ChatCompletionResponseFormat{
			Type: gopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []gopenai.ChatCompletionMessage{
			{Role: gopenai.ChatMessageRoleSystem, Content: system},
			{Role: gopenai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: resposta sem choices")
	}
	c.logger.Debug("openai.complete",
		"model", c.cfg.Model,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return resp.Choices[0].Message.Content, nil
}
