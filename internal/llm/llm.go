// Package llm wraps the chat-completion backend behind the Completer interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/mentor-labs/internal/domain"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// Completer is the chat-completion service consumed by the orchestrator.
type Completer interface {
	// Complete returns a single reply for history.
	Complete(ctx context.Context, history domain.History) (string, error)

	// Stream delivers the reply in chunks to fn and returns the full text.
	// A non-nil error from fn aborts the stream.
	Stream(ctx context.Context, history domain.History, fn func(chunk string) error) (string, error)
}

// ErrEmptyHistory is returned when nothing is left to send after compaction.
var ErrEmptyHistory = errors.New("history has no non-empty turns")

// ErrEmptyReply is returned when the backend answers with no text.
var ErrEmptyReply = errors.New("completion returned no content")

// Config holds completion client configuration.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// DefaultConfig returns default completion settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		Temperature: 0.2,
		Timeout:     60 * time.Second,
	}
}

// Client implements Completer on top of a langchaingo model.
type Client struct {
	model  llms.Model
	cfg    Config
	logger *slog.Logger
}

// NewOpenAI creates a Client talking to an OpenAI-compatible endpoint.
func NewOpenAI(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key is not set")
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return NewClient(model, cfg, logger), nil
}

// NewClient wraps an existing langchaingo model.
func NewClient(model llms.Model, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{model: model, cfg: cfg, logger: logger}
}

// Complete implements Completer.
func (c *Client) Complete(ctx context.Context, history domain.History) (string, error) {
	return c.generate(ctx, history, nil)
}

// Stream implements Completer.
func (c *Client) Stream(ctx context.Context, history domain.History, fn func(chunk string) error) (string, error) {
	if fn == nil {
		return c.generate(ctx, history, nil)
	}
	return c.generate(ctx, history, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		return fn(string(chunk))
	}))
}

func (c *Client) generate(ctx context.Context, history domain.History, extra llms.CallOption) (string, error) {
	messages := ToMessages(history)
	if len(messages) == 0 {
		return "", ErrEmptyHistory
	}
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	opts := []llms.CallOption{llms.WithTemperature(c.cfg.Temperature)}
	if c.cfg.Model != "" {
		opts = append(opts, llms.WithModel(c.cfg.Model))
	}
	if extra != nil {
		opts = append(opts, extra)
	}

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", ErrEmptyReply
	}
	c.logger.Debug("completion finished",
		"messages", len(messages),
		"reply_length", len(text),
		"duration", time.Since(start),
	)
	return text, nil
}

// ToMessages converts a history into langchaingo messages, dropping empty turns.
func ToMessages(history domain.History) []llms.MessageContent {
	compact := history.Compact()
	out := make([]llms.MessageContent, 0, len(compact))
	for _, t := range compact {
		out = append(out, llms.TextParts(messageType(t.Role), t.Content))
	}
	return out
}

func messageType(r domain.Role) schema.ChatMessageType {
	switch r {
	case domain.RoleSystem:
		return schema.ChatMessageTypeSystem
	case domain.RoleAssistant:
		return schema.ChatMessageTypeAI
	}
	return schema.ChatMessageTypeHuman
}
