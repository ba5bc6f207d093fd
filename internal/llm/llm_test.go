package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ashureev/mentor-labs/internal/domain"
	"github.com/ashureev/mentor-labs/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

type fakeModel struct {
	reply    string
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, opt := range options {
		opt(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.opts.StreamingFunc != nil {
		for _, chunk := range strings.SplitAfter(f.reply, " ") {
			if err := f.opts.StreamingFunc(ctx, []byte(chunk)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func history() domain.History {
	return domain.History{
		domain.SystemTurn("be brief"),
		domain.UserTurn("hi"),
		domain.AssistantTurn(""),
		domain.AssistantTurn("hello"),
		domain.UserTurn("pricing?"),
	}
}

func TestCompleteSendsCompactHistory(t *testing.T) {
	t.Parallel()

	model := &fakeModel{reply: "  charge more  "}
	c := NewClient(model, DefaultConfig(), logging.NewNop())

	got, err := c.Complete(context.Background(), history())
	require.NoError(t, err)
	assert.Equal(t, "charge more", got)

	require.Len(t, model.messages, 4)
	assert.Equal(t, schema.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, schema.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, schema.ChatMessageTypeAI, model.messages[2].Role)
	assert.Equal(t, llms.TextContent{Text: "pricing?"}, model.messages[3].Parts[0])
	assert.InDelta(t, 0.2, model.opts.Temperature, 1e-9)
	assert.Equal(t, "gpt-4o-mini", model.opts.Model)
}

func TestStreamForwardsChunks(t *testing.T) {
	t.Parallel()

	model := &fakeModel{reply: "ship it today"}
	c := NewClient(model, DefaultConfig(), logging.NewNop())

	var chunks []string
	got, err := c.Stream(context.Background(), history(), func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ship it today", got)
	assert.Equal(t, []string{"ship ", "it ", "today"}, chunks)
}

func TestCompleteErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("upstream 502")
	tests := []struct {
		name    string
		model   *fakeModel
		history domain.History
		want    error
	}{
		{"empty history", &fakeModel{reply: "x"}, domain.History{domain.UserTurn("  ")}, ErrEmptyHistory},
		{"blank reply", &fakeModel{reply: "   "}, history(), ErrEmptyReply},
		{"backend failure", &fakeModel{err: boom}, history(), boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.model, DefaultConfig(), logging.NewNop())
			_, err := c.Complete(context.Background(), tt.history)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewOpenAI(DefaultConfig(), nil)
	assert.Error(t, err)
}
