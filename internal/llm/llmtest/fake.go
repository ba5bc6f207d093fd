// Package llmtest provides a scripted llm.Completer for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/ashureev/mentor-labs/internal/domain"
)

// Func answers one completion request.
type Func func(ctx context.Context, history domain.History) (string, error)

// Fake is a concurrency-safe llm.Completer backed by a Func.
type Fake struct {
	fn Func

	mu    sync.Mutex
	calls []domain.History
}

// New returns a Fake answering with fn.
func New(fn Func) *Fake {
	return &Fake{fn: fn}
}

// Reply returns a Fake that always answers text.
func Reply(text string) *Fake {
	return New(func(context.Context, domain.History) (string, error) { return text, nil })
}

// Fail returns a Fake that always fails with err.
func Fail(err error) *Fake {
	return New(func(context.Context, domain.History) (string, error) { return "", err })
}

// Complete implements llm.Completer.
func (f *Fake) Complete(ctx context.Context, history domain.History) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, history.Clone())
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.fn(ctx, history)
}

// Stream implements llm.Completer by splitting the reply on spaces.
func (f *Fake) Stream(ctx context.Context, history domain.History, fn func(string) error) (string, error) {
	text, err := f.Complete(ctx, history)
	if err != nil {
		return "", err
	}
	if fn == nil {
		return text, nil
	}
	words := strings.SplitAfter(text, " ")
	for _, w := range words {
		if err := fn(w); err != nil {
			return "", err
		}
	}
	return text, nil
}

// Calls returns the histories received so far.
func (f *Fake) Calls() []domain.History {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.History, len(f.calls))
	copy(out, f.calls)
	return out
}

// SystemPrompt returns the leading system content of h, or "".
func SystemPrompt(h domain.History) string {
	if t, ok := h.System(); ok {
		return t.Content
	}
	return ""
}
