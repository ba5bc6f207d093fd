package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHistoryShapes(t *testing.T) {
	t.Parallel()

	want := History{SystemTurn("seed"), UserTurn("hi"), AssistantTurn("hello")}

	tests := []struct {
		name  string
		input any
	}{
		{"history", want},
		{"turn slice", []Turn(want)},
		{"json bytes", []byte(`[{"role":"system","content":"seed"},{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]`)},
		{"any slice", []any{
			map[string]any{"role": "system", "content": "seed"},
			map[string]any{"type": "human", "content": "hi"},
			map[string]any{"role": "AI", "content": "hello"},
		}},
		{"state object", map[string]any{"messages": []map[string]any{
			{"role": "system", "content": "seed"},
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": "hello"},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeHistory(tt.input)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestNormalizeHistoryRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, input := range []any{nil, "plain text", 42, map[string]any{"reply": "x"}, []byte(`{not json`)} {
		_, err := NormalizeHistory(input)
		assert.ErrorIs(t, err, ErrNotHistory, "input %#v", input)
	}

	_, err := NormalizeHistory([]any{map[string]any{"role": "tool", "content": "x"}})
	assert.ErrorIs(t, err, ErrNotHistory)
}

func TestNormalizeTurnSerializesStructuredContentStably(t *testing.T) {
	t.Parallel()

	a, err := NormalizeTurn(map[string]any{"role": "assistant", "content": map[string]any{"b": 2, "a": []any{"x", 1}}})
	require.NoError(t, err)
	b, err := NormalizeTurn(map[string]any{"role": "assistant", "content": map[string]any{"a": []any{"x", 1}, "b": 2}})
	require.NoError(t, err)

	assert.Equal(t, a.Key(), b.Key())
	assert.JSONEq(t, `{"a":["x",1],"b":2}`, a.Content)
}

func TestHistoryWithSystem(t *testing.T) {
	t.Parallel()

	h := History{UserTurn("hi")}
	seeded := h.WithSystem("mentor")
	require.Len(t, seeded, 2)
	assert.Equal(t, SystemTurn("mentor"), seeded[0])
	assert.Len(t, h, 1, "receiver must not change")

	reseeded := seeded.WithSystem("cto")
	assert.Equal(t, History{SystemTurn("cto"), UserTurn("hi")}, reseeded)
	assert.Equal(t, History{UserTurn("hi")}, reseeded.WithoutSystem())
}

func TestHistoryCompactDropsEmptyTurns(t *testing.T) {
	t.Parallel()

	h := History{SystemTurn("s"), UserTurn("  "), AssistantTurn(""), UserTurn("q")}
	assert.Equal(t, History{SystemTurn("s"), UserTurn("q")}, h.Compact())
}

func TestSessionJSONRoundTripKeepsPersonaKeys(t *testing.T) {
	t.Parallel()

	s := &Session{
		ThreadID: "t1",
		Mode:     ModeRouter,
		History:  History{SystemTurn("s")},
		Personas: map[Label]History{LabelCTO: {AssistantTurn("**CTO:** ship it")}},
	}
	data, err := json.Marshal(s)
	require.NoError(t, err)

	var got Session
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, s.Personas, got.Personas)
}
