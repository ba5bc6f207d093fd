package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotHistory is returned when a value cannot be read as a conversation history.
var ErrNotHistory = errors.New("value is not a conversation history")

// NormalizeHistory converts the shapes different producers hand us into the
// canonical History. Accepted inputs are History, []Turn, a single Turn,
// JSON bytes, []any / []map[string]any of role/content objects, and a
// state object carrying a "messages" list.
func NormalizeHistory(v any) (History, error) {
	switch x := v.(type) {
	case History:
		return x.Clone(), nil
	case []Turn:
		return History(x).Clone(), nil
	case Turn:
		return History{x}, nil
	case json.RawMessage:
		return normalizeJSON(x)
	case []byte:
		return normalizeJSON(x)
	case []map[string]any:
		out := make(History, 0, len(x))
		for i, m := range x {
			t, err := NormalizeTurn(m)
			if err != nil {
				return nil, fmt.Errorf("turn %d: %w", i, err)
			}
			out = append(out, t)
		}
		return out, nil
	case []any:
		out := make(History, 0, len(x))
		for i, item := range x {
			t, err := NormalizeTurn(item)
			if err != nil {
				return nil, fmt.Errorf("turn %d: %w", i, err)
			}
			out = append(out, t)
		}
		return out, nil
	case map[string]any:
		if msgs, ok := x["messages"]; ok {
			return NormalizeHistory(msgs)
		}
	}
	return nil, ErrNotHistory
}

func normalizeJSON(data []byte) (History, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotHistory, err)
	}
	if raw == nil {
		return History{}, nil
	}
	return NormalizeHistory(raw)
}

// NormalizeTurn converts a single loosely typed message into a Turn.
// Structured content is serialized to a stable JSON string.
func NormalizeTurn(v any) (Turn, error) {
	switch x := v.(type) {
	case Turn:
		return x, nil
	case *Turn:
		if x == nil {
			return Turn{}, ErrNotHistory
		}
		return *x, nil
	case map[string]string:
		role, ok := ParseRole(x["role"])
		if !ok {
			return Turn{}, fmt.Errorf("%w: unknown role %q", ErrNotHistory, x["role"])
		}
		return Turn{Role: role, Content: x["content"]}, nil
	case map[string]any:
		rawRole, _ := x["role"].(string)
		if rawRole == "" {
			rawRole, _ = x["type"].(string)
		}
		role, ok := ParseRole(rawRole)
		if !ok {
			return Turn{}, fmt.Errorf("%w: unknown role %q", ErrNotHistory, rawRole)
		}
		return Turn{Role: role, Content: ContentString(x["content"])}, nil
	}
	return Turn{}, fmt.Errorf("%w: unsupported turn type %T", ErrNotHistory, v)
}

// ContentString renders message content as text. Strings pass through;
// anything else is encoded as JSON, whose map keys are sorted, so equal
// structures always produce equal strings.
func ContentString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
