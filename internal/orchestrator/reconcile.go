package orchestrator

import (
	"github.com/ashureev/mentor-labs/internal/domain"
)

// Placeholder is the reply when a turn produced no assistant content.
const Placeholder = "Thanks! Let’s continue."

// DiffAssistant returns the assistant turns in after that are new relative
// to before. after may be a full history, a delta, or any shape accepted by
// domain.NormalizeHistory; anything else yields no turns.
//
// A longer after is read as before plus appended turns and its tail is
// taken. Otherwise the turns are compared as a set over (role, content),
// so a reply identical to an earlier assistant turn is not detected.
func DiffAssistant(before domain.History, after any) []domain.Turn {
	h, err := domain.NormalizeHistory(after)
	if err != nil {
		return nil
	}

	if len(h) > len(before) {
		return assistantOnly(h[len(before):])
	}

	seen := make(map[string]struct{}, len(before))
	for _, t := range before {
		seen[t.Key()] = struct{}{}
	}
	var out []domain.Turn
	for _, t := range h {
		if t.Role != domain.RoleAssistant {
			continue
		}
		if _, ok := seen[t.Key()]; ok {
			continue
		}
		seen[t.Key()] = struct{}{}
		out = append(out, t)
	}
	return out
}

func assistantOnly(turns []domain.Turn) []domain.Turn {
	var out []domain.Turn
	for _, t := range turns {
		if t.Role == domain.RoleAssistant {
			out = append(out, t)
		}
	}
	return out
}

// Merge appends the new assistant turns of after to before. Applying Merge
// again with the same after leaves the result unchanged.
func Merge(before domain.History, after any) domain.History {
	return before.Append(DiffAssistant(before, after)...)
}

// ReplyFrom returns the content of the last assistant turn, or Placeholder.
func ReplyFrom(h domain.History) string {
	if t, ok := h.LastAssistant(); ok && !t.Empty() {
		return t.Content
	}
	return Placeholder
}
