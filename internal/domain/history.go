package domain

// History is an ordered sequence of turns. At most one system turn may
// appear and, when present, it is always the first element.
type History []Turn

// Clone returns a copy that shares no backing array with h.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Append returns a new history with turns added at the end. The receiver
// is never modified.
func (h History) Append(turns ...Turn) History {
	out := make(History, 0, len(h)+len(turns))
	out = append(out, h...)
	return append(out, turns...)
}

// Compact drops turns whose content is empty after trimming.
func (h History) Compact() History {
	out := make(History, 0, len(h))
	for _, t := range h {
		if t.Empty() {
			continue
		}
		out = append(out, t)
	}
	return out
}

// System returns the leading system turn, if any.
func (h History) System() (Turn, bool) {
	if len(h) > 0 && h[0].Role == RoleSystem {
		return h[0], true
	}
	return Turn{}, false
}

// WithoutSystem returns h minus its leading system turn.
func (h History) WithoutSystem() History {
	if _, ok := h.System(); ok {
		return h[1:].Clone()
	}
	return h.Clone()
}

// WithSystem returns h seeded with prompt: the leading system turn is
// rewritten when present and inserted otherwise.
func (h History) WithSystem(prompt string) History {
	rest := h.WithoutSystem()
	out := make(History, 0, len(rest)+1)
	out = append(out, SystemTurn(prompt))
	return append(out, rest...)
}

// LastUser returns the most recent user turn.
func (h History) LastUser() (Turn, bool) {
	return h.last(RoleUser)
}

// LastAssistant returns the most recent assistant turn.
func (h History) LastAssistant() (Turn, bool) {
	return h.last(RoleAssistant)
}

func (h History) last(role Role) (Turn, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Role == role {
			return h[i], true
		}
	}
	return Turn{}, false
}

// Tail returns the last n turns (or all of them when n exceeds the length).
func (h History) Tail(n int) History {
	if n <= 0 {
		return History{}
	}
	if n >= len(h) {
		return h.Clone()
	}
	return h[len(h)-n:].Clone()
}

// Count returns the number of turns authored by role.
func (h History) Count(role Role) int {
	n := 0
	for _, t := range h {
		if t.Role == role {
			n++
		}
	}
	return n
}
