// Package domain contains core domain types for the mentor orchestrator.
package domain

import "strings"

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleSystem marks the instruction turn that seeds a history.
	RoleSystem Role = "system"
	// RoleUser marks a turn written by the human.
	RoleUser Role = "user"
	// RoleAssistant marks a turn produced by a persona or phase handler.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three canonical roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ParseRole maps a loosely spelled role onto the canonical set.
// Producers that speak in "human"/"ai" terms are accepted as well.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "system":
		return RoleSystem, true
	case "user", "human":
		return RoleUser, true
	case "assistant", "ai":
		return RoleAssistant, true
	}
	return "", false
}

// Turn is one role-tagged message.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemTurn builds a system turn.
func SystemTurn(content string) Turn { return Turn{Role: RoleSystem, Content: content} }

// UserTurn builds a user turn.
func UserTurn(content string) Turn { return Turn{Role: RoleUser, Content: content} }

// AssistantTurn builds an assistant turn.
func AssistantTurn(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }

// Empty reports whether the turn carries no visible content.
func (t Turn) Empty() bool {
	return strings.TrimSpace(t.Content) == ""
}

// Key is the normalized (role, content) identity used for set comparisons.
func (t Turn) Key() string {
	return string(t.Role) + "\x1f" + t.Content
}
