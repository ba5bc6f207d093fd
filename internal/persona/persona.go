// Package persona composes persona system instructions and applies the
// reply label policy.
package persona

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ashureev/mentor-labs/internal/domain"
	"gopkg.in/yaml.v3"
)

// Spec is the prompt specification of one persona as stored in configuration.
type Spec struct {
	Persona string   `yaml:"persona" json:"persona"`
	Style   string   `yaml:"style" json:"style"`
	Domain  string   `yaml:"domain" json:"domain"`
	Lines   []string `yaml:"lines" json:"lines"`
}

// Compose renders the spec into a single system instruction.
func (s Spec) Compose() string {
	var parts []string
	for _, p := range []string{s.Persona, s.Style, s.Domain} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	var rules []string
	for _, l := range s.Lines {
		if l = strings.TrimSpace(l); l != "" {
			rules = append(rules, "- "+l)
		}
	}
	if len(rules) > 0 {
		parts = append(parts, "Rules:\n"+strings.Join(rules, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

func (s Spec) empty() bool {
	return strings.TrimSpace(s.Persona) == "" && strings.TrimSpace(s.Style) == "" &&
		strings.TrimSpace(s.Domain) == "" && len(s.Lines) == 0
}

// fileNames maps each persona to the file it is loaded from.
var fileNames = map[domain.Label]string{
	domain.LabelMentor: "mentor.yaml",
	domain.LabelPM:     "pm.yaml",
	domain.LabelCTO:    "cto.yaml",
	domain.LabelVC:     "vc.yaml",
}

// Registry resolves persona labels to composed instructions.
type Registry struct {
	specs map[domain.Label]Spec
}

// NewRegistry returns a registry holding the built-in defaults, overridden
// by any non-empty spec in overrides.
func NewRegistry(overrides map[domain.Label]Spec) *Registry {
	specs := make(map[domain.Label]Spec, len(defaults))
	for k, v := range defaults {
		specs[k] = v
	}
	for k, v := range overrides {
		if !v.empty() {
			specs[k] = v
		}
	}
	return &Registry{specs: specs}
}

// Load reads persona specs from dir. Missing files or an empty dir fall back
// to the built-in defaults; unreadable or malformed files are errors.
func Load(dir string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	overrides := make(map[domain.Label]Spec)
	if dir == "" {
		return NewRegistry(overrides), nil
	}
	for label, name := range fileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("persona file not found, using default", "persona", label, "path", path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read persona %s: %w", label, err)
		}
		var spec Spec
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("parse persona %s: %w", label, err)
		}
		overrides[label] = spec
		logger.Info("persona loaded", "persona", label, "path", path)
	}
	return NewRegistry(overrides), nil
}

// LoadSystemPrompt reads the default thread prompt from a JSON file of the
// form {"prompt": "..."}. A missing file or an empty prompt yields
// DefaultSystemPrompt.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return DefaultSystemPrompt, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultSystemPrompt, nil
	}
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	var doc struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse system prompt %s: %w", path, err)
	}
	if strings.TrimSpace(doc.Prompt) == "" {
		return DefaultSystemPrompt, nil
	}
	return doc.Prompt, nil
}

// Spec returns the effective spec of label.
func (r *Registry) Spec(label domain.Label) Spec {
	if s, ok := r.specs[label]; ok {
		return s
	}
	return r.specs[domain.LabelMentor]
}

// Instruction returns the composed system instruction of label.
func (r *Registry) Instruction(label domain.Label) string {
	return r.Spec(label).Compose()
}

// ApplyLabel prefixes reply with "**<name>:** " unless it already opens with
// the name, optionally bold and optionally followed by a colon.
func ApplyLabel(name, reply string) string {
	if HasLabel(name, reply) {
		return reply
	}
	return "**" + name + ":** " + strings.TrimLeft(reply, " \t")
}

// HasLabel reports whether reply already opens with the name label.
func HasLabel(name, reply string) bool {
	return labelPattern(name).MatchString(reply)
}

func labelPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^\s*(?:\*\*)?\s*` + regexp.QuoteMeta(name) + `(?:\*\*)?(?::|\s|$)`)
}
