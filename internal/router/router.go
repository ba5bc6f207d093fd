// Package router decides which persona answers a free-form user turn.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/ashureev/mentor-labs/internal/domain"
	"github.com/ashureev/mentor-labs/internal/llm"
	"github.com/ashureev/mentor-labs/internal/metrics"
)

// Source names what produced a routing decision.
type Source string

const (
	SourceDefault    Source = "default"
	SourceTrigger    Source = "trigger"
	SourceClassifier Source = "classifier"
	SourceHeuristic  Source = "heuristic"
)

// Decision is the outcome of routing one turn.
type Decision struct {
	Label  domain.Label
	Source Source
}

// ClassifierInstruction is the system prompt of the classification call.
const ClassifierInstruction = `You route messages for a startup advisory board.
Reply with exactly one word from this list and nothing else: MENTOR, PM, CTO, VC, COMMITTEE.
PM: product, users, features, roadmap, pricing, go-to-market.
CTO: architecture, code, infrastructure, security, scaling, engineering hiring.
VC: fundraising, valuation, investors, market size, unit economics, runway.
COMMITTEE: the user wants several advisors at once.
MENTOR: anything else, including greetings and general startup advice.`

var (
	// "board" and "everyone" only count when addressed, not when mentioned.
	triggerPattern = regexp.MustCompile(`(?i)\b(?:committee|panel|all of you)\b` +
		`|\bask(?:ing)?\s+(?:the\s+)?board\b|\bboard(?:'s)?\s+(?:think|thinks|view|take|opinion|thoughts)\b` +
		`|\bask(?:ing)?\s+everyone\b|\beveryone\s*[:,]|\beveryone(?:'s)?\s+(?:view|take|opinion|thoughts)\b` +
		`|\b(?:pm|cto|vc)\s*(?:,|and|&|/|\+)\s*(?:pm|cto|vc)\b`)

	ctoPattern = regexp.MustCompile(`(?i)\b(?:cto|tech(?:nical|nology)?|architect(?:ure)?|code|coding|stack|backend|frontend|infra(?:structure)?|database|api|cloud|devops|security|scal(?:e|ing|ability)|deploy(?:ment)?|engineer(?:s|ing)?)\b`)
	pmPattern  = regexp.MustCompile(`(?i)\b(?:pm|product|feature(?:s)?|roadmap|user(?:s)?|customer(?:s)?|ux|mvp|priorit(?:y|ies|ize|ise)|pricing|launch|go-to-market|gtm|onboarding|retention)\b`)
	vcPattern  = regexp.MustCompile(`(?i)\b(?:vc|investor(?:s)?|invest(?:ment|ing)?|fund(?:ing|raise|raising)?|raise|valuation|seed|series\s+[a-d]|pitch|cap\s+table|term\s+sheet|runway|burn|revenue|market\s+size|tam)\b`)
)

// ErrNoClassifier is returned internally when routing runs without a classifier.
var ErrNoClassifier = errors.New("no classifier configured")

// HardTrigger reports whether text explicitly asks for the whole committee.
func HardTrigger(text string) bool {
	return triggerPattern.MatchString(text)
}

// Heuristic is the deterministic keyword fallback. CTO wins over PM, PM wins
// over VC, and MENTOR is the default.
func Heuristic(text string) domain.Label {
	switch {
	case ctoPattern.MatchString(text):
		return domain.LabelCTO
	case pmPattern.MatchString(text):
		return domain.LabelPM
	case vcPattern.MatchString(text):
		return domain.LabelVC
	}
	return domain.LabelMentor
}

// SanitizeLabel strips every non-letter from raw, upper-cases the rest and
// reports whether the result is a valid label.
func SanitizeLabel(raw string) (domain.Label, bool) {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	label := domain.Label(b.String())
	return label, label.Valid()
}

// Router combines the hard trigger, the classifier call and the heuristic.
type Router struct {
	classifier llm.Completer
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a Router. A nil classifier routes by heuristic only.
func New(classifier llm.Completer, m *metrics.Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{classifier: classifier, metrics: m, logger: logger}
}

// Route picks the label for the latest user turn of history. Classifier
// failures degrade to the heuristic and are never returned.
func (r *Router) Route(ctx context.Context, history domain.History) Decision {
	d := r.route(ctx, history)
	r.metrics.RouterDecision(string(d.Source))
	return d
}

func (r *Router) route(ctx context.Context, history domain.History) Decision {
	last, ok := history.LastUser()
	if !ok || last.Empty() {
		return Decision{Label: domain.LabelMentor, Source: SourceDefault}
	}
	text := last.Content

	if HardTrigger(text) {
		return Decision{Label: domain.LabelCommittee, Source: SourceTrigger}
	}

	label, err := r.classify(ctx, text)
	if err == nil {
		return Decision{Label: label, Source: SourceClassifier}
	}
	if !errors.Is(err, ErrNoClassifier) {
		r.logger.Warn("classifier failed, using heuristic", "error", err)
	}
	return Decision{Label: Heuristic(text), Source: SourceHeuristic}
}

func (r *Router) classify(ctx context.Context, text string) (domain.Label, error) {
	if r.classifier == nil {
		return "", ErrNoClassifier
	}
	raw, err := r.classifier.Complete(ctx, domain.History{
		domain.SystemTurn(ClassifierInstruction),
		domain.UserTurn(text),
	})
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	label, ok := SanitizeLabel(raw)
	if !ok {
		return "", fmt.Errorf("classify: invalid label %q", raw)
	}
	return label, nil
}
