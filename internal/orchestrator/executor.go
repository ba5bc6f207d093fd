// Package orchestrator executes conversation turns: persona replies, the
// committee fan-out and the reconciliation of results into the session.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/ashureev/mentor-labs/internal/domain"
	"github.com/ashureev/mentor-labs/internal/llm"
	"github.com/ashureev/mentor-labs/internal/metrics"
	"github.com/ashureev/mentor-labs/internal/persona"
	"golang.org/x/sync/errgroup"
)

// Fixed framing of the committee reply.
const (
	CommitteeHeader = "### Advisory committee\nHere is how each advisor sees it:"

	CommitteeClosing = "_Want a single recommendation? Ask the committee for a consolidated decision " +
		"and tell me which trade-off matters most to you._"
)

// ChunkSink receives streamed reply fragments.
type ChunkSink func(chunk string) error

// PersonaCall is one request to a persona.
type PersonaCall struct {
	Label   domain.Label
	History domain.History
	// Notes is retrieved reference material appended to the instruction.
	Notes string
	Sink  ChunkSink
}

// PersonaReply is the outcome of one persona call.
type PersonaReply struct {
	Label domain.Label
	Turn  domain.Turn
	// SubHistory is the persona's updated private history. Only PM, CTO
	// and VC carry one.
	SubHistory domain.History
	Failed     bool
}

// Executor runs persona completions.
type Executor struct {
	llm      llm.Completer
	personas *persona.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(completer llm.Completer, personas *persona.Registry, m *metrics.Metrics, logger *slog.Logger) *Executor {
	if personas == nil {
		personas = persona.NewRegistry(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{llm: completer, personas: personas, metrics: m, logger: logger}
}

// reseed replaces the leading system turn with label's composed instruction
// and any retrieved notes.
func (e *Executor) reseed(label domain.Label, history domain.History, notes string) domain.History {
	instruction := e.personas.Instruction(label)
	if notes = strings.TrimSpace(notes); notes != "" {
		instruction += "\n\nReference material:\n" + notes
	}
	return history.WithSystem(instruction)
}

// RunPersona answers call.History as call.Label. Completion failures
// produce a visible apology instead of an error. When call.Sink is set the
// reply is streamed through it, label first.
func (e *Executor) RunPersona(ctx context.Context, call PersonaCall) PersonaReply {
	label := call.Label
	name := label.DisplayName()
	request := e.reseed(label, call.History, call.Notes).Compact()

	var (
		text string
		err  error
	)
	if call.Sink != nil {
		ls := &labelSink{name: name, sink: call.Sink}
		text, err = e.llm.Stream(ctx, request, ls.write)
		if err == nil {
			err = ls.flush()
		}
	} else {
		text, err = e.llm.Complete(ctx, request)
	}

	failed := false
	if err != nil {
		failed = true
		e.metrics.GenerationFailure(string(label))
		e.logger.Warn("persona completion failed", "persona", label, "error", err)
		text = fmt.Sprintf("I couldn't reach the %s right now (%v). Please try again in a moment.", name, err)
	}

	turn := domain.AssistantTurn(persona.ApplyLabel(name, text))
	out := PersonaReply{Label: label, Turn: turn, Failed: failed}
	if label.HasSubHistory() {
		out.SubHistory = request.Append(turn)
	}
	return out
}

// labelSink holds back the opening of a streamed reply until it can tell
// whether the model already wrote the persona label, then adds it if not.
type labelSink struct {
	name    string
	sink    ChunkSink
	buf     strings.Builder
	decided bool
}

func (l *labelSink) write(chunk string) error {
	if l.decided {
		return l.sink(chunk)
	}
	l.buf.WriteString(chunk)
	opening := strings.TrimLeftFunc(l.buf.String(), unicode.IsSpace)
	if len(opening) < len(l.name)+8 {
		return nil
	}
	return l.flush()
}

func (l *labelSink) flush() error {
	if l.decided {
		return nil
	}
	l.decided = true
	opening := strings.TrimLeftFunc(l.buf.String(), unicode.IsSpace)
	l.buf.Reset()
	if opening == "" {
		return nil
	}
	if !persona.HasLabel(l.name, opening) {
		opening = "**" + l.name + ":** " + opening
	}
	return l.sink(opening)
}

// RunCommittee asks PM, CTO and VC concurrently, each against its own
// sub-history plus the user turn, and composes one reply. It always
// returns a composite turn.
func (e *Executor) RunCommittee(ctx context.Context, userTurn domain.Turn, subs map[domain.Label]domain.History, notes string) (domain.Turn, []PersonaReply) {
	replies := make([]PersonaReply, len(domain.CommitteeMembers))

	// Member failures become apology sections, so Wait never returns an error.
	var g errgroup.Group
	for i, label := range domain.CommitteeMembers {
		request := subs[label].Clone().Append(userTurn)
		g.Go(func() error {
			replies[i] = e.RunPersona(ctx, PersonaCall{Label: label, History: request, Notes: notes})
			return nil
		})
	}
	_ = g.Wait()

	return composeCommittee(replies), replies
}

func composeCommittee(replies []PersonaReply) domain.Turn {
	sections := make([]string, 0, len(replies)+2)
	sections = append(sections, CommitteeHeader)
	for _, r := range replies {
		sections = append(sections, r.Turn.Content)
	}
	sections = append(sections, CommitteeClosing)
	return domain.AssistantTurn(strings.Join(sections, "\n\n"))
}
