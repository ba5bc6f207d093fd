// Package interview implements the structured interview state machine.
package interview

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/mentor-labs/internal/domain"
)

// ErrStepBudgetExceeded is returned when a run would execute more states
// than its budget allows.
var ErrStepBudgetExceeded = errors.New("interview step budget exceeded")

// DefaultStepBudget is the number of states one Run may execute.
const DefaultStepBudget = 1

// Fixed interview texts.
const (
	IntroductionQuestion = "Before we begin, could you tell me a bit about your current " +
		"experience and knowledge in AI engineering?"

	FeedbackMessage = "Great work today! Based on this short interview, I recommend reviewing " +
		"some fundamentals of machine learning, vector databases, and evaluation " +
		"methods. Keep practicing, and I’ll be ready to test you again in the next session!"
)

// TestingQuestions are asked in order during the testing phase.
var TestingQuestions = [domain.MaxTests]string{
	"Can you explain what embeddings are used for in AI?",
	"What’s the difference between supervised and unsupervised learning?",
	"How does a vector database like Chroma or FAISS help in a RAG pipeline?",
}

// ExplorationQuestions are asked in order during the exploration phase.
var ExplorationQuestions = [domain.MaxGeneral]string{
	"What do you think is the biggest challenge in applying AI in real-world systems?",
	"Can you think of a good example of when NOT to use deep learning?",
	"Why is evaluation important in AI systems?",
	"How do you see the role of AI evolving in the next 5 years?",
}

// Step is the output of one state handler.
type Step struct {
	Turns     []domain.Turn
	Progress  domain.Progress
	Interrupt bool
}

// Handler executes one state. Handlers are pure: they must not modify
// their arguments.
type Handler func(history domain.History, p domain.Progress) Step

// Route selects the next state from the durable counters.
func Route(p domain.Progress) domain.Phase {
	switch {
	case !p.IntroDone:
		return domain.PhaseIntroduction
	case p.TestsDone < domain.MaxTests:
		return domain.PhaseTesting
	case p.GeneralDone < domain.MaxGeneral:
		return domain.PhaseExploration
	}
	return domain.PhaseFeedback
}

func introduce(_ domain.History, p domain.Progress) Step {
	p.IntroDone = true
	p.Phase = domain.PhaseIntroduction
	return Step{Turns: []domain.Turn{domain.AssistantTurn(IntroductionQuestion)}, Progress: p, Interrupt: true}
}

func askTest(_ domain.History, p domain.Progress) Step {
	p.Phase = domain.PhaseTesting
	if p.TestsDone >= domain.MaxTests {
		return Step{Progress: p, Interrupt: true}
	}
	q := TestingQuestions[p.TestsDone]
	p.TestsDone++
	return Step{Turns: []domain.Turn{domain.AssistantTurn(q)}, Progress: p, Interrupt: true}
}

func explore(_ domain.History, p domain.Progress) Step {
	p.Phase = domain.PhaseExploration
	if p.GeneralDone >= domain.MaxGeneral {
		return Step{Progress: p, Interrupt: true}
	}
	q := ExplorationQuestions[p.GeneralDone]
	p.GeneralDone++
	return Step{Turns: []domain.Turn{domain.AssistantTurn(q)}, Progress: p, Interrupt: true}
}

func giveFeedback(_ domain.History, p domain.Progress) Step {
	p.Phase = domain.PhaseFeedback
	if p.Finished {
		return Step{Progress: p, Interrupt: true}
	}
	p.Finished = true
	return Step{Turns: []domain.Turn{domain.AssistantTurn(FeedbackMessage)}, Progress: p, Interrupt: true}
}

// Result is the outcome of one Run.
type Result struct {
	// History is the input history followed by the produced turns.
	History  domain.History
	Progress domain.Progress
	// Phase is the last state that executed.
	Phase domain.Phase
	Steps int
}

// Option configures a Machine.
type Option func(*Machine)

// WithStepBudget sets how many states one Run may execute.
func WithStepBudget(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.budget = n
		}
	}
}

// WithHandler replaces the handler of phase.
func WithHandler(phase domain.Phase, h Handler) Option {
	return func(m *Machine) {
		m.handlers[phase] = h
	}
}

// Machine runs the interview one state per call.
type Machine struct {
	handlers map[domain.Phase]Handler
	budget   int
}

// New creates a Machine with the built-in handlers.
func New(opts ...Option) *Machine {
	m := &Machine{
		handlers: map[domain.Phase]Handler{
			domain.PhaseIntroduction: introduce,
			domain.PhaseTesting:      askTest,
			domain.PhaseExploration:  explore,
			domain.PhaseFeedback:     giveFeedback,
		},
		budget: DefaultStepBudget,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run routes from p and executes states until one interrupts. Counters in
// the returned progress never decrease relative to p.
func (m *Machine) Run(ctx context.Context, history domain.History, p domain.Progress) (*Result, error) {
	current := p.Clamp()
	out := history.Clone()
	res := &Result{Phase: current.Phase}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res.Steps >= m.budget {
			return nil, fmt.Errorf("%w: %d steps", ErrStepBudgetExceeded, m.budget)
		}
		phase := Route(current)
		h, ok := m.handlers[phase]
		if !ok {
			return nil, fmt.Errorf("no handler for phase %q", phase)
		}
		step := h(out.Clone(), current)
		res.Steps++
		res.Phase = phase
		out = out.Append(step.Turns...)
		current = advance(current, step.Progress)
		current.Phase = phase
		if step.Interrupt {
			break
		}
	}

	res.History = out
	res.Progress = current
	return res, nil
}

// advance merges next into prev without letting any counter move backwards.
func advance(prev, next domain.Progress) domain.Progress {
	next = next.Clamp()
	next.IntroDone = next.IntroDone || prev.IntroDone
	next.Finished = next.Finished || prev.Finished
	next.TestsDone = max(next.TestsDone, prev.TestsDone)
	next.GeneralDone = max(next.GeneralDone, prev.GeneralDone)
	return next
}
