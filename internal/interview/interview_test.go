package interview

import (
	"context"
	"errors"
	"testing"

	"github.com/ashureev/mentor-labs/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRoute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    domain.Progress
		want domain.Phase
	}{
		{"fresh", domain.NewProgress(), domain.PhaseIntroduction},
		{"intro done", domain.Progress{IntroDone: true}, domain.PhaseTesting},
		{"two tests", domain.Progress{IntroDone: true, TestsDone: 2}, domain.PhaseTesting},
		{"tests done", domain.Progress{IntroDone: true, TestsDone: 3}, domain.PhaseExploration},
		{"all done", domain.Progress{IntroDone: true, TestsDone: 3, GeneralDone: 4}, domain.PhaseFeedback},
		{"counters without intro", domain.Progress{TestsDone: 3, GeneralDone: 4}, domain.PhaseIntroduction},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Route(tt.p), tt.name)
	}
}

func TestFullInterviewSequence(t *testing.T) {
	t.Parallel()

	m := New()
	ctx := context.Background()
	history := domain.History{domain.SystemTurn("seed")}
	progress := domain.NewProgress()

	var want []string
	want = append(want, IntroductionQuestion)
	want = append(want, TestingQuestions[:]...)
	want = append(want, ExplorationQuestions[:]...)
	want = append(want, FeedbackMessage)

	phases := []domain.Phase{domain.PhaseIntroduction,
		domain.PhaseTesting, domain.PhaseTesting, domain.PhaseTesting,
		domain.PhaseExploration, domain.PhaseExploration, domain.PhaseExploration, domain.PhaseExploration,
		domain.PhaseFeedback,
	}

	for i, text := range want {
		history = history.Append(domain.UserTurn("answer"))
		res, err := m.Run(ctx, history, progress)
		require.NoError(t, err, "call %d", i+1)

		assert.Equal(t, 1, res.Steps)
		assert.Equal(t, phases[i], res.Phase, "call %d", i+1)
		require.Len(t, res.History, len(history)+1)
		assert.Equal(t, domain.AssistantTurn(text), res.History[len(res.History)-1], "call %d", i+1)

		history, progress = res.History, res.Progress
		switch i {
		case 0:
			assert.True(t, progress.IntroDone)
			assert.Equal(t, 0, progress.TestsDone)
		case 1:
			assert.Equal(t, 1, progress.TestsDone)
		}
	}

	assert.True(t, progress.Finished)
	assert.Equal(t, domain.MaxTests, progress.TestsDone)
	assert.Equal(t, domain.MaxGeneral, progress.GeneralDone)
}

func TestFeedbackReentryIsInert(t *testing.T) {
	t.Parallel()

	done := domain.Progress{IntroDone: true, TestsDone: 3, GeneralDone: 4, Phase: domain.PhaseFeedback, Finished: true}
	history := domain.History{domain.UserTurn("again?")}

	res, err := New().Run(context.Background(), history, done)
	require.NoError(t, err)
	assert.Equal(t, history, res.History)
	assert.Equal(t, done, res.Progress)
	assert.Equal(t, domain.PhaseFeedback, res.Phase)
}

func TestHandlersAreNoopAtLimit(t *testing.T) {
	t.Parallel()

	p := domain.Progress{IntroDone: true, TestsDone: 3, GeneralDone: 4}
	assert.Empty(t, askTest(nil, p).Turns)
	assert.Equal(t, 3, askTest(nil, p).Progress.TestsDone)
	assert.Empty(t, explore(nil, p).Turns)
	assert.Equal(t, 4, explore(nil, p).Progress.GeneralDone)
}

func TestRunRejectsMultiHop(t *testing.T) {
	t.Parallel()

	passThrough := func(_ domain.History, p domain.Progress) Step {
		p.IntroDone = true
		return Step{Turns: []domain.Turn{domain.AssistantTurn("hello")}, Progress: p}
	}
	m := New(WithHandler(domain.PhaseIntroduction, passThrough))

	history := domain.History{domain.UserTurn("hi")}
	res, err := m.Run(context.Background(), history, domain.NewProgress())
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrStepBudgetExceeded))
	assert.Len(t, history, 1)
}

func TestRunWithLargerBudgetHops(t *testing.T) {
	t.Parallel()

	passThrough := func(_ domain.History, p domain.Progress) Step {
		p.IntroDone = true
		return Step{Turns: []domain.Turn{domain.AssistantTurn("hello")}, Progress: p}
	}
	m := New(WithHandler(domain.PhaseIntroduction, passThrough), WithStepBudget(2))

	res, err := m.Run(context.Background(), nil, domain.NewProgress())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, domain.PhaseTesting, res.Phase)
	assert.Equal(t, domain.History{domain.AssistantTurn("hello"), domain.AssistantTurn(TestingQuestions[0])}, res.History)
}

func TestRunHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Run(ctx, nil, domain.NewProgress())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProgressIsMonotonic(t *testing.T) {
	t.Parallel()

	m := New()
	rapid.Check(t, func(t *rapid.T) {
		p := domain.Progress{
			IntroDone:   rapid.Bool().Draw(t, "intro"),
			TestsDone:   rapid.IntRange(-2, 6).Draw(t, "tests"),
			GeneralDone: rapid.IntRange(-2, 6).Draw(t, "general"),
			Finished:    rapid.Bool().Draw(t, "finished"),
		}
		calls := rapid.IntRange(1, 12).Draw(t, "calls")

		prev := p.Clamp()
		for i := 0; i < calls; i++ {
			res, err := m.Run(context.Background(), nil, prev)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			next := res.Progress
			if next.TestsDone < prev.TestsDone || next.GeneralDone < prev.GeneralDone {
				t.Fatalf("counters decreased: %+v -> %+v", prev, next)
			}
			if (prev.IntroDone && !next.IntroDone) || (prev.Finished && !next.Finished) {
				t.Fatalf("flags reset: %+v -> %+v", prev, next)
			}
			if next.TestsDone > domain.MaxTests || next.GeneralDone > domain.MaxGeneral {
				t.Fatalf("counters out of range: %+v", next)
			}
			if len(res.History) > 1 {
				t.Fatalf("more than one turn emitted: %d", len(res.History))
			}
			prev = next
		}
	})
}
