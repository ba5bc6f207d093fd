package domain

// Phase is a node of the structured interview.
type Phase string

const (
	PhaseStart        Phase = "start"
	PhaseIntroduction Phase = "introduction"
	PhaseTesting      Phase = "testing"
	PhaseExploration  Phase = "exploration"
	PhaseFeedback     Phase = "feedback"
)

const (
	// MaxTests is the number of knowledge questions in the testing phase.
	MaxTests = 3
	// MaxGeneral is the number of open questions in the exploration phase.
	MaxGeneral = 4
)

// Progress is the durable interview record. It is treated as an immutable
// value: handlers return a modified copy.
type Progress struct {
	IntroDone   bool  `json:"intro_done"`
	TestsDone   int   `json:"tests_done"`
	GeneralDone int   `json:"general_done"`
	Phase       Phase `json:"phase"`
	Finished    bool  `json:"finished"`
}

// NewProgress returns the record of a brand-new session.
func NewProgress() Progress {
	return Progress{Phase: PhaseStart}
}

// Clamp bounds the counters to their valid ranges.
func (p Progress) Clamp() Progress {
	p.TestsDone = clamp(p.TestsDone, 0, MaxTests)
	p.GeneralDone = clamp(p.GeneralDone, 0, MaxGeneral)
	if p.Phase == "" {
		p.Phase = PhaseStart
	}
	return p
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
