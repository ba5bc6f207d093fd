package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/mentor-labs/internal/domain"
	"github.com/ashureev/mentor-labs/internal/interview"
	"github.com/ashureev/mentor-labs/internal/metrics"
	"github.com/ashureev/mentor-labs/internal/persona"
	"github.com/ashureev/mentor-labs/internal/retrieval"
	"github.com/ashureev/mentor-labs/internal/router"
	"github.com/ashureev/mentor-labs/internal/store"
)

// DefaultThreadID is used when a request names no thread.
const DefaultThreadID = "default-thread"

var (
	// ErrEmptyMessage is returned for a turn without user text.
	ErrEmptyMessage = errors.New("message is required")
	// ErrInvalidHistory is returned when a seed history cannot be read.
	ErrInvalidHistory = errors.New("invalid history")
)

// Retriever looks up reference material for a user turn.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]domain.Citation, error)
}

// TurnRequest is one user turn.
type TurnRequest struct {
	ThreadID string
	Message  string
	// SystemPrompt rewrites the thread's system turn when set.
	SystemPrompt string
	// Mode overrides the thread's mode when valid.
	Mode domain.Mode
	// History seeds a brand-new thread. It is ignored for existing threads.
	History any
	// Sink receives the reply as it is produced.
	Sink ChunkSink
}

// TurnResult is the outcome of one turn.
type TurnResult struct {
	ThreadID  string            `json:"thread_id"`
	Reply     string            `json:"reply"`
	Mode      domain.Mode       `json:"mode"`
	Phase     domain.Phase      `json:"phase"`
	Label     domain.Label      `json:"label,omitempty"`
	Citations []domain.Citation `json:"citations"`
	Progress  domain.Progress   `json:"progress"`
}

// Config holds service defaults.
type Config struct {
	DefaultMode         domain.Mode
	DefaultSystemPrompt string
}

// Option configures a Service.
type Option func(*Service)

// WithRetriever attaches a retriever for citations.
func WithRetriever(r Retriever) Option {
	return func(s *Service) {
		s.retriever = r
	}
}

// WithMetrics records turn metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service runs turns against persisted sessions.
type Service struct {
	store     store.SessionStore
	executor  *Executor
	router    *router.Router
	machine   *interview.Machine
	retriever Retriever
	metrics   *metrics.Metrics
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	locks     *threadLocks
}

// NewService creates a Service.
func NewService(st store.SessionStore, executor *Executor, rt *router.Router, machine *interview.Machine, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.DefaultMode.Valid() {
		cfg.DefaultMode = domain.ModeRouter
	}
	if strings.TrimSpace(cfg.DefaultSystemPrompt) == "" {
		cfg.DefaultSystemPrompt = persona.DefaultSystemPrompt
	}
	if machine == nil {
		machine = interview.New()
	}
	s := &Service{
		store:    st,
		executor: executor,
		router:   rt,
		machine:  machine,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		locks:    newThreadLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleTurn appends the user turn to the thread, executes it and saves
// the merged history. Store failures are returned; nothing is saved when
// the turn fails before the save.
func (s *Service) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	start := time.Now()
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		threadID = DefaultThreadID
	}

	unlock := s.locks.lock(threadID)
	defer unlock()

	sess, err := s.loadOrSeed(ctx, threadID, req)
	if err != nil {
		return nil, err
	}

	userTurn := domain.UserTurn(message)
	before := sess.History.Append(userTurn)
	citations := s.cite(ctx, message)

	var (
		after any
		label domain.Label
		phase = sess.Progress.Phase
	)
	switch sess.Mode {
	case domain.ModeInterview:
		res, err := s.machine.Run(ctx, before, sess.Progress)
		if err != nil {
			return nil, fmt.Errorf("run interview for %s: %w", threadID, err)
		}
		after = res.History
		phase = res.Phase
		sess.Progress = res.Progress
	default:
		decision := s.router.Route(ctx, before)
		label = decision.Label
		after = s.runRouted(ctx, sess, before, userTurn, label, retrieval.FormatContext(citations), req.Sink)
		s.logger.Debug("turn routed", "thread_id", threadID, "label", label, "source", decision.Source)
	}

	merged := Merge(before, after)
	reply := ReplyFrom(merged)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess.History = merged
	sess.UpdatedAt = s.now()
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session %s: %w", threadID, err)
	}

	// Only streamed persona replies reached the sink chunk by chunk.
	if req.Sink != nil && (sess.Mode == domain.ModeInterview || label == domain.LabelCommittee) {
		if err := req.Sink(reply); err != nil {
			s.logger.Debug("reply sink closed", "thread_id", threadID, "error", err)
		}
	}

	route := string(label)
	if sess.Mode == domain.ModeInterview {
		route = string(phase)
	}
	s.metrics.ObserveTurn(string(sess.Mode), route, time.Since(start))

	return &TurnResult{
		ThreadID:  threadID,
		Reply:     reply,
		Mode:      sess.Mode,
		Phase:     phase,
		Label:     label,
		Citations: citations,
		Progress:  sess.Progress,
	}, nil
}

// runRouted executes a router-mode turn and returns the resulting history.
func (s *Service) runRouted(ctx context.Context, sess *domain.Session, before domain.History, userTurn domain.Turn, label domain.Label, notes string, sink ChunkSink) domain.History {
	if sess.Personas == nil {
		sess.Personas = make(map[domain.Label]domain.History)
	}

	if label == domain.LabelCommittee {
		composite, replies := s.executor.RunCommittee(ctx, userTurn, sess.Personas, notes)
		for _, r := range replies {
			sess.Personas[r.Label] = r.SubHistory
		}
		return before.Append(composite)
	}

	r := s.executor.RunPersona(ctx, PersonaCall{Label: label, History: before, Notes: notes, Sink: sink})
	if r.SubHistory != nil {
		sess.Personas[label] = r.SubHistory
	}
	return before.Append(r.Turn)
}

// loadOrSeed returns the thread's session, creating and seeding it when
// absent, with the request's mode and system prompt applied.
func (s *Service) loadOrSeed(ctx context.Context, threadID string, req TurnRequest) (*domain.Session, error) {
	sess, err := s.store.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", threadID, err)
	}

	if sess == nil {
		sess = domain.NewSession(threadID, s.cfg.DefaultMode, s.now())
		if req.History != nil {
			seed, err := domain.NormalizeHistory(req.History)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidHistory, err)
			}
			sess.History = canonicalSeed(seed)
		}
		s.logger.Info("session created", "thread_id", threadID, "seed_turns", len(sess.History))
	}

	switch {
	case req.Mode.Valid():
		sess.Mode = req.Mode
	case !sess.Mode.Valid():
		sess.Mode = s.cfg.DefaultMode
	}

	sys, hasSystem := sess.History.System()
	switch {
	case strings.TrimSpace(req.SystemPrompt) != "":
		sess.History = sess.History.WithSystem(req.SystemPrompt)
	case !hasSystem || sys.Empty():
		sess.History = sess.History.WithSystem(s.cfg.DefaultSystemPrompt)
	}
	return sess, nil
}

// canonicalSeed keeps a leading system turn, drops any later one and
// removes empty turns.
func canonicalSeed(h domain.History) domain.History {
	out := make(domain.History, 0, len(h))
	for i, t := range h.Compact() {
		if t.Role == domain.RoleSystem && i > 0 {
			continue
		}
		out = append(out, t)
	}
	return out
}

// cite returns citations for query. Failures yield none.
func (s *Service) cite(ctx context.Context, query string) []domain.Citation {
	if s.retriever == nil {
		return []domain.Citation{}
	}
	citations, err := s.retriever.Retrieve(ctx, query)
	if err != nil {
		s.logger.Warn("retrieval failed", "error", err)
		return []domain.Citation{}
	}
	if citations == nil {
		return []domain.Citation{}
	}
	return citations
}

// Session returns the stored state of threadID, or nil when absent.
func (s *Service) Session(ctx context.Context, threadID string) (*domain.Session, error) {
	if strings.TrimSpace(threadID) == "" {
		threadID = DefaultThreadID
	}
	sess, err := s.store.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", threadID, err)
	}
	return sess, nil
}
