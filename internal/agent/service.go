package agent

import (
	"context"
	"errors"
	"iter"
)

// ErrNoTurnHandler is returned when a Service has nothing to run turns on.
var ErrNoTurnHandler = errors.New("agent: no turn handler configured")

// Service adapts the orchestrator to request/response and streaming calls.
type Service struct {
	turns TurnHandler
}

// NewService creates a Service on top of turns.
func NewService(turns TurnHandler) (*Service, error) {
	if turns == nil {
		return nil, ErrNoTurnHandler
	}
	return &Service{turns: turns}, nil
}

// Chat runs one turn and returns the complete response.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	res, err := s.turns.HandleTurn(ctx, req.turnRequest(nil))
	if err != nil {
		return nil, err
	}
	return responseFrom(res), nil
}

// Stream runs one turn and yields reply chunks followed by a done event.
// Stopping the iteration cancels the turn.
func (s *Service) Stream(ctx context.Context, req ChatRequest) iter.Seq2[*StreamEvent, error] {
	return func(yield func(*StreamEvent, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		events := make(chan *StreamEvent)
		errc := make(chan error, 1)

		go func() {
			defer close(events)
			send := func(ev *StreamEvent) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				select {
				case events <- ev:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			res, err := s.turns.HandleTurn(ctx, req.turnRequest(func(chunk string) error {
				return send(&StreamEvent{Type: EventChunk, Content: chunk})
			}))
			if err != nil {
				errc <- err
				return
			}
			_ = send(&StreamEvent{Type: EventDone, Response: responseFrom(res)})
		}()

		for ev := range events {
			if !yield(ev, nil) {
				cancel()
				for range events {
				}
				return
			}
		}
		select {
		case err := <-errc:
			yield(nil, err)
		default:
		}
	}
}
