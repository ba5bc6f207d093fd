package agent

import (
	"context"

	"github.com/ashureev/mentor-labs/internal/orchestrator"
)

// TurnHandler executes one conversation turn.
// This interface is implemented by the orchestrator service.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResult, error)
}

// Ensure the orchestrator implements TurnHandler.
var _ TurnHandler = (*orchestrator.Service)(nil)
