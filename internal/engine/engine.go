// Package engine defines the contract to the external execution engine
// that owns the execution registry and actually runs jobs. The gateway
// holds no cache: every request re-resolves executions through this
// interface and observes whichever state the engine publishes.
package engine

import (
	"context"

	"github.com/flowgate-labs/flowgate-go/internal/domain"
)

// Registry is the engine-side execution registry plus the control surface
// the gateway forwards commands to.
//
// GetExecution returns (nil, nil) when the id is unknown; a non-nil error
// means the lookup itself failed and is surfaced verbatim to clients.
type Registry interface {
	GetExecution(ctx context.Context, executionID string) (*domain.Execution, error)
	GetRunning(ctx context.Context, projectID, flowID string) ([]string, error)

	// Submit registers a new execution, assigns its id in place and
	// returns the engine's status message.
	Submit(ctx context.Context, exec *domain.Execution) (string, error)

	Cancel(ctx context.Context, exec *domain.Execution, actor string) error
	Pause(ctx context.Context, exec *domain.Execution, actor string) error
	Resume(ctx context.Context, exec *domain.Execution, actor string) error
	RetryFailures(ctx context.Context, exec *domain.Execution, actor string) error
}
