package repo

import (
	"context"
	"errors"

	"github.com/flowgate-labs/flowgate-go/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Capability is an authorization level checked against a project.
type Capability string

const (
	CapabilityRead    Capability = "READ"
	CapabilityExecute Capability = "EXECUTE"
)

// ProjectStore resolves projects and the permissions users hold on them.
type ProjectStore interface {
	GetProject(ctx context.Context, id string) (domain.Project, error)
	GetProjectByName(ctx context.Context, name string) (domain.Project, error)
	HasCapability(ctx context.Context, project domain.Project, user string, capability Capability) (bool, error)
}

// FlowStore resolves flow definitions within a project.
type FlowStore interface {
	GetFlow(ctx context.Context, project domain.Project, flowID string) (domain.Flow, error)
}

// ScheduleStore lists active schedules.
type ScheduleStore interface {
	ListSchedules(ctx context.Context) ([]domain.Schedule, error)
}
