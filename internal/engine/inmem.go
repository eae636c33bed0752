package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowgate-labs/flowgate-go/internal/domain"
)

// InMemory is a registry for dev deployments and tests. It honors the
// command surface with simple status transitions; it does not run jobs.
type InMemory struct {
	mu         sync.Mutex
	executions map[string]*domain.Execution
}

func NewInMemory() *InMemory {
	return &InMemory{executions: make(map[string]*domain.Execution)}
}

// Add registers an existing execution, assigning an id if it has none.
func (m *InMemory) Add(exec *domain.Execution) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	m.executions[exec.ID] = exec
}

func (m *InMemory) GetExecution(ctx context.Context, executionID string) (*domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executions[executionID], nil
}

func (m *InMemory) GetRunning(ctx context.Context, projectID, flowID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, exec := range m.executions {
		if exec.ProjectID == projectID && exec.FlowID == flowID && !exec.Status.Finished() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *InMemory) Submit(ctx context.Context, exec *domain.Execution) (string, error) {
	if err := exec.Validate(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	now := time.Now().UnixMilli()
	exec.SubmitTime = now
	exec.UpdateTime = now
	exec.Status = domain.StatusQueued
	m.executions[exec.ID] = exec
	return fmt.Sprintf("Execution %s submitted.", exec.ID), nil
}

func (m *InMemory) Cancel(ctx context.Context, exec *domain.Execution, actor string) error {
	return m.transition(exec, domain.StatusKilled)
}

func (m *InMemory) Pause(ctx context.Context, exec *domain.Execution, actor string) error {
	return m.transition(exec, domain.StatusPaused)
}

func (m *InMemory) Resume(ctx context.Context, exec *domain.Execution, actor string) error {
	return m.transition(exec, domain.StatusRunning)
}

func (m *InMemory) RetryFailures(ctx context.Context, exec *domain.Execution, actor string) error {
	return m.transition(exec, domain.StatusRunning)
}

func (m *InMemory) transition(exec *domain.Execution, next domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.executions[exec.ID]
	if !ok {
		return fmt.Errorf("execution %s is not registered", exec.ID)
	}
	if stored.Status.Finished() {
		return fmt.Errorf("execution %s already finished", exec.ID)
	}
	now := time.Now().UnixMilli()
	stored.Status = next
	stored.UpdateTime = now
	if next == domain.StatusKilled {
		stored.EndTime = now
	}
	return nil
}
