package artifacts

import (
	"context"
	"errors"

	"github.com/flowgate-labs/flowgate-go/internal/authz"
	"github.com/flowgate-labs/flowgate-go/internal/engine"
	"github.com/flowgate-labs/flowgate-go/internal/fault"
	"github.com/flowgate-labs/flowgate-go/internal/repo"
)

// Service authorizes artifact reads and applies the pagination contract:
// an absent artifact or an exhausted range yields {offset, 0, ""}, never
// an error.
type Service struct {
	registry engine.Registry
	gate     *authz.Gate
	store    Store
}

func NewService(registry engine.Registry, gate *authz.Gate, store Store) (*Service, error) {
	if registry == nil {
		return nil, errors.New("engine registry is required")
	}
	if gate == nil {
		return nil, errors.New("authorization gate is required")
	}
	if store == nil {
		return nil, errors.New("artifact store is required")
	}
	return &Service{registry: registry, gate: gate, store: store}, nil
}

// ExecutionLog reads one page of the execution-level log.
func (s *Service) ExecutionLog(ctx context.Context, executionID, user string, offset, length int64) (Chunk, error) {
	if _, _, err := s.gate.AuthorizeExecution(ctx, s.registry, executionID, user, repo.CapabilityRead); err != nil {
		return Chunk{}, err
	}
	chunk, ok, err := s.store.ReadExecutionLog(ctx, executionID, offset, length)
	if err != nil {
		return Chunk{}, err
	}
	if !ok {
		return Chunk{Offset: offset}, nil
	}
	return chunk, nil
}

// JobLog reads one page of a single job's log. attempt < 0 selects the
// node's current attempt.
func (s *Service) JobLog(ctx context.Context, executionID, jobID, user string, attempt int, offset, length int64) (Chunk, error) {
	exec, _, err := s.gate.AuthorizeExecution(ctx, s.registry, executionID, user, repo.CapabilityRead)
	if err != nil {
		return Chunk{}, err
	}
	node := exec.Node(jobID)
	if node == nil {
		return Chunk{}, fault.NotFound("Job %s doesn't exist in %s", jobID, executionID)
	}
	if attempt < 0 {
		attempt = node.Attempt
	}
	chunk, ok, err := s.store.ReadJobLog(ctx, executionID, jobID, attempt, offset, length)
	if err != nil {
		return Chunk{}, err
	}
	if !ok {
		return Chunk{Offset: offset}, nil
	}
	return chunk, nil
}

// JobMetadata reads one page of a job's metadata artifact. attempt < 0
// selects the node's current attempt.
func (s *Service) JobMetadata(ctx context.Context, executionID, jobID, user string, attempt int, offset, length int64) (Chunk, error) {
	exec, _, err := s.gate.AuthorizeExecution(ctx, s.registry, executionID, user, repo.CapabilityRead)
	if err != nil {
		return Chunk{}, err
	}
	node := exec.Node(jobID)
	if node == nil {
		return Chunk{}, fault.NotFound("Job %s doesn't exist in %s", jobID, executionID)
	}
	if attempt < 0 {
		attempt = node.Attempt
	}
	chunk, ok, err := s.store.ReadJobMetadata(ctx, executionID, jobID, attempt, offset, length)
	if err != nil {
		return Chunk{}, err
	}
	if !ok {
		return Chunk{Offset: offset}, nil
	}
	return chunk, nil
}
