// Package query serves the read operations of the gateway: full and
// incremental execution state, flow information before and after
// submission, and the set of running executions for a flow.
package query

import (
	"context"
	"errors"

	"github.com/flowgate-labs/flowgate-go/internal/authz"
	"github.com/flowgate-labs/flowgate-go/internal/engine"
	"github.com/flowgate-labs/flowgate-go/internal/fault"
	"github.com/flowgate-labs/flowgate-go/internal/repo"
	"github.com/flowgate-labs/flowgate-go/internal/state"
)

type Service struct {
	registry  engine.Registry
	gate      *authz.Gate
	flows     repo.FlowStore
	schedules repo.ScheduleStore
}

func NewService(registry engine.Registry, gate *authz.Gate, flows repo.FlowStore, schedules repo.ScheduleStore) (*Service, error) {
	if registry == nil {
		return nil, errors.New("engine registry is required")
	}
	if gate == nil {
		return nil, errors.New("authorization gate is required")
	}
	if flows == nil {
		return nil, errors.New("flow store is required")
	}
	if schedules == nil {
		return nil, errors.New("schedule store is required")
	}
	return &Service{registry: registry, gate: gate, flows: flows, schedules: schedules}, nil
}

// Fetch returns the full first-load snapshot of an execution.
func (s *Service) Fetch(ctx context.Context, executionID, user string) (state.Snapshot, error) {
	exec, _, err := s.gate.AuthorizeExecution(ctx, s.registry, executionID, user, repo.CapabilityRead)
	if err != nil {
		return state.Snapshot{}, err
	}
	return state.TakeSnapshot(exec), nil
}

// FetchUpdate returns the delta of an execution since the watermark.
func (s *Service) FetchUpdate(ctx context.Context, executionID string, watermark int64, user string) (state.Delta, error) {
	exec, _, err := s.gate.AuthorizeExecution(ctx, s.registry, executionID, user, repo.CapabilityRead)
	if err != nil {
		return state.Delta{}, err
	}
	return state.TakeDelta(exec, watermark), nil
}

// FlowInfo is the pre-submission view of a flow definition: its default
// addressees and, when an active schedule exists, the next run time.
type FlowInfo struct {
	SuccessEmails []string `json:"successEmails"`
	FailureEmails []string `json:"failureEmails"`
	Scheduled     *int64   `json:"scheduled,omitempty"`
}

func (s *Service) FlowInfo(ctx context.Context, projectName, flowID, user string) (FlowInfo, error) {
	project, err := s.gate.AuthorizeProjectByName(ctx, projectName, user, repo.CapabilityRead)
	if err != nil {
		return FlowInfo{}, err
	}
	flow, err := s.flows.GetFlow(ctx, project, flowID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return FlowInfo{}, fault.NotFound("Error loading flow. Flow %s doesn't exist in %s", flowID, projectName)
		}
		return FlowInfo{}, err
	}

	info := FlowInfo{
		SuccessEmails: flow.SuccessEmails,
		FailureEmails: flow.FailureEmails,
	}

	schedules, err := s.schedules.ListSchedules(ctx)
	if err != nil {
		return FlowInfo{}, err
	}
	for _, sched := range schedules {
		if sched.ProjectID == project.ID && sched.FlowName == flowID {
			next := sched.NextRunTime
			info.Scheduled = &next
			break
		}
	}
	return info, nil
}

// ExecutionInfo is the post-submission options snapshot plus the current
// status of every node.
type ExecutionInfo struct {
	SuccessEmails         []string          `json:"successEmails"`
	FailureEmails         []string          `json:"failureEmails"`
	SuccessEmailsOverride bool              `json:"successEmailsOverride"`
	FailureEmailsOverride bool              `json:"failureEmailsOverride"`
	FlowParameters        map[string]string `json:"flowParam"`
	FailureAction         string            `json:"failureAction"`
	NotifyFailureFirst    bool              `json:"notifyFailureFirst"`
	NotifyFailureLast     bool              `json:"notifyFailureLast"`
	ConcurrentOption      string            `json:"concurrentOptions"`
	PipelineLevel         int               `json:"pipelineLevel"`
	PipelineExecution     string            `json:"pipelineExecution"`
	QueueLevel            int               `json:"queueLevel"`
	NodeStatus            map[string]string `json:"nodeStatus"`
	Disabled              []string          `json:"disabled"`
}

func (s *Service) ExecutionInfo(ctx context.Context, executionID, user string) (ExecutionInfo, error) {
	exec, _, err := s.gate.AuthorizeExecution(ctx, s.registry, executionID, user, repo.CapabilityRead)
	if err != nil {
		return ExecutionInfo{}, err
	}

	options := exec.Options
	nodeStatus := make(map[string]string, len(exec.Nodes))
	for _, node := range exec.Nodes {
		nodeStatus[node.JobID] = string(node.Status)
	}

	return ExecutionInfo{
		SuccessEmails:         options.SuccessEmails,
		FailureEmails:         options.FailureEmails,
		SuccessEmailsOverride: options.SuccessEmailsOverride,
		FailureEmailsOverride: options.FailureEmailsOverride,
		FlowParameters:        options.FlowParameters,
		FailureAction:         options.FailureAction.Token(),
		NotifyFailureFirst:    options.NotifyOnFirstFailure,
		NotifyFailureLast:     options.NotifyOnLastFailure,
		ConcurrentOption:      options.ConcurrentOption,
		PipelineLevel:         options.PipelineLevel,
		PipelineExecution:     options.PipelineExecutionID,
		QueueLevel:            options.QueueLevel,
		NodeStatus:            nodeStatus,
		Disabled:              options.DisabledJobs,
	}, nil
}

// Running returns the ids of executions currently running for the given
// (project, flow) pair. An empty result means none; callers omit the
// field entirely in that case.
func (s *Service) Running(ctx context.Context, projectName, flowID, user string) ([]string, error) {
	project, err := s.gate.AuthorizeProjectByName(ctx, projectName, user, repo.CapabilityExecute)
	if err != nil {
		return nil, err
	}
	ids, err := s.registry.GetRunning(ctx, project.ID, flowID)
	if err != nil {
		return nil, fault.Engine(err, "")
	}
	return ids, nil
}
