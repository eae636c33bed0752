package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/flowgate-labs/flowgate-go/internal/authz"
	"github.com/flowgate-labs/flowgate-go/internal/domain"
	"github.com/flowgate-labs/flowgate-go/internal/fault"
	"github.com/flowgate-labs/flowgate-go/internal/repo"
)

type fakeBackend struct {
	project   domain.Project
	flow      domain.Flow
	schedules []domain.Schedule
	exec      *domain.Execution

	running    []string
	runningErr error
}

func (f *fakeBackend) GetProject(ctx context.Context, id string) (domain.Project, error) {
	if id != f.project.ID {
		return domain.Project{}, repo.ErrNotFound
	}
	return f.project, nil
}

func (f *fakeBackend) GetProjectByName(ctx context.Context, name string) (domain.Project, error) {
	if name != f.project.Name {
		return domain.Project{}, repo.ErrNotFound
	}
	return f.project, nil
}

func (f *fakeBackend) HasCapability(ctx context.Context, project domain.Project, user string, capability repo.Capability) (bool, error) {
	return user == "alice", nil
}

func (f *fakeBackend) GetFlow(ctx context.Context, project domain.Project, flowID string) (domain.Flow, error) {
	if flowID != f.flow.ID {
		return domain.Flow{}, repo.ErrNotFound
	}
	return f.flow, nil
}

func (f *fakeBackend) ListSchedules(ctx context.Context) ([]domain.Schedule, error) {
	return f.schedules, nil
}

func (f *fakeBackend) GetExecution(ctx context.Context, executionID string) (*domain.Execution, error) {
	if f.exec == nil || f.exec.ID != executionID {
		return nil, nil
	}
	return f.exec, nil
}

func (f *fakeBackend) GetRunning(ctx context.Context, projectID, flowID string) ([]string, error) {
	return f.running, f.runningErr
}

func (f *fakeBackend) Submit(ctx context.Context, exec *domain.Execution) (string, error) {
	return "", nil
}

func (f *fakeBackend) Cancel(ctx context.Context, exec *domain.Execution, actor string) error {
	return nil
}

func (f *fakeBackend) Pause(ctx context.Context, exec *domain.Execution, actor string) error {
	return nil
}

func (f *fakeBackend) Resume(ctx context.Context, exec *domain.Execution, actor string) error {
	return nil
}

func (f *fakeBackend) RetryFailures(ctx context.Context, exec *domain.Execution, actor string) error {
	return nil
}

func newTestService(t *testing.T, backend *fakeBackend) *Service {
	t.Helper()
	gate, err := authz.NewGate(backend)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	service, err := NewService(backend, gate, backend, backend)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return service
}

func defaultBackend() *fakeBackend {
	return &fakeBackend{
		project: domain.Project{ID: "proj-1", Name: "marketing"},
		flow: domain.Flow{
			ID:            "daily",
			ProjectID:     "proj-1",
			SuccessEmails: []string{"owners@example.com"},
			FailureEmails: []string{"oncall@example.com"},
		},
		exec: &domain.Execution{
			ID:         "exec-1",
			ProjectID:  "proj-1",
			FlowID:     "daily",
			SubmitUser: "alice",
			Status:     domain.StatusRunning,
			SubmitTime: 100,
			StartTime:  110,
			UpdateTime: 150,
			Options: domain.ExecutionOptions{
				FailureAction: domain.FailureActionCancelAll,
			},
			Nodes: []*domain.Node{
				{JobID: "extract", Status: domain.StatusSucceeded, UpdateTime: 120, OutNodes: []string{"load"}},
				{JobID: "load", Status: domain.StatusRunning, UpdateTime: 150},
			},
		},
	}
}

func TestFetchSnapshot(t *testing.T) {
	service := newTestService(t, defaultBackend())

	snapshot, err := service.Fetch(context.Background(), "exec-1", "alice")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(snapshot.Nodes) != 2 {
		t.Fatalf("len(Nodes)=%d, want 2", len(snapshot.Nodes))
	}
	if len(snapshot.Edges) != 1 {
		t.Fatalf("len(Edges)=%d, want 1", len(snapshot.Edges))
	}
}

func TestFetchUpdateHonorsWatermark(t *testing.T) {
	service := newTestService(t, defaultBackend())

	delta, err := service.FetchUpdate(context.Background(), "exec-1", 120, "alice")
	if err != nil {
		t.Fatalf("FetchUpdate: %v", err)
	}
	if len(delta.Nodes) != 1 || delta.Nodes[0].ID != "load" {
		t.Fatalf("Nodes=%+v, want only load", delta.Nodes)
	}
}

func TestFetchDeniedForUnknownUser(t *testing.T) {
	service := newTestService(t, defaultBackend())

	_, err := service.Fetch(context.Background(), "exec-1", "eve")
	if fault.KindOf(err) != fault.KindPermissionDenied {
		t.Fatalf("kind=%v, want PermissionDenied (err=%v)", fault.KindOf(err), err)
	}
}

func TestFlowInfoWithSchedule(t *testing.T) {
	backend := defaultBackend()
	backend.schedules = []domain.Schedule{
		{ProjectID: "proj-other", FlowName: "daily", NextRunTime: 111},
		{ProjectID: "proj-1", FlowName: "daily", NextRunTime: 555},
	}
	service := newTestService(t, backend)

	info, err := service.FlowInfo(context.Background(), "marketing", "daily", "alice")
	if err != nil {
		t.Fatalf("FlowInfo: %v", err)
	}
	if info.Scheduled == nil || *info.Scheduled != 555 {
		t.Fatalf("Scheduled=%v, want 555 from the matching schedule", info.Scheduled)
	}
	if len(info.FailureEmails) != 1 || info.FailureEmails[0] != "oncall@example.com" {
		t.Fatalf("FailureEmails=%v, want flow defaults", info.FailureEmails)
	}
}

func TestFlowInfoWithoutSchedule(t *testing.T) {
	service := newTestService(t, defaultBackend())

	info, err := service.FlowInfo(context.Background(), "marketing", "daily", "alice")
	if err != nil {
		t.Fatalf("FlowInfo: %v", err)
	}
	if info.Scheduled != nil {
		t.Fatalf("Scheduled=%v, want nil when no schedule exists", info.Scheduled)
	}
}

func TestFlowInfoUnknownFlow(t *testing.T) {
	service := newTestService(t, defaultBackend())

	_, err := service.FlowInfo(context.Background(), "marketing", "nightly", "alice")
	if fault.KindOf(err) != fault.KindNotFound {
		t.Fatalf("kind=%v, want NotFound (err=%v)", fault.KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "nightly") {
		t.Fatalf("error=%q, want the flow named", err.Error())
	}
}

func TestExecutionInfo(t *testing.T) {
	service := newTestService(t, defaultBackend())

	info, err := service.ExecutionInfo(context.Background(), "exec-1", "alice")
	if err != nil {
		t.Fatalf("ExecutionInfo: %v", err)
	}
	if info.FailureAction != "cancelImmediately" {
		t.Fatalf("FailureAction=%q, want cancelImmediately", info.FailureAction)
	}
	if got := info.NodeStatus["load"]; got != string(domain.StatusRunning) {
		t.Fatalf("NodeStatus[load]=%q, want running", got)
	}
}

func TestRunningPassesThroughEngineIDs(t *testing.T) {
	backend := defaultBackend()
	backend.running = []string{"exec-1", "exec-2"}
	service := newTestService(t, backend)

	ids, err := service.Running(context.Background(), "marketing", "daily", "alice")
	if err != nil {
		t.Fatalf("Running: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("len(ids)=%d, want 2", len(ids))
	}
}

func TestRunningEngineFailure(t *testing.T) {
	backend := defaultBackend()
	backend.runningErr = errors.New("registry offline")
	service := newTestService(t, backend)

	_, err := service.Running(context.Background(), "marketing", "daily", "alice")
	if fault.KindOf(err) != fault.KindEngine {
		t.Fatalf("kind=%v, want Engine (err=%v)", fault.KindOf(err), err)
	}
}
