package command

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/flowgate-labs/flowgate-go/internal/authz"
	"github.com/flowgate-labs/flowgate-go/internal/domain"
	"github.com/flowgate-labs/flowgate-go/internal/engine"
	"github.com/flowgate-labs/flowgate-go/internal/fault"
	"github.com/flowgate-labs/flowgate-go/internal/platform/auditlog"
	"github.com/flowgate-labs/flowgate-go/internal/repo"
)

type Dispatcher struct {
	registry engine.Registry
	gate     *authz.Gate
	flows    repo.FlowStore
	audit    auditlog.QueryRower
	logger   *slog.Logger
}

// NewDispatcher wires the dispatcher. audit may be nil to disable the
// command audit trail (tests, dev mode without postgres).
func NewDispatcher(registry engine.Registry, gate *authz.Gate, flows repo.FlowStore, audit auditlog.QueryRower, logger *slog.Logger) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("engine registry is required")
	}
	if gate == nil {
		return nil, errors.New("authorization gate is required")
	}
	if flows == nil {
		return nil, errors.New("flow store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		gate:     gate,
		flows:    flows,
		audit:    audit,
		logger:   logger,
	}, nil
}

// Dispatch validates, authorizes and forwards one command. The dispatcher
// performs no state mutation itself; side effects are confined to the
// forwarded engine call.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (Result, error) {
	switch c := cmd.(type) {
	case Cancel:
		return d.control(ctx, c.ExecutionID, c.Actor, "execution.cancel", d.registry.Cancel)
	case Pause:
		return d.control(ctx, c.ExecutionID, c.Actor, "execution.pause", d.registry.Pause)
	case Resume:
		return d.control(ctx, c.ExecutionID, c.Actor, "execution.resume", d.registry.Resume)
	case RetryFailed:
		return d.retryFailed(ctx, c)
	case Submit:
		return d.submit(ctx, c)
	default:
		return Result{}, fault.ClientInput("unknown command")
	}
}

type engineCall func(ctx context.Context, exec *domain.Execution, actor string) error

func (d *Dispatcher) control(ctx context.Context, executionID, actor, action string, call engineCall) (Result, error) {
	if strings.TrimSpace(executionID) == "" {
		return Result{}, fault.ClientInput("execution id is required")
	}
	exec, _, err := d.gate.AuthorizeExecution(ctx, d.registry, executionID, actor, repo.CapabilityExecute)
	if err != nil {
		return Result{}, err
	}
	if err := call(ctx, exec, actor); err != nil {
		return Result{}, fault.Engine(err, "")
	}
	d.appendAudit(ctx, actor, action, exec.ID, map[string]any{
		"project_id": exec.ProjectID,
		"flow_id":    exec.FlowID,
	})
	return Result{ExecutionID: exec.ID, FlowID: exec.FlowID}, nil
}

func (d *Dispatcher) retryFailed(ctx context.Context, cmd RetryFailed) (Result, error) {
	if strings.TrimSpace(cmd.ExecutionID) == "" {
		return Result{}, fault.ClientInput("execution id is required")
	}
	exec, _, err := d.gate.AuthorizeExecution(ctx, d.registry, cmd.ExecutionID, cmd.Actor, repo.CapabilityExecute)
	if err != nil {
		return Result{}, err
	}

	// A finished execution cannot retry; no engine call is made.
	if exec.Status == domain.StatusFailed || exec.Status == domain.StatusSucceeded {
		return Result{}, fault.PreconditionFailed("Execution has already finished. Please re-execute.")
	}

	if err := d.registry.RetryFailures(ctx, exec, cmd.Actor); err != nil {
		return Result{}, fault.Engine(err, "")
	}
	d.appendAudit(ctx, cmd.Actor, "execution.retry_failed", exec.ID, map[string]any{
		"project_id": exec.ProjectID,
		"flow_id":    exec.FlowID,
	})
	return Result{ExecutionID: exec.ID, FlowID: exec.FlowID}, nil
}

func (d *Dispatcher) submit(ctx context.Context, cmd Submit) (Result, error) {
	if strings.TrimSpace(cmd.ProjectName) == "" {
		return Result{}, fault.ClientInput("project is required")
	}
	if strings.TrimSpace(cmd.FlowID) == "" {
		return Result{}, fault.ClientInput("flow is required")
	}

	project, err := d.gate.AuthorizeProjectByName(ctx, cmd.ProjectName, cmd.Actor, repo.CapabilityExecute)
	if err != nil {
		return Result{FlowID: cmd.FlowID}, err
	}

	flow, err := d.flows.GetFlow(ctx, project, cmd.FlowID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Result{FlowID: cmd.FlowID}, fault.NotFound("Flow '%s' cannot be found in project %s", cmd.FlowID, project.Name)
		}
		return Result{FlowID: cmd.FlowID}, err
	}

	exec := domain.NewExecution(flow)
	exec.ProjectID = project.ID
	exec.SubmitUser = cmd.Actor
	exec.ProxyUsers = append([]string(nil), project.ProxyUsers...)
	exec.Options = cmd.Options

	// Addressees the submitter did not explicitly override inherit the
	// flow definition's defaults.
	if !exec.Options.FailureEmailsOverride {
		exec.Options.FailureEmails = append([]string(nil), flow.FailureEmails...)
	}
	if !exec.Options.SuccessEmailsOverride {
		exec.Options.SuccessEmails = append([]string(nil), flow.SuccessEmails...)
	}

	message, err := d.registry.Submit(ctx, exec)
	if err != nil {
		// The id is echoed even on rejection when the engine already
		// assigned one.
		return Result{ExecutionID: exec.ID, FlowID: flow.ID},
			fault.Engine(err, "Error submitting flow %s", flow.ID)
	}

	d.appendAudit(ctx, cmd.Actor, "execution.submit", exec.ID, map[string]any{
		"project_id": project.ID,
		"flow_id":    flow.ID,
	})
	return Result{ExecutionID: exec.ID, FlowID: flow.ID, Message: message}, nil
}

func (d *Dispatcher) appendAudit(ctx context.Context, actor, action, executionID string, payload map[string]any) {
	if d.audit == nil {
		return
	}
	_, err := auditlog.Insert(ctx, d.audit, auditlog.Event{
		OccurredAt:   time.Now().UTC(),
		Actor:        actor,
		Action:       action,
		ResourceType: "execution",
		ResourceID:   executionID,
		Payload:      payload,
	})
	if err != nil {
		d.logger.Warn("audit append failed", "action", action, "execution_id", executionID, "error", err)
	}
}
