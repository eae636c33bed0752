package domain

import "fmt"

// FailureAction selects how the engine reacts when a job fails.
type FailureAction int

const (
	FailureActionFinishCurrentlyRunning FailureAction = iota
	FailureActionCancelAll
	FailureActionFinishAllPossible
)

// Token returns the wire token clients know the failure action by.
func (a FailureAction) Token() string {
	switch a {
	case FailureActionFinishCurrentlyRunning:
		return "finishCurrent"
	case FailureActionCancelAll:
		return "cancelImmediately"
	case FailureActionFinishAllPossible:
		return "finishPossible"
	default:
		return ""
	}
}

// ParseFailureAction maps a wire token back to a failure action.
func ParseFailureAction(token string) (FailureAction, error) {
	switch token {
	case "", "finishCurrent":
		return FailureActionFinishCurrentlyRunning, nil
	case "cancelImmediately":
		return FailureActionCancelAll, nil
	case "finishPossible":
		return FailureActionFinishAllPossible, nil
	default:
		return 0, fmt.Errorf("unknown failure action %q", token)
	}
}

// ExecutionOptions is the configuration an execution is submitted with.
// The override flags record whether the submitter set the addressees
// explicitly; unset addressees are backfilled from the flow definition
// at submission time.
type ExecutionOptions struct {
	SuccessEmails          []string
	FailureEmails          []string
	SuccessEmailsOverride  bool
	FailureEmailsOverride  bool
	FailureAction          FailureAction
	NotifyOnFirstFailure   bool
	NotifyOnLastFailure    bool
	FlowParameters         map[string]string
	ConcurrentOption       string
	PipelineLevel          int
	PipelineExecutionID    string
	QueueLevel             int
	DisabledJobs           []string
}
