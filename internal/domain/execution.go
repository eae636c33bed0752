package domain

import (
	"errors"
	"strings"
)

// Node is one job within an execution's DAG. Status, times and attempt
// fields are written by the execution engine; OutNodes is fixed at
// construction and never changes. Timestamps are Unix milliseconds,
// 0 meaning unset.
type Node struct {
	JobID     string
	Level     int
	Status    Status
	StartTime int64
	EndTime   int64

	// UpdateTime strictly increases at least once per externally visible
	// change; the delta protocol diffs against it.
	UpdateTime int64

	// Attempt is the current attempt number (0 = first attempt). It equals
	// PastAttempts.Len() at the start of the current attempt.
	Attempt      int
	PastAttempts AttemptHistory

	OutNodes []string
}

// Execution is one DAG instance for one run of a flow. It is owned by the
// engine's registry; this gateway only reads it and requests mutations
// through the engine. Concurrent readers see per-field atomic values but
// no cross-field or cross-node consistency.
type Execution struct {
	ID         string
	ProjectID  string
	FlowID     string
	SubmitUser string
	ProxyUsers []string
	Options    ExecutionOptions

	Status     Status
	SubmitTime int64
	StartTime  int64
	EndTime    int64
	UpdateTime int64

	Nodes []*Node
}

func (e *Execution) Validate() error {
	if strings.TrimSpace(e.ProjectID) == "" {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(e.FlowID) == "" {
		return errors.New("flow id is required")
	}
	if strings.TrimSpace(e.SubmitUser) == "" {
		return errors.New("submit user is required")
	}
	return nil
}

// Node returns the node with the given job id, or nil.
func (e *Execution) Node(jobID string) *Node {
	for _, node := range e.Nodes {
		if node.JobID == jobID {
			return node
		}
	}
	return nil
}

// NewExecution builds an executable DAG from a flow definition. The node
// set and edges are fixed here; the engine fills in status and times as it
// advances the execution.
func NewExecution(flow Flow) *Execution {
	nodes := make([]*Node, 0, len(flow.Jobs))
	for _, job := range flow.Jobs {
		out := make([]string, len(job.OutNodes))
		copy(out, job.OutNodes)
		nodes = append(nodes, &Node{
			JobID:    job.ID,
			Level:    job.Level,
			Status:   StatusReady,
			OutNodes: out,
		})
	}
	return &Execution{
		ProjectID: flow.ProjectID,
		FlowID:    flow.ID,
		Status:    StatusReady,
		Nodes:     nodes,
	}
}
