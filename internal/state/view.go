// Package state builds read-only views over a live execution. Views are
// taken at call time against shared mutable state the engine keeps
// advancing: each field reflects a published value, but fields of
// different nodes are not guaranteed to be mutually consistent. Callers
// must treat every view as a best-effort, eventually-consistent snapshot.
package state

import "github.com/flowgate-labs/flowgate-go/internal/domain"

// NodeView is a node as rendered in the full snapshot.
type NodeView struct {
	ID           string           `json:"id"`
	Level        int              `json:"level"`
	Status       domain.Status    `json:"status"`
	StartTime    int64            `json:"startTime"`
	EndTime      int64            `json:"endTime"`
	PastAttempts []domain.Attempt `json:"pastAttempts"`
}

// Edge is one directed dependency, flattened from a node's out-edges.
type Edge struct {
	From   string `json:"from"`
	Target string `json:"target"`
}

// Snapshot is the full first-load view: complete node and edge lists plus
// execution-level status and timestamps.
type Snapshot struct {
	Nodes      []NodeView    `json:"nodes"`
	Edges      []Edge        `json:"edges"`
	Status     domain.Status `json:"status"`
	StartTime  int64         `json:"startTime"`
	EndTime    int64         `json:"endTime"`
	SubmitTime int64         `json:"submitTime"`
	SubmitUser string        `json:"submitUser"`
}

// TakeSnapshot renders the full snapshot of an execution. The attempt list
// is materialized for every node regardless of attempt count; edges are
// derived from each node's fixed out-edge set.
func TakeSnapshot(exec *domain.Execution) Snapshot {
	snapshot := Snapshot{
		Nodes:      make([]NodeView, 0, len(exec.Nodes)),
		Edges:      make([]Edge, 0, len(exec.Nodes)),
		Status:     exec.Status,
		StartTime:  exec.StartTime,
		EndTime:    exec.EndTime,
		SubmitTime: exec.SubmitTime,
		SubmitUser: exec.SubmitUser,
	}
	for _, node := range exec.Nodes {
		snapshot.Nodes = append(snapshot.Nodes, NodeView{
			ID:           node.JobID,
			Level:        node.Level,
			Status:       node.Status,
			StartTime:    node.StartTime,
			EndTime:      node.EndTime,
			PastAttempts: node.PastAttempts.Records(),
		})
		for _, out := range node.OutNodes {
			snapshot.Edges = append(snapshot.Edges, Edge{From: node.JobID, Target: out})
		}
	}
	return snapshot
}

// NodeDelta is a changed node in a delta response. PastAttempts is present
// only when the node has retried at least once.
type NodeDelta struct {
	ID           string           `json:"id"`
	Status       domain.Status    `json:"status"`
	StartTime    int64            `json:"startTime"`
	EndTime      int64            `json:"endTime"`
	Attempt      int              `json:"attempt"`
	PastAttempts []domain.Attempt `json:"pastAttempts,omitempty"`
}

// Delta carries execution-level fields in full and only the nodes whose
// update time moved past the client's watermark. Edges are static and
// never included here.
type Delta struct {
	Nodes      []NodeDelta   `json:"nodes"`
	Status     domain.Status `json:"status"`
	StartTime  int64         `json:"startTime"`
	EndTime    int64         `json:"endTime"`
	SubmitTime int64         `json:"submitTime"`
	UpdateTime int64         `json:"updateTime"`
}

// TakeDelta renders the changes since the watermark. A node is included
// iff its own update time is strictly greater than the watermark; nodes
// at or below it are omitted entirely.
func TakeDelta(exec *domain.Execution, watermark int64) Delta {
	delta := Delta{
		Nodes:      make([]NodeDelta, 0, len(exec.Nodes)),
		Status:     exec.Status,
		StartTime:  exec.StartTime,
		EndTime:    exec.EndTime,
		SubmitTime: exec.SubmitTime,
		UpdateTime: exec.UpdateTime,
	}
	for _, node := range exec.Nodes {
		if node.UpdateTime <= watermark {
			continue
		}
		changed := NodeDelta{
			ID:        node.JobID,
			Status:    node.Status,
			StartTime: node.StartTime,
			EndTime:   node.EndTime,
			Attempt:   node.Attempt,
		}
		if node.Attempt > 0 {
			changed.PastAttempts = node.PastAttempts.Records()
		}
		delta.Nodes = append(delta.Nodes, changed)
	}
	return delta
}
