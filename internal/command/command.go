// Package command validates and forwards control commands to the
// execution engine. The command set is closed: each command is its own
// type and dispatch is a single exhaustive type switch, so an unhandled
// command is a compile-time gap rather than a silent string mismatch.
package command

import "github.com/flowgate-labs/flowgate-go/internal/domain"

type Command interface {
	isCommand()
}

// Cancel stops an execution, attributing the actor.
type Cancel struct {
	ExecutionID string
	Actor       string
}

// Pause suspends scheduling of new jobs within an execution.
type Pause struct {
	ExecutionID string
	Actor       string
}

// Resume continues a paused execution.
type Resume struct {
	ExecutionID string
	Actor       string
}

// RetryFailed re-runs the failed jobs of a still-active execution.
type RetryFailed struct {
	ExecutionID string
	Actor       string
}

// Submit creates and submits a new execution of a flow definition.
type Submit struct {
	ProjectName string
	FlowID      string
	Actor       string
	Options     domain.ExecutionOptions
}

func (Cancel) isCommand()      {}
func (Pause) isCommand()       {}
func (Resume) isCommand()      {}
func (RetryFailed) isCommand() {}
func (Submit) isCommand()      {}

// Result carries the success fields of a dispatched command. ExecutionID
// is echoed for submissions even when the engine rejects them, so callers
// can correlate.
type Result struct {
	ExecutionID string
	FlowID      string
	Message     string
}
