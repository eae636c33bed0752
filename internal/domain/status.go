package domain

import "strings"

// Status is the lifecycle state of an execution or a single node.
type Status string

const (
	StatusReady           Status = "ready"
	StatusPreparing       Status = "preparing"
	StatusQueued          Status = "queued"
	StatusRunning         Status = "running"
	StatusPaused          Status = "paused"
	StatusSucceeded       Status = "succeeded"
	StatusFailed          Status = "failed"
	StatusFailedFinishing Status = "failed_finishing"
	StatusKilled          Status = "killed"
	StatusSkipped         Status = "skipped"
	StatusDisabled        Status = "disabled"
)

// NormalizeStatus maps free-form status values to canonical statuses.
func NormalizeStatus(value string) Status {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(StatusReady), "pending":
		return StatusReady
	case string(StatusPreparing):
		return StatusPreparing
	case string(StatusQueued):
		return StatusQueued
	case string(StatusRunning):
		return StatusRunning
	case string(StatusPaused):
		return StatusPaused
	case string(StatusSucceeded):
		return StatusSucceeded
	case string(StatusFailed):
		return StatusFailed
	case string(StatusFailedFinishing):
		return StatusFailedFinishing
	case string(StatusKilled), "cancelled", "canceled":
		return StatusKilled
	case string(StatusSkipped):
		return StatusSkipped
	case string(StatusDisabled):
		return StatusDisabled
	default:
		return ""
	}
}

// Finished reports whether the status is terminal.
func (s Status) Finished() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusKilled, StatusSkipped:
		return true
	default:
		return false
	}
}
