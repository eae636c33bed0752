package domain

import (
	"errors"
	"strings"
)

// Project owns flows and carries the permission surface executions are
// authorized against.
type Project struct {
	ID         string
	Name       string
	ProxyUsers []string
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("project name is required")
	}
	return nil
}

// FlowJob is one job of a flow definition. OutNodes names downstream jobs.
type FlowJob struct {
	ID       string
	Level    int
	OutNodes []string
}

// Flow is a flow definition as stored in a project, including the default
// notification addressees inherited by executions that do not override them.
type Flow struct {
	ID            string
	ProjectID     string
	SuccessEmails []string
	FailureEmails []string
	Jobs          []FlowJob
}

func (f Flow) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return errors.New("flow id is required")
	}
	if strings.TrimSpace(f.ProjectID) == "" {
		return errors.New("project id is required")
	}
	return nil
}

// Schedule is an active schedule entry for a (project, flow) pair.
type Schedule struct {
	ProjectID   string
	FlowName    string
	NextRunTime int64
}
