// Package authz gates every execution-scoped operation behind a project
// capability check. Existence resolution always runs before the permission
// check, so an absent execution never leaks a permission-denied message
// and an unauthorized one never leaks its data.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowgate-labs/flowgate-go/internal/domain"
	"github.com/flowgate-labs/flowgate-go/internal/engine"
	"github.com/flowgate-labs/flowgate-go/internal/fault"
	"github.com/flowgate-labs/flowgate-go/internal/repo"
)

type Gate struct {
	projects repo.ProjectStore
}

func NewGate(projects repo.ProjectStore) (*Gate, error) {
	if projects == nil {
		return nil, errors.New("project store is required")
	}
	return &Gate{projects: projects}, nil
}

// AuthorizeProject resolves a project by id and checks the capability.
func (g *Gate) AuthorizeProject(ctx context.Context, projectID, user string, capability repo.Capability) (domain.Project, error) {
	project, err := g.projects.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Project{}, fault.NotFound("Project '%s' not found.", projectID)
		}
		return domain.Project{}, fmt.Errorf("resolve project %s: %w", projectID, err)
	}
	return g.check(ctx, project, user, capability)
}

// AuthorizeProjectByName resolves a project by name and checks the capability.
func (g *Gate) AuthorizeProjectByName(ctx context.Context, projectName, user string, capability repo.Capability) (domain.Project, error) {
	project, err := g.projects.GetProjectByName(ctx, projectName)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Project{}, fault.NotFound("Project '%s' not found.", projectName)
		}
		return domain.Project{}, fmt.Errorf("resolve project %s: %w", projectName, err)
	}
	return g.check(ctx, project, user, capability)
}

// AuthorizeExecution resolves an execution id against the engine registry
// and checks the capability against the execution's own project id, never
// a client-supplied one.
func (g *Gate) AuthorizeExecution(ctx context.Context, registry engine.Registry, executionID, user string, capability repo.Capability) (*domain.Execution, domain.Project, error) {
	exec, err := registry.GetExecution(ctx, executionID)
	if err != nil {
		return nil, domain.Project{}, fault.Engine(err, "Error fetching execution '%s'", executionID)
	}
	if exec == nil {
		return nil, domain.Project{}, fault.NotFound("Cannot find execution '%s'", executionID)
	}
	project, err := g.AuthorizeProject(ctx, exec.ProjectID, user, capability)
	if err != nil {
		return nil, domain.Project{}, err
	}
	return exec, project, nil
}

func (g *Gate) check(ctx context.Context, project domain.Project, user string, capability repo.Capability) (domain.Project, error) {
	ok, err := g.projects.HasCapability(ctx, project, user, capability)
	if err != nil {
		return domain.Project{}, fmt.Errorf("check permission on %s: %w", project.Name, err)
	}
	if !ok {
		return domain.Project{}, fault.PermissionDenied("User '%s' doesn't have %s permissions on %s", user, capability, project.Name)
	}
	return project, nil
}
