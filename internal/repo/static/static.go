// Package static loads the project catalog from a YAML fixture file. It
// serves dev mode and tests where a relational catalog is not available.
package static

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flowgate-labs/flowgate-go/internal/domain"
	"github.com/flowgate-labs/flowgate-go/internal/repo"
)

type catalogSpec struct {
	Projects  []projectSpec  `yaml:"projects"`
	Schedules []scheduleSpec `yaml:"schedules"`
}

type projectSpec struct {
	ID          string              `yaml:"id"`
	Name        string              `yaml:"name"`
	ProxyUsers  []string            `yaml:"proxy_users"`
	Permissions map[string][]string `yaml:"permissions"`
	Flows       []flowSpec          `yaml:"flows"`
}

type flowSpec struct {
	ID            string    `yaml:"id"`
	SuccessEmails []string  `yaml:"success_emails"`
	FailureEmails []string  `yaml:"failure_emails"`
	Jobs          []jobSpec `yaml:"jobs"`
}

type jobSpec struct {
	ID       string   `yaml:"id"`
	Level    int      `yaml:"level"`
	OutNodes []string `yaml:"out_nodes"`
}

type scheduleSpec struct {
	ProjectID   string `yaml:"project_id"`
	FlowName    string `yaml:"flow_name"`
	NextRunTime int64  `yaml:"next_run_time"`
}

// Store is an immutable in-memory catalog parsed from YAML.
type Store struct {
	byID        map[string]domain.Project
	byName      map[string]domain.Project
	permissions map[string]map[string][]string
	flows       map[string]map[string]domain.Flow
	schedules   []domain.Schedule
}

// Load reads and parses a catalog fixture from disk.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse builds a store from raw YAML.
func Parse(raw []byte) (*Store, error) {
	var spec catalogSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	store := &Store{
		byID:        make(map[string]domain.Project),
		byName:      make(map[string]domain.Project),
		permissions: make(map[string]map[string][]string),
		flows:       make(map[string]map[string]domain.Flow),
	}

	for _, p := range spec.Projects {
		if strings.TrimSpace(p.ID) == "" {
			return nil, errors.New("project id is required")
		}
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("project %s: name is required", p.ID)
		}
		if _, dup := store.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate project id %s", p.ID)
		}
		if _, dup := store.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate project name %s", p.Name)
		}

		project := domain.Project{
			ID:         p.ID,
			Name:       p.Name,
			ProxyUsers: append([]string(nil), p.ProxyUsers...),
		}
		store.byID[p.ID] = project
		store.byName[p.Name] = project
		store.permissions[p.ID] = p.Permissions

		flows := make(map[string]domain.Flow, len(p.Flows))
		for _, f := range p.Flows {
			if strings.TrimSpace(f.ID) == "" {
				return nil, fmt.Errorf("project %s: flow id is required", p.ID)
			}
			if _, dup := flows[f.ID]; dup {
				return nil, fmt.Errorf("project %s: duplicate flow %s", p.ID, f.ID)
			}
			jobs := make([]domain.FlowJob, 0, len(f.Jobs))
			for _, j := range f.Jobs {
				if strings.TrimSpace(j.ID) == "" {
					return nil, fmt.Errorf("flow %s: job id is required", f.ID)
				}
				jobs = append(jobs, domain.FlowJob{
					ID:       j.ID,
					Level:    j.Level,
					OutNodes: append([]string(nil), j.OutNodes...),
				})
			}
			flows[f.ID] = domain.Flow{
				ID:            f.ID,
				ProjectID:     p.ID,
				SuccessEmails: append([]string(nil), f.SuccessEmails...),
				FailureEmails: append([]string(nil), f.FailureEmails...),
				Jobs:          jobs,
			}
		}
		store.flows[p.ID] = flows
	}

	for _, s := range spec.Schedules {
		if _, ok := store.byID[s.ProjectID]; !ok {
			return nil, fmt.Errorf("schedule references unknown project %s", s.ProjectID)
		}
		store.schedules = append(store.schedules, domain.Schedule{
			ProjectID:   s.ProjectID,
			FlowName:    s.FlowName,
			NextRunTime: s.NextRunTime,
		})
	}

	return store, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (domain.Project, error) {
	project, ok := s.byID[id]
	if !ok {
		return domain.Project{}, repo.ErrNotFound
	}
	return project, nil
}

func (s *Store) GetProjectByName(ctx context.Context, name string) (domain.Project, error) {
	project, ok := s.byName[name]
	if !ok {
		return domain.Project{}, repo.ErrNotFound
	}
	return project, nil
}

// HasCapability checks the fixture's permission grants. ADMIN implies
// every capability.
func (s *Store) HasCapability(ctx context.Context, project domain.Project, user string, capability repo.Capability) (bool, error) {
	grants, ok := s.permissions[project.ID]
	if !ok {
		return false, nil
	}
	for _, granted := range grants[user] {
		if granted == string(capability) || granted == "ADMIN" {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetFlow(ctx context.Context, project domain.Project, flowID string) (domain.Flow, error) {
	flows, ok := s.flows[project.ID]
	if !ok {
		return domain.Flow{}, repo.ErrNotFound
	}
	flow, ok := flows[flowID]
	if !ok {
		return domain.Flow{}, repo.ErrNotFound
	}
	return flow, nil
}

func (s *Store) ListSchedules(ctx context.Context) ([]domain.Schedule, error) {
	out := make([]domain.Schedule, len(s.schedules))
	copy(out, s.schedules)
	return out, nil
}
