// Package postgres backs the project, flow and schedule stores with the
// relational catalog. List-valued columns are stored as JSONB.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flowgate-labs/flowgate-go/internal/domain"
	"github.com/flowgate-labs/flowgate-go/internal/repo"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db handle is required")
	}
	return &Store{db: db}, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return s.getProject(ctx,
		`SELECT project_id, name, proxy_users FROM projects WHERE project_id = $1`, id)
}

func (s *Store) GetProjectByName(ctx context.Context, name string) (domain.Project, error) {
	return s.getProject(ctx,
		`SELECT project_id, name, proxy_users FROM projects WHERE name = $1`, name)
}

func (s *Store) getProject(ctx context.Context, query, arg string) (domain.Project, error) {
	var (
		project    domain.Project
		proxyUsers []byte
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&project.ID, &project.Name, &proxyUsers)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Project{}, repo.ErrNotFound
		}
		return domain.Project{}, fmt.Errorf("query project: %w", err)
	}
	if err := decodeList(proxyUsers, &project.ProxyUsers); err != nil {
		return domain.Project{}, fmt.Errorf("decode proxy users for %s: %w", project.ID, err)
	}
	return project, nil
}

// HasCapability reports whether user holds the capability on the project.
// An ADMIN grant implies every capability.
func (s *Store) HasCapability(ctx context.Context, project domain.Project, user string, capability repo.Capability) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM project_permissions
			WHERE project_id = $1 AND user_name = $2 AND capability IN ($3, 'ADMIN')
		)`,
		project.ID, user, string(capability),
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("query permission: %w", err)
	}
	return ok, nil
}

func (s *Store) GetFlow(ctx context.Context, project domain.Project, flowID string) (domain.Flow, error) {
	var (
		flow          domain.Flow
		successEmails []byte
		failureEmails []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT flow_id, project_id, success_emails, failure_emails
		 FROM flows WHERE project_id = $1 AND flow_id = $2`,
		project.ID, flowID,
	).Scan(&flow.ID, &flow.ProjectID, &successEmails, &failureEmails)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Flow{}, repo.ErrNotFound
		}
		return domain.Flow{}, fmt.Errorf("query flow: %w", err)
	}
	if err := decodeList(successEmails, &flow.SuccessEmails); err != nil {
		return domain.Flow{}, fmt.Errorf("decode success emails for %s: %w", flowID, err)
	}
	if err := decodeList(failureEmails, &flow.FailureEmails); err != nil {
		return domain.Flow{}, fmt.Errorf("decode failure emails for %s: %w", flowID, err)
	}

	jobs, err := s.listFlowJobs(ctx, project.ID, flowID)
	if err != nil {
		return domain.Flow{}, err
	}
	flow.Jobs = jobs
	return flow, nil
}

func (s *Store) listFlowJobs(ctx context.Context, projectID, flowID string) ([]domain.FlowJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, level, out_nodes
		 FROM flow_jobs WHERE project_id = $1 AND flow_id = $2
		 ORDER BY level, job_id`,
		projectID, flowID,
	)
	if err != nil {
		return nil, fmt.Errorf("query flow jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []domain.FlowJob
	for rows.Next() {
		var (
			job      domain.FlowJob
			outNodes []byte
		)
		if err := rows.Scan(&job.ID, &job.Level, &outNodes); err != nil {
			return nil, fmt.Errorf("scan flow job: %w", err)
		}
		if err := decodeList(outNodes, &job.OutNodes); err != nil {
			return nil, fmt.Errorf("decode out nodes for %s: %w", job.ID, err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flow jobs: %w", err)
	}
	return jobs, nil
}

func (s *Store) ListSchedules(ctx context.Context) ([]domain.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id, flow_name, next_run_time FROM schedules`)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var schedules []domain.Schedule
	for rows.Next() {
		var sched domain.Schedule
		if err := rows.Scan(&sched.ProjectID, &sched.FlowName, &sched.NextRunTime); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return schedules, nil
}

func decodeList(raw []byte, dst *[]string) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
