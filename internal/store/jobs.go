package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nidhogg/mediaforge/internal/job"
)

// CreateJob inserts a new job record.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO jobs (id, name, display_name, template_name, user_request, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		j.ID, j.Name, j.DisplayName, nullable(j.TemplateName), j.UserRequest, string(j.Status), j.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create job %s: %w", j.ID, err)
	}
	return nil
}

// GetJob retrieves a single job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*job.Job, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, COALESCE(display_name, ''), COALESCE(template_name, ''),
		       COALESCE(user_request, ''), status, created_at, completed_at
		FROM jobs WHERE id = $1`, id)

	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, job.ErrJobNotFound
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

// ListJobs returns jobs newest first, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, status *job.Status, limit int) ([]*job.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, name, COALESCE(display_name, ''), COALESCE(template_name, ''),
		       COALESCE(user_request, ''), status, created_at, completed_at
		FROM jobs`
	args := []any{}
	if status != nil {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, string(*status), limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateJobStatus writes a job's status and optional completion time.
func (s *Store) UpdateJobStatus(ctx context.Context, id string, status job.Status, completedAt *time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE jobs SET status = $2, completed_at = $3 WHERE id = $1`,
		id, string(status), completedAt)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var j job.Job
	var status string
	if err := row.Scan(&j.ID, &j.Name, &j.DisplayName, &j.TemplateName,
		&j.UserRequest, &status, &j.CreatedAt, &j.CompletedAt); err != nil {
		return nil, err
	}
	j.Status = job.Status(status)
	return &j, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
