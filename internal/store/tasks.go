package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nidhogg/mediaforge/internal/job"
)

const taskColumns = `
	id, job_id, task_name, category, sequence_order, status,
	COALESCE(assigned_agent, ''), COALESCE(preferred_agent, ''),
	parameters, started_at, completed_at, COALESCE(error_message, '')`

// CreateTask inserts a new task record.
func (s *Store) CreateTask(ctx context.Context, t *job.Task) error {
	params, err := json.Marshal(t.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO tasks (id, job_id, task_name, category, sequence_order, status, preferred_agent, parameters)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.JobID, t.Name, string(t.Category), t.SequenceOrder,
		string(t.Status), nullable(t.PreferredAgent), params,
	)
	if err != nil {
		return fmt.Errorf("create task %s: %w", t.ID, err)
	}
	return nil
}

// TasksForJob returns all tasks of a job in category-then-sequence order.
func (s *Store) TasksForJob(ctx context.Context, jobID string) ([]*job.Task, error) {
	rows, err := s.db.Query(ctx, `
		SELECT`+taskColumns+`
		FROM tasks WHERE job_id = $1
		ORDER BY array_position(ARRAY['script','image','audio','video'], category), sequence_order`,
		jobID)
	if err != nil {
		return nil, fmt.Errorf("tasks for job %s: %w", jobID, err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// TasksForCategory returns a job's tasks of one category in sequence order.
func (s *Store) TasksForCategory(ctx context.Context, jobID string, cat job.Category) ([]*job.Task, error) {
	rows, err := s.db.Query(ctx, `
		SELECT`+taskColumns+`
		FROM tasks WHERE job_id = $1 AND category = $2
		ORDER BY sequence_order`,
		jobID, string(cat))
	if err != nil {
		return nil, fmt.Errorf("tasks for category %s/%s: %w", jobID, cat, err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// UpdateTaskStatus writes a task's status and the optional fields of the
// transition in a single atomic update.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status job.TaskStatus, upd job.TaskUpdate) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE tasks SET
			status = $2,
			assigned_agent = COALESCE($3, assigned_agent),
			started_at = COALESCE($4, started_at),
			completed_at = COALESCE($5, completed_at),
			error_message = COALESCE($6, error_message)
		WHERE id = $1`,
		id, string(status), upd.AssignedAgent, upd.StartedAt, upd.CompletedAt, upd.ErrorMessage)
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return job.ErrTaskNotFound
	}
	return nil
}

// UpdateTaskParameters replaces a task's parameter bag.
func (s *Store) UpdateTaskParameters(ctx context.Context, id string, params job.Parameters) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE tasks SET parameters = $2 WHERE id = $1`, id, data)
	if err != nil {
		return fmt.Errorf("update task parameters %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return job.ErrTaskNotFound
	}
	return nil
}

func collectTasks(rows pgx.Rows) ([]*job.Task, error) {
	var tasks []*job.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (*job.Task, error) {
	var t job.Task
	var category, status string
	var params []byte
	if err := row.Scan(&t.ID, &t.JobID, &t.Name, &category, &t.SequenceOrder,
		&status, &t.AssignedAgent, &t.PreferredAgent, &params,
		&t.StartedAt, &t.CompletedAt, &t.ErrorMessage); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, job.ErrTaskNotFound
		}
		return nil, err
	}
	t.Category = job.Category(category)
	t.Status = job.TaskStatus(status)
	if err := json.Unmarshal(params, &t.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}
	return &t, nil
}
