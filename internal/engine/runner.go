package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/mediaforge/internal/agent"
	"github.com/nidhogg/mediaforge/internal/bus"
	"github.com/nidhogg/mediaforge/internal/job"
)

// Runner walks a job's tasks category by category and hands each one to a
// selected agent. A task failure stops the run; later tasks stay pending.
type Runner struct {
	store    Store
	selector *agent.Selector
	events   Events
	logger   *zap.Logger
}

func NewRunner(store Store, selector *agent.Selector, events Events, logger *zap.Logger) *Runner {
	return &Runner{
		store:    store,
		selector: selector,
		events:   events,
		logger:   logger,
	}
}

// Run executes every task of the job in order. The returned outputs are the
// merged outputs of all completed tasks, later categories overwriting earlier
// ones on key collision.
func (r *Runner) Run(ctx context.Context, j *job.Job) (map[string]any, error) {
	outputs := make(map[string]any)

	for _, cat := range job.Categories() {
		tasks, err := r.store.TasksForCategory(ctx, j.ID, cat)
		if err != nil {
			return outputs, fmt.Errorf("load %s tasks: %w", cat, err)
		}
		sort.SliceStable(tasks, func(i, k int) bool {
			return tasks[i].SequenceOrder < tasks[k].SequenceOrder
		})

		for _, t := range tasks {
			if err := r.runTask(ctx, t, outputs); err != nil {
				return outputs, err
			}
		}
	}
	return outputs, nil
}

func (r *Runner) runTask(ctx context.Context, t *job.Task, outputs map[string]any) error {
	selected := r.selector.Select(ctx, t)
	if selected == nil {
		reason := fmt.Sprintf("no agent available for category %s", t.Category)
		r.failTask(ctx, t, reason)
		return fmt.Errorf("task %s: %s", t.Name, reason)
	}

	started := time.Now().UTC()
	key := selected.InstanceKey()
	if err := r.store.UpdateTaskStatus(ctx, t.ID, job.TaskInProgress, job.TaskUpdate{
		AssignedAgent: &key,
		StartedAt:     &started,
	}); err != nil {
		return fmt.Errorf("mark task %s in progress: %w", t.Name, err)
	}
	r.publish(ctx, t, string(job.TaskInProgress), key)

	r.logger.Info("executing task",
		zap.String("task", t.Name),
		zap.String("category", string(t.Category)),
		zap.String("agent", key),
	)

	result, err := selected.Execute(ctx, t)
	completed := time.Now().UTC()

	if err != nil || result == nil || result.Status != job.TaskCompleted {
		reason := "agent reported failure"
		if err != nil {
			reason = err.Error()
		} else if result != nil && result.ErrorMessage != "" {
			reason = result.ErrorMessage
		}
		r.failTaskAt(ctx, t, reason, completed)
		return fmt.Errorf("task %s failed: %s", t.Name, reason)
	}

	for k, v := range result.Outputs {
		outputs[k] = v
	}

	params := t.Parameters
	if params.Outputs == nil {
		params.Outputs = make(map[string]any)
	}
	for k, v := range result.Outputs {
		params.Outputs[k] = v
	}
	if err := r.store.UpdateTaskParameters(ctx, t.ID, params); err != nil {
		r.logger.Warn("persist task outputs failed", zap.String("task", t.Name), zap.Error(err))
	}

	if err := r.store.UpdateTaskStatus(ctx, t.ID, job.TaskCompleted, job.TaskUpdate{
		CompletedAt: &completed,
	}); err != nil {
		return fmt.Errorf("mark task %s completed: %w", t.Name, err)
	}
	r.publish(ctx, t, string(job.TaskCompleted), key)
	return nil
}

func (r *Runner) failTask(ctx context.Context, t *job.Task, reason string) {
	r.failTaskAt(ctx, t, reason, time.Now().UTC())
}

func (r *Runner) failTaskAt(ctx context.Context, t *job.Task, reason string, at time.Time) {
	if err := r.store.UpdateTaskStatus(ctx, t.ID, job.TaskFailed, job.TaskUpdate{
		CompletedAt:  &at,
		ErrorMessage: &reason,
	}); err != nil {
		r.logger.Warn("mark task failed", zap.String("task", t.Name), zap.Error(err))
	}
	r.publish(ctx, t, string(job.TaskFailed), reason)
}

func (r *Runner) publish(ctx context.Context, t *job.Task, status, detail string) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(ctx, &bus.Event{
		JobID:     t.JobID,
		TaskID:    t.ID,
		Kind:      "task",
		Status:    status,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		r.logger.Warn("publish task event", zap.String("task", t.Name), zap.Error(err))
	}
}
