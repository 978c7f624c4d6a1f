package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/mediaforge/internal/agent"
	"github.com/nidhogg/mediaforge/internal/bus"
	"github.com/nidhogg/mediaforge/internal/intelligence"
	"github.com/nidhogg/mediaforge/internal/job"
	"github.com/nidhogg/mediaforge/internal/template"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrNoTemplates      = errors.New("no templates loaded")
)

// Store is the persistence surface the engine depends on.
type Store interface {
	CreateJob(ctx context.Context, j *job.Job) error
	GetJob(ctx context.Context, id string) (*job.Job, error)
	ListJobs(ctx context.Context, status *job.Status, limit int) ([]*job.Job, error)
	UpdateJobStatus(ctx context.Context, id string, status job.Status, completedAt *time.Time) error

	CreateTask(ctx context.Context, t *job.Task) error
	TasksForJob(ctx context.Context, jobID string) ([]*job.Task, error)
	TasksForCategory(ctx context.Context, jobID string, cat job.Category) ([]*job.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status job.TaskStatus, upd job.TaskUpdate) error
	UpdateTaskParameters(ctx context.Context, id string, params job.Parameters) error
}

// Events publishes lifecycle events. A nil Events disables publishing.
type Events interface {
	Publish(ctx context.Context, ev *bus.Event) error
}

// Intelligence is the optional LLM assist for template selection and naming.
type Intelligence interface {
	Available(ctx context.Context) bool
	SelectTemplate(ctx context.Context, request string, templates []*template.Template) (*intelligence.TemplateChoice, error)
	NameJob(ctx context.Context, request, templateName string) (*intelligence.JobName, error)
}

// Engine is the orchestration facade: it turns user requests into persisted
// jobs with compiled tasks and drives their execution.
type Engine struct {
	store     Store
	templates *template.Loader
	catalog   *agent.Catalog
	runner    *Runner
	intel     Intelligence
	events    Events
	logger    *zap.Logger
}

func New(store Store, templates *template.Loader, catalog *agent.Catalog, runner *Runner, intel Intelligence, events Events, logger *zap.Logger) *Engine {
	return &Engine{
		store:     store,
		templates: templates,
		catalog:   catalog,
		runner:    runner,
		intel:     intel,
		events:    events,
		logger:    logger,
	}
}

// CreateJob resolves a template for the request, names the job, and persists
// the job with one task per template blueprint. The job stays pending until
// ProcessJob picks it up.
func (e *Engine) CreateJob(ctx context.Context, request, templateName string) (*job.Job, error) {
	tmpl, err := e.resolveTemplate(ctx, request, templateName)
	if err != nil {
		return nil, err
	}

	name, displayName := e.nameJob(ctx, request, tmpl.Name)

	j := &job.Job{
		ID:           uuid.New().String(),
		Name:         name,
		DisplayName:  displayName,
		TemplateName: tmpl.Name,
		UserRequest:  request,
		Status:       job.StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.store.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	for _, bp := range tmpl.Tasks {
		t := materializeTask(j, tmpl.Name, bp)
		if err := e.store.CreateTask(ctx, t); err != nil {
			return nil, fmt.Errorf("persist task %s: %w", bp.Name, err)
		}
	}

	e.logger.Info("job created",
		zap.String("job_id", j.ID),
		zap.String("name", j.Name),
		zap.String("template", tmpl.Name),
		zap.Int("tasks", len(tmpl.Tasks)),
	)
	e.publishJob(ctx, j.ID, string(job.StatusPending), tmpl.Name)
	return j, nil
}

// ProcessJob runs all tasks of a pending job. The job is moved to in_progress
// first and always ends in a terminal state with completed_at set.
func (e *Engine) ProcessJob(ctx context.Context, jobID string) (*job.Job, error) {
	j, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status.Terminal() {
		return j, nil
	}

	if err := e.store.UpdateJobStatus(ctx, j.ID, job.StatusInProgress, nil); err != nil {
		return nil, fmt.Errorf("mark job in progress: %w", err)
	}
	j.Status = job.StatusInProgress
	e.publishJob(ctx, j.ID, string(job.StatusInProgress), "")

	_, runErr := e.runner.Run(ctx, j)

	completed := time.Now().UTC()
	final := job.StatusCompleted
	detail := ""
	if runErr != nil {
		final = job.StatusFailed
		detail = runErr.Error()
		e.logger.Warn("job failed", zap.String("job_id", j.ID), zap.Error(runErr))
	} else {
		e.logger.Info("job completed", zap.String("job_id", j.ID))
	}

	if err := e.store.UpdateJobStatus(ctx, j.ID, final, &completed); err != nil {
		return nil, fmt.Errorf("finalize job: %w", err)
	}
	j.Status = final
	j.CompletedAt = &completed
	e.publishJob(ctx, j.ID, string(final), detail)
	return j, nil
}

// JobStatus is a job together with its full task list.
type JobStatus struct {
	Job   *job.Job    `json:"job"`
	Tasks []*job.Task `json:"tasks"`
}

// Status returns a job and its tasks in execution order.
func (e *Engine) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	j, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	tasks, err := e.store.TasksForJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	return &JobStatus{Job: j, Tasks: tasks}, nil
}

// ListJobs returns recent jobs, optionally filtered by status.
func (e *Engine) ListJobs(ctx context.Context, status *job.Status, limit int) ([]*job.Job, error) {
	return e.store.ListJobs(ctx, status, limit)
}

// Capabilities returns the registered agents grouped by category in
// execution order.
func (e *Engine) Capabilities() []agent.Capabilities {
	return e.catalog.List()
}

// Templates returns the loaded templates sorted by name.
func (e *Engine) Templates() []*template.Template {
	return e.templates.Templates()
}

// IntelligenceAvailable probes the optional LLM collaborator.
func (e *Engine) IntelligenceAvailable(ctx context.Context) bool {
	return e.intel != nil && e.intel.Available(ctx)
}

func (e *Engine) resolveTemplate(ctx context.Context, request, templateName string) (*template.Template, error) {
	if templateName != "" {
		tmpl, ok := e.templates.Get(templateName)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateName)
		}
		return tmpl, nil
	}

	all := e.templates.Templates()
	if len(all) == 0 {
		return nil, ErrNoTemplates
	}

	if e.intel != nil && e.intel.Available(ctx) {
		choice, err := e.intel.SelectTemplate(ctx, request, all)
		if err == nil && choice != nil {
			if tmpl, ok := e.templates.Get(choice.Name); ok {
				e.logger.Info("template selected",
					zap.String("template", choice.Name),
					zap.Float64("confidence", choice.Confidence),
				)
				return tmpl, nil
			}
		}
		if err != nil {
			e.logger.Warn("template selection fell back to heuristic", zap.Error(err))
		}
	}

	if tmpl, ok := e.templates.Get(heuristicTemplate(request)); ok {
		return tmpl, nil
	}
	return all[0], nil
}

func (e *Engine) nameJob(ctx context.Context, request, templateName string) (name, displayName string) {
	if e.intel != nil && e.intel.Available(ctx) {
		named, err := e.intel.NameJob(ctx, request, templateName)
		if err == nil && named != nil && named.TechnicalName != "" {
			return named.TechnicalName, named.DisplayName
		}
		if err != nil {
			e.logger.Warn("job naming fell back to heuristic", zap.Error(err))
		}
	}
	return fallbackName(request)
}

func heuristicTemplate(request string) string {
	lower := strings.ToLower(request)
	for _, kw := range []string{"tutorial", "video", "youtube", "teach", "guide"} {
		if strings.Contains(lower, kw) {
			return "youtube-tutorial"
		}
	}
	for _, kw := range []string{"blog", "article", "post", "write"} {
		if strings.Contains(lower, kw) {
			return "blog-post"
		}
	}
	return ""
}

func fallbackName(request string) (string, string) {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(request)) {
		w = strings.Map(func(r rune) rune {
			if r >= 'a' && r <= 'z' {
				return r
			}
			return -1
		}, w)
		if len(w) >= 4 {
			words = append(words, w)
		}
		if len(words) == 3 {
			break
		}
	}
	slug := strings.Join(words, "-")
	if slug == "" {
		slug = "content"
	}
	name := fmt.Sprintf("job-%s-%d", slug, time.Now().Unix())

	display := strings.TrimSpace(request)
	if len(display) > 60 {
		display = display[:57] + "..."
	}
	return name, display
}

func materializeTask(j *job.Job, templateName string, bp template.Blueprint) *job.Task {
	params := job.NewParameters()
	params.Inputs["user_request"] = j.UserRequest
	params.Inputs["template_name"] = templateName
	params.Inputs["job_id"] = j.ID
	for k, v := range bp.Parameters {
		params.Requirements[k] = v
	}

	return &job.Task{
		ID:             uuid.New().String(),
		JobID:          j.ID,
		Name:           bp.Name,
		Category:       bp.Category,
		SequenceOrder:  bp.SequenceOrder,
		Status:         job.TaskPending,
		PreferredAgent: bp.PreferredAgent,
		Parameters:     params,
	}
}

func (e *Engine) publishJob(ctx context.Context, jobID, status, detail string) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, &bus.Event{
		JobID:     jobID,
		Kind:      "job",
		Status:    status,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		e.logger.Warn("publish job event", zap.String("job_id", jobID), zap.Error(err))
	}
}
