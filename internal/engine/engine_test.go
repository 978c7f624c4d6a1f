package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/mediaforge/internal/agent"
	"github.com/nidhogg/mediaforge/internal/bus"
	"github.com/nidhogg/mediaforge/internal/intelligence"
	"github.com/nidhogg/mediaforge/internal/job"
	"github.com/nidhogg/mediaforge/internal/template"
)

// memStore is an in-memory Store used by the engine and runner tests.
type memStore struct {
	mu    sync.Mutex
	jobs  map[string]*job.Job
	tasks map[string]*job.Task
}

func newMemStore() *memStore {
	return &memStore{jobs: map[string]*job.Job{}, tasks: map[string]*job.Task{}}
}

func (m *memStore) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *memStore) GetJob(_ context.Context, id string) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) ListJobs(_ context.Context, status *job.Status, limit int) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*job.Job
	for _, j := range m.jobs {
		if status != nil && j.Status != *status {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) UpdateJobStatus(_ context.Context, id string, status job.Status, completedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return job.ErrJobNotFound
	}
	j.Status = status
	if completedAt != nil {
		j.CompletedAt = completedAt
	}
	return nil
}

func (m *memStore) CreateTask(_ context.Context, t *job.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memStore) TasksForJob(_ context.Context, jobID string) ([]*job.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*job.Task
	for _, t := range m.tasks {
		if t.JobID == jobID {
			cp := *t
			out = append(out, &cp)
		}
	}
	order := map[job.Category]int{}
	for i, cat := range job.Categories() {
		order[cat] = i
	}
	sort.Slice(out, func(i, k int) bool {
		if order[out[i].Category] != order[out[k].Category] {
			return order[out[i].Category] < order[out[k].Category]
		}
		return out[i].SequenceOrder < out[k].SequenceOrder
	})
	return out, nil
}

func (m *memStore) TasksForCategory(_ context.Context, jobID string, cat job.Category) ([]*job.Task, error) {
	all, _ := m.TasksForJob(context.Background(), jobID)
	var out []*job.Task
	for _, t := range all {
		if t.Category == cat {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) UpdateTaskStatus(_ context.Context, id string, status job.TaskStatus, upd job.TaskUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return job.ErrTaskNotFound
	}
	t.Status = status
	if upd.AssignedAgent != nil {
		t.AssignedAgent = *upd.AssignedAgent
	}
	if upd.StartedAt != nil {
		t.StartedAt = upd.StartedAt
	}
	if upd.CompletedAt != nil {
		t.CompletedAt = upd.CompletedAt
	}
	if upd.ErrorMessage != nil {
		t.ErrorMessage = *upd.ErrorMessage
	}
	return nil
}

func (m *memStore) UpdateTaskParameters(_ context.Context, id string, params job.Parameters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return job.ErrTaskNotFound
	}
	t.Parameters = params
	return nil
}

// stubAgent executes tasks with a fixed result per category. failOn
// fails one named task; fail fails every task.
type stubAgent struct {
	key      string
	category job.Category
	outputs  map[string]any
	fail     bool
	failOn   string
	runLog   *[]string
}

func (s *stubAgent) Name() string           { return s.key }
func (s *stubAgent) InstanceKey() string    { return s.key }
func (s *stubAgent) Category() job.Category { return s.category }

func (s *stubAgent) Validate(_ context.Context, t *job.Task) (bool, error) {
	return t.Category == s.category, nil
}

func (s *stubAgent) Execute(_ context.Context, t *job.Task) (*job.Result, error) {
	if s.runLog != nil {
		*s.runLog = append(*s.runLog, t.Name)
	}
	if s.fail || (s.failOn != "" && s.failOn == t.Name) {
		return &job.Result{Status: job.TaskFailed, ErrorMessage: "generation failed"}, nil
	}
	return &job.Result{Status: job.TaskCompleted, Outputs: s.outputs}, nil
}

func (s *stubAgent) Capabilities() agent.Capabilities {
	return agent.Capabilities{Name: s.key, InstanceKey: s.key, Category: s.category}
}

// memEvents records published events.
type memEvents struct {
	mu     sync.Mutex
	events []bus.Event
}

func (m *memEvents) Publish(_ context.Context, ev *bus.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *ev)
	return nil
}

func (m *memEvents) byKind(kind string) []bus.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []bus.Event
	for _, ev := range m.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func testTemplates(t *testing.T, docs map[string]string) *template.Loader {
	t.Helper()
	dir := t.TempDir()
	l := template.NewLoader(dir, zap.NewNop())
	for name, doc := range docs {
		writeDoc(t, dir, name, doc)
		if _, err := l.Load(name); err != nil {
			t.Fatalf("load template %s: %v", name, err)
		}
	}
	return l
}

func writeDoc(t *testing.T, dir, name, doc string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".md"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}
}

const tutorialDoc = `# Tutorial

### Script Tasks

1. **Research Topic**

2. **Write Script**

### Image Tasks

1. **Design Thumbnail**
`

const blogDoc = `# Blog Post

### Script Tasks

1. **Write Article**
`

func buildEngine(t *testing.T, store Store, loader *template.Loader, agents []*stubAgent, intel Intelligence, events Events) *Engine {
	t.Helper()
	catalog := agent.NewCatalog(zap.NewNop())
	for _, a := range agents {
		catalog.Register(a)
	}
	selector := agent.NewSelector(catalog, zap.NewNop())
	runner := NewRunner(store, selector, events, zap.NewNop())
	return New(store, loader, catalog, runner, intel, events, zap.NewNop())
}

func defaultAgents(runLog *[]string) []*stubAgent {
	return []*stubAgent{
		{key: "script_stub", category: job.CategoryScript, outputs: map[string]any{"script": "done"}, runLog: runLog},
		{key: "image_stub", category: job.CategoryImage, outputs: map[string]any{"image": "done"}, runLog: runLog},
		{key: "audio_stub", category: job.CategoryAudio, runLog: runLog},
		{key: "video_stub", category: job.CategoryVideo, runLog: runLog},
	}
}

func TestCreateJobMaterializesTasks(t *testing.T) {
	store := newMemStore()
	loader := testTemplates(t, map[string]string{"youtube-tutorial": tutorialDoc, "blog-post": blogDoc})
	eng := buildEngine(t, store, loader, defaultAgents(nil), nil, nil)

	j, err := eng.CreateJob(context.Background(), "Teach me about sourdough", "youtube-tutorial")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if j.Status != job.StatusPending {
		t.Errorf("got status %q, want pending", j.Status)
	}
	if j.TemplateName != "youtube-tutorial" {
		t.Errorf("got template %q", j.TemplateName)
	}
	if j.Name == "" || j.DisplayName == "" {
		t.Errorf("got name %q display %q, want both set", j.Name, j.DisplayName)
	}

	tasks, _ := store.TasksForJob(context.Background(), j.ID)
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
	for _, task := range tasks {
		if task.Status != job.TaskPending {
			t.Errorf("task %s status %q, want pending", task.Name, task.Status)
		}
		if task.Parameters.Inputs["user_request"] != "Teach me about sourdough" {
			t.Errorf("task %s missing user_request input", task.Name)
		}
		if task.Parameters.Inputs["job_id"] != j.ID {
			t.Errorf("task %s missing job_id input", task.Name)
		}
	}
	if tasks[0].Name != "Research Topic" || tasks[1].Name != "Write Script" {
		t.Errorf("script tasks out of order: %s, %s", tasks[0].Name, tasks[1].Name)
	}
}

func TestCreateJobUnknownTemplate(t *testing.T) {
	loader := testTemplates(t, map[string]string{"blog-post": blogDoc})
	eng := buildEngine(t, newMemStore(), loader, defaultAgents(nil), nil, nil)

	_, err := eng.CreateJob(context.Background(), "anything", "missing")
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("got %v, want ErrTemplateNotFound", err)
	}
}

func TestCreateJobNoTemplates(t *testing.T) {
	loader := testTemplates(t, nil)
	eng := buildEngine(t, newMemStore(), loader, defaultAgents(nil), nil, nil)

	_, err := eng.CreateJob(context.Background(), "anything", "")
	if !errors.Is(err, ErrNoTemplates) {
		t.Errorf("got %v, want ErrNoTemplates", err)
	}
}

func TestCreateJobKeywordHeuristic(t *testing.T) {
	loader := testTemplates(t, map[string]string{"youtube-tutorial": tutorialDoc, "blog-post": blogDoc})
	eng := buildEngine(t, newMemStore(), loader, defaultAgents(nil), nil, nil)

	cases := []struct {
		request string
		want    string
	}{
		{"Make a tutorial about Go", "youtube-tutorial"},
		{"Write a blog about coffee", "blog-post"},
		{"Something entirely else", "blog-post"}, // first sorted template
	}
	for _, tc := range cases {
		j, err := eng.CreateJob(context.Background(), tc.request, "")
		if err != nil {
			t.Fatalf("create job %q: %v", tc.request, err)
		}
		if j.TemplateName != tc.want {
			t.Errorf("request %q: got template %q, want %q", tc.request, j.TemplateName, tc.want)
		}
	}
}

func TestProcessJobHappyPath(t *testing.T) {
	var runLog []string
	store := newMemStore()
	loader := testTemplates(t, map[string]string{"youtube-tutorial": tutorialDoc})
	events := &memEvents{}
	eng := buildEngine(t, store, loader, defaultAgents(&runLog), nil, events)

	j, err := eng.CreateJob(context.Background(), "Teach me sourdough", "youtube-tutorial")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	done, err := eng.ProcessJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("process job: %v", err)
	}
	if done.Status != job.StatusCompleted {
		t.Errorf("got status %q, want completed", done.Status)
	}
	if done.CompletedAt == nil {
		t.Error("completed_at not set")
	}

	want := []string{"Research Topic", "Write Script", "Design Thumbnail"}
	if len(runLog) != len(want) {
		t.Fatalf("got runs %v, want %v", runLog, want)
	}
	for i := range want {
		if runLog[i] != want[i] {
			t.Errorf("run %d = %q, want %q", i, runLog[i], want[i])
		}
	}

	tasks, _ := store.TasksForJob(context.Background(), j.ID)
	for _, task := range tasks {
		if task.Status != job.TaskCompleted {
			t.Errorf("task %s status %q, want completed", task.Name, task.Status)
		}
		if task.AssignedAgent == "" {
			t.Errorf("task %s has no assigned agent", task.Name)
		}
		if task.StartedAt == nil || task.CompletedAt == nil {
			t.Errorf("task %s missing timestamps", task.Name)
		}
	}

	if got := len(events.byKind("task")); got != 6 {
		t.Errorf("got %d task events, want 6 (in_progress+completed per task)", got)
	}
}

func TestProcessJobFailFast(t *testing.T) {
	var runLog []string
	agents := defaultAgents(&runLog)
	agents[0].failOn = "Write Script" // second script task fails

	store := newMemStore()
	loader := testTemplates(t, map[string]string{"youtube-tutorial": tutorialDoc})
	eng := buildEngine(t, store, loader, agents, nil, nil)

	j, _ := eng.CreateJob(context.Background(), "Teach me sourdough", "youtube-tutorial")
	done, err := eng.ProcessJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("process job: %v", err)
	}
	if done.Status != job.StatusFailed {
		t.Errorf("got status %q, want failed", done.Status)
	}
	if done.CompletedAt == nil {
		t.Error("completed_at must be set on failure too")
	}

	// Execution stopped at the failing task.
	want := []string{"Research Topic", "Write Script"}
	if len(runLog) != len(want) || runLog[0] != want[0] || runLog[1] != want[1] {
		t.Errorf("got runs %v, want %v", runLog, want)
	}

	tasks, _ := store.TasksForJob(context.Background(), j.ID)
	byName := map[string]*job.Task{}
	for _, task := range tasks {
		byName[task.Name] = task
	}
	if got := byName["Research Topic"].Status; got != job.TaskCompleted {
		t.Errorf("first task status %q, want completed", got)
	}
	if got := byName["Write Script"].Status; got != job.TaskFailed {
		t.Errorf("failed task status %q, want failed", got)
	}
	if byName["Write Script"].ErrorMessage == "" {
		t.Error("failed task has no error message")
	}
	// Downstream categories stay pending.
	if got := byName["Design Thumbnail"].Status; got != job.TaskPending {
		t.Errorf("downstream task status %q, want pending", got)
	}
}

func TestRunOrderIgnoresDocumentOrder(t *testing.T) {
	// Image section listed before script; execution order must still be
	// script first.
	doc := `# Promo

### Image Tasks

1. **Design Thumbnail**

### Script Tasks

1. **Write Intro**
`
	var runLog []string
	store := newMemStore()
	loader := testTemplates(t, map[string]string{"promo": doc})
	eng := buildEngine(t, store, loader, defaultAgents(&runLog), nil, nil)

	j, _ := eng.CreateJob(context.Background(), "Promote the launch", "promo")

	tasks, _ := store.TasksForJob(context.Background(), j.ID)
	for _, task := range tasks {
		if task.SequenceOrder != 1 {
			t.Errorf("task %s sequence %d, want 1 in each category", task.Name, task.SequenceOrder)
		}
	}

	if _, err := eng.ProcessJob(context.Background(), j.ID); err != nil {
		t.Fatalf("process job: %v", err)
	}
	if len(runLog) != 2 || runLog[0] != "Write Intro" || runLog[1] != "Design Thumbnail" {
		t.Errorf("got runs %v, want script before image", runLog)
	}
}

func TestProcessJobNoAgentForCategory(t *testing.T) {
	// No image agents registered at all.
	agents := []*stubAgent{
		{key: "script_stub", category: job.CategoryScript},
	}
	store := newMemStore()
	loader := testTemplates(t, map[string]string{"youtube-tutorial": tutorialDoc})
	eng := buildEngine(t, store, loader, agents, nil, nil)

	j, _ := eng.CreateJob(context.Background(), "Teach me sourdough", "youtube-tutorial")
	done, err := eng.ProcessJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("process job: %v", err)
	}
	if done.Status != job.StatusFailed {
		t.Errorf("got status %q, want failed", done.Status)
	}
}

func TestProcessJobTerminalIsNoop(t *testing.T) {
	var runLog []string
	store := newMemStore()
	loader := testTemplates(t, map[string]string{"blog-post": blogDoc})
	eng := buildEngine(t, store, loader, defaultAgents(&runLog), nil, nil)

	j, _ := eng.CreateJob(context.Background(), "Write a blog", "blog-post")
	if _, err := eng.ProcessJob(context.Background(), j.ID); err != nil {
		t.Fatalf("process job: %v", err)
	}
	ran := len(runLog)

	again, err := eng.ProcessJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("reprocess job: %v", err)
	}
	if again.Status != job.StatusCompleted {
		t.Errorf("got status %q, want completed", again.Status)
	}
	if len(runLog) != ran {
		t.Errorf("terminal job re-ran tasks: %d executions after noop", len(runLog))
	}
}

func TestProcessJobUnknown(t *testing.T) {
	loader := testTemplates(t, map[string]string{"blog-post": blogDoc})
	eng := buildEngine(t, newMemStore(), loader, defaultAgents(nil), nil, nil)

	_, err := eng.ProcessJob(context.Background(), "no-such-id")
	if !errors.Is(err, job.ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}

func TestTaskOutputsPersisted(t *testing.T) {
	store := newMemStore()
	loader := testTemplates(t, map[string]string{"blog-post": blogDoc})
	agents := []*stubAgent{
		{key: "script_stub", category: job.CategoryScript, outputs: map[string]any{"article": "text"}},
	}
	eng := buildEngine(t, store, loader, agents, nil, nil)

	j, _ := eng.CreateJob(context.Background(), "Write a blog", "blog-post")
	if _, err := eng.ProcessJob(context.Background(), j.ID); err != nil {
		t.Fatalf("process job: %v", err)
	}

	tasks, _ := store.TasksForJob(context.Background(), j.ID)
	if got := tasks[0].Parameters.Outputs["article"]; got != "text" {
		t.Errorf("got output %v, want persisted article text", got)
	}
}

// fakeIntel drives template selection and naming deterministically.
type fakeIntel struct {
	available bool
	choice    *intelligence.TemplateChoice
	name      *intelligence.JobName
	err       error
}

func (f *fakeIntel) Available(_ context.Context) bool { return f.available }

func (f *fakeIntel) SelectTemplate(_ context.Context, _ string, _ []*template.Template) (*intelligence.TemplateChoice, error) {
	return f.choice, f.err
}

func (f *fakeIntel) NameJob(_ context.Context, _, _ string) (*intelligence.JobName, error) {
	return f.name, f.err
}

func TestCreateJobIntelligenceSelection(t *testing.T) {
	loader := testTemplates(t, map[string]string{"youtube-tutorial": tutorialDoc, "blog-post": blogDoc})
	intel := &fakeIntel{
		available: true,
		choice:    &intelligence.TemplateChoice{Name: "youtube-tutorial", Confidence: 0.9},
		name:      &intelligence.JobName{TechnicalName: "job-sourdough-basics", DisplayName: "Sourdough Basics"},
	}
	eng := buildEngine(t, newMemStore(), loader, defaultAgents(nil), intel, nil)

	j, err := eng.CreateJob(context.Background(), "Something about bread", "")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if j.TemplateName != "youtube-tutorial" {
		t.Errorf("got template %q, want intelligence choice", j.TemplateName)
	}
	if j.Name != "job-sourdough-basics" || j.DisplayName != "Sourdough Basics" {
		t.Errorf("got name %q display %q, want intelligence naming", j.Name, j.DisplayName)
	}
}

func TestCreateJobIntelligenceErrorFallsBack(t *testing.T) {
	loader := testTemplates(t, map[string]string{"youtube-tutorial": tutorialDoc, "blog-post": blogDoc})
	intel := &fakeIntel{available: true, err: errors.New("model offline")}
	eng := buildEngine(t, newMemStore(), loader, defaultAgents(nil), intel, nil)

	j, err := eng.CreateJob(context.Background(), "Make a tutorial about Go", "")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if j.TemplateName != "youtube-tutorial" {
		t.Errorf("got template %q, want heuristic fallback", j.TemplateName)
	}
	if j.Name == "" {
		t.Error("fallback name not generated")
	}
}

func TestFallbackNameShape(t *testing.T) {
	name, display := fallbackName("Teach me about sourdough bread baking!")
	if display != "Teach me about sourdough bread baking!" {
		t.Errorf("got display %q", display)
	}
	const prefix = "job-teach-about-sourdough-"
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		t.Errorf("got name %q, want prefix %q", name, prefix)
	}

	long := "This request is deliberately much longer than sixty characters to exercise truncation"
	_, display = fallbackName(long)
	if len(display) != 60 {
		t.Errorf("got display length %d, want 60", len(display))
	}
	if display[57:] != "..." {
		t.Errorf("got display %q, want ellipsis suffix", display)
	}
}
