package job

import (
	"errors"
	"time"
)

// Status tracks a job's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TaskStatus tracks a task's lifecycle state. Tasks move
// pending -> in_progress -> completed|failed, driven only by the runner.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether the task status is a final state.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Category fixes both task grouping and global execution order.
type Category string

const (
	CategoryScript Category = "script"
	CategoryImage  Category = "image"
	CategoryAudio  Category = "audio"
	CategoryVideo  Category = "video"
)

// Categories returns all categories in execution order.
func Categories() []Category {
	return []Category{CategoryScript, CategoryImage, CategoryAudio, CategoryVideo}
}

// ParseCategory maps a string onto a known category.
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategoryScript, CategoryImage, CategoryAudio, CategoryVideo:
		return Category(s), true
	}
	return "", false
}

// Parameters is the task's structured parameter bag. Inputs is immutable
// context set at creation, Requirements carries template tunables, and
// Outputs is populated by the runner on success.
type Parameters struct {
	Inputs       map[string]any `json:"inputs"`
	Requirements map[string]any `json:"requirements"`
	Outputs      map[string]any `json:"outputs"`
}

// NewParameters returns a parameter bag with all regions allocated.
func NewParameters() Parameters {
	return Parameters{
		Inputs:       make(map[string]any),
		Requirements: make(map[string]any),
		Outputs:      make(map[string]any),
	}
}

// Job is a single user content request and its overall lifecycle record.
type Job struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	DisplayName  string     `json:"display_name"`
	TemplateName string     `json:"template_name,omitempty"`
	UserRequest  string     `json:"user_request"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Task is one unit of work within a job, scoped to exactly one category.
// SequenceOrder is assigned at compile time and never reordered.
type Task struct {
	ID             string     `json:"id"`
	JobID          string     `json:"job_id"`
	Name           string     `json:"name"`
	Category       Category   `json:"category"`
	SequenceOrder  int        `json:"sequence_order"`
	Status         TaskStatus `json:"status"`
	AssignedAgent  string     `json:"assigned_agent,omitempty"`
	PreferredAgent string     `json:"preferred_agent,omitempty"`
	Parameters     Parameters `json:"parameters"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// Result holds the output of a single agent execution.
type Result struct {
	Status       TaskStatus        `json:"status"`
	Outputs      map[string]any    `json:"outputs"`
	Files        map[string]string `json:"files,omitempty"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Duration     time.Duration     `json:"duration"`
}

// TaskUpdate carries the optional fields of a task status write.
type TaskUpdate struct {
	AssignedAgent *string
	StartedAt     *time.Time
	CompletedAt   *time.Time
	ErrorMessage  *string
}

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrTaskNotFound = errors.New("task not found")
)
