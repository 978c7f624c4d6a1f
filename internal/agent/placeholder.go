package agent

import (
	"context"
	"time"

	"github.com/nidhogg/mediaforge/internal/job"
	"go.uber.org/zap"
)

// Placeholder is a deterministic agent that accepts every task in its
// category and produces category-shaped stub outputs. One placeholder
// per category is registered as that category's fallback.
type Placeholder struct {
	name     string
	key      string
	category job.Category
	logger   *zap.Logger
}

// NewPlaceholder creates a placeholder agent for a category.
func NewPlaceholder(cat job.Category, logger *zap.Logger) *Placeholder {
	return &Placeholder{
		name:     "Placeholder " + string(cat) + " agent",
		key:      "fallback_" + string(cat),
		category: cat,
		logger:   logger,
	}
}

func (a *Placeholder) Name() string           { return a.name }
func (a *Placeholder) InstanceKey() string    { return a.key }
func (a *Placeholder) Category() job.Category { return a.category }

func (a *Placeholder) Validate(_ context.Context, task *job.Task) (bool, error) {
	return task.Category == a.category, nil
}

func (a *Placeholder) Execute(_ context.Context, task *job.Task) (*job.Result, error) {
	start := time.Now()
	outputs := map[string]any{
		"task_name":  task.Name,
		"agent_used": a.name,
		"category":   string(a.category),
	}

	switch a.category {
	case job.CategoryScript:
		outputs["content"] = "Generated script content for " + task.Name
		outputs["word_count"] = requirementInt(task, "target_words", 300)
		outputs["format"] = "markdown"
	case job.CategoryImage:
		outputs["image_description"] = "Generated image for " + task.Name
		outputs["dimensions"] = requirementString(task, "size", "1200x630")
		outputs["format"] = "png"
	case job.CategoryAudio:
		outputs["audio_description"] = "Generated audio for " + task.Name
		outputs["duration"] = requirementString(task, "duration", "2:30")
		outputs["format"] = requirementString(task, "format", "mp3")
	case job.CategoryVideo:
		outputs["video_description"] = "Generated video for " + task.Name
		outputs["duration"] = requirementString(task, "duration", "5:00")
		outputs["format"] = requirementString(task, "format", "mp4")
	}

	return successResult(outputs, execMetadata(a.name, false), start), nil
}

func (a *Placeholder) Capabilities() Capabilities {
	return Capabilities{
		Name:            a.name,
		InstanceKey:     a.key,
		Category:        a.category,
		Specializations: []string{"placeholder " + string(a.category) + " generation"},
		SupportedParams: []string{"user_request", "template_name", "job_id"},
		OutputFormats:   []string{"json"},
	}
}
