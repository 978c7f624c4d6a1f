package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/mediaforge/internal/job"
	"github.com/nidhogg/mediaforge/internal/provider"
	"go.uber.org/zap"
)

// GenerationConfig tunes model-backed content generation.
type GenerationConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

func (c *GenerationConfig) withDefaults() GenerationConfig {
	out := *c
	if out.Model == "" {
		out.Model = "openai/gpt-4o-mini"
	}
	if out.Temperature == 0 {
		out.Temperature = 0.7
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = 2000
	}
	return out
}

// llmAgent is the shared core of model-backed agents: a provider handle,
// generation settings, and graceful degradation when the provider is
// unreachable.
type llmAgent struct {
	name     string
	key      string
	category job.Category
	provider provider.Provider
	gen      GenerationConfig
	logger   *zap.Logger
}

func newLLMAgent(name, key string, cat job.Category, p provider.Provider, gen GenerationConfig, logger *zap.Logger) llmAgent {
	return llmAgent{
		name:     name,
		key:      key,
		category: cat,
		provider: p,
		gen:      gen.withDefaults(),
		logger:   logger,
	}
}

func (a *llmAgent) Name() string           { return a.name }
func (a *llmAgent) InstanceKey() string    { return a.key }
func (a *llmAgent) Category() job.Category { return a.category }
func (a *llmAgent) ModelBacked() bool      { return true }

// generate runs a single prompt through the provider. Returns an error
// when no provider is configured or the call fails; callers degrade to
// deterministic output in that case.
func (a *llmAgent) generate(ctx context.Context, system, prompt string) (string, error) {
	if a.provider == nil {
		return "", fmt.Errorf("no provider configured for agent %s", a.key)
	}
	resp, err := a.provider.Chat(ctx, &provider.ChatRequest{
		Model:       a.gen.Model,
		System:      system,
		Messages:    []provider.Message{{Role: "user", Content: prompt}},
		Temperature: a.gen.Temperature,
		MaxTokens:   a.gen.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	return resp.Content, nil
}

// taskInputs returns the immutable input region of the task parameters.
func taskInputs(task *job.Task) map[string]any {
	if task.Parameters.Inputs == nil {
		return map[string]any{}
	}
	return task.Parameters.Inputs
}

// taskRequirements returns the template-declared tunables of the task.
func taskRequirements(task *job.Task) map[string]any {
	if task.Parameters.Requirements == nil {
		return map[string]any{}
	}
	return task.Parameters.Requirements
}

func inputString(task *job.Task, key string) string {
	if v, ok := taskInputs(task)[key].(string); ok {
		return v
	}
	return ""
}

func requirementString(task *job.Task, key, fallback string) string {
	if v, ok := taskRequirements(task)[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func requirementInt(task *job.Task, key string, fallback int) int {
	switch v := taskRequirements(task)[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

func successResult(outputs map[string]any, metadata map[string]any, start time.Time) *job.Result {
	return &job.Result{
		Status:   job.TaskCompleted,
		Outputs:  outputs,
		Metadata: metadata,
		Duration: time.Since(start),
	}
}
