package agent

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/nidhogg/mediaforge/internal/job"
	"github.com/nidhogg/mediaforge/internal/provider"
	"go.uber.org/zap"
)

// ResearchAgent gathers background material for script tasks whose names
// indicate research work.
type ResearchAgent struct {
	llmAgent
}

// NewResearchAgent creates the research agent.
func NewResearchAgent(p provider.Provider, gen GenerationConfig, logger *zap.Logger) *ResearchAgent {
	return &ResearchAgent{
		llmAgent: newLLMAgent("Research Agent", "default_research", job.CategoryScript, p, gen, logger),
	}
}

func (a *ResearchAgent) Validate(_ context.Context, task *job.Task) (bool, error) {
	if task.Category != job.CategoryScript {
		return false, nil
	}
	name := strings.ToLower(task.Name)
	for _, kw := range []string{"research", "fact", "source", "background", "gather"} {
		if strings.Contains(name, kw) {
			return true, nil
		}
	}
	return false, nil
}

func (a *ResearchAgent) Execute(ctx context.Context, task *job.Task) (*job.Result, error) {
	start := time.Now()
	request := inputString(task, "user_request")
	minSources := requirementInt(task, "min_sources", 3)

	system := "You are a meticulous research assistant. Produce concise, structured research notes: key findings, supporting data, and source suggestions."
	prompt := "Research the following content request and summarize findings in markdown.\n\nRequest: " + request

	notes, err := a.generate(ctx, system, prompt)
	if err != nil {
		a.logger.Warn("research generation unavailable, producing outline only", zap.Error(err))
		notes = "Research outline for: " + request
	}

	outputs := map[string]any{
		"research_notes": notes,
		"source_count":   minSources,
		"task_name":      task.Name,
	}
	return successResult(outputs, execMetadata(a.name, err == nil), start), nil
}

func (a *ResearchAgent) Capabilities() Capabilities {
	return Capabilities{
		Name:            a.name,
		InstanceKey:     a.key,
		Category:        a.category,
		Specializations: []string{"topic research", "fact finding", "source gathering"},
		SupportedParams: []string{"min_sources", "depth"},
		OutputFormats:   []string{"markdown", "text"},
	}
}

// WritingAgent produces written content for any script task: outlines,
// full scripts, headlines, and general copy.
type WritingAgent struct {
	llmAgent
}

// NewWritingAgent creates the writing agent.
func NewWritingAgent(p provider.Provider, gen GenerationConfig, logger *zap.Logger) *WritingAgent {
	return &WritingAgent{
		llmAgent: newLLMAgent("Writing Agent", "default_writing", job.CategoryScript, p, gen, logger),
	}
}

func (a *WritingAgent) Validate(_ context.Context, task *job.Task) (bool, error) {
	return task.Category == job.CategoryScript, nil
}

func (a *WritingAgent) Execute(ctx context.Context, task *job.Task) (*job.Result, error) {
	start := time.Now()
	request := inputString(task, "user_request")
	tone := requirementString(task, "tone", "professional")
	targetWords := requirementInt(task, "target_words", requirementInt(task, "word_count", 500))

	system := "You are a professional content writer. Write in a " + tone +
		" tone and return clean markdown without commentary."
	prompt := "Task: " + task.Name + "\nTarget length: about " +
		strconv.Itoa(targetWords) + " words.\n\nContent request: " + request

	content, err := a.generate(ctx, system, prompt)
	if err != nil {
		a.logger.Warn("writing generation unavailable, producing draft stub", zap.Error(err))
		content = "# " + task.Name + "\n\nDraft content for: " + request
	}

	outputs := map[string]any{
		"content":    content,
		"word_count": len(strings.Fields(content)),
		"tone":       tone,
		"format":     "markdown",
	}
	return successResult(outputs, execMetadata(a.name, err == nil), start), nil
}

func (a *WritingAgent) Capabilities() Capabilities {
	return Capabilities{
		Name:            a.name,
		InstanceKey:     a.key,
		Category:        a.category,
		Specializations: []string{"content writing", "script writing", "headline creation", "outline drafting"},
		SupportedParams: []string{"target_words", "word_count", "tone", "seo_optimized", "include_cta"},
		OutputFormats:   []string{"markdown", "text", "html"},
	}
}

// execMetadata is the common metadata block attached to agent results.
func execMetadata(agentName string, generated bool) map[string]any {
	return map[string]any{
		"agent_name":   agentName,
		"generated":    generated,
		"processed_at": time.Now().UTC().Format(time.RFC3339),
	}
}
