// Package intelligence is the optional LLM-backed collaborator for
// template selection and job naming. The engine treats it as best-effort
// and functions correctly without it.
package intelligence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/mediaforge/internal/provider"
	"github.com/nidhogg/mediaforge/internal/template"
	"go.uber.org/zap"
)

// TemplateChoice is the collaborator's template recommendation.
type TemplateChoice struct {
	Name       string  `json:"template_name"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// JobName is the collaborator's naming proposal for a job.
type JobName struct {
	TechnicalName string `json:"technical_name"`
	DisplayName   string `json:"display_name"`
	Reasoning     string `json:"reasoning"`
}

// Service answers template-selection and naming questions through an
// LLM provider.
type Service struct {
	provider provider.Provider
	model    string
	logger   *zap.Logger
}

// New creates an intelligence service over the given provider.
func New(p provider.Provider, model string, logger *zap.Logger) *Service {
	if model == "" {
		model = "openai/gpt-4o-mini"
	}
	return &Service{provider: p, model: model, logger: logger}
}

// Available probes provider connectivity with a short deadline.
func (s *Service) Available(ctx context.Context) bool {
	if s == nil || s.provider == nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.provider.HealthCheck(probeCtx); err != nil {
		s.logger.Debug("intelligence provider unavailable", zap.Error(err))
		return false
	}
	return true
}

// SelectTemplate asks the model to pick the best template for a request.
func (s *Service) SelectTemplate(ctx context.Context, request string, templates []*template.Template) (*TemplateChoice, error) {
	descriptions := make(map[string]map[string]any, len(templates))
	for _, t := range templates {
		byCategory := make(map[string]int)
		for _, bp := range t.Tasks {
			byCategory[string(bp.Category)]++
		}
		descriptions[t.Name] = map[string]any{
			"title":          t.Title,
			"category":       t.Category,
			"tasks":          len(t.Tasks),
			"task_breakdown": byCategory,
		}
	}
	catalog, err := json.Marshal(descriptions)
	if err != nil {
		return nil, fmt.Errorf("marshal template catalog: %w", err)
	}

	system := "You are a content strategist. Pick the best template for the user's request. " +
		`Respond with only a JSON object: {"template_name": "...", "confidence": 0.0, "reasoning": "..."}`
	prompt := fmt.Sprintf("User request: %q\n\nAvailable templates:\n%s", request, catalog)

	var choice TemplateChoice
	if err := s.ask(ctx, system, prompt, &choice); err != nil {
		return nil, err
	}
	if choice.Name == "" {
		return nil, fmt.Errorf("model returned no template name")
	}
	return &choice, nil
}

// NameJob asks the model for technical and display names for a job.
func (s *Service) NameJob(ctx context.Context, request, templateName string) (*JobName, error) {
	system := "You name content production jobs. The technical name is a short kebab-case slug; " +
		"the display name is a human-readable title under 60 characters. " +
		`Respond with only a JSON object: {"technical_name": "...", "display_name": "...", "reasoning": "..."}`
	prompt := fmt.Sprintf("User request: %q\nTemplate: %s", request, templateName)

	var name JobName
	if err := s.ask(ctx, system, prompt, &name); err != nil {
		return nil, err
	}
	if name.TechnicalName == "" || name.DisplayName == "" {
		return nil, fmt.Errorf("model returned incomplete job name")
	}
	return &name, nil
}

// ask runs one prompt and decodes the JSON object in the reply.
func (s *Service) ask(ctx context.Context, system, prompt string, out any) error {
	resp, err := s.provider.Chat(ctx, &provider.ChatRequest{
		Model:       s.model,
		System:      system,
		Messages:    []provider.Message{{Role: "user", Content: prompt}},
		Temperature: 0.2,
		MaxTokens:   500,
	})
	if err != nil {
		return fmt.Errorf("chat request: %w", err)
	}

	raw := extractJSON(resp.Content)
	if raw == "" {
		return fmt.Errorf("no JSON object in model reply")
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode model reply: %w", err)
	}
	return nil
}

// extractJSON pulls the first top-level JSON object out of a reply that
// may be wrapped in prose or code fences.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
