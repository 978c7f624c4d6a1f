package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nidhogg/mediaforge/internal/job"
	"github.com/nidhogg/mediaforge/internal/provider"
	"go.uber.org/zap"
)

// DesignAgent produces image specifications (composition, palette, copy)
// for image tasks. It designs; it does not render.
type DesignAgent struct {
	llmAgent
}

// NewDesignAgent creates the design agent.
func NewDesignAgent(p provider.Provider, gen GenerationConfig, logger *zap.Logger) *DesignAgent {
	return &DesignAgent{
		llmAgent: newLLMAgent("Design Agent", "default_design", job.CategoryImage, p, gen, logger),
	}
}

func (a *DesignAgent) Validate(_ context.Context, task *job.Task) (bool, error) {
	return task.Category == job.CategoryImage, nil
}

func (a *DesignAgent) Execute(ctx context.Context, task *job.Task) (*job.Result, error) {
	start := time.Now()
	request := inputString(task, "user_request")
	size := requirementString(task, "size", "1200x630")
	style := requirementString(task, "style", "professional")

	system := "You are a visual designer. Describe a single image as a concrete specification: subject, composition, color palette, and any overlay text."
	prompt := "Design an image for the task \"" + task.Name + "\".\nStyle: " + style +
		", dimensions: " + size + ".\n\nContent request: " + request

	spec, err := a.generate(ctx, system, prompt)
	if err != nil {
		a.logger.Warn("design generation unavailable, producing baseline spec", zap.Error(err))
		spec = "Image specification for " + task.Name + " (" + style + ", " + size + ")"
	}

	outputs := map[string]any{
		"image_specification": spec,
		"dimensions":          size,
		"style":               style,
		"format":              "png",
	}
	return successResult(outputs, execMetadata(a.name, err == nil), start), nil
}

func (a *DesignAgent) Capabilities() Capabilities {
	return Capabilities{
		Name:            a.name,
		InstanceKey:     a.key,
		Category:        a.category,
		Specializations: []string{"thumbnail design", "social graphics", "visual composition"},
		SupportedParams: []string{"size", "style", "include_text", "brand_colors"},
		OutputFormats:   []string{"png", "jpg", "svg"},
	}
}

// MysticAgent is the premium image provider backed by the Freepik Mystic
// API. Without an API key it degrades to specification-only output.
type MysticAgent struct {
	llmAgent
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewMysticAgent creates the Freepik Mystic agent. An empty apiKey is
// valid; the agent then produces specifications without rendering.
func NewMysticAgent(p provider.Provider, gen GenerationConfig, apiKey string, logger *zap.Logger) *MysticAgent {
	return &MysticAgent{
		llmAgent: newLLMAgent("Freepik Mystic Agent", "freepik_mystic", job.CategoryImage, p, gen, logger),
		apiKey:   apiKey,
		endpoint: "https://api.freepik.com/v1/ai/mystic",
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

// HasCredentials reports whether a live Freepik API key is configured.
func (a *MysticAgent) HasCredentials() bool { return a.apiKey != "" }

func (a *MysticAgent) Validate(_ context.Context, task *job.Task) (bool, error) {
	return task.Category == job.CategoryImage, nil
}

func (a *MysticAgent) Execute(ctx context.Context, task *job.Task) (*job.Result, error) {
	start := time.Now()
	request := inputString(task, "user_request")
	style := requirementString(task, "style", "photorealistic")

	system := "You write prompts for a photorealistic image generation model. Return a single vivid prompt, no commentary."
	genPrompt := "Write an image generation prompt for the task \"" + task.Name +
		"\" in a " + style + " style.\n\nContent request: " + request

	imagePrompt, err := a.generate(ctx, system, genPrompt)
	if err != nil {
		a.logger.Warn("prompt generation unavailable, using direct prompt", zap.Error(err))
		imagePrompt = task.Name + ": " + request
	}

	outputs := map[string]any{
		"image_prompt": imagePrompt,
		"style":        style,
		"format":       "png",
	}

	if a.apiKey == "" {
		outputs["images_generated"] = false
		outputs["note"] = "no API key configured, specification only"
		return successResult(outputs, execMetadata(a.name, false), start), nil
	}

	taskID, genErr := a.requestGeneration(ctx, imagePrompt, style)
	if genErr != nil {
		// API failure degrades to specification output rather than
		// failing the task; the prompt remains usable downstream.
		a.logger.Error("mystic generation request failed", zap.Error(genErr))
		outputs["images_generated"] = false
		outputs["api_error"] = genErr.Error()
		return successResult(outputs, execMetadata(a.name, true), start), nil
	}

	outputs["images_generated"] = true
	outputs["generation_task_id"] = taskID
	return successResult(outputs, execMetadata(a.name, true), start), nil
}

// requestGeneration submits an image generation request to the Mystic
// API and returns the remote task id.
func (a *MysticAgent) requestGeneration(ctx context.Context, prompt, style string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"prompt": prompt,
		"model":  "realism",
		"style":  style,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-freepik-api-key", a.apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Data struct {
			TaskID string `json:"task_id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return result.Data.TaskID, nil
}

func (a *MysticAgent) Capabilities() Capabilities {
	return Capabilities{
		Name:            a.name,
		InstanceKey:     a.key,
		Category:        a.category,
		Specializations: []string{"photorealistic generation", "thumbnail creation", "mystic rendering"},
		SupportedParams: []string{"size", "style", "aspect_ratio"},
		OutputFormats:   []string{"png", "jpg"},
	}
}
