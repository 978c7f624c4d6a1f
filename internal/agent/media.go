package agent

import (
	"context"
	"time"

	"github.com/nidhogg/mediaforge/internal/job"
	"github.com/nidhogg/mediaforge/internal/provider"
	"go.uber.org/zap"
)

// AudioAgent produces narration scripts and voice direction for audio tasks.
type AudioAgent struct {
	llmAgent
}

// NewAudioAgent creates the audio agent.
func NewAudioAgent(p provider.Provider, gen GenerationConfig, logger *zap.Logger) *AudioAgent {
	return &AudioAgent{
		llmAgent: newLLMAgent("Audio Agent", "default_audio", job.CategoryAudio, p, gen, logger),
	}
}

func (a *AudioAgent) Validate(_ context.Context, task *job.Task) (bool, error) {
	return task.Category == job.CategoryAudio, nil
}

func (a *AudioAgent) Execute(ctx context.Context, task *job.Task) (*job.Result, error) {
	start := time.Now()
	request := inputString(task, "user_request")
	voiceStyle := requirementString(task, "voice_style", "professional")
	duration := requirementString(task, "duration", "2:30")

	system := "You are an audio producer. Write a narration script with voice direction cues, suitable for text-to-speech production."
	prompt := "Produce a narration script for the task \"" + task.Name + "\".\nVoice style: " +
		voiceStyle + ", target duration: " + duration + ".\n\nContent request: " + request

	script, err := a.generate(ctx, system, prompt)
	if err != nil {
		a.logger.Warn("narration generation unavailable, producing outline", zap.Error(err))
		script = "Narration outline for " + task.Name
	}

	outputs := map[string]any{
		"narration_script": script,
		"voice_style":      voiceStyle,
		"duration":         duration,
		"format":           requirementString(task, "format", "mp3"),
	}
	return successResult(outputs, execMetadata(a.name, err == nil), start), nil
}

func (a *AudioAgent) Capabilities() Capabilities {
	return Capabilities{
		Name:            a.name,
		InstanceKey:     a.key,
		Category:        a.category,
		Specializations: []string{"narration scripting", "voiceover direction", "podcast production"},
		SupportedParams: []string{"duration", "format", "voice_style", "speed"},
		OutputFormats:   []string{"mp3", "wav", "aac"},
	}
}

// VideoAgent produces storyboards and shot lists for video tasks.
type VideoAgent struct {
	llmAgent
}

// NewVideoAgent creates the video agent.
func NewVideoAgent(p provider.Provider, gen GenerationConfig, logger *zap.Logger) *VideoAgent {
	return &VideoAgent{
		llmAgent: newLLMAgent("Video Agent", "default_video", job.CategoryVideo, p, gen, logger),
	}
}

func (a *VideoAgent) Validate(_ context.Context, task *job.Task) (bool, error) {
	return task.Category == job.CategoryVideo, nil
}

func (a *VideoAgent) Execute(ctx context.Context, task *job.Task) (*job.Result, error) {
	start := time.Now()
	request := inputString(task, "user_request")
	resolution := requirementString(task, "resolution", "1080p")
	style := requirementString(task, "style", "slideshow")

	system := "You are a video producer. Write a storyboard as numbered scenes with visuals, on-screen text, and narration per scene."
	prompt := "Storyboard the task \"" + task.Name + "\" as a " + style +
		" video at " + resolution + ".\n\nContent request: " + request

	storyboard, err := a.generate(ctx, system, prompt)
	if err != nil {
		a.logger.Warn("storyboard generation unavailable, producing outline", zap.Error(err))
		storyboard = "Storyboard outline for " + task.Name
	}

	outputs := map[string]any{
		"storyboard": storyboard,
		"resolution": resolution,
		"style":      style,
		"duration":   requirementString(task, "duration", "5:00"),
		"format":     requirementString(task, "format", "mp4"),
	}
	return successResult(outputs, execMetadata(a.name, err == nil), start), nil
}

func (a *VideoAgent) Capabilities() Capabilities {
	return Capabilities{
		Name:            a.name,
		InstanceKey:     a.key,
		Category:        a.category,
		Specializations: []string{"storyboard creation", "shot planning", "video assembly"},
		SupportedParams: []string{"duration", "format", "resolution", "style"},
		OutputFormats:   []string{"mp4", "mov", "webm"},
	}
}
