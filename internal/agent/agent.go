// Package agent defines the capability-provider contract and the
// catalog/selector machinery that matches providers to production tasks.
package agent

import (
	"context"

	"github.com/nidhogg/mediaforge/internal/job"
)

// Agent is a capability provider able to execute tasks of one category.
type Agent interface {
	// Name is the human-readable display name.
	Name() string
	// InstanceKey is the unique key used for preference lookup.
	InstanceKey() string
	// Category is the single task category this agent serves.
	Category() job.Category
	// Validate reports whether the agent can handle the task. An error
	// is treated as "cannot handle" by the selector, never as fatal.
	Validate(ctx context.Context, task *job.Task) (bool, error)
	// Execute runs the task and returns its result. Failures may be
	// reported either through the result status or through the error.
	Execute(ctx context.Context, task *job.Task) (*job.Result, error)
	// Capabilities describes what the agent can do.
	Capabilities() Capabilities
}

// Capabilities is an agent's self-declared capability descriptor.
type Capabilities struct {
	Name            string       `json:"name"`
	InstanceKey     string       `json:"instance_key"`
	Category        job.Category `json:"category"`
	Specializations []string     `json:"specializations"`
	SupportedParams []string     `json:"supported_parameters"`
	OutputFormats   []string     `json:"output_formats"`
}

// Credentialed is implemented by agents holding live external-API
// credentials. Selection awards a bonus when HasCredentials is true.
type Credentialed interface {
	HasCredentials() bool
}

// ModelBacked is implemented by agents whose output comes from a language
// model rather than canned placeholder content.
type ModelBacked interface {
	ModelBacked() bool
}
