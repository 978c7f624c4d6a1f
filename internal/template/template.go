package template

import (
	"github.com/nidhogg/mediaforge/internal/job"
)

// Template is a named, reusable blueprint describing which tasks a job
// of its kind requires, in what order and with what default parameters.
type Template struct {
	Name        string            `json:"name"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Tasks       []Blueprint       `json:"tasks"`
	Metadata    map[string]string `json:"metadata"`
}

// Blueprint is a single task definition inside a template. Blueprints are
// immutable after compilation; job creation copies them into tasks.
type Blueprint struct {
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Category       job.Category   `json:"category"`
	SequenceOrder  int            `json:"sequence_order"`
	Parameters     map[string]any `json:"parameters"`
	PreferredAgent string         `json:"preferred_agent,omitempty"`
}

// TasksByCategory groups the template's blueprints by category,
// preserving sequence order within each group.
func (t *Template) TasksByCategory() map[job.Category][]Blueprint {
	grouped := make(map[job.Category][]Blueprint)
	for _, bp := range t.Tasks {
		grouped[bp.Category] = append(grouped[bp.Category], bp)
	}
	return grouped
}
