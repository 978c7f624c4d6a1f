package template

import (
	"regexp"
	"strings"

	"github.com/nidhogg/mediaforge/internal/job"
	"go.uber.org/zap"
)

// taskLineRe matches a numbered bold task line, e.g. `1. **write_intro**`.
var taskLineRe = regexp.MustCompile(`^\d+\.\s*\*\*([^*]+)\*\*`)

// Compiler turns a markdown template document into a Template. Templates
// are hand-authored, so parsing is best-effort: malformed fragments are
// logged and skipped, never fatal.
type Compiler struct {
	logger *zap.Logger
}

// NewCompiler creates a template compiler.
func NewCompiler(logger *zap.Logger) *Compiler {
	return &Compiler{logger: logger}
}

// Compile parses a template document in a single forward scan. Task
// sections are opened by headings containing "Tasks"; the heading text
// fixes the active category. Sequence counters run per category,
// starting at 1.
func (c *Compiler) Compile(name, source string) *Template {
	t := &Template{
		Name:     name,
		Category: "general",
		Metadata: make(map[string]string),
	}

	var (
		inTasks  bool
		category job.Category
		current  *Blueprint
		counters = make(map[job.Category]int)
	)

	flush := func() {
		if current != nil {
			t.Tasks = append(t.Tasks, *current)
			current = nil
		}
	}

	for _, raw := range strings.Split(source, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		// Title from the first top-level heading.
		if strings.HasPrefix(line, "# ") && t.Title == "" {
			t.Title = strings.TrimSpace(line[2:])
			continue
		}

		// Metadata fields: `**Key: Value**`. The category key sets the
		// template category instead of landing in metadata.
		if strings.HasPrefix(line, "**") && strings.HasSuffix(line, "**") && strings.Contains(line, ":") {
			key, value, ok := strings.Cut(line[2:len(line)-2], ":")
			if ok {
				key = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "_")
				value = strings.TrimSpace(value)
				if key == "category" {
					t.Category = value
				} else {
					t.Metadata[key] = value
				}
			}
			continue
		}

		// A tasks heading opens a section and fixes the active category.
		if strings.HasPrefix(line, "### ") && strings.Contains(line, "Tasks") {
			flush()
			inTasks = true
			category = categoryFromHeading(line)
			continue
		}

		if !inTasks {
			continue
		}

		// Numbered bold line starts a new blueprint.
		if m := taskLineRe.FindStringSubmatch(line); m != nil {
			flush()
			counters[category]++
			current = &Blueprint{
				Name:          strings.TrimSpace(m[1]),
				Category:      category,
				SequenceOrder: counters[category],
				Parameters:    make(map[string]any),
			}
			continue
		}

		if current == nil || !strings.HasPrefix(line, "- ") {
			continue
		}
		body := strings.TrimSpace(line[2:])

		switch {
		case strings.HasPrefix(body, "Agent:"):
			current.PreferredAgent = strings.TrimSpace(strings.TrimPrefix(body, "Agent:"))
		case strings.HasPrefix(body, "Parameters:"):
			params, err := parseParameters(strings.TrimSpace(strings.TrimPrefix(body, "Parameters:")))
			if err != nil {
				c.logger.Warn("skipping malformed parameter block",
					zap.String("template", name),
					zap.String("task", current.Name),
					zap.Error(err))
				continue
			}
			current.Parameters = params
		case current.Description == "":
			current.Description = body
		}
	}

	// Trailing in-progress blueprint at end of input.
	flush()

	if t.Title == "" {
		t.Title = titleFromName(name)
	}
	return t
}

// categoryFromHeading matches the heading text against the known category
// keywords, defaulting to script.
func categoryFromHeading(heading string) job.Category {
	lower := strings.ToLower(heading)
	for _, cat := range job.Categories() {
		if strings.Contains(lower, string(cat)) {
			return cat
		}
	}
	return job.CategoryScript
}

// parseParameters parses a flat `{key: value, ...}` list with best-effort
// type coercion: true/false become bools, all-digit values become ints,
// everything else stays a string.
func parseParameters(text string) (map[string]any, error) {
	if !strings.HasPrefix(text, "{") || !strings.HasSuffix(text, "}") {
		return nil, errBraces
	}
	params := make(map[string]any)
	for _, pair := range strings.Split(text[1:len(text)-1], ",") {
		key, value, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		key = strings.Trim(strings.TrimSpace(key), `"'`)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		params[key] = coerce(value)
	}
	return params, nil
}

func coerce(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if value != "" && isDigits(value) {
		n := 0
		for _, r := range value {
			n = n*10 + int(r-'0')
		}
		return n
	}
	return value
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func titleFromName(name string) string {
	words := strings.Split(strings.ReplaceAll(name, "-", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
