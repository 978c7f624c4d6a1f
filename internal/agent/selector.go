package agent

import (
	"context"
	"strings"

	"github.com/nidhogg/mediaforge/internal/job"
	"go.uber.org/zap"
)

// Selector computes the best-fit agent for a task using a deterministic
// additive score. A valid task-level preference always wins over scoring.
type Selector struct {
	catalog *Catalog
	premium map[job.Category]string
	logger  *zap.Logger
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithPremium designates the premium provider for a category. When that
// provider also holds credentials, it receives an extra scoring bonus so
// the premium path wins ties.
func WithPremium(cat job.Category, instanceKey string) SelectorOption {
	return func(s *Selector) {
		s.premium[cat] = instanceKey
	}
}

// NewSelector creates a selector over the given catalog.
func NewSelector(catalog *Catalog, logger *zap.Logger, opts ...SelectorOption) *Selector {
	s := &Selector{
		catalog: catalog,
		premium: make(map[job.Category]string),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns the best agent for the task, or nil when the category
// has no registered agents at all.
func (s *Selector) Select(ctx context.Context, task *job.Task) Agent {
	if task.PreferredAgent != "" {
		if a := s.resolvePreference(ctx, task); a != nil {
			return a
		}
	}

	candidates := s.catalog.ByCategory(task.Category)
	if len(candidates) == 0 {
		s.logger.Warn("no agents registered for category",
			zap.String("category", string(task.Category)))
		return nil
	}

	var best Agent
	bestScore := -1.0
	for _, a := range candidates {
		ok, err := a.Validate(ctx, task)
		if err != nil {
			s.logger.Error("agent validation failed",
				zap.String("agent", a.Name()),
				zap.String("task", task.Name),
				zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		// Ties break toward catalog enumeration order: first max wins.
		if score := s.Score(a, task); score > bestScore {
			best = a
			bestScore = score
		}
	}

	if best == nil {
		s.logger.Warn("no compatible agents validated, using fallback",
			zap.String("task", task.Name),
			zap.String("category", string(task.Category)))
		fb, ok := s.catalog.Fallback(task.Category)
		if !ok {
			return nil
		}
		return fb
	}

	s.logger.Info("selected agent",
		zap.String("agent", best.Name()),
		zap.String("task", task.Name),
		zap.Float64("score", bestScore))
	return best
}

// resolvePreference honors the task's preferred agent if it resolves and
// validates; otherwise selection falls through to scoring.
func (s *Selector) resolvePreference(ctx context.Context, task *job.Task) Agent {
	preferred, found := s.catalog.Get(task.PreferredAgent)
	if !found {
		s.logger.Warn("preferred agent not found, falling back to automatic selection",
			zap.String("preferred", task.PreferredAgent),
			zap.String("task", task.Name))
		return nil
	}
	ok, err := preferred.Validate(ctx, task)
	if err != nil {
		s.logger.Error("preferred agent validation failed",
			zap.String("preferred", task.PreferredAgent),
			zap.Error(err))
		return nil
	}
	if !ok {
		s.logger.Warn("preferred agent cannot handle task, falling back to automatic selection",
			zap.String("preferred", task.PreferredAgent),
			zap.String("task", task.Name))
		return nil
	}
	s.logger.Info("using template-specified agent",
		zap.String("agent", preferred.Name()),
		zap.String("task", task.Name))
	return preferred
}

// Score computes the additive compatibility score between a validated
// agent and a task. The sum is capped at 1.0; individual terms are not.
func (s *Selector) Score(a Agent, task *job.Task) float64 {
	score := 0.0

	// Category membership. Always true for validated candidates, kept
	// as an explicit term for extensibility.
	if a.Category() == task.Category {
		score += 0.5
	}

	if mb, ok := a.(ModelBacked); ok && mb.ModelBacked() {
		score += 0.3
	}

	credentialed := false
	if c, ok := a.(Credentialed); ok && c.HasCredentials() {
		credentialed = true
		score += 0.2
	}

	// Premium override: ensures the designated provider wins ties in
	// its category when it can actually call its API.
	if s.premium[task.Category] == a.InstanceKey() && credentialed {
		score += 0.3
	}

	// Keyword overlap: per specialization phrase, the fraction of its
	// words appearing in the task name, scaled by 0.2. Uncapped across
	// specializations; only the total is clamped.
	taskName := strings.ToLower(task.Name)
	for _, spec := range a.Capabilities().Specializations {
		words := strings.Fields(strings.ToLower(spec))
		if len(words) == 0 {
			continue
		}
		matching := 0
		for _, w := range words {
			if strings.Contains(taskName, w) {
				matching++
			}
		}
		score += float64(matching) / float64(len(words)) * 0.2
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
