package agent

import (
	"sync"

	"github.com/nidhogg/mediaforge/internal/job"
	"go.uber.org/zap"
)

// Catalog indexes capability providers by instance key and by category.
// It is built once at the composition root and injected; registration
// after concurrent job processing begins must be externally synchronized.
type Catalog struct {
	mu         sync.RWMutex
	byKey      map[string]Agent
	byCategory map[job.Category][]Agent
	fallbacks  map[job.Category]string
	logger     *zap.Logger
}

// NewCatalog creates an empty catalog.
func NewCatalog(logger *zap.Logger) *Catalog {
	return &Catalog{
		byKey:      make(map[string]Agent),
		byCategory: make(map[job.Category][]Agent),
		fallbacks:  make(map[job.Category]string),
		logger:     logger,
	}
}

// Register adds an agent under its instance key. A duplicate key
// overwrites the previous registration, keeping its position in the
// category enumeration order.
func (c *Catalog) Register(a Agent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := a.InstanceKey()

	if old, ok := c.byKey[key]; ok {
		list := c.byCategory[old.Category()]
		for i, existing := range list {
			if existing == old {
				list[i] = a
				break
			}
		}
		if old.Category() != a.Category() {
			c.byCategory[a.Category()] = append(c.byCategory[a.Category()], a)
		}
	} else {
		c.byCategory[a.Category()] = append(c.byCategory[a.Category()], a)
	}
	c.byKey[key] = a

	c.logger.Debug("registered agent",
		zap.String("key", key),
		zap.String("name", a.Name()),
		zap.String("category", string(a.Category())))
}

// Get returns the agent registered under key.
func (c *Catalog) Get(key string) (Agent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.byKey[key]
	return a, ok
}

// ByCategory returns the agents for a category in registration order.
func (c *Catalog) ByCategory(cat job.Category) []Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Agent, len(c.byCategory[cat]))
	copy(out, c.byCategory[cat])
	return out
}

// SetFallback designates the fallback agent for a category.
func (c *Catalog) SetFallback(cat job.Category, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallbacks[cat] = key
}

// Fallback returns the designated fallback agent for a category, or the
// first registered agent in that category when none is designated.
func (c *Catalog) Fallback(cat job.Category) (Agent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if key, ok := c.fallbacks[cat]; ok {
		if a, found := c.byKey[key]; found {
			return a, true
		}
	}
	if list := c.byCategory[cat]; len(list) > 0 {
		return list[0], true
	}
	return nil, false
}

// List returns capability descriptors for every registered agent,
// grouped by category in execution order.
func (c *Catalog) List() []Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Capabilities
	for _, cat := range job.Categories() {
		for _, a := range c.byCategory[cat] {
			out = append(out, a.Capabilities())
		}
	}
	return out
}

// Stats returns the number of registered agents per category.
func (c *Catalog) Stats() map[job.Category]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := make(map[job.Category]int, len(c.byCategory))
	for cat, list := range c.byCategory {
		stats[cat] = len(list)
	}
	return stats
}
