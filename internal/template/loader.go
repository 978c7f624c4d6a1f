package template

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a named template document is missing.
	ErrNotFound = errors.New("template not found")

	errBraces = errors.New("parameter block is not brace-delimited")
)

// Loader reads markdown template documents from a directory and caches
// compiled templates by name.
type Loader struct {
	dir      string
	compiler *Compiler
	logger   *zap.Logger

	mu    sync.RWMutex
	cache map[string]*Template
}

// NewLoader creates a loader for the given templates directory.
func NewLoader(dir string, logger *zap.Logger) *Loader {
	return &Loader{
		dir:      dir,
		compiler: NewCompiler(logger),
		logger:   logger,
		cache:    make(map[string]*Template),
	}
}

// Load reads and compiles a single template by name, refreshing the cache.
func (l *Loader) Load(name string) (*Template, error) {
	path := filepath.Join(l.dir, name+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}

	t := l.compiler.Compile(name, string(data))

	l.mu.Lock()
	l.cache[name] = t
	l.mu.Unlock()
	return t, nil
}

// LoadAll scans the directory for *.md documents and compiles each one.
// A missing directory yields an empty set without error.
func (l *Loader) LoadAll() (map[string]*Template, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Warn("templates directory does not exist", zap.String("dir", l.dir))
			return map[string]*Template{}, nil
		}
		return nil, fmt.Errorf("read templates dir %s: %w", l.dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".md")
		if _, err := l.Load(name); err != nil {
			l.logger.Error("failed to load template", zap.String("name", name), zap.Error(err))
		}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]*Template, len(l.cache))
	for k, v := range l.cache {
		out[k] = v
	}
	return out, nil
}

// Get returns a cached template by name.
func (l *Loader) Get(name string) (*Template, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.cache[name]
	return t, ok
}

// Names returns the cached template names in sorted order.
func (l *Loader) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.cache))
	for name := range l.cache {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Templates returns all cached templates ordered by name.
func (l *Loader) Templates() []*Template {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.cache))
	for name := range l.cache {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Template, 0, len(names))
	for _, name := range names {
		out = append(out, l.cache[name])
	}
	return out
}
