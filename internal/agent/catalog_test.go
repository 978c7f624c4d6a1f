package agent

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/mediaforge/internal/job"
)

// fakeAgent is a configurable test double used across the package tests.
type fakeAgent struct {
	name        string
	key         string
	category    job.Category
	specs       []string
	valid       bool
	validateErr error
	modelBacked bool
	creds       bool
	executed    int
	result      *job.Result
	executeErr  error
}

func (f *fakeAgent) Name() string           { return f.name }
func (f *fakeAgent) InstanceKey() string    { return f.key }
func (f *fakeAgent) Category() job.Category { return f.category }

func (f *fakeAgent) Validate(_ context.Context, _ *job.Task) (bool, error) {
	return f.valid, f.validateErr
}

func (f *fakeAgent) Execute(_ context.Context, _ *job.Task) (*job.Result, error) {
	f.executed++
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &job.Result{Status: job.TaskCompleted, Outputs: map[string]any{}}, nil
}

func (f *fakeAgent) Capabilities() Capabilities {
	return Capabilities{
		Name:            f.name,
		InstanceKey:     f.key,
		Category:        f.category,
		Specializations: f.specs,
	}
}

func (f *fakeAgent) ModelBacked() bool    { return f.modelBacked }
func (f *fakeAgent) HasCredentials() bool { return f.creds }

func scriptFake(key string) *fakeAgent {
	return &fakeAgent{name: key, key: key, category: job.CategoryScript, valid: true}
}

func TestCatalogRegisterAndGet(t *testing.T) {
	c := NewCatalog(zap.NewNop())
	c.Register(scriptFake("writer"))

	a, ok := c.Get("writer")
	if !ok {
		t.Fatal("writer not found")
	}
	if a.Name() != "writer" {
		t.Errorf("got %q, want writer", a.Name())
	}
	if _, ok := c.Get("absent"); ok {
		t.Error("expected absent key to miss")
	}
}

func TestCatalogDuplicateKeyKeepsPosition(t *testing.T) {
	c := NewCatalog(zap.NewNop())
	first := scriptFake("writer")
	second := scriptFake("editor")
	c.Register(first)
	c.Register(second)

	replacement := scriptFake("writer")
	replacement.name = "writer-v2"
	c.Register(replacement)

	list := c.ByCategory(job.CategoryScript)
	if len(list) != 2 {
		t.Fatalf("got %d agents, want 2", len(list))
	}
	if list[0].Name() != "writer-v2" {
		t.Errorf("got %q first, want writer-v2 in original position", list[0].Name())
	}
	if list[1].Name() != "editor" {
		t.Errorf("got %q second, want editor", list[1].Name())
	}
}

func TestCatalogFallback(t *testing.T) {
	c := NewCatalog(zap.NewNop())
	if _, ok := c.Fallback(job.CategoryScript); ok {
		t.Error("expected no fallback on empty catalog")
	}

	c.Register(scriptFake("writer"))
	c.Register(scriptFake("fallback_script"))

	// Without a designation, the first registered agent is the fallback.
	fb, ok := c.Fallback(job.CategoryScript)
	if !ok || fb.InstanceKey() != "writer" {
		t.Errorf("got %v, want writer", fb)
	}

	c.SetFallback(job.CategoryScript, "fallback_script")
	fb, ok = c.Fallback(job.CategoryScript)
	if !ok || fb.InstanceKey() != "fallback_script" {
		t.Errorf("got %v, want fallback_script", fb)
	}
}

func TestCatalogListGroupsByExecutionOrder(t *testing.T) {
	c := NewCatalog(zap.NewNop())
	video := scriptFake("assembler")
	video.category = job.CategoryVideo
	c.Register(video)
	c.Register(scriptFake("writer"))

	list := c.List()
	if len(list) != 2 {
		t.Fatalf("got %d capabilities, want 2", len(list))
	}
	if list[0].Category != job.CategoryScript {
		t.Errorf("got %q first, want script before video", list[0].Category)
	}

	stats := c.Stats()
	if stats[job.CategoryScript] != 1 || stats[job.CategoryVideo] != 1 {
		t.Errorf("got stats %v", stats)
	}
}
