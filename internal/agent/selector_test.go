package agent

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/mediaforge/internal/job"
)

func scriptTask(name, preferred string) *job.Task {
	return &job.Task{
		ID:             "t1",
		Name:           name,
		Category:       job.CategoryScript,
		PreferredAgent: preferred,
		Parameters:     job.NewParameters(),
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScoreComponents(t *testing.T) {
	s := NewSelector(NewCatalog(zap.NewNop()), zap.NewNop())

	plain := scriptFake("plain")
	if got := s.Score(plain, scriptTask("Write Article", "")); !almostEqual(got, 0.5) {
		t.Errorf("category-only score = %v, want 0.5", got)
	}

	backed := scriptFake("backed")
	backed.modelBacked = true
	if got := s.Score(backed, scriptTask("Write Article", "")); !almostEqual(got, 0.8) {
		t.Errorf("model-backed score = %v, want 0.8", got)
	}

	creds := scriptFake("creds")
	creds.modelBacked = true
	creds.creds = true
	if got := s.Score(creds, scriptTask("Write Article", "")); !almostEqual(got, 1.0) {
		t.Errorf("credentialed score = %v, want 1.0", got)
	}
}

func TestScoreKeywordOverlap(t *testing.T) {
	s := NewSelector(NewCatalog(zap.NewNop()), zap.NewNop())

	a := scriptFake("researcher")
	a.specs = []string{"topic research", "fact checking"}

	// "topic research" fully matches (0.2), "fact checking" half
	// matches on "fact" (0.1).
	got := s.Score(a, scriptTask("Research Topic Facts", ""))
	if !almostEqual(got, 0.5+0.2+0.1) {
		t.Errorf("got %v, want 0.8", got)
	}
}

func TestScorePremiumOverride(t *testing.T) {
	task := &job.Task{Name: "Generate Image", Category: job.CategoryImage}

	premium := &fakeAgent{
		name: "mystic", key: "freepik_mystic",
		category: job.CategoryImage, valid: true,
		modelBacked: true, creds: true,
	}

	s := NewSelector(NewCatalog(zap.NewNop()), zap.NewNop(),
		WithPremium(job.CategoryImage, "freepik_mystic"))

	// 0.5 + 0.3 + 0.2 + 0.3 clamps at 1.0.
	if got := s.Score(premium, task); !almostEqual(got, 1.0) {
		t.Errorf("got %v, want capped 1.0", got)
	}

	// Without credentials the premium bonus does not apply.
	premium.creds = false
	if got := s.Score(premium, task); !almostEqual(got, 0.8) {
		t.Errorf("got %v, want 0.8", got)
	}
}

func TestSelectPreferenceWins(t *testing.T) {
	c := NewCatalog(zap.NewNop())
	strong := scriptFake("strong")
	strong.modelBacked = true
	weak := scriptFake("weak")
	c.Register(strong)
	c.Register(weak)

	s := NewSelector(c, zap.NewNop())
	got := s.Select(context.Background(), scriptTask("Write Article", "weak"))
	if got == nil || got.InstanceKey() != "weak" {
		t.Errorf("got %v, want preferred weak agent", got)
	}
}

func TestSelectInvalidPreferenceFallsThrough(t *testing.T) {
	c := NewCatalog(zap.NewNop())
	best := scriptFake("best")
	best.modelBacked = true
	c.Register(best)

	s := NewSelector(c, zap.NewNop())

	// Unknown preference.
	got := s.Select(context.Background(), scriptTask("Write Article", "ghost"))
	if got == nil || got.InstanceKey() != "best" {
		t.Errorf("got %v, want best after unknown preference", got)
	}

	// Preference that cannot validate the task.
	rejecting := scriptFake("rejecting")
	rejecting.valid = false
	c.Register(rejecting)
	got = s.Select(context.Background(), scriptTask("Write Article", "rejecting"))
	if got == nil || got.InstanceKey() != "best" {
		t.Errorf("got %v, want best after invalid preference", got)
	}
}

func TestSelectHighestScoreFirstMaxWins(t *testing.T) {
	c := NewCatalog(zap.NewNop())
	a := scriptFake("alpha")
	a.modelBacked = true
	b := scriptFake("bravo")
	b.modelBacked = true
	c.Register(a)
	c.Register(b)

	s := NewSelector(c, zap.NewNop())
	got := s.Select(context.Background(), scriptTask("Write Article", ""))
	if got == nil || got.InstanceKey() != "alpha" {
		t.Errorf("got %v, want alpha on tied scores", got)
	}
}

func TestSelectValidationErrorSkipsAgent(t *testing.T) {
	c := NewCatalog(zap.NewNop())
	broken := scriptFake("broken")
	broken.validateErr = errors.New("boom")
	ok := scriptFake("ok")
	c.Register(broken)
	c.Register(ok)

	s := NewSelector(c, zap.NewNop())
	got := s.Select(context.Background(), scriptTask("Write Article", ""))
	if got == nil || got.InstanceKey() != "ok" {
		t.Errorf("got %v, want ok after skipping erroring agent", got)
	}
}

func TestSelectFallbackWhenNoneValidate(t *testing.T) {
	c := NewCatalog(zap.NewNop())
	refusing := scriptFake("refusing")
	refusing.valid = false
	fb := scriptFake("fallback_script")
	fb.valid = false
	c.Register(refusing)
	c.Register(fb)
	c.SetFallback(job.CategoryScript, "fallback_script")

	s := NewSelector(c, zap.NewNop())
	got := s.Select(context.Background(), scriptTask("Write Article", ""))
	if got == nil || got.InstanceKey() != "fallback_script" {
		t.Errorf("got %v, want designated fallback", got)
	}
}

func TestSelectEmptyCategory(t *testing.T) {
	s := NewSelector(NewCatalog(zap.NewNop()), zap.NewNop())
	if got := s.Select(context.Background(), scriptTask("Write Article", "")); got != nil {
		t.Errorf("got %v, want nil for empty category", got)
	}
}

func TestSelectIdempotent(t *testing.T) {
	c := NewCatalog(zap.NewNop())
	a := scriptFake("alpha")
	a.specs = []string{"article writing"}
	b := scriptFake("bravo")
	b.modelBacked = true
	c.Register(a)
	c.Register(b)

	s := NewSelector(c, zap.NewNop())
	task := scriptTask("Write Article", "")
	first := s.Select(context.Background(), task)
	for i := 0; i < 10; i++ {
		if got := s.Select(context.Background(), task); got != first {
			t.Fatalf("selection not deterministic: got %v, want %v", got, first)
		}
	}
}
