package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestKeyScoping(t *testing.T) {
	guest := Key("when is the deadline", "")
	alice := Key("when is the deadline", "alice")
	bob := Key("when is the deadline", "bob")

	if guest == alice || alice == bob {
		t.Error("keys for different scopes must differ")
	}
	if Key("other question", "") == guest {
		t.Error("keys for different queries must differ")
	}
}

func TestKeyNormalization(t *testing.T) {
	a := Key("  When is the DEADLINE  ", "alice")
	b := Key("when is the deadline", "alice")
	if a != b {
		t.Errorf("normalized queries must share a key: %s vs %s", a, b)
	}
}

func TestTTLFor(t *testing.T) {
	tests := []struct {
		query string
		want  time.Duration
	}{
		{"What is FAFSA exactly?", CommonQuestionTTL},
		{"WHEN IS THE DEADLINE for fall?", CommonQuestionTTL},
		{"how do i apply as an independent student", CommonQuestionTTL},
		{"does my stepparent's income count", DefaultTTL},
		{"", DefaultTTL},
	}
	for _, tt := range tests {
		if got := TTLFor(tt.query); got != tt.want {
			t.Errorf("TTLFor(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	c := New(10)
	key := Key("what is efc", "alice")

	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set(key, "Expected Family Contribution", 0)
	v, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if v.(string) != "Expected Family Contribution" {
		t.Errorf("got %v", v)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %d hits / %d misses, want 1/1", stats.Hits, stats.Misses)
	}
}

func TestExpiryOnTouch(t *testing.T) {
	c := New(10)
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	c.Set("k", "v", time.Minute)

	current = current.Add(59 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired early")
	}

	current = current.Add(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expiry after TTL")
	}
	if c.Has("k") {
		t.Error("Has must agree with Get on expiry")
	}
	if got := c.Stats().Entries; got != 0 {
		t.Errorf("expired entry not removed, %d entries left", got)
	}
}

func TestSetOverwriteResetsTTL(t *testing.T) {
	c := New(10)
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	c.Set("k", "old", time.Minute)
	current = current.Add(50 * time.Second)
	c.Set("k", "new", time.Minute)

	current = current.Add(30 * time.Second)
	v, ok := c.Get("k")
	if !ok {
		t.Fatal("overwrite did not reset TTL")
	}
	if v.(string) != "new" {
		t.Errorf("got %v, want new", v)
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(3)
	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, time.Hour)
	}

	// Touch k0 so k1 becomes the least recently accessed.
	if _, ok := c.Get("k0"); !ok {
		t.Fatal("expected k0")
	}

	c.Set("k3", 3, time.Hour)

	if _, ok := c.Get("k1"); ok {
		t.Error("expected k1 evicted")
	}
	for _, k := range []string{"k0", "k2", "k3"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("expected %s to survive", k)
		}
	}
	if got := c.Stats().Entries; got != 3 {
		t.Errorf("entries = %d, want 3", got)
	}
}

func TestCleanup(t *testing.T) {
	c := New(10)
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	c.Set("short", "v", time.Minute)
	c.Set("long", "v", time.Hour)

	current = current.Add(10 * time.Minute)
	if removed := c.Cleanup(); removed != 1 {
		t.Errorf("Cleanup removed %d, want 1", removed)
	}
	if !c.Has("long") {
		t.Error("long-lived entry removed by Cleanup")
	}
}

func TestHasDoesNotCount(t *testing.T) {
	c := New(10)
	c.Set("k", "v", time.Hour)

	c.Has("k")
	c.Has("missing")

	stats := c.Stats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("Has must not touch counters, got %d/%d", stats.Hits, stats.Misses)
	}
}

type sized struct{ n int64 }

func (s sized) ApproxSize() int64 { return s.n }

func TestStatsMemoryAccounting(t *testing.T) {
	c := New(10)
	c.Set("a", "hello", time.Hour)
	c.Set("b", sized{n: 1000}, time.Hour)

	mem := c.Stats().ApproxMemoryByte
	// Two keys, two overheads, 5 bytes of string, 1000 reported bytes.
	want := int64(len("a")+len("b")) + 2*128 + 5 + 1000
	if mem != want {
		t.Errorf("ApproxMemoryByte = %d, want %d", mem, want)
	}
}
