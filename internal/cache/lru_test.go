package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestLRUCache_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](0, time.Minute).WithClock(func() time.Time { return now })

	c.Set("a", "1")
	c.SetWithTTL("b", "2", time.Hour)

	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("b should still be cached")
	}

	now = now.Add(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestLRUCache_SizeEviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // b is now least recently used
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should be cached", k)
		}
	}
}

func TestLRUCache_Unbounded(t *testing.T) {
	c := NewLRUCache[int](0, time.Hour)
	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprint(i), i)
	}
	if c.Size() != 100 {
		t.Errorf("Size() = %d, want 100", c.Size())
	}
	c.Delete("5")
	if _, ok := c.Get("5"); ok {
		t.Error("deleted key should be gone")
	}
}

func TestManager_CleanAll(t *testing.T) {
	now := time.Now()
	c := NewLRUCache[int](0, time.Second).WithClock(func() time.Time { return now })
	c.Set("x", 1)

	m := NewManager(nil)
	m.Register(c)
	now = now.Add(2 * time.Second)

	if n := m.CleanAll(); n != 1 {
		t.Errorf("CleanAll() = %d, want 1", n)
	}

	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop() // idempotent
}
