package cache

import (
	"sync"
	"testing"
	"time"
)

// mockClock is a controllable clock for testing.
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSetThenGet(t *testing.T) {
	c := New(newMockClock())

	c.Set("booking_analytics", []int{1, 2, 3}, time.Minute)

	got, ok := c.Get("booking_analytics")
	if !ok {
		t.Fatal("expected hit immediately after Set")
	}
	values, _ := got.([]int)
	if len(values) != 3 {
		t.Errorf("Get returned %v, want [1 2 3]", got)
	}
}

func TestGetAfterTTLIsMiss(t *testing.T) {
	clock := newMockClock()
	c := New(clock)

	c.Set("key", "value", 5*time.Minute)

	clock.Advance(5 * time.Minute)
	if _, ok := c.Get("key"); !ok {
		t.Error("entry should still be live exactly at expiry")
	}

	clock.Advance(time.Millisecond)
	if _, ok := c.Get("key"); ok {
		t.Error("entry should be a miss once ttl has elapsed")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be dropped on read, Len() = %d", c.Len())
	}
}

func TestMissIsDistinctFromCachedNil(t *testing.T) {
	c := New(newMockClock())

	if v, ok := c.Get("absent"); ok || v != nil {
		t.Errorf("Get(absent) = (%v, %v), want (nil, false)", v, ok)
	}

	c.Set("present", nil, time.Minute)
	v, ok := c.Get("present")
	if !ok {
		t.Error("cached nil should be reported as present")
	}
	if v != nil {
		t.Errorf("cached nil returned %v", v)
	}
}

func TestSetOverwrites(t *testing.T) {
	clock := newMockClock()
	c := New(clock)

	c.Set("key", "first", time.Second)
	clock.Advance(900 * time.Millisecond)
	c.Set("key", "second", time.Minute)
	clock.Advance(30 * time.Second)

	v, ok := c.Get("key")
	if !ok || v != "second" {
		t.Errorf("Get = (%v, %v), want (second, true)", v, ok)
	}
}

func TestGenerateKeyDeterministic(t *testing.T) {
	first := GenerateKey("booking_analytics", map[string]any{"days": 30})
	second := GenerateKey("booking_analytics", map[string]any{"days": 30})
	if first != second {
		t.Errorf("keys differ: %q vs %q", first, second)
	}
	if first != `booking_analytics:{"days":30}` {
		t.Errorf("unexpected key %q", first)
	}
}

func TestGenerateKeyOrderIndependent(t *testing.T) {
	a := map[string]any{}
	a["term"] = "smith"
	a["role"] = "driver"
	a["limit"] = 50

	b := map[string]any{}
	b["limit"] = 50
	b["role"] = "driver"
	b["term"] = "smith"

	if GenerateKey("search_users", a) != GenerateKey("search_users", b) {
		t.Error("keys should not depend on map insertion order")
	}
}

func TestGenerateKeyDistinguishesParams(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"different params", GenerateKey("booking_analytics", map[string]int{"days": 7}), GenerateKey("booking_analytics", map[string]int{"days": 30})},
		{"different names", GenerateKey("user_analytics", nil), GenerateKey("dashboard_overview", nil)},
		{"nil vs empty", GenerateKey("overview", nil), GenerateKey("overview", map[string]int{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.a == tt.b {
				t.Errorf("expected different keys, both %q", tt.a)
			}
		})
	}
}

func TestLookupTyped(t *testing.T) {
	c := New(newMockClock())
	c.Set("count", 42, time.Minute)

	n, ok := Lookup[int](c, "count")
	if !ok || n != 42 {
		t.Errorf("Lookup[int] = (%d, %v), want (42, true)", n, ok)
	}

	if _, ok := Lookup[string](c, "count"); ok {
		t.Error("Lookup with the wrong type should miss")
	}
}
