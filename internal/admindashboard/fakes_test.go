package admindashboard

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ablego/ablego/internal/cache"
	"github.com/ablego/ablego/internal/config"
	"github.com/ablego/ablego/internal/rpc"
)

type handlerFunc func(params json.RawMessage) (any, error)

type ctxHandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// fakeClient answers procedures from registered handlers and round-trips
// results through JSON like the real transports do.
type fakeClient struct {
	mu       sync.Mutex
	handlers map[string]ctxHandlerFunc
	calls    map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		handlers: make(map[string]ctxHandlerFunc),
		calls:    make(map[string]int),
	}
}

func (f *fakeClient) handle(procedure string, h handlerFunc) {
	f.handleCtx(procedure, func(_ context.Context, params json.RawMessage) (any, error) {
		return h(params)
	})
}

func (f *fakeClient) handleCtx(procedure string, h ctxHandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[procedure] = h
}

func (f *fakeClient) respond(procedure string, result any) {
	f.handle(procedure, func(json.RawMessage) (any, error) { return result, nil })
}

func (f *fakeClient) fail(procedure string, err error) {
	f.handle(procedure, func(json.RawMessage) (any, error) { return nil, err })
}

func (f *fakeClient) count(procedure string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[procedure]
}

func (f *fakeClient) Call(ctx context.Context, procedure string, params, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.calls[procedure]++
	h := f.handlers[procedure]
	f.mu.Unlock()

	if h == nil {
		return rpc.Errorf(rpc.CodeNotFound, "procedure %s not found", procedure)
	}
	result, err := h(ctx, raw)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, out)
}

// fakeScheduler keeps jobs in memory; tick runs every live job once.
type fakeScheduler struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]func()
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: make(map[uuid.UUID]func())}
}

func (f *fakeScheduler) AddIntervalJob(_ string, _ time.Duration, task func()) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.jobs[id] = task
	return id, nil
}

func (f *fakeScheduler) RemoveJob(id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, id)
	return nil
}

func (f *fakeScheduler) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func (f *fakeScheduler) tick() {
	f.mu.Lock()
	tasks := make([]func(), 0, len(f.jobs))
	for _, task := range f.jobs {
		tasks = append(tasks, task)
	}
	f.mu.Unlock()

	for _, task := range tasks {
		task()
	}
}

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var fixedNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

type harness struct {
	client    *fakeClient
	scheduler *fakeScheduler
	clock     *mockClock
	service   *Service
	store     *Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	client := newFakeClient()
	clock := &mockClock{now: fixedNow}
	service := NewService(client, cache.New(clock), config.DefaultDashboard())
	service.now = clock.Now
	scheduler := newFakeScheduler()
	store := NewStore(service, scheduler, nil, Options{Now: clock.Now})
	t.Cleanup(func() { _ = store.Close() })

	return &harness{
		client:    client,
		scheduler: scheduler,
		clock:     clock,
		service:   service,
		store:     store,
	}
}

func statsFixture(pending, confirmed, completed int64, revenue float64) map[string]any {
	return map[string]any{
		"pending":       pending,
		"confirmed":     confirmed,
		"in_progress":   0,
		"completed":     completed,
		"cancelled":     0,
		"total_revenue": revenue,
		"total_users":   4,
		"active_users":  3,
		"riders":        2,
		"drivers":       1,
		"admins":        1,
		"recent_bookings": []map[string]any{
			{"id": "b1", "user_id": "u1", "status": "pending", "price": 12.5, "pickup_location": "Leeds", "dropoff_location": "York"},
		},
		"recent_users": []map[string]any{
			{"id": "u1", "email": "ada@example.com", "full_name": "Ada Rider", "role": "rider", "is_active": true},
		},
	}
}

// analyticsHandler echoes the requested period back.
func analyticsHandler(params json.RawMessage) (any, error) {
	var p struct {
		Days int `json:"days"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	return map[string]any{
		"period_days": p.Days,
		"daily": []map[string]any{
			{"date": "2025-03-14", "total": 3, "completed": 2, "cancelled": 1, "revenue": 40},
			{"date": "2025-03-15", "total": 1, "completed": 1, "cancelled": 0, "revenue": 12.5},
		},
	}, nil
}

func userAnalyticsFixture(riders int64) map[string]any {
	return map[string]any{
		"roles": []map[string]any{
			{"role": "rider", "total": riders, "active": riders, "new_last_30_days": 1},
		},
	}
}

func feedFixture(unread int64) map[string]any {
	return map[string]any{
		"notifications": []map[string]any{
			{"id": "n1", "type": "system", "title": "Driver application", "message": "Review", "priority": "high", "is_read": false},
		},
		"unread_count": unread,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
