package admindashboard

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ablego/ablego/internal/rpc"
)

func TestOverviewCombinesAndCaches(t *testing.T) {
	h := newHarness(t)
	h.client.respond(procDashboardStats, statsFixture(2, 1, 5, 137.5))
	h.client.respond(procNotifications, feedFixture(4))
	ctx := context.Background()

	overview, err := h.service.Overview(ctx)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if overview.TotalBookings != 8 || overview.PendingBookings != 2 {
		t.Fatalf("unexpected booking totals: %+v", overview)
	}
	if overview.Revenue != 137.5 || overview.ActiveUsers != 3 || overview.UnreadNotifications != 4 {
		t.Fatalf("unexpected overview: %+v", overview)
	}

	if _, err := h.service.Overview(ctx); err != nil {
		t.Fatalf("cached overview: %v", err)
	}
	if got := h.client.count(procDashboardStats); got != 1 {
		t.Fatalf("expected cached overview within 2 minutes, got %d statistics calls", got)
	}

	h.clock.Advance(2*time.Minute + time.Millisecond)
	if _, err := h.service.Overview(ctx); err != nil {
		t.Fatalf("expired overview: %v", err)
	}
	if got := h.client.count(procDashboardStats); got != 2 {
		t.Fatalf("expected overview to refetch after expiry, got %d statistics calls", got)
	}
}

func TestOverviewPropagatesRemoteError(t *testing.T) {
	h := newHarness(t)
	h.client.respond(procDashboardStats, statsFixture(2, 1, 5, 137.5))
	h.client.fail(procNotifications, rpc.Errorf(rpc.CodeUnauthorized, "not an admin"))

	_, err := h.service.Overview(context.Background())
	rpcErr, ok := rpc.AsError(err)
	if !ok || rpcErr.Message != "not an admin" {
		t.Fatalf("expected remote error to be preserved, got %v", err)
	}
}

func TestUserAnalyticsCacheExpires(t *testing.T) {
	h := newHarness(t)
	h.client.respond(procUserAnalytics, userAnalyticsFixture(3))
	ctx := context.Background()

	if _, err := h.service.UserAnalytics(ctx, false); err != nil {
		t.Fatalf("user analytics: %v", err)
	}
	h.clock.Advance(10 * time.Minute)
	if _, err := h.service.UserAnalytics(ctx, false); err != nil {
		t.Fatalf("user analytics: %v", err)
	}
	if got := h.client.count(procUserAnalytics); got != 1 {
		t.Fatalf("expected entry to live for exactly its TTL, got %d calls", got)
	}

	h.clock.Advance(time.Millisecond)
	if _, err := h.service.UserAnalytics(ctx, false); err != nil {
		t.Fatalf("user analytics: %v", err)
	}
	if got := h.client.count(procUserAnalytics); got != 2 {
		t.Fatalf("expected refetch after TTL, got %d calls", got)
	}
}

func TestSearchParamsReachRemote(t *testing.T) {
	h := newHarness(t)
	var got map[string]any
	h.client.handle(procSearchBookings, func(params json.RawMessage) (any, error) {
		if err := json.Unmarshal(params, &got); err != nil {
			return nil, err
		}
		return map[string]any{"results": []any{}, "total_count": 0}, nil
	})

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := h.service.SearchBookings(context.Background(), BookingSearchParams{
		Term:     "leeds",
		Status:   "pending",
		DateFrom: &from,
		Limit:    25,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if got["term"] != "leeds" || got["status"] != "pending" || got["limit"] != float64(25) {
		t.Fatalf("unexpected params: %v", got)
	}
	if got["date_from"] != "2025-03-01T00:00:00Z" {
		t.Fatalf("unexpected date_from: %v", got["date_from"])
	}
	if _, ok := got["date_to"]; ok {
		t.Fatalf("expected date_to to be omitted")
	}
}

func TestSchemaValidation(t *testing.T) {
	tests := []struct {
		name      string
		procedure string
		payload   any
		call      func(*Service) error
	}{
		{
			name:      "search result with unknown status",
			procedure: procSearchBookings,
			payload:   map[string]any{"results": []map[string]any{{"id": "b1", "status": "lost"}}, "total_count": 1},
			call: func(s *Service) error {
				_, err := s.SearchBookings(context.Background(), BookingSearchParams{})
				return err
			},
		},
		{
			name:      "active users above total",
			procedure: procDashboardStats,
			payload:   map[string]any{"total_users": 1, "active_users": 2},
			call: func(s *Service) error {
				_, err := s.DashboardStatistics(context.Background())
				return err
			},
		},
		{
			name:      "period mismatch",
			procedure: procBookingAnalytics,
			payload:   map[string]any{"period_days": 7},
			call: func(s *Service) error {
				_, err := s.BookingAnalytics(context.Background(), 30, false)
				return err
			},
		},
		{
			name:      "bad daily date",
			procedure: procBookingAnalytics,
			payload:   map[string]any{"period_days": 30, "daily": []map[string]any{{"date": "15/03/2025"}}},
			call: func(s *Service) error {
				_, err := s.BookingAnalytics(context.Background(), 30, false)
				return err
			},
		},
		{
			name:      "daily out of order",
			procedure: procBookingAnalytics,
			payload: map[string]any{"period_days": 30, "daily": []map[string]any{
				{"date": "2025-03-15"}, {"date": "2025-03-14"},
			}},
			call: func(s *Service) error {
				_, err := s.BookingAnalytics(context.Background(), 30, false)
				return err
			},
		},
		{
			name:      "role without name",
			procedure: procUserAnalytics,
			payload:   map[string]any{"roles": []map[string]any{{"total": 1}}},
			call: func(s *Service) error {
				_, err := s.UserAnalytics(context.Background(), false)
				return err
			},
		},
		{
			name:      "total below page size",
			procedure: procSearchUsers,
			payload:   map[string]any{"results": []map[string]any{{"id": "u1"}, {"id": "u2"}}, "total_count": 1},
			call: func(s *Service) error {
				_, err := s.SearchUsers(context.Background(), UserSearchParams{})
				return err
			},
		},
		{
			name:      "notification without id",
			procedure: procNotifications,
			payload:   map[string]any{"notifications": []map[string]any{{"title": "x"}}},
			call: func(s *Service) error {
				_, err := s.Notifications(context.Background())
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.client.respond(tt.procedure, tt.payload)

			if err := tt.call(h.service); !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestInvalidAnalyticsIsNotCached(t *testing.T) {
	h := newHarness(t)
	h.client.respond(procBookingAnalytics, map[string]any{"period_days": 0})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := h.service.BookingAnalytics(ctx, 30, false); err == nil {
			t.Fatalf("expected invalid payload")
		}
	}
	if got := h.client.count(procBookingAnalytics); got != 2 {
		t.Fatalf("expected no caching of invalid payloads, got %d calls", got)
	}
}

func TestRecentBookingsSkipUnknownStatus(t *testing.T) {
	h := newHarness(t)
	payload := statsFixture(2, 1, 5, 137.5)
	payload["recent_bookings"] = []map[string]any{
		{"id": "b1", "status": "pending", "price": 12.5},
		{"id": "b2", "status": "rerouted", "price": 20},
		{"id": "b3", "status": "completed", "price": 30},
	}
	h.client.respond(procDashboardStats, payload)

	stats, err := h.service.DashboardStatistics(context.Background())
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if len(stats.RecentBookings) != 2 || stats.RecentBookings[0].ID != "b1" || stats.RecentBookings[1].ID != "b3" {
		t.Fatalf("expected only the known rows, got %+v", stats.RecentBookings)
	}
	if stats.Bookings.Completed != 5 {
		t.Fatalf("expected counts to survive, got %+v", stats.Bookings)
	}
}
