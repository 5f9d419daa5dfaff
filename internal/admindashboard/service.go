package admindashboard

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ablego/ablego/internal/cache"
	"github.com/ablego/ablego/internal/config"
	"github.com/ablego/ablego/internal/rpc"
)

const (
	procDashboardStats       = "get_admin_dashboard_stats"
	procBookingAnalytics     = "get_booking_analytics"
	procUserAnalytics        = "get_user_analytics"
	procSearchBookings       = "search_bookings"
	procSearchUsers          = "search_users"
	procNotifications        = "get_admin_notifications"
	procMarkNotificationRead = "mark_notification_read"
	procUpdateBookingStatus  = "update_booking_status"
	procUpdateUserStatus     = "update_user_status"

	keyBookingAnalytics = "booking_analytics"
	keyUserAnalytics    = "user_analytics"
	keyOverview         = "dashboard_overview"
)

// Service issues the dashboard procedures over an rpc.Client, decodes the
// responses and applies the response cache policy. Statistics, searches and
// notifications are never cached.
type Service struct {
	client rpc.Client
	cache  *cache.Cache
	policy config.DashboardConfig
	now    func() time.Time
}

func NewService(client rpc.Client, c *cache.Cache, policy config.DashboardConfig) *Service {
	if c == nil {
		c = cache.New(nil)
	}
	return &Service{
		client: client,
		cache:  c,
		policy: policy,
		now:    time.Now,
	}
}

func (s *Service) DashboardStatistics(ctx context.Context) (*DashboardStatistics, error) {
	var payload statisticsPayload
	if err := s.client.Call(ctx, procDashboardStats, nil, &payload); err != nil {
		return nil, err
	}
	return payload.decode()
}

// BookingAnalytics returns the cached series for days unless fresh is set, in
// which case the remote is always queried and the cache entry overwritten.
func (s *Service) BookingAnalytics(ctx context.Context, days int, fresh bool) (*BookingAnalytics, error) {
	params := map[string]int{"days": days}
	key := cache.GenerateKey(keyBookingAnalytics, params)
	if !fresh {
		if cached, ok := cache.Lookup[*BookingAnalytics](s.cache, key); ok {
			return cached, nil
		}
	}

	var payload bookingAnalyticsPayload
	if err := s.client.Call(ctx, procBookingAnalytics, params, &payload); err != nil {
		return nil, err
	}
	analytics, err := payload.decode(days)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, analytics, s.policy.BookingAnalyticsTTL)
	return analytics, nil
}

func (s *Service) UserAnalytics(ctx context.Context, fresh bool) (*UserAnalytics, error) {
	key := cache.GenerateKey(keyUserAnalytics, nil)
	if !fresh {
		if cached, ok := cache.Lookup[*UserAnalytics](s.cache, key); ok {
			return cached, nil
		}
	}

	var payload userAnalyticsPayload
	if err := s.client.Call(ctx, procUserAnalytics, nil, &payload); err != nil {
		return nil, err
	}
	analytics, err := payload.decode()
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, analytics, s.policy.UserAnalyticsTTL)
	return analytics, nil
}

func (s *Service) SearchBookings(ctx context.Context, params BookingSearchParams) (*BookingResults, error) {
	var payload bookingSearchPayload
	if err := s.client.Call(ctx, procSearchBookings, params, &payload); err != nil {
		return nil, err
	}
	return payload.decode(params)
}

func (s *Service) SearchUsers(ctx context.Context, params UserSearchParams) (*UserResults, error) {
	var payload userSearchPayload
	if err := s.client.Call(ctx, procSearchUsers, params, &payload); err != nil {
		return nil, err
	}
	return payload.decode(params)
}

func (s *Service) Notifications(ctx context.Context) (*NotificationFeed, error) {
	var payload notificationFeedPayload
	if err := s.client.Call(ctx, procNotifications, nil, &payload); err != nil {
		return nil, err
	}
	return payload.decode()
}

func (s *Service) MarkNotificationRead(ctx context.Context, id string) error {
	return s.mutate(ctx, procMarkNotificationRead, map[string]string{"notification_id": id})
}

func (s *Service) UpdateBookingStatus(ctx context.Context, id, status string) error {
	return s.mutate(ctx, procUpdateBookingStatus, map[string]string{"booking_id": id, "status": status})
}

func (s *Service) UpdateUserStatus(ctx context.Context, id string, isActive bool) error {
	return s.mutate(ctx, procUpdateUserStatus, map[string]any{"user_id": id, "is_active": isActive})
}

func (s *Service) mutate(ctx context.Context, procedure string, params any) error {
	var payload mutationPayload
	if err := s.client.Call(ctx, procedure, params, &payload); err != nil {
		return err
	}
	return payload.check(procedure)
}

// Overview combines statistics and the notification feed. The result is
// cached for the overview TTL.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	key := cache.GenerateKey(keyOverview, nil)
	if cached, ok := cache.Lookup[*Overview](s.cache, key); ok {
		return cached, nil
	}

	var (
		stats *DashboardStatistics
		feed  *NotificationFeed
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = s.DashboardStatistics(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		feed, err = s.Notifications(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build overview: %w", err)
	}

	overview := &Overview{
		TotalBookings:       TotalBookings(stats.Bookings),
		PendingBookings:     stats.Bookings.Pending,
		Revenue:             stats.Revenue,
		ActiveUsers:         stats.Users.Active,
		UnreadNotifications: feed.UnreadCount,
		GeneratedAt:         s.now(),
	}
	s.cache.Set(key, overview, s.policy.OverviewTTL)
	return overview, nil
}
