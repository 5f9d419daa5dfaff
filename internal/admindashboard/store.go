package admindashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ablego/ablego/internal/realtime"
	"github.com/ablego/ablego/internal/rpc"
)

var (
	ErrInvalidPeriod  = errors.New("analytics period must be a positive number of days")
	ErrStoreClosed    = errors.New("dashboard store is closed")
	ErrNoScheduler    = errors.New("dashboard store has no scheduler")
	ErrNoChangeSource = errors.New("dashboard store has no change source")
)

const refreshJobName = "admin-dashboard-refresh"

// ChangeResources are the resources the store subscribes to.
var ChangeResources = []string{
	realtime.ResourceBookings,
	realtime.ResourceUsers,
	realtime.ResourceNotifications,
}

const (
	msgStatisticsFailed       = "Failed to load dashboard statistics"
	msgBookingAnalyticsFailed = "Failed to load booking analytics"
	msgUserAnalyticsFailed    = "Failed to load user analytics"
	msgSearchBookingsFailed   = "Failed to search bookings"
	msgSearchUsersFailed      = "Failed to search users"
	msgNotificationsFailed    = "Failed to load notifications"
	msgMarkReadFailed         = "Failed to mark notification as read"
	msgBookingStatusFailed    = "Failed to update booking status"
	msgUserStatusFailed       = "Failed to update user status"
)

// Scheduler runs the repeating refresh job.
type Scheduler interface {
	AddIntervalJob(name string, every time.Duration, task func()) (uuid.UUID, error)
	RemoveJob(id uuid.UUID) error
}

// ChangeSource delivers backend change notifications.
type ChangeSource interface {
	Subscribe(resources []string, fn func(realtime.Change)) (*realtime.Subscription, error)
}

type slot int

const (
	slotStatistics slot = iota
	slotBookingAnalytics
	slotUserAnalytics
	slotSearch
	slotNotifications
	slotCount
)

type Options struct {
	RefreshInterval time.Duration
	RefreshTimeout  time.Duration
	SearchLimit     int
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = 30 * time.Second
	}
	if o.RefreshTimeout <= 0 {
		o.RefreshTimeout = 20 * time.Second
	}
	if o.SearchLimit <= 0 {
		o.SearchLimit = 50
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Store is the single source of truth for the admin dashboard. Every slot
// is written only by its own operations, and a response is applied only if
// no newer request for the same slot has been issued since.
type Store struct {
	service   *Service
	scheduler Scheduler
	changes   ChangeSource
	opts      Options
	logger    zerolog.Logger

	// ctx bounds background reloads; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	// lifecycleMu guards the refresh job and the subscription. It is never
	// held while mu is held.
	lifecycleMu sync.Mutex
	refreshJob  uuid.UUID
	refreshing  bool
	sub         *realtime.Subscription
	closed      bool

	mu               sync.Mutex
	statistics       *DashboardStatistics
	bookingAnalytics *BookingAnalytics
	userAnalytics    *UserAnalytics
	search           SearchResult
	notifications    *NotificationFeed
	inFlight         int
	errMsg           string
	lastUpdated      time.Time
	autoRefresh      bool
	seq              [slotCount]uint64
	// bookingPeriod is the most recently requested analytics period.
	bookingPeriod int
}

// NewStore creates an empty store. scheduler and changes may be nil when
// auto-refresh or change subscriptions are not used.
func NewStore(service *Service, scheduler Scheduler, changes ChangeSource, opts Options) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		service:   service,
		scheduler: scheduler,
		changes:   changes,
		opts:      opts.withDefaults(),
		logger:    log.With().Str("component", "admin_dashboard").Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// begin registers an explicit request for sl. It supersedes every request
// issued for sl before it.
func (s *Store) begin(sl slot) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginLocked(sl)
}

func (s *Store) beginLocked(sl slot) uint64 {
	s.inFlight++
	s.errMsg = ""
	s.seq[sl]++
	return s.seq[sl]
}

// joinLocked registers a background reload for sl. It shares the sequence of
// the latest request instead of taking a new one, so it is dropped if an
// explicit request starts after it but never causes one to be dropped.
func (s *Store) joinLocked(sl slot) uint64 {
	s.inFlight++
	s.errMsg = ""
	return s.seq[sl]
}

func (s *Store) join(sl slot) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joinLocked(sl)
}

// finish records the outcome of a request issued by begin or join. Stale
// outcomes are dropped, error included, as are reloads cut short by Close.
func (s *Store) finish(sl slot, seq uint64, err error, failure string, apply func()) {
	aborted := err != nil && errors.Is(err, context.Canceled) && s.ctx.Err() != nil
	var msg string
	if err != nil && !aborted {
		msg = s.errorMessage(err, failure)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	if aborted {
		return
	}
	if seq != s.seq[sl] {
		s.logger.Debug().Int("slot", int(sl)).Uint64("seq", seq).Uint64("latest", s.seq[sl]).Msg("Discarding stale dashboard response")
		return
	}
	if err != nil {
		s.errMsg = msg
		return
	}
	apply()
}

// errorMessage shows remote-reported messages verbatim and replaces anything
// else with failure.
func (s *Store) errorMessage(err error, failure string) string {
	if rpcErr, ok := rpc.AsError(err); ok && rpcErr.Message != "" {
		return rpcErr.Message
	}
	s.logger.Error().Err(err).Msg(failure)
	return failure
}

func (s *Store) LoadDashboardStatistics(ctx context.Context) error {
	return s.loadStatistics(ctx, s.begin(slotStatistics))
}

func (s *Store) loadStatistics(ctx context.Context, seq uint64) error {
	stats, err := s.service.DashboardStatistics(ctx)
	s.finish(slotStatistics, seq, err, msgStatisticsFailed, func() {
		s.statistics = stats
		s.lastUpdated = s.opts.Now()
	})
	return err
}

func (s *Store) LoadBookingAnalytics(ctx context.Context, periodDays int) error {
	s.mu.Lock()
	if periodDays <= 0 {
		s.errMsg = ErrInvalidPeriod.Error()
		s.mu.Unlock()
		return ErrInvalidPeriod
	}
	s.bookingPeriod = periodDays
	seq := s.beginLocked(slotBookingAnalytics)
	s.mu.Unlock()

	return s.fetchBookingAnalytics(ctx, seq, periodDays, false)
}

// reloadBookingAnalytics refetches the most recently requested period, past
// the cache, once the series has been loaded.
func (s *Store) reloadBookingAnalytics(ctx context.Context) error {
	s.mu.Lock()
	if s.bookingAnalytics == nil || s.bookingPeriod <= 0 {
		s.mu.Unlock()
		return nil
	}
	periodDays := s.bookingPeriod
	seq := s.joinLocked(slotBookingAnalytics)
	s.mu.Unlock()

	return s.fetchBookingAnalytics(ctx, seq, periodDays, true)
}

func (s *Store) fetchBookingAnalytics(ctx context.Context, seq uint64, periodDays int, fresh bool) error {
	analytics, err := s.service.BookingAnalytics(ctx, periodDays, fresh)
	s.finish(slotBookingAnalytics, seq, err, msgBookingAnalyticsFailed, func() {
		s.bookingAnalytics = analytics
	})
	return err
}

func (s *Store) LoadUserAnalytics(ctx context.Context) error {
	return s.fetchUserAnalytics(ctx, s.begin(slotUserAnalytics), false)
}

// reloadUserAnalytics refetches user analytics past the cache once they have
// been loaded.
func (s *Store) reloadUserAnalytics(ctx context.Context) error {
	s.mu.Lock()
	if s.userAnalytics == nil {
		s.mu.Unlock()
		return nil
	}
	seq := s.joinLocked(slotUserAnalytics)
	s.mu.Unlock()

	return s.fetchUserAnalytics(ctx, seq, true)
}

func (s *Store) fetchUserAnalytics(ctx context.Context, seq uint64, fresh bool) error {
	analytics, err := s.service.UserAnalytics(ctx, fresh)
	s.finish(slotUserAnalytics, seq, err, msgUserAnalyticsFailed, func() {
		s.userAnalytics = analytics
	})
	return err
}

// SearchBookings replaces the search slot with booking results. A zero Limit
// uses the configured default.
func (s *Store) SearchBookings(ctx context.Context, params BookingSearchParams) error {
	if params.Limit <= 0 {
		params.Limit = s.opts.SearchLimit
	}
	seq := s.begin(slotSearch)
	results, err := s.service.SearchBookings(ctx, params)
	s.finish(slotSearch, seq, err, msgSearchBookingsFailed, func() {
		s.search = results
	})
	return err
}

// SearchUsers replaces the search slot with user results, discarding any
// booking results held there.
func (s *Store) SearchUsers(ctx context.Context, params UserSearchParams) error {
	if params.Limit <= 0 {
		params.Limit = s.opts.SearchLimit
	}
	seq := s.begin(slotSearch)
	results, err := s.service.SearchUsers(ctx, params)
	s.finish(slotSearch, seq, err, msgSearchUsersFailed, func() {
		s.search = results
	})
	return err
}

func (s *Store) LoadNotifications(ctx context.Context) error {
	return s.loadNotifications(ctx, s.begin(slotNotifications))
}

func (s *Store) loadNotifications(ctx context.Context, seq uint64) error {
	feed, err := s.service.Notifications(ctx)
	s.finish(slotNotifications, seq, err, msgNotificationsFailed, func() {
		s.notifications = feed
	})
	return err
}

func (s *Store) mutate(failure string, fn func() error) bool {
	s.mu.Lock()
	s.inFlight++
	s.errMsg = ""
	s.mu.Unlock()

	err := fn()
	var msg string
	if err != nil {
		msg = s.errorMessage(err, failure)
	}

	s.mu.Lock()
	s.inFlight--
	if err != nil {
		s.errMsg = msg
	}
	s.mu.Unlock()
	return err == nil
}

// MarkNotificationRead reports whether the command succeeded. On success it
// returns only after the feed has been reloaded.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) bool {
	ok := s.mutate(msgMarkReadFailed, func() error {
		return s.service.MarkNotificationRead(ctx, id)
	})
	if !ok {
		return false
	}
	_ = s.LoadNotifications(ctx)
	return true
}

// UpdateBookingStatus reports whether the command succeeded. On success it
// returns only after statistics have been reloaded.
func (s *Store) UpdateBookingStatus(ctx context.Context, id, status string) bool {
	ok := s.mutate(msgBookingStatusFailed, func() error {
		return s.service.UpdateBookingStatus(ctx, id, status)
	})
	if !ok {
		return false
	}
	_ = s.LoadDashboardStatistics(ctx)
	return true
}

// UpdateUserStatus reports whether the command succeeded. On success it
// returns only after user analytics have been reloaded from the remote.
func (s *Store) UpdateUserStatus(ctx context.Context, id string, isActive bool) bool {
	ok := s.mutate(msgUserStatusFailed, func() error {
		return s.service.UpdateUserStatus(ctx, id, isActive)
	})
	if !ok {
		return false
	}
	_ = s.fetchUserAnalytics(ctx, s.begin(slotUserAnalytics), true)
	return true
}

// handleChange reloads the slots that depend on the changed resource.
// Analytics are reloaded only when they have been loaded before.
func (s *Store) handleChange(change realtime.Change) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.RefreshTimeout)
	defer cancel()

	var g errgroup.Group
	switch change.Resource {
	case realtime.ResourceBookings:
		g.Go(func() error { return s.loadStatistics(ctx, s.join(slotStatistics)) })
		g.Go(func() error { return s.reloadBookingAnalytics(ctx) })
	case realtime.ResourceUsers:
		g.Go(func() error { return s.loadStatistics(ctx, s.join(slotStatistics)) })
		g.Go(func() error { return s.reloadUserAnalytics(ctx) })
	case realtime.ResourceNotifications:
		g.Go(func() error { return s.loadNotifications(ctx, s.join(slotNotifications)) })
	default:
		s.logger.Debug().Str("resource", change.Resource).Msg("Ignoring change for unknown resource")
		return
	}

	if err := g.Wait(); err != nil {
		s.logger.Debug().Err(err).Str("resource", change.Resource).Msg("Change-driven reload failed")
	}
}

// refreshTick reloads statistics, notifications and any analytics already
// on screen.
func (s *Store) refreshTick() {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.RefreshTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error { return s.loadStatistics(ctx, s.join(slotStatistics)) })
	g.Go(func() error { return s.loadNotifications(ctx, s.join(slotNotifications)) })
	g.Go(func() error { return s.reloadBookingAnalytics(ctx) })
	g.Go(func() error { return s.reloadUserAnalytics(ctx) })

	if err := g.Wait(); err != nil {
		s.logger.Debug().Err(err).Msg("Dashboard refresh failed")
	}
}

// SubscribeToChanges registers the store for change notifications. While a
// subscription is live it is returned as is.
func (s *Store) SubscribeToChanges(ctx context.Context) (*realtime.Subscription, error) {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if s.sub != nil {
		return s.sub, nil
	}
	if s.changes == nil {
		return nil, ErrNoChangeSource
	}

	sub, err := s.changes.Subscribe(ChangeResources, s.handleChange)
	if err != nil {
		return nil, fmt.Errorf("subscribe to dashboard changes: %w", err)
	}
	s.sub = sub
	log.Ctx(ctx).Info().Str("subscription_id", sub.ID().String()).Msg("Subscribed to dashboard changes")
	return sub, nil
}

// UnsubscribeFromChanges releases the live subscription, if any.
func (s *Store) UnsubscribeFromChanges() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	s.releaseSubscription()
}

func (s *Store) releaseSubscription() {
	if s.sub == nil {
		return
	}
	s.sub.Unsubscribe()
	s.sub = nil
}

// SetAutoRefresh starts or stops the repeating refresh job. Enabling while
// enabled keeps the existing job.
func (s *Store) SetAutoRefresh(enabled bool) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !enabled {
		return s.stopRefresh()
	}
	if s.closed {
		return ErrStoreClosed
	}
	if s.refreshing {
		return nil
	}
	if s.scheduler == nil {
		return ErrNoScheduler
	}

	id, err := s.scheduler.AddIntervalJob(refreshJobName, s.opts.RefreshInterval, s.refreshTick)
	if err != nil {
		return fmt.Errorf("schedule dashboard refresh: %w", err)
	}
	s.refreshJob = id
	s.refreshing = true
	s.setAutoRefreshFlag(true)

	s.logger.Info().Str("job_id", id.String()).Dur("interval", s.opts.RefreshInterval).Msg("Dashboard auto-refresh enabled")
	return nil
}

// stopRefresh releases the refresh job. The job is treated as released even
// if the scheduler reports an error removing it.
func (s *Store) stopRefresh() error {
	s.setAutoRefreshFlag(false)
	if !s.refreshing {
		return nil
	}

	id := s.refreshJob
	s.refreshJob = uuid.Nil
	s.refreshing = false
	if err := s.scheduler.RemoveJob(id); err != nil {
		return fmt.Errorf("remove dashboard refresh job: %w", err)
	}
	s.logger.Info().Str("job_id", id.String()).Msg("Dashboard auto-refresh disabled")
	return nil
}

func (s *Store) setAutoRefreshFlag(enabled bool) {
	s.mu.Lock()
	s.autoRefresh = enabled
	s.mu.Unlock()
}

// Close cancels background reloads in progress, then releases the refresh
// job and the change subscription. Later calls to SetAutoRefresh(true) or
// SubscribeToChanges fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.cancel()

	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.closed = true
	s.releaseSubscription()
	return s.stopRefresh()
}

// ClearError dismisses the current error message.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()
}

func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Statistics:       s.statistics,
		BookingAnalytics: s.bookingAnalytics,
		UserAnalytics:    s.userAnalytics,
		Search:           s.search,
		Notifications:    s.notifications,
		Loading:          s.inFlight > 0,
		Error:            s.errMsg,
		LastUpdated:      s.lastUpdated,
		AutoRefresh:      s.autoRefresh,
	}
}
