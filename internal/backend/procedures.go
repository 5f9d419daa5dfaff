// Package backend implements the dashboard procedures on top of the local
// database. It stands in for the hosted backend when running in local mode.
package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/rs/zerolog/log"

	"github.com/ablego/ablego/internal/db"
	"github.com/ablego/ablego/internal/realtime"
	"github.com/ablego/ablego/internal/rpc"
)

const (
	ProcDashboardStats       = "get_admin_dashboard_stats"
	ProcBookingAnalytics     = "get_booking_analytics"
	ProcUserAnalytics        = "get_user_analytics"
	ProcSearchBookings       = "search_bookings"
	ProcSearchUsers          = "search_users"
	ProcNotifications        = "get_admin_notifications"
	ProcMarkNotificationRead = "mark_notification_read"
	ProcUpdateBookingStatus  = "update_booking_status"
	ProcUpdateUserStatus     = "update_user_status"

	recentListLimit          = 5
	maxAnalyticsDays         = 365
	defaultSearchLimit       = 50
	maxSearchLimit           = 200
	defaultNotificationLimit = 50
	newUserWindow            = 30 * 24 * time.Hour
)

var bookingStatuses = map[string]bool{
	"pending":     true,
	"confirmed":   true,
	"in_progress": true,
	"completed":   true,
	"cancelled":   true,
}

var userRoles = map[string]bool{
	"rider":          true,
	"driver":         true,
	"support_worker": true,
	"admin":          true,
}

// Publisher receives a change after every successful mutation.
type Publisher interface {
	Publish(change realtime.Change)
}

type Backend struct {
	db          *db.DB
	changes     Publisher
	phoneRegion string
	now         func() time.Time
}

// New creates a backend over database. changes may be nil.
func New(database *db.DB, changes Publisher, phoneRegion string) *Backend {
	if phoneRegion == "" {
		phoneRegion = "GB"
	}
	return &Backend{
		db:          database,
		changes:     changes,
		phoneRegion: strings.ToUpper(phoneRegion),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Register adds every procedure to d.
func (b *Backend) Register(d *rpc.Dispatcher) {
	d.Register(ProcDashboardStats, b.dashboardStats)
	d.Register(ProcBookingAnalytics, b.bookingAnalytics)
	d.Register(ProcUserAnalytics, b.userAnalytics)
	d.Register(ProcSearchBookings, b.searchBookings)
	d.Register(ProcSearchUsers, b.searchUsers)
	d.Register(ProcNotifications, b.notifications)
	d.Register(ProcMarkNotificationRead, b.markNotificationRead)
	d.Register(ProcUpdateBookingStatus, b.updateBookingStatus)
	d.Register(ProcUpdateUserStatus, b.updateUserStatus)
}

func (b *Backend) publish(resource, event, recordID string) {
	if b.changes == nil {
		return
	}
	b.changes.Publish(realtime.Change{
		Resource: resource,
		Event:    event,
		RecordID: recordID,
		At:       b.now(),
	})
}

func (b *Backend) dashboardStats(ctx context.Context, _ json.RawMessage) (any, error) {
	q := b.db.Queries
	result := statsResult{GeneratedAt: b.now()}

	bookingCounts, err := q.CountBookingsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count bookings: %w", err)
	}
	for _, c := range bookingCounts {
		switch c.Status {
		case "pending":
			result.Pending = c.Count
		case "confirmed":
			result.Confirmed = c.Count
		case "in_progress":
			result.InProgress = c.Count
		case "completed":
			result.Completed = c.Count
		case "cancelled":
			result.Cancelled = c.Count
		}
	}

	if result.TotalRevenue, err = q.SumCompletedRevenue(ctx); err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}

	roleCounts, err := q.CountUsersByRole(ctx, b.now().Add(-newUserWindow))
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	for _, c := range roleCounts {
		result.TotalUsers += c.Total
		result.ActiveUsers += c.Active
		switch c.Role {
		case "rider":
			result.Riders = c.Total
		case "driver":
			result.Drivers = c.Total
		case "support_worker":
			result.SupportWorkers = c.Total
		case "admin":
			result.Admins = c.Total
		}
	}

	emailCounts, err := q.CountEmailsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count emails: %w", err)
	}
	for _, c := range emailCounts {
		switch c.Status {
		case "sent":
			result.EmailsSent += c.Count
		case "delivered":
			result.EmailsSent += c.Count
			result.EmailsDelivered = c.Count
		case "failed":
			result.EmailsFailed = c.Count
		}
	}

	recentBookings, err := q.ListRecentBookings(ctx, recentListLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent bookings: %w", err)
	}
	result.RecentBookings = make([]bookingRow, 0, len(recentBookings))
	for _, booking := range recentBookings {
		result.RecentBookings = append(result.RecentBookings, toBookingRow(booking))
	}

	recentUsers, err := q.ListRecentUsers(ctx, recentListLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent users: %w", err)
	}
	result.RecentUsers = make([]userRow, 0, len(recentUsers))
	for _, user := range recentUsers {
		result.RecentUsers = append(result.RecentUsers, toUserRow(user))
	}

	return result, nil
}

func (b *Backend) bookingAnalytics(ctx context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		Days int `json:"days"`
	}
	if err := rpc.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.Days <= 0 || params.Days > maxAnalyticsDays {
		return nil, rpc.Errorf(rpc.CodeInvalid, "days must be between 1 and %d", maxAnalyticsDays)
	}

	now := b.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := today.AddDate(0, 0, -(params.Days - 1))

	totals, err := b.db.Queries.BookingTotalsByDay(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("booking totals: %w", err)
	}

	result := bookingAnalyticsResult{
		PeriodDays:  params.Days,
		GeneratedAt: now,
		Daily:       make([]dailyRow, 0, len(totals)),
	}
	for _, d := range totals {
		result.Daily = append(result.Daily, dailyRow{
			Date:      d.Day,
			Total:     d.Total,
			Completed: d.Completed,
			Cancelled: d.Cancelled,
			Revenue:   d.Revenue,
		})
	}
	return result, nil
}

func (b *Backend) userAnalytics(ctx context.Context, _ json.RawMessage) (any, error) {
	now := b.now()
	counts, err := b.db.Queries.CountUsersByRole(ctx, now.Add(-newUserWindow))
	if err != nil {
		return nil, fmt.Errorf("count users by role: %w", err)
	}

	result := userAnalyticsResult{
		GeneratedAt: now,
		Roles:       make([]roleRow, 0, len(counts)),
	}
	for _, c := range counts {
		result.Roles = append(result.Roles, roleRow{
			Role:          c.Role,
			Total:         c.Total,
			Active:        c.Active,
			NewLast30Days: c.New,
		})
	}
	return result, nil
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > maxSearchLimit {
		return maxSearchLimit
	}
	return limit
}

func (b *Backend) searchBookings(ctx context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		Term     string     `json:"term"`
		Status   string     `json:"status"`
		DateFrom *time.Time `json:"date_from"`
		DateTo   *time.Time `json:"date_to"`
		Limit    int        `json:"limit"`
	}
	if err := rpc.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	status := strings.TrimSpace(params.Status)
	if status == "all" {
		status = ""
	}
	if status != "" && !bookingStatuses[status] {
		return nil, rpc.Errorf(rpc.CodeInvalid, "unknown booking status %q", status)
	}

	arg := db.SearchBookingsParams{
		Term:   params.Term,
		Status: status,
		Limit:  clampLimit(params.Limit, defaultSearchLimit),
	}
	if params.DateFrom != nil {
		arg.From = sql.NullTime{Time: *params.DateFrom, Valid: true}
	}
	if params.DateTo != nil {
		arg.To = sql.NullTime{Time: *params.DateTo, Valid: true}
	}
	if arg.From.Valid && arg.To.Valid && arg.To.Time.Before(arg.From.Time) {
		return nil, rpc.Errorf(rpc.CodeInvalid, "date_to must not be before date_from")
	}

	bookings, total, err := b.db.Queries.SearchBookings(ctx, arg)
	if err != nil {
		return nil, err
	}

	result := searchBookingsResult{
		Results:    make([]bookingRow, 0, len(bookings)),
		TotalCount: total,
	}
	for _, booking := range bookings {
		result.Results = append(result.Results, toBookingRow(booking))
	}
	return result, nil
}

func (b *Backend) searchUsers(ctx context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		Term  string `json:"term"`
		Role  string `json:"role"`
		Limit int    `json:"limit"`
	}
	if err := rpc.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	role := strings.TrimSpace(params.Role)
	if role == "all" {
		role = ""
	}
	if role != "" && !userRoles[role] {
		return nil, rpc.Errorf(rpc.CodeInvalid, "unknown user role %q", role)
	}

	arg := db.SearchUsersParams{
		Term:  params.Term,
		Phone: NormalizePhone(params.Term, b.phoneRegion),
		Role:  role,
		Limit: clampLimit(params.Limit, defaultSearchLimit),
	}

	users, total, err := b.db.Queries.SearchUsers(ctx, arg)
	if err != nil {
		return nil, err
	}

	result := searchUsersResult{
		Results:    make([]userRow, 0, len(users)),
		TotalCount: total,
	}
	for _, user := range users {
		result.Results = append(result.Results, toUserRow(user))
	}
	return result, nil
}

// NormalizePhone returns the E.164 form of term when it is a valid phone
// number for region, and "" otherwise.
func NormalizePhone(term, region string) string {
	term = strings.TrimSpace(term)
	if term == "" || strings.ContainsAny(term, "@") {
		return ""
	}
	num, err := phonenumbers.Parse(term, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

func (b *Backend) notifications(ctx context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		Limit int `json:"limit"`
	}
	if err := rpc.DecodeParams(raw, &params); err != nil {
		return nil, err
	}

	notifications, err := b.db.Queries.ListAdminNotifications(ctx, clampLimit(params.Limit, defaultNotificationLimit))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := b.db.Queries.CountUnreadAdminNotifications(ctx)
	if err != nil {
		return nil, fmt.Errorf("count unread notifications: %w", err)
	}

	result := notificationsResult{
		Notifications: make([]notificationRow, 0, len(notifications)),
		UnreadCount:   unread,
	}
	for _, n := range notifications {
		result.Notifications = append(result.Notifications, toNotificationRow(n))
	}
	return result, nil
}

func (b *Backend) markNotificationRead(ctx context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		NotificationID string `json:"notification_id"`
	}
	if err := rpc.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.NotificationID) == "" {
		return nil, rpc.Errorf(rpc.CodeInvalid, "notification_id is required")
	}

	if _, err := b.db.Queries.MarkAdminNotificationRead(ctx, params.NotificationID, b.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rpc.Errorf(rpc.CodeNotFound, "notification not found")
		}
		return nil, fmt.Errorf("mark notification read: %w", err)
	}

	b.publish(realtime.ResourceNotifications, realtime.EventUpdate, params.NotificationID)
	return mutationResult{Success: true}, nil
}

func (b *Backend) updateBookingStatus(ctx context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		BookingID string `json:"booking_id"`
		Status    string `json:"status"`
	}
	if err := rpc.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.BookingID) == "" {
		return nil, rpc.Errorf(rpc.CodeInvalid, "booking_id is required")
	}
	if !bookingStatuses[params.Status] {
		return nil, rpc.Errorf(rpc.CodeInvalid, "unknown booking status %q", params.Status)
	}

	logger := log.Ctx(ctx).With().Str("booking_id", params.BookingID).Str("status", params.Status).Logger()
	now := b.now()
	notificationID := ""
	changed := false

	err := b.db.RunInTx(ctx, func(tx *db.DB) error {
		existing, err := tx.Queries.GetBooking(ctx, params.BookingID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return rpc.Errorf(rpc.CodeNotFound, "booking not found")
			}
			return fmt.Errorf("load booking: %w", err)
		}
		if existing.Status == params.Status {
			return nil
		}
		if existing.Status == "completed" || existing.Status == "cancelled" {
			return rpc.Errorf(rpc.CodeInvalid, "booking is already %s", existing.Status)
		}

		booking, err := tx.Queries.UpdateBookingStatus(ctx, params.BookingID, params.Status, now)
		if err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		changed = true

		if params.Status == "cancelled" {
			notificationID = uuid.NewString()
			err := tx.Queries.CreateAdminNotification(ctx, db.CreateAdminNotificationParams{
				ID:        notificationID,
				Type:      "booking_cancelled",
				Title:     "Booking cancelled",
				Message:   fmt.Sprintf("Booking from %s to %s was cancelled.", booking.PickupLocation, booking.DropoffLocation),
				Priority:  "high",
				CreatedAt: now,
			})
			if err != nil {
				return fmt.Errorf("create cancellation notification: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !changed {
		logger.Debug().Msg("Booking already has requested status")
		return mutationResult{Success: true}, nil
	}

	logger.Info().Msg("Booking status updated")
	b.publish(realtime.ResourceBookings, realtime.EventUpdate, params.BookingID)
	if notificationID != "" {
		b.publish(realtime.ResourceNotifications, realtime.EventInsert, notificationID)
	}
	return mutationResult{Success: true}, nil
}

func (b *Backend) updateUserStatus(ctx context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		UserID   string `json:"user_id"`
		IsActive *bool  `json:"is_active"`
	}
	if err := rpc.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.UserID) == "" {
		return nil, rpc.Errorf(rpc.CodeInvalid, "user_id is required")
	}
	if params.IsActive == nil {
		return nil, rpc.Errorf(rpc.CodeInvalid, "is_active is required")
	}

	logger := log.Ctx(ctx).With().Str("user_id", params.UserID).Bool("is_active", *params.IsActive).Logger()
	changed := false

	err := b.db.RunInTx(ctx, func(tx *db.DB) error {
		existing, err := tx.Queries.GetUser(ctx, params.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return rpc.Errorf(rpc.CodeNotFound, "user not found")
			}
			return fmt.Errorf("load user: %w", err)
		}
		if existing.IsActive == *params.IsActive {
			return nil
		}
		if _, err := tx.Queries.UpdateUserActive(ctx, params.UserID, *params.IsActive, b.now()); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		logger.Debug().Msg("User already has requested status")
		return mutationResult{Success: true}, nil
	}

	logger.Info().Msg("User status updated")
	b.publish(realtime.ResourceUsers, realtime.EventUpdate, params.UserID)
	return mutationResult{Success: true}, nil
}
