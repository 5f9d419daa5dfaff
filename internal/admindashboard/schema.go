package admindashboard

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrInvalidPayload wraps every schema violation found in a remote response.
var ErrInvalidPayload = errors.New("invalid payload")

var knownBookingStatuses = map[string]bool{
	"pending":     true,
	"confirmed":   true,
	"in_progress": true,
	"completed":   true,
	"cancelled":   true,
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}

func nonNegative(field string, values ...int64) error {
	for _, v := range values {
		if v < 0 {
			return invalid("%s must not be negative", field)
		}
	}
	return nil
}

type bookingPayload struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	RiderName       string    `json:"rider_name"`
	RiderEmail      string    `json:"rider_email"`
	PickupLocation  string    `json:"pickup_location"`
	DropoffLocation string    `json:"dropoff_location"`
	PickupTime      time.Time `json:"pickup_time"`
	Status          string    `json:"status"`
	Price           float64   `json:"price"`
	CreatedAt       time.Time `json:"created_at"`
}

func (p bookingPayload) decode() (BookingSummary, error) {
	if p.ID == "" {
		return BookingSummary{}, invalid("booking id is required")
	}
	if !knownBookingStatuses[p.Status] {
		return BookingSummary{}, invalid("booking %s has unknown status %q", p.ID, p.Status)
	}
	if p.Price < 0 {
		return BookingSummary{}, invalid("booking %s has negative price", p.ID)
	}
	return BookingSummary{
		ID:              p.ID,
		UserID:          p.UserID,
		RiderName:       p.RiderName,
		RiderEmail:      p.RiderEmail,
		PickupLocation:  p.PickupLocation,
		DropoffLocation: p.DropoffLocation,
		PickupTime:      p.PickupTime,
		Status:          p.Status,
		Price:           p.Price,
		CreatedAt:       p.CreatedAt,
	}, nil
}

func decodeBookings(payloads []bookingPayload) ([]BookingSummary, error) {
	out := make([]BookingSummary, 0, len(payloads))
	for _, p := range payloads {
		b, err := p.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// decodeRecentBookings keeps the rows that decode and drops the rest, so one
// row the client does not understand cannot hide the whole dashboard.
func decodeRecentBookings(payloads []bookingPayload) []BookingSummary {
	out := make([]BookingSummary, 0, len(payloads))
	for _, p := range payloads {
		b, err := p.decode()
		if err != nil {
			log.Warn().Err(err).Str("booking_id", p.ID).Msg("Skipping recent booking")
			continue
		}
		out = append(out, b)
	}
	return out
}

type userPayload struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (p userPayload) decode() (UserSummary, error) {
	if p.ID == "" {
		return UserSummary{}, invalid("user id is required")
	}
	return UserSummary{
		ID:        p.ID,
		Email:     p.Email,
		FullName:  p.FullName,
		Phone:     p.Phone,
		Role:      p.Role,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
	}, nil
}

func decodeUsers(payloads []userPayload) ([]UserSummary, error) {
	out := make([]UserSummary, 0, len(payloads))
	for _, p := range payloads {
		u, err := p.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

type statisticsPayload struct {
	Pending         int64            `json:"pending"`
	Confirmed       int64            `json:"confirmed"`
	InProgress      int64            `json:"in_progress"`
	Completed       int64            `json:"completed"`
	Cancelled       int64            `json:"cancelled"`
	TotalRevenue    float64          `json:"total_revenue"`
	TotalUsers      int64            `json:"total_users"`
	ActiveUsers     int64            `json:"active_users"`
	Riders          int64            `json:"riders"`
	Drivers         int64            `json:"drivers"`
	SupportWorkers  int64            `json:"support_workers"`
	Admins          int64            `json:"admins"`
	EmailsSent      int64            `json:"emails_sent"`
	EmailsDelivered int64            `json:"emails_delivered"`
	EmailsFailed    int64            `json:"emails_failed"`
	RecentBookings  []bookingPayload `json:"recent_bookings"`
	RecentUsers     []userPayload    `json:"recent_users"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

func (p statisticsPayload) decode() (*DashboardStatistics, error) {
	if err := nonNegative("booking counts", p.Pending, p.Confirmed, p.InProgress, p.Completed, p.Cancelled); err != nil {
		return nil, err
	}
	if err := nonNegative("user counts", p.TotalUsers, p.ActiveUsers, p.Riders, p.Drivers, p.SupportWorkers, p.Admins); err != nil {
		return nil, err
	}
	if err := nonNegative("email counts", p.EmailsSent, p.EmailsDelivered, p.EmailsFailed); err != nil {
		return nil, err
	}
	if p.TotalRevenue < 0 {
		return nil, invalid("total_revenue must not be negative")
	}
	if p.ActiveUsers > p.TotalUsers {
		return nil, invalid("active_users exceeds total_users")
	}

	recentBookings := decodeRecentBookings(p.RecentBookings)
	recentUsers, err := decodeUsers(p.RecentUsers)
	if err != nil {
		return nil, err
	}

	return &DashboardStatistics{
		Bookings: BookingCounts{
			Pending:    p.Pending,
			Confirmed:  p.Confirmed,
			InProgress: p.InProgress,
			Completed:  p.Completed,
			Cancelled:  p.Cancelled,
		},
		Revenue: p.TotalRevenue,
		Users: UserCounts{
			Total:          p.TotalUsers,
			Active:         p.ActiveUsers,
			Riders:         p.Riders,
			Drivers:        p.Drivers,
			SupportWorkers: p.SupportWorkers,
			Admins:         p.Admins,
		},
		Emails: EmailCounts{
			Sent:      p.EmailsSent,
			Delivered: p.EmailsDelivered,
			Failed:    p.EmailsFailed,
		},
		RecentBookings: recentBookings,
		RecentUsers:    recentUsers,
		GeneratedAt:    p.GeneratedAt,
	}, nil
}

type dailyPayload struct {
	Date      string  `json:"date"`
	Total     int64   `json:"total"`
	Completed int64   `json:"completed"`
	Cancelled int64   `json:"cancelled"`
	Revenue   float64 `json:"revenue"`
}

type bookingAnalyticsPayload struct {
	PeriodDays  int            `json:"period_days"`
	GeneratedAt time.Time      `json:"generated_at"`
	Daily       []dailyPayload `json:"daily"`
}

func (p bookingAnalyticsPayload) decode(requestedDays int) (*BookingAnalytics, error) {
	if p.PeriodDays <= 0 {
		return nil, invalid("period_days must be positive")
	}
	if p.PeriodDays != requestedDays {
		return nil, invalid("period_days %d does not match requested %d", p.PeriodDays, requestedDays)
	}

	daily := make([]DailyBookings, 0, len(p.Daily))
	var prev time.Time
	for _, d := range p.Daily {
		day, err := time.Parse(time.DateOnly, d.Date)
		if err != nil {
			return nil, invalid("daily date %q is not YYYY-MM-DD", d.Date)
		}
		if !prev.IsZero() && !day.After(prev) {
			return nil, invalid("daily series is not in ascending date order at %s", d.Date)
		}
		if err := nonNegative("daily counts", d.Total, d.Completed, d.Cancelled); err != nil {
			return nil, err
		}
		if d.Completed+d.Cancelled > d.Total {
			return nil, invalid("daily counts for %s exceed the total", d.Date)
		}
		prev = day
		daily = append(daily, DailyBookings{
			Date:      day,
			Total:     d.Total,
			Completed: d.Completed,
			Cancelled: d.Cancelled,
			Revenue:   d.Revenue,
		})
	}

	return &BookingAnalytics{
		PeriodDays:  p.PeriodDays,
		GeneratedAt: p.GeneratedAt,
		Daily:       daily,
	}, nil
}

type roleStatsPayload struct {
	Role          string `json:"role"`
	Total         int64  `json:"total"`
	Active        int64  `json:"active"`
	NewLast30Days int64  `json:"new_last_30_days"`
}

type userAnalyticsPayload struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Roles       []roleStatsPayload `json:"roles"`
}

func (p userAnalyticsPayload) decode() (*UserAnalytics, error) {
	roles := make([]RoleStats, 0, len(p.Roles))
	for _, r := range p.Roles {
		if r.Role == "" {
			return nil, invalid("role is required")
		}
		if err := nonNegative("role counts", r.Total, r.Active, r.NewLast30Days); err != nil {
			return nil, err
		}
		if r.Active > r.Total || r.NewLast30Days > r.Total {
			return nil, invalid("counts for role %s exceed its total", r.Role)
		}
		roles = append(roles, RoleStats(r))
	}
	return &UserAnalytics{GeneratedAt: p.GeneratedAt, Roles: roles}, nil
}

type bookingSearchPayload struct {
	Results    []bookingPayload `json:"results"`
	TotalCount int64            `json:"total_count"`
}

func (p bookingSearchPayload) decode(params BookingSearchParams) (*BookingResults, error) {
	bookings, err := decodeBookings(p.Results)
	if err != nil {
		return nil, err
	}
	if p.TotalCount < int64(len(bookings)) {
		return nil, invalid("total_count %d is less than the %d results returned", p.TotalCount, len(bookings))
	}
	return &BookingResults{Params: params, Bookings: bookings, TotalCount: p.TotalCount}, nil
}

type userSearchPayload struct {
	Results    []userPayload `json:"results"`
	TotalCount int64         `json:"total_count"`
}

func (p userSearchPayload) decode(params UserSearchParams) (*UserResults, error) {
	users, err := decodeUsers(p.Results)
	if err != nil {
		return nil, err
	}
	if p.TotalCount < int64(len(users)) {
		return nil, invalid("total_count %d is less than the %d results returned", p.TotalCount, len(users))
	}
	return &UserResults{Params: params, Users: users, TotalCount: p.TotalCount}, nil
}

type notificationPayload struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Priority  string    `json:"priority"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type notificationFeedPayload struct {
	Notifications []notificationPayload `json:"notifications"`
	UnreadCount   int64                 `json:"unread_count"`
}

func (p notificationFeedPayload) decode() (*NotificationFeed, error) {
	if p.UnreadCount < 0 {
		return nil, invalid("unread_count must not be negative")
	}
	notifications := make([]Notification, 0, len(p.Notifications))
	for _, n := range p.Notifications {
		if n.ID == "" {
			return nil, invalid("notification id is required")
		}
		notifications = append(notifications, Notification(n))
	}
	return &NotificationFeed{Notifications: notifications, UnreadCount: p.UnreadCount}, nil
}

type mutationPayload struct {
	Success bool `json:"success"`
}

func (p mutationPayload) check(procedure string) error {
	if !p.Success {
		return invalid("%s did not report success", procedure)
	}
	return nil
}
