// Package admindashboard holds the admin dashboard state: statistics,
// analytics, the search slot and the notification feed, kept fresh by
// explicit loads, change notifications and an optional refresh timer.
package admindashboard

import (
	"time"
)

type BookingCounts struct {
	Pending    int64 `json:"pending"`
	Confirmed  int64 `json:"confirmed"`
	InProgress int64 `json:"in_progress"`
	Completed  int64 `json:"completed"`
	Cancelled  int64 `json:"cancelled"`
}

type UserCounts struct {
	Total          int64 `json:"total"`
	Active         int64 `json:"active"`
	Riders         int64 `json:"riders"`
	Drivers        int64 `json:"drivers"`
	SupportWorkers int64 `json:"support_workers"`
	Admins         int64 `json:"admins"`
}

type EmailCounts struct {
	Sent      int64 `json:"sent"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
}

type BookingSummary struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	RiderName       string    `json:"rider_name,omitempty"`
	RiderEmail      string    `json:"rider_email,omitempty"`
	PickupLocation  string    `json:"pickup_location"`
	DropoffLocation string    `json:"dropoff_location"`
	PickupTime      time.Time `json:"pickup_time"`
	Status          string    `json:"status"`
	Price           float64   `json:"price"`
	CreatedAt       time.Time `json:"created_at"`
}

type UserSummary struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// DashboardStatistics is replaced wholesale on every successful load.
type DashboardStatistics struct {
	Bookings       BookingCounts    `json:"bookings"`
	Revenue        float64          `json:"revenue"`
	Users          UserCounts       `json:"users"`
	Emails         EmailCounts      `json:"emails"`
	RecentBookings []BookingSummary `json:"recent_bookings"`
	RecentUsers    []UserSummary    `json:"recent_users"`
	GeneratedAt    time.Time        `json:"generated_at"`
}

type DailyBookings struct {
	Date      time.Time `json:"date"`
	Total     int64     `json:"total"`
	Completed int64     `json:"completed"`
	Cancelled int64     `json:"cancelled"`
	Revenue   float64   `json:"revenue"`
}

type BookingAnalytics struct {
	PeriodDays  int             `json:"period_days"`
	GeneratedAt time.Time       `json:"generated_at"`
	Daily       []DailyBookings `json:"daily"`
}

type RoleStats struct {
	Role          string `json:"role"`
	Total         int64  `json:"total"`
	Active        int64  `json:"active"`
	NewLast30Days int64  `json:"new_last_30_days"`
}

type UserAnalytics struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Roles       []RoleStats `json:"roles"`
}

type BookingSearchParams struct {
	Term     string     `json:"term"`
	Status   string     `json:"status,omitempty"`
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
	Limit    int        `json:"limit"`
}

type UserSearchParams struct {
	Term  string `json:"term"`
	Role  string `json:"role,omitempty"`
	Limit int    `json:"limit"`
}

const (
	SearchKindBookings = "bookings"
	SearchKindUsers    = "users"
)

// SearchResult is the single search slot. It is either *BookingResults or
// *UserResults.
type SearchResult interface {
	Kind() string
	Total() int64
	isSearchResult()
}

type BookingResults struct {
	Params     BookingSearchParams `json:"params"`
	Bookings   []BookingSummary    `json:"bookings"`
	TotalCount int64               `json:"total_count"`
}

func (*BookingResults) Kind() string    { return SearchKindBookings }
func (r *BookingResults) Total() int64  { return r.TotalCount }
func (*BookingResults) isSearchResult() {}

type UserResults struct {
	Params     UserSearchParams `json:"params"`
	Users      []UserSummary    `json:"users"`
	TotalCount int64            `json:"total_count"`
}

func (*UserResults) Kind() string    { return SearchKindUsers }
func (r *UserResults) Total() int64  { return r.TotalCount }
func (*UserResults) isSearchResult() {}

type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Priority  string    `json:"priority"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type NotificationFeed struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int64          `json:"unread_count"`
}

// Overview is the compact summary behind the header badge.
type Overview struct {
	TotalBookings       int64     `json:"total_bookings"`
	PendingBookings     int64     `json:"pending_bookings"`
	Revenue             float64   `json:"revenue"`
	ActiveUsers         int64     `json:"active_users"`
	UnreadNotifications int64     `json:"unread_notifications"`
	GeneratedAt         time.Time `json:"generated_at"`
}

// State is a point-in-time copy of the store. The values it points to are
// never modified after a load publishes them.
type State struct {
	Statistics       *DashboardStatistics
	BookingAnalytics *BookingAnalytics
	UserAnalytics    *UserAnalytics
	Search           SearchResult
	Notifications    *NotificationFeed
	Loading          bool
	Error            string
	LastUpdated      time.Time
	AutoRefresh      bool
}
