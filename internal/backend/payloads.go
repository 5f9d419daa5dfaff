package backend

import (
	"time"

	"github.com/ablego/ablego/internal/db"
)

// JSON shapes returned by the procedures. The dashboard decodes its own view
// of these; nothing outside this package imports them.

type bookingRow struct {
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

type userRow struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type statsResult struct {
	Pending         int64        `json:"pending"`
	Confirmed       int64        `json:"confirmed"`
	InProgress      int64        `json:"in_progress"`
	Completed       int64        `json:"completed"`
	Cancelled       int64        `json:"cancelled"`
	TotalRevenue    float64      `json:"total_revenue"`
	TotalUsers      int64        `json:"total_users"`
	ActiveUsers     int64        `json:"active_users"`
	Riders          int64        `json:"riders"`
	Drivers         int64        `json:"drivers"`
	SupportWorkers  int64        `json:"support_workers"`
	Admins          int64        `json:"admins"`
	EmailsSent      int64        `json:"emails_sent"`
	EmailsDelivered int64        `json:"emails_delivered"`
	EmailsFailed    int64        `json:"emails_failed"`
	RecentBookings  []bookingRow `json:"recent_bookings"`
	RecentUsers     []userRow    `json:"recent_users"`
	GeneratedAt     time.Time    `json:"generated_at"`
}

type dailyRow struct {
	Date      string  `json:"date"`
	Total     int64   `json:"total"`
	Completed int64   `json:"completed"`
	Cancelled int64   `json:"cancelled"`
	Revenue   float64 `json:"revenue"`
}

type bookingAnalyticsResult struct {
	PeriodDays  int        `json:"period_days"`
	GeneratedAt time.Time  `json:"generated_at"`
	Daily       []dailyRow `json:"daily"`
}

type roleRow struct {
	Role          string `json:"role"`
	Total         int64  `json:"total"`
	Active        int64  `json:"active"`
	NewLast30Days int64  `json:"new_last_30_days"`
}

type userAnalyticsResult struct {
	GeneratedAt time.Time `json:"generated_at"`
	Roles       []roleRow `json:"roles"`
}

type searchBookingsResult struct {
	Results    []bookingRow `json:"results"`
	TotalCount int64        `json:"total_count"`
}

type searchUsersResult struct {
	Results    []userRow `json:"results"`
	TotalCount int64     `json:"total_count"`
}

type notificationRow struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Priority  string    `json:"priority"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type notificationsResult struct {
	Notifications []notificationRow `json:"notifications"`
	UnreadCount   int64             `json:"unread_count"`
}

type mutationResult struct {
	Success bool `json:"success"`
}

func toBookingRow(b db.BookingWithRider) bookingRow {
	return bookingRow{
		ID:              b.ID,
		UserID:          b.UserID,
		RiderName:       b.RiderName,
		RiderEmail:      b.RiderEmail,
		PickupLocation:  b.PickupLocation,
		DropoffLocation: b.DropoffLocation,
		PickupTime:      b.PickupTime.UTC(),
		Status:          b.Status,
		Price:           b.Price,
		CreatedAt:       b.CreatedAt.UTC(),
	}
}

func toUserRow(u db.User) userRow {
	return userRow{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Phone:     u.PhoneE164.String,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt.UTC(),
	}
}

func toNotificationRow(n db.AdminNotification) notificationRow {
	return notificationRow{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Priority:  n.Priority,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt.UTC(),
	}
}
