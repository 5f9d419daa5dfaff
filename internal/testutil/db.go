package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ablego/ablego/internal/db"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// InsertUser creates a user and returns its id. phone may be empty.
func InsertUser(t *testing.T, database *db.DB, name, email, phone, role string, active bool, createdAt time.Time) string {
	t.Helper()

	id := uuid.NewString()
	err := database.Queries.CreateUser(context.Background(), db.User{
		ID:        id,
		Email:     email,
		FullName:  name,
		PhoneE164: sql.NullString{String: phone, Valid: phone != ""},
		Role:      role,
		IsActive:  active,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("insert user %s: %v", email, err)
	}
	return id
}

// InsertBooking creates a booking for userID and returns its id.
func InsertBooking(t *testing.T, database *db.DB, userID, pickup, dropoff, status string, price float64, pickupTime, createdAt time.Time) string {
	t.Helper()

	id := uuid.NewString()
	err := database.Queries.CreateBooking(context.Background(), db.Booking{
		ID:              id,
		UserID:          userID,
		PickupLocation:  pickup,
		DropoffLocation: dropoff,
		PickupTime:      pickupTime,
		Status:          status,
		Price:           price,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	})
	if err != nil {
		t.Fatalf("insert booking: %v", err)
	}
	return id
}

// InsertNotification creates an unread admin notification and returns its id.
func InsertNotification(t *testing.T, database *db.DB, title, priority string, createdAt time.Time) string {
	t.Helper()

	id := uuid.NewString()
	err := database.Queries.CreateAdminNotification(context.Background(), db.CreateAdminNotificationParams{
		ID:        id,
		Type:      "system",
		Title:     title,
		Message:   title,
		Priority:  priority,
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("insert notification: %v", err)
	}
	return id
}

// InsertEmailLog records an email with the given delivery status.
func InsertEmailLog(t *testing.T, database *db.DB, recipient, status string, createdAt time.Time) {
	t.Helper()

	err := database.Queries.CreateEmailLog(context.Background(), db.EmailLog{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Template:  "booking_confirmation",
		Status:    status,
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("insert email log: %v", err)
	}
}
