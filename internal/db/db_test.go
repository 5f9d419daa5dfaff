package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ablego.db")
	database, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database, path
}

func countUsers(t *testing.T, database *DB) int {
	t.Helper()
	var n int
	if err := database.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		t.Fatalf("count users: %v", err)
	}
	return n
}

func TestEnsureForeignKeysEnabledDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "data/ablego.db", want: "data/ablego.db?_fk=1"},
		{in: "data/ablego.db?cache=shared", want: "data/ablego.db?cache=shared&_fk=1"},
		{in: "data/ablego.db?_fk=0", want: "data/ablego.db?_fk=0"},
	}
	for _, tt := range tests {
		if got := ensureForeignKeysEnabledDSN(tt.in); got != tt.want {
			t.Errorf("ensureForeignKeysEnabledDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewAppliesMigrations(t *testing.T) {
	database, path := newTestDB(t)
	if err := database.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	m, err := OpenMigrator(path)
	if err != nil {
		t.Fatalf("OpenMigrator: %v", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version != 1 || dirty {
		t.Fatalf("expected clean version 1, got %d dirty=%v", version, dirty)
	}
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	database, _ := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	errAbort := errors.New("abort")

	err := database.RunInTx(ctx, func(tx *DB) error {
		if err := tx.Queries.CreateUser(ctx, User{
			ID:        "user-1",
			Email:     "ada@example.com",
			FullName:  "Ada Rider",
			Role:      "rider",
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("expected abort error, got %v", err)
	}
	if n := countUsers(t, database); n != 0 {
		t.Fatalf("expected rollback to leave no users, got %d", n)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	database, _ := newTestDB(t)
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	err := database.Queries.CreateBooking(context.Background(), Booking{
		ID:              "booking-1",
		UserID:          "missing-user",
		PickupLocation:  "Leeds Station",
		DropoffLocation: "Roundhay Park",
		PickupTime:      now,
		Status:          "pending",
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err == nil {
		t.Fatal("expected a foreign key violation")
	}
}
