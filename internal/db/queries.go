package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the statements used by the backend procedures.
type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

type User struct {
	ID        string
	Email     string
	FullName  string
	PhoneE164 sql.NullString
	Role      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Booking struct {
	ID              string
	UserID          string
	PickupLocation  string
	DropoffLocation string
	PickupTime      time.Time
	Status          string
	Price           float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BookingWithRider is a booking joined with the user who made it.
type BookingWithRider struct {
	Booking
	RiderName  string
	RiderEmail string
}

type AdminNotification struct {
	ID        string
	Type      string
	Title     string
	Message   string
	Priority  string
	IsRead    bool
	CreatedAt time.Time
	ReadAt    sql.NullTime
}

type EmailLog struct {
	ID        string
	Recipient string
	Template  string
	Status    string
	CreatedAt time.Time
}

type StatusCount struct {
	Status string
	Count  int64
}

type RoleCount struct {
	Role   string
	Total  int64
	Active int64
	New    int64
}

type DailyBookingTotals struct {
	Day       string
	Total     int64
	Completed int64
	Cancelled int64
	Revenue   float64
}

const userColumns = `id, email, full_name, phone_e164, role, is_active, created_at, updated_at`

const bookingColumns = `b.id, b.user_id, b.pickup_location, b.dropoff_location, b.pickup_time, b.status, b.price, b.created_at, b.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PhoneE164, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func scanBooking(row rowScanner) (Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.UserID, &b.PickupLocation, &b.DropoffLocation, &b.PickupTime, &b.Status, &b.Price, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func scanBookingWithRider(row rowScanner) (BookingWithRider, error) {
	var b BookingWithRider
	err := row.Scan(&b.ID, &b.UserID, &b.PickupLocation, &b.DropoffLocation, &b.PickupTime, &b.Status, &b.Price, &b.CreatedAt, &b.UpdatedAt, &b.RiderName, &b.RiderEmail)
	return b, err
}

func scanNotification(row rowScanner) (AdminNotification, error) {
	var n AdminNotification
	err := row.Scan(&n.ID, &n.Type, &n.Title, &n.Message, &n.Priority, &n.IsRead, &n.CreatedAt, &n.ReadAt)
	return n, err
}

func (q *Queries) countByStatus(ctx context.Context, query string, args ...any) ([]StatusCount, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (q *Queries) CountBookingsByStatus(ctx context.Context) ([]StatusCount, error) {
	return q.countByStatus(ctx, `SELECT status, COUNT(*) FROM bookings GROUP BY status`)
}

func (q *Queries) CountEmailsByStatus(ctx context.Context) ([]StatusCount, error) {
	return q.countByStatus(ctx, `SELECT status, COUNT(*) FROM email_logs GROUP BY status`)
}

// SumCompletedRevenue totals the price of completed bookings.
func (q *Queries) SumCompletedRevenue(ctx context.Context) (float64, error) {
	var total float64
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(price), 0) FROM bookings WHERE status = 'completed'`,
	).Scan(&total)
	return total, err
}

// CountUsersByRole reports totals per role, with New counting users created
// at or after since.
func (q *Queries) CountUsersByRole(ctx context.Context, since time.Time) ([]RoleCount, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT role,
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN is_active = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN julianday(created_at) >= julianday(?) THEN 1 ELSE 0 END), 0)
		FROM users
		GROUP BY role
		ORDER BY role`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []RoleCount
	for rows.Next() {
		var c RoleCount
		if err := rows.Scan(&c.Role, &c.Total, &c.Active, &c.New); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (q *Queries) ListRecentBookings(ctx context.Context, limit int) ([]BookingWithRider, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+bookingColumns+`, u.full_name, u.email
		FROM bookings b
		JOIN users u ON u.id = b.user_id
		ORDER BY b.created_at DESC, b.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookingsWithRider(rows)
}

func (q *Queries) ListRecentUsers(ctx context.Context, limit int) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

// BookingTotalsByDay groups bookings created at or after since by UTC day.
func (q *Queries) BookingTotalsByDay(ctx context.Context, since time.Time) ([]DailyBookingTotals, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT date(created_at) AS day,
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN price ELSE 0 END), 0)
		FROM bookings
		WHERE julianday(created_at) >= julianday(?)
		GROUP BY day
		ORDER BY day`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []DailyBookingTotals
	for rows.Next() {
		var d DailyBookingTotals
		if err := rows.Scan(&d.Day, &d.Total, &d.Completed, &d.Cancelled, &d.Revenue); err != nil {
			return nil, err
		}
		totals = append(totals, d)
	}
	return totals, rows.Err()
}

type SearchBookingsParams struct {
	Term   string
	Status string
	From   sql.NullTime
	To     sql.NullTime
	Limit  int
}

// SearchBookings matches the term against booking id, locations and rider
// name or email. It returns the page of matches and the total match count.
func (q *Queries) SearchBookings(ctx context.Context, arg SearchBookingsParams) ([]BookingWithRider, int64, error) {
	var (
		where []string
		args  []any
	)
	if term := strings.TrimSpace(arg.Term); term != "" {
		where = append(where, `(instr(lower(b.id), lower(?)) > 0
			OR instr(lower(b.pickup_location), lower(?)) > 0
			OR instr(lower(b.dropoff_location), lower(?)) > 0
			OR instr(lower(u.full_name), lower(?)) > 0
			OR instr(lower(u.email), lower(?)) > 0)`)
		args = append(args, term, term, term, term, term)
	}
	if arg.Status != "" {
		where = append(where, `b.status = ?`)
		args = append(args, arg.Status)
	}
	if arg.From.Valid {
		where = append(where, `julianday(b.pickup_time) >= julianday(?)`)
		args = append(args, arg.From.Time.UTC())
	}
	if arg.To.Valid {
		where = append(where, `julianday(b.pickup_time) <= julianday(?)`)
		args = append(args, arg.To.Time.UTC())
	}

	from := ` FROM bookings b JOIN users u ON u.id = b.user_id`
	if len(where) > 0 {
		from += ` WHERE ` + strings.Join(where, " AND ")
	}

	var total int64
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT `+bookingColumns+`, u.full_name, u.email`+from+` ORDER BY b.pickup_time DESC, b.id LIMIT ?`,
		append(args, arg.Limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	bookings, err := collectBookingsWithRider(rows)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

type SearchUsersParams struct {
	Term  string
	Phone string
	Role  string
	Limit int
}

// SearchUsers matches the term against name and email. When Phone is set it
// is matched exactly against the stored E.164 number instead.
func (q *Queries) SearchUsers(ctx context.Context, arg SearchUsersParams) ([]User, int64, error) {
	var (
		where []string
		args  []any
	)
	switch {
	case arg.Phone != "":
		where = append(where, `phone_e164 = ?`)
		args = append(args, arg.Phone)
	case strings.TrimSpace(arg.Term) != "":
		term := strings.TrimSpace(arg.Term)
		where = append(where, `(instr(lower(full_name), lower(?)) > 0 OR instr(lower(email), lower(?)) > 0)`)
		args = append(args, term, term)
	}
	if arg.Role != "" {
		where = append(where, `role = ?`)
		args = append(args, arg.Role)
	}

	from := ` FROM users`
	if len(where) > 0 {
		from += ` WHERE ` + strings.Join(where, " AND ")
	}

	var total int64
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT `+userColumns+from+` ORDER BY full_name, id LIMIT ?`,
		append(args, arg.Limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users, err := collectUsers(rows)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (q *Queries) ListAdminNotifications(ctx context.Context, limit int) ([]AdminNotification, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, type, title, message, priority, is_read, created_at, read_at
		FROM admin_notifications
		ORDER BY created_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []AdminNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (q *Queries) CountUnreadAdminNotifications(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_notifications WHERE is_read = 0`).Scan(&count)
	return count, err
}

// MarkAdminNotificationRead returns sql.ErrNoRows when the id is unknown.
// Marking an already read notification keeps its original read time.
func (q *Queries) MarkAdminNotificationRead(ctx context.Context, id string, at time.Time) (AdminNotification, error) {
	result, err := q.db.ExecContext(ctx, `
		UPDATE admin_notifications
		SET is_read = 1, read_at = COALESCE(read_at, ?)
		WHERE id = ?`, at.UTC(), id)
	if err := requireAffected(result, err); err != nil {
		return AdminNotification{}, err
	}
	return q.GetAdminNotification(ctx, id)
}

func (q *Queries) GetAdminNotification(ctx context.Context, id string) (AdminNotification, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, type, title, message, priority, is_read, created_at, read_at
		FROM admin_notifications
		WHERE id = ?`, id)
	return scanNotification(row)
}

type CreateAdminNotificationParams struct {
	ID        string
	Type      string
	Title     string
	Message   string
	Priority  string
	CreatedAt time.Time
}

func (q *Queries) CreateAdminNotification(ctx context.Context, arg CreateAdminNotificationParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO admin_notifications (id, type, title, message, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		arg.ID, arg.Type, arg.Title, arg.Message, arg.Priority, arg.CreatedAt.UTC())
	return err
}

// UpdateBookingStatus returns sql.ErrNoRows when the id is unknown.
func (q *Queries) UpdateBookingStatus(ctx context.Context, id, status string, at time.Time) (Booking, error) {
	result, err := q.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?, updated_at = ?
		WHERE id = ?`, status, at.UTC(), id)
	if err := requireAffected(result, err); err != nil {
		return Booking{}, err
	}
	return q.GetBooking(ctx, id)
}

func (q *Queries) GetBooking(ctx context.Context, id string) (Booking, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ?`, id)
	return scanBooking(row)
}

// UpdateUserActive returns sql.ErrNoRows when the id is unknown.
func (q *Queries) UpdateUserActive(ctx context.Context, id string, active bool, at time.Time) (User, error) {
	result, err := q.db.ExecContext(ctx, `
		UPDATE users
		SET is_active = ?, updated_at = ?
		WHERE id = ?`, active, at.UTC(), id)
	if err := requireAffected(result, err); err != nil {
		return User{}, err
	}
	return q.GetUser(ctx, id)
}

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (q *Queries) CreateUser(ctx context.Context, u User) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.FullName, u.PhoneE164, u.Role, u.IsActive, u.CreatedAt.UTC(), u.UpdatedAt.UTC())
	return err
}

func (q *Queries) CreateBooking(ctx context.Context, b Booking) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO bookings (id, user_id, pickup_location, dropoff_location, pickup_time, status, price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.PickupLocation, b.DropoffLocation, b.PickupTime.UTC(), b.Status, b.Price, b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	return err
}

func (q *Queries) CreateEmailLog(ctx context.Context, e EmailLog) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO email_logs (id, recipient, template, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Recipient, e.Template, e.Status, e.CreatedAt.UTC())
	return err
}

func collectUsers(rows *sql.Rows) ([]User, error) {
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func collectBookingsWithRider(rows *sql.Rows) ([]BookingWithRider, error) {
	var bookings []BookingWithRider
	for rows.Next() {
		b, err := scanBookingWithRider(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func requireAffected(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
