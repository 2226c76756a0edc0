package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// foreignKeyViolation is the SQLSTATE for a missing referenced row.
const foreignKeyViolation = "23503"

const reminderColumns = `id, payment_id, to_char(due_date, 'YYYY-MM-DD'), to_char(due_time, 'HH24:MI'),
	message, notification_id, created_at, updated_at`

// PostgresStore keeps payments and reminders in PostgreSQL.
type PostgresStore struct {
	db  *pgxpool.Pool
	log logrus.FieldLogger
}

// OpenPostgres connects to dsn, applies migrations and returns a store.
func OpenPostgres(ctx context.Context, dsn string, log logrus.FieldLogger) (*PostgresStore, error) {
	if err := Migrate(dsn, log); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	cfg.HealthCheckPeriod = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info("Connection to database successful")

	return NewPostgresStore(pool, log), nil
}

// NewPostgresStore wraps an existing pool. The schema must already exist.
func NewPostgresStore(db *pgxpool.Pool, log logrus.FieldLogger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.db.Close()
	s.log.Info("Connection pool is closed")
}

// CreatePayment adds a new payment.
func (s *PostgresStore) CreatePayment(ctx context.Context, f PaymentFields) (*Payment, error) {
	f, err := normalizePayment(f)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO payments (title, amount, due_day)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	p := Payment{Title: f.Title, Amount: f.Amount, DueDay: f.DueDay}
	if err := s.db.QueryRow(ctx, query, p.Title, p.Amount, p.DueDay).Scan(&p.ID, &p.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return &p, nil
}

// GetPayment returns the payment with id.
func (s *PostgresStore) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	query := `SELECT id, title, amount, due_day, created_at FROM payments WHERE id = $1`
	var p Payment
	err := s.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.Title, &p.Amount, &p.DueDay, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("payment %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select payment: %w", err)
	}
	return &p, nil
}

// ListPayments returns all payments ordered by id.
func (s *PostgresStore) ListPayments(ctx context.Context) ([]Payment, error) {
	rows, err := s.db.Query(ctx, `SELECT id, title, amount, due_day, created_at FROM payments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	defer rows.Close()

	payments := make([]Payment, 0, 16)
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.Title, &p.Amount, &p.DueDay, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return payments, nil
}

// DeletePayment removes a payment; its reminders go with it via ON DELETE CASCADE.
func (s *PostgresStore) DeletePayment(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment %d: %w", id, ErrNotFound)
	}
	return nil
}

// CreateReminder adds a new reminder without a notification id.
func (s *PostgresStore) CreateReminder(ctx context.Context, f ReminderFields) (*Reminder, error) {
	f, err := normalizeReminder(f)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO reminders (payment_id, due_date, due_time, message)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + reminderColumns
	r, err := scanReminder(s.db.QueryRow(ctx, query, f.PaymentID, f.DueDate, f.DueTime, f.Message))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return nil, fmt.Errorf("payment %d: %w", f.PaymentID, ErrNotFound)
		}
		return nil, fmt.Errorf("insert reminder: %w", err)
	}
	return r, nil
}

// GetReminder returns the reminder with id.
func (s *PostgresStore) GetReminder(ctx context.Context, id int64) (*Reminder, error) {
	r, err := scanReminder(s.db.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reminder %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select reminder: %w", err)
	}
	return r, nil
}

// ListReminders returns all reminders ordered by due date and time.
func (s *PostgresStore) ListReminders(ctx context.Context) ([]Reminder, error) {
	rows, err := s.db.Query(ctx, `SELECT `+reminderColumns+` FROM reminders ORDER BY due_date, due_time, id`)
	if err != nil {
		return nil, fmt.Errorf("select reminders: %w", err)
	}
	defer rows.Close()

	reminders := make([]Reminder, 0, 16)
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, *r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return reminders, nil
}

// UpdateReminder applies patch inside a transaction so concurrent patches of
// the same row serialize on the row lock.
func (s *PostgresStore) UpdateReminder(ctx context.Context, id int64, patch ReminderPatch) (*Reminder, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanReminder(tx.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reminder %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select reminder: %w", err)
	}

	if err := applyPatch(current, patch); err != nil {
		return nil, err
	}

	query := `UPDATE reminders
		SET due_date = $2, due_time = $3, message = $4, notification_id = $5, updated_at = now()
		WHERE id = $1
		RETURNING ` + reminderColumns
	updated, err := scanReminder(tx.QueryRow(ctx, query, id, current.DueDate, current.DueTime, current.Message, current.NotificationID))
	if err != nil {
		return nil, fmt.Errorf("update reminder: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

// DeleteReminder removes the reminder with id.
func (s *PostgresStore) DeleteReminder(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reminder %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanReminder(row pgx.Row) (*Reminder, error) {
	var r Reminder
	err := row.Scan(&r.ID, &r.PaymentID, &r.DueDate, &r.DueTime, &r.Message, &r.NotificationID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
