package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %q: %w", p, err)
		}
	}

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const reminderColumns = `user_id, interval_minutes, is_active, last_notification_sent,
	next_notification_time, total_reminders_today, last_reset_date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(r rowScanner) (reminder.State, error) {
	var (
		st                reminder.State
		active            int
		lastSent, nextAt  sql.NullInt64
		created, modified int64
	)
	err := r.Scan(&st.UserID, &st.IntervalMinutes, &active, &lastSent, &nextAt,
		&st.TotalRemindersToday, &st.LastResetDate, &created, &modified)
	if err != nil {
		return reminder.State{}, err
	}
	st.IsActive = active != 0
	st.LastNotificationSent = fromNullMillis(lastSent)
	st.NextNotificationTime = fromNullMillis(nextAt)
	st.CreatedAt = time.UnixMilli(created)
	st.UpdatedAt = time.UnixMilli(modified)
	return st, nil
}

func (s *sqliteStore) FindReminder(ctx context.Context, userID string) (reminder.State, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM water_reminders WHERE user_id = ?`, userID)
	st, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.State{}, ErrNotFound
	}
	return st, err
}

func (s *sqliteStore) UpsertReminder(ctx context.Context, st reminder.State) error {
	now := time.Now()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO water_reminders (`+reminderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			interval_minutes       = excluded.interval_minutes,
			is_active              = excluded.is_active,
			last_notification_sent = excluded.last_notification_sent,
			next_notification_time = excluded.next_notification_time,
			total_reminders_today  = excluded.total_reminders_today,
			last_reset_date        = excluded.last_reset_date,
			updated_at             = excluded.updated_at`,
		st.UserID, st.IntervalMinutes, boolToInt(st.IsActive),
		toNullMillis(st.LastNotificationSent), toNullMillis(st.NextNotificationTime),
		st.TotalRemindersToday, st.LastResetDate.String(),
		st.CreatedAt.UnixMilli(), st.UpdatedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) DeleteReminder(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM water_reminders WHERE user_id = ?`, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) ListActiveReminders(ctx context.Context) ([]reminder.State, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reminderColumns+` FROM water_reminders WHERE is_active = 1 ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminder.State
	for rows.Next() {
		st, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetUser(ctx context.Context, userID string) (User, error) {
	var (
		u                  User
		email, phone, push sql.NullString
		chatID             sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, phone, push_endpoint, telegram_chat_id FROM users WHERE id = ?`, userID,
	).Scan(&u.ID, &u.Username, &email, &phone, &push, &chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.Email, u.Phone, u.PushEndpoint = email.String, phone.String, push.String
	u.TelegramChatID = chatID.Int64
	return u, nil
}

func (s *sqliteStore) UpsertUser(ctx context.Context, u User) error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("user id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, phone, push_endpoint, telegram_chat_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username         = excluded.username,
			email            = excluded.email,
			phone            = excluded.phone,
			push_endpoint    = excluded.push_endpoint,
			telegram_chat_id = excluded.telegram_chat_id,
			updated_at       = excluded.updated_at`,
		u.ID, u.Username, nullStr(u.Email), nullStr(u.Phone), nullStr(u.PushEndpoint),
		nullInt(u.TelegramChatID), time.Now().UnixMilli(),
	)
	return err
}

func (s *sqliteStore) SetPushEndpoint(ctx context.Context, userID, endpoint string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET push_endpoint = ?, updated_at = ? WHERE id = ?`,
		nullStr(endpoint), time.Now().UnixMilli(), userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) AppendDeliveries(ctx context.Context, entries []DeliveryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO deliveries (id, dispatch_id, user_id, at, reminder_count, channel, delivered, err)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID, e.DispatchID, e.UserID, e.At.UnixMilli(),
			e.ReminderCount, e.Channel, boolToInt(e.Delivered), nullStr(e.Error)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) ListDeliveries(ctx context.Context, userID string, limit int) ([]DeliveryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dispatch_id, user_id, at, reminder_count, channel, delivered, err
		FROM deliveries WHERE user_id = ? ORDER BY at DESC, channel LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeliveryEntry
	for rows.Next() {
		var (
			e         DeliveryEntry
			at        int64
			delivered int
			errText   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.DispatchID, &e.UserID, &at, &e.ReminderCount, &e.Channel, &delivered, &errText); err != nil {
			return nil, err
		}
		e.At = time.UnixMilli(at)
		e.Delivered = delivered != 0
		e.Error = errText.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func toNullMillis(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
