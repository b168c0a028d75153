package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/medianest/gateway/internal/store"
)

// Store implements store.Store for SQLite. The users table is owned by
// the web application; the gateway only reads it. Notifications are
// written by the ingress API and mutated by mark-as-read.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL DEFAULT '',
	email         TEXT,
	is_admin      BOOLEAN NOT NULL DEFAULT 0,
	is_active     BOOLEAN NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	user_id    INTEGER NOT NULL,
	type       TEXT NOT NULL DEFAULT 'generic',
	payload    TEXT NOT NULL DEFAULT '{}',
	read_at    DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_notifications_user
	ON notifications(user_id, created_at);
`

// New opens (or creates) the SQLite database at dbPath and ensures the
// schema exists.
func New(dbPath string) (*Store, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup opens the database and runs a setup function. Useful for
// tests to apply a custom schema or seed rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// FindByID returns the user or store.ErrNotFound.
func (s *Store) FindByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, COALESCE(email, ''), is_admin, is_active, created_at
		FROM users WHERE id = ?
	`
	var u store.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.Email, &u.IsAdmin, &u.IsActive, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

// ==== NotificationStore implementation ====

// CreateNotification persists a notification, assigning an id when the
// caller left it empty.
func (s *Store) CreateNotification(ctx context.Context, n *store.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Type == "" {
		n.Type = "generic"
	}
	if n.Payload == "" {
		n.Payload = "{}"
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notifications (id, user_id, type, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, n.ID, n.UserID, n.Type, n.Payload, n.CreatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// MarkAsRead sets read_at on the user's notification. Unknown ids and
// ids belonging to other users both yield store.ErrNotFound; the caller
// can't probe other users' notifications.
func (s *Store) MarkAsRead(ctx context.Context, notificationID string, userID int64) error {
	query := `
		UPDATE notifications SET read_at = ?
		WHERE id = ? AND user_id = ? AND read_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), notificationID, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListUnread returns the user's unread notifications, oldest first.
func (s *Store) ListUnread(ctx context.Context, userID int64) ([]*store.Notification, error) {
	query := `
		SELECT id, user_id, type, payload, created_at
		FROM notifications
		WHERE user_id = ? AND read_at IS NULL
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()

	var out []*store.Notification
	for rows.Next() {
		var n store.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Payload, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}
