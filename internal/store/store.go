package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a looked-up record does not exist (or is
// not visible to the requesting user).
var ErrNotFound = errors.New("not found")

// User mirrors the web application's user record. The gateway never
// writes users; it only resolves verified credentials against them.
type User struct {
	ID        int64
	Username  string
	Email     string
	IsAdmin   bool
	IsActive  bool
	CreatedAt time.Time
}

// Notification is one stored notification for one user. Payload holds
// the opaque JSON document the web application produced.
type Notification struct {
	ID        string
	UserID    int64
	Type      string
	Payload   string
	ReadAt    *time.Time
	CreatedAt time.Time
}

// UserStore is the user-lookup collaborator consumed by the identity
// verifier.
type UserStore interface {
	// FindByID returns the user or ErrNotFound.
	FindByID(ctx context.Context, id int64) (*User, error)
}

// NotificationStore is the notification collaborator consumed by the
// mark-as-read handler and the ingress API.
type NotificationStore interface {
	// CreateNotification persists a new notification. An empty ID is
	// filled in by the store.
	CreateNotification(ctx context.Context, n *Notification) error
	// MarkAsRead marks the user's notification as read. Returns
	// ErrNotFound when the id is unknown or belongs to another user.
	MarkAsRead(ctx context.Context, notificationID string, userID int64) error
	// ListUnread returns the user's unread notifications, oldest first.
	ListUnread(ctx context.Context, userID int64) ([]*Notification, error)
}

// Store bundles every collaborator interface the gateway consumes.
type Store interface {
	UserStore
	NotificationStore
	Close() error
}
