// Package admin is the client-side state for the administration
// screens: the user directory with role and status management, and the
// activity log. All changes are server-confirmed before local state
// moves, same policy as chat renames.
package admin

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/orderchat/orderchat/internal/log"
	"github.com/orderchat/orderchat/internal/rest"
)

// User statuses the backend accepts.
const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
)

// ErrUserNotFound indicates the directory has no user with that id.
var ErrUserNotFound = errors.New("admin: user not found")

// Service is the slice of the REST client the admin screens need.
type Service interface {
	ListUsers(ctx context.Context) ([]rest.User, error)
	UpdateUserRole(ctx context.Context, userID, role string) (*rest.User, error)
	UpdateUserStatus(ctx context.Context, userID, status string) (*rest.User, error)
	FetchLogs(ctx context.Context, start, end time.Time) ([]rest.LogEntry, error)
}

// Directory holds the user list for the admin screen.
type Directory struct {
	mu    sync.Mutex
	users []rest.User

	svc    Service
	logger log.Logger
}

// NewDirectory creates an empty user directory.
func NewDirectory(svc Service, logger log.Logger) *Directory {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Directory{svc: svc, logger: logger.With("component", "admin")}
}

// Refresh replaces the directory with the server's user list.
func (d *Directory) Refresh(ctx context.Context) error {
	users, err := d.svc.ListUsers(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.users = users
	d.mu.Unlock()
	return nil
}

// Users returns a snapshot of the directory.
func (d *Directory) Users() []rest.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]rest.User, len(d.users))
	copy(out, d.users)
	return out
}

// SetRole changes a user's role. Local state is updated only from the
// confirmed record the server returns.
func (d *Directory) SetRole(ctx context.Context, userID, role string) error {
	updated, err := d.svc.UpdateUserRole(ctx, userID, role)
	if err != nil {
		return err
	}
	d.apply(updated)
	return nil
}

// ToggleStatus flips a user between enabled and disabled.
func (d *Directory) ToggleStatus(ctx context.Context, userID string) error {
	d.mu.Lock()
	var current string
	found := false
	for _, u := range d.users {
		if u.ID == userID {
			current = u.Status
			found = true
			break
		}
	}
	d.mu.Unlock()
	if !found {
		return ErrUserNotFound
	}

	next := StatusDisabled
	if current == StatusDisabled {
		next = StatusEnabled
	}

	updated, err := d.svc.UpdateUserStatus(ctx, userID, next)
	if err != nil {
		return err
	}
	d.apply(updated)
	return nil
}

func (d *Directory) apply(updated *rest.User) {
	if updated == nil {
		return
	}
	d.mu.Lock()
	for i := range d.users {
		if d.users[i].ID == updated.ID {
			d.users[i] = *updated
			break
		}
	}
	d.mu.Unlock()
}

// Logs holds the fetched activity-log window.
type Logs struct {
	mu      sync.Mutex
	entries []rest.LogEntry

	svc    Service
	logger log.Logger
}

// NewLogs creates an empty activity log view.
func NewLogs(svc Service, logger log.Logger) *Logs {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Logs{svc: svc, logger: logger.With("component", "admin-logs")}
}

// Fetch loads the log entries for a time window; zero times leave the
// window open on that side.
func (l *Logs) Fetch(ctx context.Context, start, end time.Time) error {
	entries, err := l.svc.FetchLogs(ctx, start, end)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()
	return nil
}

// Entries returns a snapshot of the fetched log window.
func (l *Logs) Entries() []rest.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]rest.LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
