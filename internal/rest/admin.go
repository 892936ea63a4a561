package rest

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// User is an account as the user-administration screen sees it. Role
// and status changes are enforced server-side; this client only
// requests them.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Status string `json:"status"` // "enabled" | "disabled"
}

// LogEntry is one row of the admin activity log.
type LogEntry struct {
	ID        string    `json:"id"`
	UserName  string    `json:"user_name"`
	Action    string    `json:"action"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ListUsers fetches all accounts. Requires an admin token; the backend
// answers 403 otherwise.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.doJSON(ctx, "list users", http.MethodGet, "/db/users", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUserRole changes a user's role and returns the updated account.
func (c *Client) UpdateUserRole(ctx context.Context, userID, role string) (*User, error) {
	body := map[string]string{"id": userID, "role": role}
	var updated User
	if err := c.doJSON(ctx, "update user role", http.MethodPut, "/db/user", nil, body, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// UpdateUserStatus enables or disables an account and returns the
// updated record.
func (c *Client) UpdateUserStatus(ctx context.Context, userID, status string) (*User, error) {
	body := map[string]string{"id": userID, "status": status}
	var updated User
	if err := c.doJSON(ctx, "update user status", http.MethodPut, "/db/user", nil, body, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// FetchLogs retrieves the activity log, optionally bounded by a time
// window. Zero times are omitted from the query.
func (c *Client) FetchLogs(ctx context.Context, start, end time.Time) ([]LogEntry, error) {
	query := url.Values{}
	if !start.IsZero() {
		query.Set("start_time", start.Format(time.RFC3339))
	}
	if !end.IsZero() {
		query.Set("end_time", end.Format(time.RFC3339))
	}

	var resp struct {
		Data []LogEntry `json:"data"`
	}
	if err := c.doJSON(ctx, "fetch logs", http.MethodGet, "/document/logs", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
