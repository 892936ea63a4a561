// Package rest is the client for the backend's REST surface. The
// backend owns authentication, persistence, role enforcement and
// document processing; this package only speaks its documented
// contract: JSON over HTTP with a bearer token.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/orderchat/orderchat/internal/log"
)

// Error is returned for any REST call that fails at the HTTP layer or
// comes back with a non-success status. Callers that only care whether
// the call failed can treat it opaquely; status-aware callers can
// inspect StatusCode.
type Error struct {
	Op         string // e.g. "list chats"
	StatusCode int    // 0 for transport-level failures
	Body       string // truncated response body, for logs
	Err        error  // underlying transport error, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rest: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("rest: %s: unexpected status %d", e.Op, e.StatusCode)
}

func (e *Error) Unwrap() error { return e.Err }

// IsStatus reports whether err is a REST error with the given status.
func IsStatus(err error, status int) bool {
	var re *Error
	return errors.As(err, &re) && re.StatusCode == status
}

const (
	requestTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// Client talks to the backend REST API.
type Client struct {
	baseURL    string
	authKey    string
	httpClient *http.Client
	logger     log.Logger
}

// New creates a REST client for the given base URL. The auth key is
// sent as a bearer token on every request.
func New(baseURL, authKey string, logger log.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("rest: base URL is required")
	}
	if authKey == "" {
		return nil, fmt.Errorf("rest: auth key is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authKey:    authKey,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger.With("component", "rest"),
	}, nil
}

// doJSON performs one JSON request. A non-nil out receives the decoded
// response body. body may be nil for bodyless requests.
func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Err: fmt.Errorf("encoding request: %w", err)}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.authKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("request failed", "op", op, "status", resp.StatusCode)
		return &Error{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
