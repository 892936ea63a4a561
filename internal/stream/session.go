// Package stream manages the persistent streaming channel to the
// backend: one long-lived connection carrying server-sent events for
// incremental answers, plus an outbound frame for submitting queries.
//
// A Session owns the channel lifecycle (connect, read, reconnect,
// close) and its connection state. It never touches chat or message
// data; it only translates raw frames into typed events consumed by
// the conversation store.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/orderchat/orderchat/internal/log"
)

// Sentinel errors for session operations. Check with errors.Is.
var (
	// ErrNotConnected is returned by SendQuery when the channel is not
	// in the connected state. The caller surfaces this as a delivery
	// failure on the message; no retry happens here.
	ErrNotConnected = errors.New("stream: not connected")

	// ErrConnectionFailed indicates the channel could not be opened or
	// was lost and could not be re-established.
	ErrConnectionFailed = errors.New("stream: connection failed")

	// ErrConnectTimeout indicates the channel did not come up within
	// the configured connect timeout.
	ErrConnectTimeout = errors.New("stream: connect timeout")

	// ErrSendFailed indicates a query frame could not be delivered.
	ErrSendFailed = errors.New("stream: send failed")

	// ErrHandlerRequired is returned by New when no event handler is
	// supplied.
	ErrHandlerRequired = errors.New("stream: event handler is required")
)

// Channel endpoints relative to the stream base URL.
const (
	eventsPath = "/events"
	queryPath  = "/query"
)

// Inbound event names.
const (
	eventChunk    = "chunk"
	eventComplete = "complete"
	eventError    = "error"
)

// Options tune the channel lifecycle.
type Options struct {
	// ConnectTimeout bounds how long Connect waits for the channel to
	// come up before failing fast. Must be positive.
	ConnectTimeout time.Duration

	// AutoReconnect re-establishes a dropped channel. It never replays
	// queries; a message mid-stream at disconnect time stays with the
	// consumer to resolve.
	AutoReconnect bool

	// ReconnectAttempts bounds reconnection tries per drop.
	ReconnectAttempts int

	// HTTPClient overrides the transport, mainly for tests. Nil uses a
	// client without a global timeout (the channel is long-lived).
	HTTPClient *http.Client
}

// Session is one logical streaming connection to the backend. At most
// one underlying channel exists per Session; Connect while connected is
// a no-op.
type Session struct {
	endpoint string
	authKey  string
	opts     Options
	handler  Handler
	logger   log.Logger
	client   *http.Client
	limiter  *rate.Limiter

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// reconnectInterval paces redial attempts so a flapping backend is not
// hammered.
const reconnectInterval = 2 * time.Second

// New creates a Session talking to the given stream base URL. The
// handler receives every channel event; events are delivered
// sequentially from a single goroutine.
func New(endpoint, authKey string, handler Handler, opts Options, logger log.Logger) (*Session, error) {
	if handler == nil {
		return nil, ErrHandlerRequired
	}
	if opts.ConnectTimeout <= 0 {
		return nil, fmt.Errorf("stream: connect timeout must be positive, got %s", opts.ConnectTimeout)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return &Session{
		endpoint: strings.TrimRight(endpoint, "/"),
		authKey:  authKey,
		opts:     opts,
		handler:  handler,
		logger:   logger.With("component", "stream"),
		client:   client,
		limiter:  rate.NewLimiter(rate.Every(reconnectInterval), 1),
	}, nil
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect establishes the channel. Calling Connect while the channel is
// already open (or opening) is a no-op; a second underlying connection
// is never created. On success the session transitions to
// StateConnected and a reader goroutine starts delivering events.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnected || s.state == StateConnecting {
		st := s.state
		s.mu.Unlock()
		s.logger.Debug("connect ignored, channel already open", "state", st)
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	// The reader must outlive the Connect call's context: navigating
	// away from the caller's scope is not a reason to drop the channel.
	runCtx, runCancel := context.WithCancel(context.WithoutCancel(ctx))

	resp, respCancel, err := s.dial(runCtx)
	if err != nil {
		runCancel()
		s.setState(StateErrored)
		return err
	}

	s.mu.Lock()
	s.state = StateConnected
	s.cancel = runCancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.Info("channel connected", "endpoint", s.endpoint)
	go s.run(runCtx, resp, respCancel, done)
	return nil
}

// SendQuery submits a question over the channel. It fails with
// ErrNotConnected when the channel is not connected; retry policy
// belongs to the caller.
func (s *Session) SendQuery(ctx context.Context, q Query) error {
	if st := s.State(); st != StateConnected {
		return fmt.Errorf("%w (state %s)", ErrNotConnected, st)
	}

	body, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("%w: encoding query: %v", ErrSendFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+queryPath, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrSendFailed, resp.StatusCode)
	}

	s.logger.Debug("query sent", "chat_id", q.ChatID, "message_id", q.MessageID)
	return nil
}

// Close tears the channel down and waits for the reader goroutine to
// exit. It runs on every exit path of the consumer, including error
// paths, and is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	s.setState(StateDisconnected)
}

// dial opens the events connection. The returned cancel func must be
// called once the response body is no longer being read.
func (s *Session) dial(parent context.Context) (*http.Response, context.CancelFunc, error) {
	dialCtx, cancel := context.WithCancel(parent)

	// Fail fast if headers do not arrive in time. Once the connection
	// is up the timer is disarmed and the body can stream indefinitely.
	timer := time.AfterFunc(s.opts.ConnectTimeout, cancel)

	req, err := http.NewRequestWithContext(dialCtx, http.MethodGet, s.endpoint+eventsPath, nil)
	if err != nil {
		timer.Stop()
		cancel()
		return nil, nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	s.authorize(req)

	resp, err := s.client.Do(req)
	timedOut := !timer.Stop()
	if err != nil {
		cancel()
		if timedOut && parent.Err() == nil {
			return nil, nil, fmt.Errorf("%w after %s", ErrConnectTimeout, s.opts.ConnectTimeout)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, nil, fmt.Errorf("%w: unexpected status %d", ErrConnectionFailed, resp.StatusCode)
	}

	return resp, cancel, nil
}

// run owns the channel after a successful dial: it reads events until
// the connection drops, then reconnects if configured, and exits when
// the session is closed or the attempts are exhausted.
func (s *Session) run(ctx context.Context, resp *http.Response, respCancel context.CancelFunc, done chan struct{}) {
	defer close(done)

	for {
		reason := s.readEvents(ctx, resp)
		resp.Body.Close()
		respCancel()

		if ctx.Err() != nil {
			// Deliberate teardown; no disconnect event, the consumer
			// initiated this.
			s.setState(StateDisconnected)
			return
		}

		s.setState(StateDisconnected)
		s.logger.Warn("channel dropped", "reason", reason)
		s.dispatch(DisconnectEvent{Reason: reason})

		if !s.opts.AutoReconnect {
			return
		}

		var err error
		resp, respCancel, err = s.redial(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("reconnect failed, giving up", "error", err)
				s.setState(StateErrored)
			}
			return
		}
		s.setState(StateConnected)
		s.logger.Info("channel reconnected")
	}
}

// redial tries to re-establish the channel, paced by the rate limiter
// and bounded by ReconnectAttempts. Reconnection only restores the
// channel; missed queries are never replayed.
func (s *Session) redial(ctx context.Context) (*http.Response, context.CancelFunc, error) {
	for attempt := 1; attempt <= s.opts.ReconnectAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}

		s.setState(StateConnecting)
		s.logger.Info("reconnecting", "attempt", attempt, "max_attempts", s.opts.ReconnectAttempts)

		resp, cancel, err := s.dial(ctx)
		if err == nil {
			return resp, cancel, nil
		}
		s.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
	}
	return nil, nil, fmt.Errorf("%w: reconnect attempts exhausted", ErrConnectionFailed)
}

// readEvents consumes the SSE stream until it ends, returning the
// reason the channel dropped. Frames are parsed per the SSE wire
// format: "event:" and "data:" lines, an empty line terminates a frame,
// ":" lines are comments.
func (s *Session) readEvents(ctx context.Context, resp *http.Response) string {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var eventName string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			if eventName != "" || len(dataLines) > 0 {
				s.handleFrame(eventName, strings.Join(dataLines, "\n"))
				eventName = ""
				dataLines = nil
			}
		default:
			// SSE comments and unknown field lines are ignored.
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err.Error()
	}
	return "stream closed by server"
}

// handleFrame decodes one named frame and dispatches the typed event.
// Malformed frames are logged and skipped; they never take the channel
// down.
func (s *Session) handleFrame(name, data string) {
	switch name {
	case eventChunk:
		var p chunkPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			s.logger.Warn("malformed chunk frame", "error", err)
			return
		}
		if p.MessageID == "" {
			s.logger.Warn("chunk frame without message_id, dropping")
			return
		}
		seq := -1
		if p.Seq != nil {
			seq = *p.Seq
		}
		s.dispatch(ChunkEvent{MessageID: p.MessageID, Data: p.Data, Seq: seq})

	case eventComplete:
		var p completePayload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			s.logger.Warn("malformed complete frame", "error", err)
			return
		}
		if p.MessageID == "" {
			s.logger.Warn("complete frame without message_id, dropping")
			return
		}
		s.dispatch(CompleteEvent{
			MessageID:     p.MessageID,
			Answer:        p.Answer,
			OrderlineJSON: p.OrderlineJSON,
			PreviousJSON:  p.PreviousJSON,
		})

	case eventError:
		var p errorPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			s.logger.Warn("malformed error frame", "error", err)
			return
		}
		s.dispatch(ErrorEvent{Message: p.Message})

	default:
		s.logger.Debug("ignoring unknown event", "event", name)
	}
}

func (s *Session) dispatch(ev Event) {
	s.handler.HandleEvent(ev)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) authorize(req *http.Request) {
	if s.authKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.authKey)
	}
}
