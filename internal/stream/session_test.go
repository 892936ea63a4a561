package stream_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/orderchat/orderchat/internal/log"
	"github.com/orderchat/orderchat/internal/stream"
	"github.com/orderchat/orderchat/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

// collector records dispatched events and exposes them as a channel so
// tests can wait without polling.
type collector struct {
	ch chan stream.Event
}

func newCollector() *collector {
	return &collector{ch: make(chan stream.Event, 64)}
}

func (c *collector) HandleEvent(ev stream.Event) {
	c.ch <- ev
}

func (c *collector) next(t *testing.T) stream.Event {
	t.Helper()
	select {
	case ev := <-c.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func newSession(t *testing.T, srv *testutil.ChannelServer, c *collector, opts stream.Options) *stream.Session {
	t.Helper()

	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 2 * time.Second
	}
	if opts.HTTPClient == nil {
		client := &http.Client{}
		t.Cleanup(client.CloseIdleConnections)
		opts.HTTPClient = client
	}

	s, err := stream.New(srv.URL, "test-key", c, opts, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func awaitConnected(t *testing.T, srv *testutil.ChannelServer) {
	t.Helper()
	select {
	case <-srv.Connected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events connection")
	}
}

func TestNewRequiresHandler(t *testing.T) {
	_, err := stream.New("http://localhost", "", nil, stream.Options{ConnectTimeout: time.Second}, log.NewNop())
	assert.ErrorIs(t, err, stream.ErrHandlerRequired)
}

func TestConnectAndReceiveEvents(t *testing.T) {
	srv := testutil.NewChannelServer(t)
	c := newCollector()
	s := newSession(t, srv, c, stream.Options{})

	require.NoError(t, s.Connect(context.Background()))
	awaitConnected(t, srv)
	assert.Equal(t, stream.StateConnected, s.State())

	srv.SendChunk("m1", "Order ")
	srv.SendChunk("m1", "123")
	srv.SendComplete("m1", "")

	ev := c.next(t)
	require.IsType(t, stream.ChunkEvent{}, ev)
	chunk := ev.(stream.ChunkEvent)
	assert.Equal(t, "m1", chunk.MessageID)
	assert.Equal(t, "Order ", chunk.Data)
	assert.Equal(t, -1, chunk.Seq, "untagged chunks carry seq -1")

	ev = c.next(t)
	assert.Equal(t, stream.ChunkEvent{MessageID: "m1", Data: "123", Seq: -1}, ev)

	ev = c.next(t)
	require.IsType(t, stream.CompleteEvent{}, ev)
	assert.Equal(t, "m1", ev.(stream.CompleteEvent).MessageID)
}

func TestChunkSequenceNumbersPassThrough(t *testing.T) {
	srv := testutil.NewChannelServer(t)
	c := newCollector()
	s := newSession(t, srv, c, stream.Options{})

	require.NoError(t, s.Connect(context.Background()))
	awaitConnected(t, srv)

	srv.SendChunkSeq("m1", "tagged", 7)

	ev := c.next(t)
	require.IsType(t, stream.ChunkEvent{}, ev)
	assert.Equal(t, 7, ev.(stream.ChunkEvent).Seq)
}

func TestConnectIdempotent(t *testing.T) {
	srv := testutil.NewChannelServer(t)
	c := newCollector()
	s := newSession(t, srv, c, stream.Options{})

	require.NoError(t, s.Connect(context.Background()))
	awaitConnected(t, srv)

	// Second connect must not open a second channel.
	require.NoError(t, s.Connect(context.Background()))

	select {
	case <-srv.Connected:
		t.Fatal("second connect opened a second channel")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, stream.StateConnected, s.State())
}

func TestSendQueryNotConnected(t *testing.T) {
	srv := testutil.NewChannelServer(t)
	c := newCollector()
	s := newSession(t, srv, c, stream.Options{})

	err := s.SendQuery(context.Background(), stream.Query{MessageID: "m1"})
	assert.ErrorIs(t, err, stream.ErrNotConnected)
	assert.Empty(t, srv.Queries(), "no frame may be posted while disconnected")
}

func TestSendQueryDelivers(t *testing.T) {
	srv := testutil.NewChannelServer(t)
	c := newCollector()
	s := newSession(t, srv, c, stream.Options{})

	require.NoError(t, s.Connect(context.Background()))
	awaitConnected(t, srv)

	err := s.SendQuery(context.Background(), stream.Query{
		UserID:    "user_1",
		Question:  "What is order 123?",
		ChatID:    "c1",
		MessageID: "m1",
	})
	require.NoError(t, err)

	queries := srv.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, "user_1", queries[0]["id"])
	assert.Equal(t, "What is order 123?", queries[0]["question"])
	assert.Equal(t, "c1", queries[0]["chatId"])
	assert.Equal(t, "m1", queries[0]["message_id"])
}

func TestConnectTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer slow.Close()

	client := &http.Client{}
	defer client.CloseIdleConnections()

	s, err := stream.New(slow.URL, "", newCollector(), stream.Options{
		ConnectTimeout: 50 * time.Millisecond,
		HTTPClient:     client,
	}, log.NewNop())
	require.NoError(t, err)
	defer s.Close()

	start := time.Now()
	err = s.Connect(context.Background())
	assert.ErrorIs(t, err, stream.ErrConnectTimeout)
	assert.Less(t, time.Since(start), time.Second, "connect must fail fast, not hang")
	assert.Equal(t, stream.StateErrored, s.State())
}

func TestConnectBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := &http.Client{}
	defer client.CloseIdleConnections()

	s, err := stream.New(srv.URL, "", newCollector(), stream.Options{
		ConnectTimeout: time.Second,
		HTTPClient:     client,
	}, log.NewNop())
	require.NoError(t, err)
	defer s.Close()

	err = s.Connect(context.Background())
	assert.ErrorIs(t, err, stream.ErrConnectionFailed)
}

func TestDisconnectEventOnDrop(t *testing.T) {
	srv := testutil.NewChannelServer(t)
	c := newCollector()
	s := newSession(t, srv, c, stream.Options{AutoReconnect: false})

	require.NoError(t, s.Connect(context.Background()))
	awaitConnected(t, srv)

	srv.Drop()

	ev := c.next(t)
	require.IsType(t, stream.DisconnectEvent{}, ev)
	assert.NotEmpty(t, ev.(stream.DisconnectEvent).Reason)

	assert.Eventually(t, func() bool {
		return s.State() == stream.StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReconnectAfterDrop(t *testing.T) {
	srv := testutil.NewChannelServer(t)
	c := newCollector()
	s := newSession(t, srv, c, stream.Options{
		AutoReconnect:     true,
		ReconnectAttempts: 3,
	})

	require.NoError(t, s.Connect(context.Background()))
	awaitConnected(t, srv)

	srv.Drop()

	// The drop is surfaced, then the channel comes back on its own.
	ev := c.next(t)
	require.IsType(t, stream.DisconnectEvent{}, ev)

	awaitConnected(t, srv)
	assert.Eventually(t, func() bool {
		return s.State() == stream.StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	// The re-established channel delivers events again.
	srv.SendChunk("m2", "after reconnect")
	ev = c.next(t)
	assert.Equal(t, stream.ChunkEvent{MessageID: "m2", Data: "after reconnect", Seq: -1}, ev)
}

func TestMalformedFramesSkipped(t *testing.T) {
	srv := testutil.NewChannelServer(t)
	c := newCollector()
	s := newSession(t, srv, c, stream.Options{})

	require.NoError(t, s.Connect(context.Background()))
	awaitConnected(t, srv)

	srv.SendRaw("chunk", "{this is not json")
	srv.SendRaw("chunk", `{"data": "no id"}`)
	srv.SendChunk("m1", "valid")

	ev := c.next(t)
	assert.Equal(t, stream.ChunkEvent{MessageID: "m1", Data: "valid", Seq: -1}, ev,
		"malformed frames must be skipped, not take the channel down")
}

func TestCloseIdempotent(t *testing.T) {
	srv := testutil.NewChannelServer(t)
	c := newCollector()
	s := newSession(t, srv, c, stream.Options{})

	require.NoError(t, s.Connect(context.Background()))
	awaitConnected(t, srv)

	s.Close()
	s.Close() // must not panic or deadlock
	assert.Equal(t, stream.StateDisconnected, s.State())

	err := s.SendQuery(context.Background(), stream.Query{MessageID: "m1"})
	assert.ErrorIs(t, err, stream.ErrNotConnected)
}
