// Package testutil provides shared test helpers, most importantly a
// fake streaming backend for exercising the channel client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ChannelServer is a fake backend for the streaming channel: it serves
// the events connection as server-sent events and records posted query
// frames. Tests drive it by injecting frames and dropping connections.
type ChannelServer struct {
	*httptest.Server

	mu      sync.Mutex
	frames  chan frame // frames for the current events connection
	queries []map[string]any

	// Connected receives one signal per accepted events connection,
	// letting tests await (re)connects deterministically.
	Connected chan struct{}
}

type frame struct {
	event string
	data  string
}

// NewChannelServer starts a fake streaming backend. It is shut down
// automatically on test cleanup.
func NewChannelServer(t *testing.T) *ChannelServer {
	t.Helper()

	cs := &ChannelServer{
		Connected: make(chan struct{}, 16),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /events", cs.handleEvents)
	mux.HandleFunc("POST /query", cs.handleQuery)
	cs.Server = httptest.NewServer(mux)

	t.Cleanup(cs.Shutdown)
	return cs
}

// Shutdown drops any live events connection and stops the server.
func (cs *ChannelServer) Shutdown() {
	cs.Drop()
	cs.Server.Close()
}

// Send injects a named frame whose data is the JSON encoding of
// payload. It panics if no events connection is live; tests must await
// Connected first.
func (cs *ChannelServer) Send(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshaling %s frame: %v", event, err))
	}

	cs.mu.Lock()
	frames := cs.frames
	cs.mu.Unlock()
	if frames == nil {
		panic("testutil: no live events connection")
	}
	frames <- frame{event: event, data: string(data)}
}

// SendChunk injects a chunk frame for messageID.
func (cs *ChannelServer) SendChunk(messageID, data string) {
	cs.Send("chunk", map[string]any{"data": data, "message_id": messageID})
}

// SendChunkSeq injects a sequence-tagged chunk frame.
func (cs *ChannelServer) SendChunkSeq(messageID, data string, seq int) {
	cs.Send("chunk", map[string]any{"data": data, "message_id": messageID, "seq": seq})
}

// SendComplete injects a completion frame. Empty answer means the
// client's buffered fragments are authoritative.
func (cs *ChannelServer) SendComplete(messageID, answer string) {
	payload := map[string]any{"message_id": messageID}
	if answer != "" {
		payload["answer"] = answer
	}
	cs.Send("complete", payload)
}

// SendRaw injects a frame with a pre-encoded data payload, for
// malformed-input tests.
func (cs *ChannelServer) SendRaw(event, data string) {
	cs.mu.Lock()
	frames := cs.frames
	cs.mu.Unlock()
	if frames == nil {
		panic("testutil: no live events connection")
	}
	frames <- frame{event: event, data: data}
}

// Drop closes the current events connection from the server side,
// simulating a mid-stream disconnect.
func (cs *ChannelServer) Drop() {
	cs.mu.Lock()
	frames := cs.frames
	cs.frames = nil
	cs.mu.Unlock()
	if frames != nil {
		close(frames)
	}
}

// Queries returns a copy of the query frames received so far.
func (cs *ChannelServer) Queries() []map[string]any {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]map[string]any, len(cs.queries))
	copy(out, cs.queries)
	return out
}

func (cs *ChannelServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	frames := make(chan frame, 64)
	cs.mu.Lock()
	old := cs.frames
	cs.frames = frames
	cs.mu.Unlock()
	if old != nil {
		close(old)
	}

	cs.Connected <- struct{}{}

	for {
		select {
		case f, open := <-frames:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.event, f.data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (cs *ChannelServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	var q map[string]any
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cs.mu.Lock()
	cs.queries = append(cs.queries, q)
	cs.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}
