// Package assembler accumulates streamed answer fragments per in-flight
// message until the backend signals completion.
//
// State here is ephemeral: buffers exist only while a turn is in flight
// and are dropped on finalization or on error. Nothing is persisted.
package assembler

import (
	"strings"
	"sync"

	"github.com/orderchat/orderchat/internal/log"
)

// Assembler collects ordered text fragments keyed by message id.
//
// Safe for concurrent use: the stream reader goroutine appends while the
// UI reads the current text.
// maxFinalizedMarkers bounds the memory of completed message ids kept
// for late-chunk detection. Oldest markers are evicted first; a chunk
// for an evicted id simply starts a fresh buffer without the warning.
const maxFinalizedMarkers = 512

type Assembler struct {
	mu        sync.Mutex
	buffers   map[string]*buffer
	finalized map[string]struct{}
	// finalized ids in completion order, for eviction once the
	// marker set reaches maxFinalizedMarkers.
	finalizedOrder []string
	logger         log.Logger
}

// buffer holds the fragments of one streaming turn.
type buffer struct {
	fragments []string
	lastSeq   int // highest accepted sequence number, -1 when unsequenced
}

// New creates an Assembler. A nil logger falls back to the default.
func New(logger log.Logger) *Assembler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Assembler{
		buffers:   make(map[string]*buffer),
		finalized: make(map[string]struct{}),
		logger:    logger.With("component", "assembler"),
	}
}

// Append adds fragment to the buffer for messageID, creating the buffer
// if absent. Fragments are kept in arrival order; the channel preserves
// per-connection ordering, so no reordering happens here.
//
// A chunk arriving for an already-finalized id does not resurrect the
// cleared buffer: it starts a fresh one and is logged as anomalous.
func (a *Assembler) Append(messageID, fragment string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf := a.bufferFor(messageID)
	buf.fragments = append(buf.fragments, fragment)
}

// AppendSeq adds a sequence-tagged fragment. Duplicate or regressed
// sequence numbers are dropped, which makes redelivery across a
// reconnect idempotent. Reports whether the fragment was accepted.
func (a *Assembler) AppendSeq(messageID, fragment string, seq int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf := a.bufferFor(messageID)
	if buf.lastSeq >= 0 && seq <= buf.lastSeq {
		a.logger.Warn("dropping out-of-order chunk",
			"message_id", messageID, "seq", seq, "last_seq", buf.lastSeq)
		return false
	}
	buf.lastSeq = seq
	buf.fragments = append(buf.fragments, fragment)
	return true
}

// CurrentText returns the concatenation of all fragments buffered for
// messageID, or "" if none. Pure read.
func (a *Assembler) CurrentText(messageID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.buffers[messageID]
	if !ok {
		return ""
	}
	return strings.Join(buf.fragments, "")
}

// Active reports whether messageID has a live streaming buffer. The
// conversation store uses this to skip overwriting mid-stream messages
// during reconciliation.
func (a *Assembler) Active(messageID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.buffers[messageID]
	return ok
}

// ActiveIDs returns the message ids with live buffers. Used on
// disconnect to fail every message that was still streaming.
func (a *Assembler) ActiveIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]string, 0, len(a.buffers))
	for id := range a.buffers {
		ids = append(ids, id)
	}
	return ids
}

// Finalize resolves the answer text for messageID and clears its buffer.
// When the backend sends a complete answer string alongside the
// completion event, that value wins; otherwise the buffered fragments
// are joined. Finalizing an id with no buffer is not an error.
func (a *Assembler) Finalize(messageID, authoritative string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := authoritative
	if buf, ok := a.buffers[messageID]; ok {
		if text == "" {
			text = strings.Join(buf.fragments, "")
		}
		delete(a.buffers, messageID)
	}
	if _, ok := a.finalized[messageID]; !ok {
		a.finalized[messageID] = struct{}{}
		a.finalizedOrder = append(a.finalizedOrder, messageID)
		for len(a.finalizedOrder) > maxFinalizedMarkers {
			delete(a.finalized, a.finalizedOrder[0])
			a.finalizedOrder = a.finalizedOrder[1:]
		}
	}
	return text
}

// Clear discards the buffer for messageID without finalizing. Error
// paths use this so a half-streamed answer is never mistaken for final.
func (a *Assembler) Clear(messageID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.buffers, messageID)
}

// bufferFor returns the live buffer for messageID, creating one if
// needed. Caller must hold a.mu.
func (a *Assembler) bufferFor(messageID string) *buffer {
	if buf, ok := a.buffers[messageID]; ok {
		return buf
	}
	if _, wasFinal := a.finalized[messageID]; wasFinal {
		a.logger.Warn("chunk arrived for finalized message, starting fresh buffer",
			"message_id", messageID)
		delete(a.finalized, messageID)
	}
	buf := &buffer{lastSeq: -1}
	a.buffers[messageID] = buf
	return buf
}
