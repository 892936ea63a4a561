package stream

import "encoding/json"

// Event is the typed surface of the streaming channel. Every inbound
// frame becomes exactly one of the variants below, dispatched through a
// single Handler entry point so consumers can match exhaustively
// instead of wiring ad-hoc callbacks per event name.
type Event interface {
	isEvent()
}

// ChunkEvent carries one incremental answer fragment for an in-flight
// message. Seq is the optional per-message sequence number; -1 when the
// server did not tag the chunk.
type ChunkEvent struct {
	MessageID string
	Data      string
	Seq       int
}

// CompleteEvent signals that a message's answer is finished. Answer may
// be empty, in which case the buffered fragments are authoritative.
// OrderlineJSON and PreviousJSON are opaque payloads attached by the
// server for order-line questions; they are parsed lazily downstream.
type CompleteEvent struct {
	MessageID     string
	Answer        string
	OrderlineJSON json.RawMessage
	PreviousJSON  json.RawMessage
}

// ErrorEvent reports a server-side failure on the channel.
type ErrorEvent struct {
	Message string
}

// DisconnectEvent reports that the channel dropped. The session may
// still reconnect afterwards; any message mid-stream at this point is
// the consumer's to fail.
type DisconnectEvent struct {
	Reason string
}

func (ChunkEvent) isEvent()      {}
func (CompleteEvent) isEvent()   {}
func (ErrorEvent) isEvent()      {}
func (DisconnectEvent) isEvent() {}

// Handler consumes channel events. Events for one session are delivered
// sequentially from a single goroutine, in arrival order.
type Handler interface {
	HandleEvent(Event)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(Event)

// HandleEvent calls f(ev).
func (f HandlerFunc) HandleEvent(ev Event) { f(ev) }

// wire formats of the inbound frames

type chunkPayload struct {
	Data      string `json:"data"`
	MessageID string `json:"message_id"`
	Seq       *int   `json:"seq,omitempty"`
}

type completePayload struct {
	MessageID     string          `json:"message_id"`
	Answer        string          `json:"answer,omitempty"`
	OrderlineJSON json.RawMessage `json:"orderline_json,omitempty"`
	PreviousJSON  json.RawMessage `json:"previous_json,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Query is the outbound frame asking the backend to answer a question.
type Query struct {
	UserID    string `json:"id"`
	Question  string `json:"question"`
	ChatID    string `json:"chatId"`
	MessageID string `json:"message_id"`
}
