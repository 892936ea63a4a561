package conversation

import (
	"encoding/json"
	"time"
)

// AnswerState tracks where a message's answer is in its lifecycle.
// Finalized and Failed are terminal; a failed turn is resolved by
// resending under a new message id, never by retrying in place.
type AnswerState int

const (
	AnswerPending AnswerState = iota
	AnswerStreaming
	AnswerFinalized
	AnswerFailed
)

// String returns the lowercase name of the state.
func (s AnswerState) String() string {
	switch s {
	case AnswerPending:
		return "pending"
	case AnswerStreaming:
		return "streaming"
	case AnswerFinalized:
		return "finalized"
	case AnswerFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Feedback values accepted by the backend.
const (
	FeedbackPositive = "positive"
	FeedbackNegative = "negative"
)

// Chat is one conversation with its messages in insertion order.
// Chronological sorting is a view concern.
type Chat struct {
	ID        string
	Name      string
	UserID    string
	CreatedAt time.Time
	Messages  []*Message
}

// Message is one question/answer turn. The ID is client-generated at
// send time and stays stable through server reconciliation; the server
// echoes it back so merging is a pure key-based join.
type Message struct {
	ID              string
	ChatID          string
	Question        string
	Answer          string
	State           AnswerState
	FailReason      string
	QTimestamp      time.Time
	ATimestamp      *time.Time
	IsFeedbackGiven bool
	Feedback        string
	OrderlineJSON   json.RawMessage
	PreviousJSON    json.RawMessage
}

// clone returns a deep copy so observers can read snapshots without
// holding the store's lock.
func (c *Chat) clone() *Chat {
	cp := *c
	cp.Messages = make([]*Message, len(c.Messages))
	for i, m := range c.Messages {
		mc := *m
		cp.Messages[i] = &mc
	}
	return &cp
}

func (c *Chat) message(id string) *Message {
	for _, m := range c.Messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}
