package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Chat is the wire representation of a chat as the backend returns it.
type Chat struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// Message is the wire representation of a chat message. The structured
// payload fields stay raw here; parsing them (and degrading on parse
// failure) is the orderline package's concern.
type Message struct {
	ID              string          `json:"id"`
	Question        string          `json:"question"`
	Answer          string          `json:"answer"`
	QTimestamp      time.Time       `json:"q_timestamp"`
	ATimestamp      *time.Time      `json:"a_timestamp,omitempty"`
	IsFeedbackGiven bool            `json:"isFeedbackGiven"`
	Feedback        string          `json:"feedback,omitempty"`
	ChatID          string          `json:"chatId"`
	OrderlineJSON   json.RawMessage `json:"orderline_json,omitempty"`
	PreviousJSON    json.RawMessage `json:"previous_json,omitempty"`
}

// ListChats fetches every chat (with messages) visible to the current
// user.
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	var resp struct {
		Chats []Chat `json:"chats"`
	}
	if err := c.doJSON(ctx, "list chats", http.MethodGet, "/db/chat", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// CreateChat asks the backend to create a chat, echoing back the
// client-generated id so local reconciliation stays a pure key-based
// merge. The backend may respond 200 with a message field instead of a
// chat; that is its way of reporting a rejected create.
func (c *Client) CreateChat(ctx context.Context, id, name string) (*Chat, error) {
	body := map[string]string{"id": id, "name": name}

	var raw json.RawMessage
	if err := c.doJSON(ctx, "create chat", http.MethodPost, "/db/chat", nil, body, &raw); err != nil {
		return nil, err
	}

	var rejected struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &rejected); err == nil && rejected.Message != "" {
		return nil, &Error{Op: "create chat", StatusCode: http.StatusOK,
			Err: fmt.Errorf("backend rejected create: %s", rejected.Message)}
	}

	var chat Chat
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, &Error{Op: "create chat", Err: fmt.Errorf("decoding response: %w", err)}
	}
	return &chat, nil
}

// RenameChat updates a chat's display name.
func (c *Client) RenameChat(ctx context.Context, chatID, newName string) error {
	body := map[string]string{"name": newName}
	return c.doJSON(ctx, "rename chat", http.MethodPut, "/db/chat/"+url.PathEscape(chatID), nil, body, nil)
}

// DeleteChat removes a chat and its messages.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.doJSON(ctx, "delete chat", http.MethodDelete, "/db/chat/"+url.PathEscape(chatID), nil, nil, nil)
}

// SubmitFeedback records the user's verdict on an answer.
func (c *Client) SubmitFeedback(ctx context.Context, userID, chatID, messageID, feedback string) error {
	path := fmt.Sprintf("/db/%s/chat/%s/message/%s/feedback",
		url.PathEscape(userID), url.PathEscape(chatID), url.PathEscape(messageID))
	body := map[string]string{"feedback": feedback}
	return c.doJSON(ctx, "submit feedback", http.MethodPost, path, nil, body, nil)
}
