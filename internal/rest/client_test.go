package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderchat/orderchat/internal/log"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "test-token", log.NewNop())
	require.NoError(t, err)
	return c
}

func TestNewValidation(t *testing.T) {
	_, err := New("", "key", log.NewNop())
	assert.Error(t, err)

	_, err = New("http://localhost", "", log.NewNop())
	assert.Error(t, err)
}

func TestListChats(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/db/chat", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"chats": [
			{"id": "c1", "name": "Chat 1", "userId": "u1",
			 "created_at": "2025-06-01T10:00:00Z",
			 "messages": [{"id": "m1", "question": "hi", "answer": "hello",
			   "q_timestamp": "2025-06-01T10:01:00Z", "isFeedbackGiven": false, "chatId": "c1"}]}
		]}`))
	}))

	chats, err := c.ListChats(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "c1", chats[0].ID)
	assert.Equal(t, "Chat 1", chats[0].Name)
	require.Len(t, chats[0].Messages, 1)
	assert.Equal(t, "hello", chats[0].Messages[0].Answer)
	assert.Nil(t, chats[0].Messages[0].ATimestamp)
}

func TestCreateChatEchoesClientID(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/db/chat", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "1700000000000", body["id"])

		resp := map[string]any{
			"id": body["id"], "name": body["name"], "userId": "u1",
			"created_at": time.Now().UTC().Format(time.RFC3339),
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))

	chat, err := c.CreateChat(context.Background(), "1700000000000", "Chat 3")
	require.NoError(t, err)
	assert.Equal(t, "1700000000000", chat.ID, "server must echo the client-generated id")
	assert.Equal(t, "Chat 3", chat.Name)
}

func TestCreateChatRejectedWithMessage(t *testing.T) {
	// The backend reports rejected creates as 200 with a message body.
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message": "chat limit reached"}`))
	}))

	_, err := c.CreateChat(context.Background(), "id", "name")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat limit reached")
}

func TestRenameAndDeleteChat(t *testing.T) {
	var gotMethod, gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, c.RenameChat(context.Background(), "c1", "renamed"))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/db/chat/c1", gotPath)

	require.NoError(t, c.DeleteChat(context.Background(), "c1"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/db/chat/c1", gotPath)
}

func TestSubmitFeedbackPath(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))

	err := c.SubmitFeedback(context.Background(), "u1", "c1", "m1", "positive")
	require.NoError(t, err)
	assert.Equal(t, "/db/u1/chat/c1/message/m1/feedback", gotPath)
	assert.Equal(t, "positive", gotBody["feedback"])
}

func TestErrorCarriesStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))

	_, err := c.ListUsers(context.Background())
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusForbidden))
	assert.False(t, IsStatus(err, http.StatusNotFound))
}

func TestListDocumentsEnvelope(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/document/list", r.URL.Path)
		_, _ = w.Write([]byte(`{"success": true, "data": [{"id": "d1", "title": "manual.pdf", "size": "2MB", "url": "https://x/d1"}]}`))
	}))

	docs, err := c.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "manual.pdf", docs[0].Title)
}

func TestListDocumentsFailureEnvelope(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "message": "index rebuilding"}`))
	}))

	_, err := c.ListDocuments(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index rebuilding")
}

func TestListTreeQueryParams(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/document/tree", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "inbound", q.Get("path"))
		assert.Equal(t, "invoice", q.Get("search"))
		assert.Equal(t, "date", q.Get("sort_by"))
		assert.Equal(t, "desc", q.Get("order"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "25", q.Get("limit"))

		_, _ = w.Write([]byte(`{"success": true, "data": [{"files": [{"id": "f1", "name": "invoice.pdf"}], "folders": [], "currentFolderId": "inbound"}]}`))
	}))

	listing, err := c.ListTree(context.Background(), TreeQuery{
		Path: "inbound", Search: "invoice", SortBy: "date", Order: "desc", Page: 2, Limit: 25,
	})
	require.NoError(t, err)
	require.Len(t, listing.Files, 1)
	assert.Equal(t, "invoice.pdf", listing.Files[0].Name)
	assert.Equal(t, "inbound", listing.CurrentFolderID)
}

func TestFetchLogsWindow(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/document/logs", r.URL.Path)
		assert.Equal(t, "2025-06-01T00:00:00Z", r.URL.Query().Get("start_time"))
		assert.Empty(t, r.URL.Query().Get("end_time"), "zero end time must be omitted")

		_, _ = w.Write([]byte(`{"data": [{"id": "l1", "user_name": "alice", "action": "upload", "message": "uploaded manual.pdf", "timestamp": "2025-06-02T08:00:00Z"}]}`))
	}))

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	logs, err := c.FetchLogs(context.Background(), start, time.Time{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "alice", logs[0].UserName)
}

func TestUpdateUserRole(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/db/user", r.URL.Path)

		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(User{ID: body["id"], Role: body["role"], Status: "enabled"})
	}))

	updated, err := c.UpdateUserRole(context.Background(), "u2", "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", updated.Role)
}
