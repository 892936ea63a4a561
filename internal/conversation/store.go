// Package conversation holds the client-side source of truth for chats
// and their messages. The store mediates between optimistic local
// edits, streamed partial answers and the authoritative state fetched
// from the backend, keeping a single-writer discipline over its
// collections.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orderchat/orderchat/internal/assembler"
	"github.com/orderchat/orderchat/internal/log"
	"github.com/orderchat/orderchat/internal/rest"
	"github.com/orderchat/orderchat/internal/stream"
)

// Backend is the slice of the REST client the store needs. Defined
// here so tests can substitute a fake.
type Backend interface {
	ListChats(ctx context.Context) ([]rest.Chat, error)
	CreateChat(ctx context.Context, id, name string) (*rest.Chat, error)
	RenameChat(ctx context.Context, chatID, newName string) error
	DeleteChat(ctx context.Context, chatID string) error
	SubmitFeedback(ctx context.Context, userID, chatID, messageID, feedback string) error
}

// ErrBackendRequired indicates the store was constructed without a
// REST backend.
var ErrBackendRequired = errors.New("conversation: backend is required")

// Store owns the chat list. All mutation goes through its methods;
// observers get change notifications and read snapshots.
type Store struct {
	mu       sync.Mutex
	chats    []*Chat
	selected string

	// optimistic chat ids awaiting server confirmation. Reconcile
	// must not drop these even though the server's list omits them.
	pendingCreates map[string]struct{}

	// message ids with a feedback submission in flight. A second
	// call for the same message returns before reaching the backend.
	pendingFeedback map[string]struct{}

	lastMsgID int64

	userID    string
	backend   Backend
	asm       *assembler.Assembler
	logger    log.Logger
	observers []func()
}

// New creates an empty store for the given user.
func New(backend Backend, asm *assembler.Assembler, userID string, logger log.Logger) (*Store, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	if asm == nil {
		asm = assembler.New(logger)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	return &Store{
		pendingCreates:  make(map[string]struct{}),
		pendingFeedback: make(map[string]struct{}),
		userID:          userID,
		backend:         backend,
		asm:             asm,
		logger:          logger.With("component", "conversation"),
	}, nil
}

// Assembler exposes the chunk assembler the store finalizes against.
func (s *Store) Assembler() *assembler.Assembler { return s.asm }

// Subscribe registers a change callback. Callbacks run outside the
// store lock; they should read state through the snapshot accessors.
func (s *Store) Subscribe(fn func()) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.Lock()
	obs := make([]func(), len(s.observers))
	copy(obs, s.observers)
	s.mu.Unlock()

	for _, fn := range obs {
		fn()
	}
}

// Chats returns a snapshot of all chats, newest first.
func (s *Store) Chats() []*Chat {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Chat, len(s.chats))
	for i, c := range s.chats {
		out[i] = c.clone()
	}
	return out
}

// SelectChat marks a chat as the active one. Selecting an unknown id
// is allowed; SelectedChat simply reports not found until it appears.
func (s *Store) SelectChat(chatID string) {
	s.mu.Lock()
	s.selected = chatID
	s.mu.Unlock()
	s.notify()
}

// ChatByID returns a snapshot of one chat.
func (s *Store) ChatByID(chatID string) (*Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.chatLocked(chatID)
	if c == nil {
		return nil, false
	}
	return c.clone(), true
}

// SelectedChat returns a snapshot of the active chat, if any.
func (s *Store) SelectedChat() (*Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.chatLocked(s.selected)
	if c == nil {
		return nil, false
	}
	return c.clone(), true
}

// CreateChat optimistically inserts a chat at the head of the list,
// asks the backend to create it, and on success replaces the record
// with the server-confirmed fields in place. On failure the optimistic
// entry is removed and the list is exactly as before.
func (s *Store) CreateChat(ctx context.Context) (*Chat, error) {
	s.mu.Lock()
	chat := &Chat{
		ID:        uuid.NewString(),
		Name:      fmt.Sprintf("Chat %d", len(s.chats)+1),
		UserID:    s.userID,
		CreatedAt: time.Now(),
	}
	s.chats = append([]*Chat{chat}, s.chats...)
	s.pendingCreates[chat.ID] = struct{}{}
	optimisticID := chat.ID
	name := chat.Name
	s.mu.Unlock()
	s.notify()

	confirmed, err := s.backend.CreateChat(ctx, optimisticID, name)

	s.mu.Lock()
	delete(s.pendingCreates, optimisticID)
	if err != nil {
		s.removeChatLocked(optimisticID)
		s.mu.Unlock()
		s.notify()
		s.logger.Warn("chat create failed, rolled back", "error", err)
		s.afterAmbiguousFailure(ctx, err)
		return nil, err
	}

	local := s.chatLocked(optimisticID)
	if local == nil {
		// A racing reconcile dropped the optimistic entry; reinsert
		// the confirmed chat so the successful create is not lost.
		local = &Chat{ID: confirmed.ID}
		s.chats = append([]*Chat{local}, s.chats...)
	}
	local.ID = confirmed.ID
	local.Name = confirmed.Name
	if confirmed.UserID != "" {
		local.UserID = confirmed.UserID
	}
	if !confirmed.CreatedAt.IsZero() {
		local.CreatedAt = confirmed.CreatedAt
	}
	if s.selected == optimisticID {
		s.selected = confirmed.ID
	}
	snapshot := local.clone()
	s.mu.Unlock()
	s.notify()
	return snapshot, nil
}

// RenameChat updates a chat's name after server confirmation. No
// optimistic rename: a premature UI change on a failed rename is more
// confusing than a brief delay.
func (s *Store) RenameChat(ctx context.Context, chatID, newName string) error {
	if err := s.backend.RenameChat(ctx, chatID, newName); err != nil {
		return err
	}

	s.mu.Lock()
	if c := s.chatLocked(chatID); c != nil {
		c.Name = newName
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// DeleteChat removes a chat after server confirmation.
func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	if err := s.backend.DeleteChat(ctx, chatID); err != nil {
		s.afterAmbiguousFailure(ctx, err)
		return err
	}

	s.mu.Lock()
	if c := s.chatLocked(chatID); c != nil {
		for _, m := range c.Messages {
			s.asm.Clear(m.ID)
		}
	}
	s.removeChatLocked(chatID)
	if s.selected == chatID {
		s.selected = ""
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// AppendQuestion adds an optimistic message with a time-derived id to
// the given chat and returns the id for stream correlation. Returns
// ok=false when the chat is unknown (deleted or never existed), which
// callers treat as a no-op.
func (s *Store) AppendQuestion(chatID, question string) (messageID string, ok bool) {
	s.mu.Lock()
	c := s.chatLocked(chatID)
	if c == nil {
		s.mu.Unlock()
		return "", false
	}

	id := s.nextMessageIDLocked()
	c.Messages = append(c.Messages, &Message{
		ID:         id,
		ChatID:     chatID,
		Question:   question,
		State:      AnswerPending,
		QTimestamp: time.Now(),
	})
	s.mu.Unlock()
	s.notify()
	return id, true
}

// MergeStreamChunk buffers one fragment for a message. The persisted
// Answer field is untouched until finalization so a disconnect cannot
// leave a half-written answer looking final.
func (s *Store) MergeStreamChunk(messageID, fragment string) {
	s.mergeChunk(messageID, fragment, -1)
}

// MergeStreamChunkSeq is MergeStreamChunk for sequence-tagged chunks;
// duplicates and out-of-order fragments are dropped.
func (s *Store) MergeStreamChunkSeq(messageID, fragment string, seq int) {
	s.mergeChunk(messageID, fragment, seq)
}

func (s *Store) mergeChunk(messageID, fragment string, seq int) {
	s.mu.Lock()
	msg := s.messageLocked(messageID)
	if msg == nil {
		s.mu.Unlock()
		s.logger.Debug("chunk for unknown message dropped", "message_id", messageID)
		return
	}
	if msg.State == AnswerFinalized || msg.State == AnswerFailed {
		s.mu.Unlock()
		s.logger.Warn("chunk arrived for terminal message", "message_id", messageID, "state", msg.State.String())
		return
	}
	s.mu.Unlock()

	if seq >= 0 {
		if !s.asm.AppendSeq(messageID, fragment, seq) {
			return
		}
	} else {
		s.asm.Append(messageID, fragment)
	}

	// Transition only after the assembler accepted the chunk, so a
	// message whose chunks were all dropped never shows as streaming.
	s.mu.Lock()
	if msg := s.messageLocked(messageID); msg != nil && msg.State == AnswerPending {
		msg.State = AnswerStreaming
	}
	s.mu.Unlock()
	s.notify()
}

// PartialAnswer returns the assembled in-progress text for a message.
func (s *Store) PartialAnswer(messageID string) string {
	return s.asm.CurrentText(messageID)
}

// FinalizeMessage resolves a message's answer from the assembler (or
// the authoritative text when the server sent one), attaches any
// structured payload, and then reconciles with the server to pull
// authoritative state. Reconcile failures are logged, not returned;
// the finalized answer stands either way.
func (s *Store) FinalizeMessage(ctx context.Context, messageID, authoritative string, orderlineJSON, previousJSON []byte) {
	text := s.asm.Finalize(messageID, authoritative)

	s.mu.Lock()
	msg := s.messageLocked(messageID)
	if msg == nil {
		s.mu.Unlock()
		s.logger.Debug("completion for unknown message dropped", "message_id", messageID)
		return
	}
	if msg.State == AnswerFailed {
		s.mu.Unlock()
		s.logger.Warn("completion arrived for failed message, keeping failure", "message_id", messageID)
		return
	}
	now := time.Now()
	msg.Answer = text
	msg.ATimestamp = &now
	msg.State = AnswerFinalized
	if len(orderlineJSON) > 0 {
		msg.OrderlineJSON = orderlineJSON
	}
	if len(previousJSON) > 0 {
		msg.PreviousJSON = previousJSON
	}
	s.mu.Unlock()
	s.notify()

	if err := s.ReconcileWithServer(ctx); err != nil {
		s.logger.Warn("post-finalize reconcile failed", "error", err)
	}
}

// FailMessage marks a non-terminal message as failed and discards its
// chunk buffer. The question stays visible with the failure reason in
// place of an answer; the user resolves it by resending.
func (s *Store) FailMessage(messageID, reason string) {
	s.mu.Lock()
	msg := s.messageLocked(messageID)
	if msg == nil || msg.State == AnswerFinalized || msg.State == AnswerFailed {
		s.mu.Unlock()
		return
	}
	msg.State = AnswerFailed
	msg.FailReason = reason
	s.mu.Unlock()

	s.asm.Clear(messageID)
	s.notify()
}

// FailInFlight fails every pending or streaming message. Called on
// disconnect and on server error events: no ordering guarantee holds
// across a reconnect, so an interrupted turn is failed rather than
// silently resumed.
func (s *Store) FailInFlight(reason string) {
	s.mu.Lock()
	var failed []string
	for _, c := range s.chats {
		for _, m := range c.Messages {
			if m.State == AnswerPending || m.State == AnswerStreaming {
				m.State = AnswerFailed
				m.FailReason = reason
				failed = append(failed, m.ID)
			}
		}
	}
	s.mu.Unlock()

	for _, id := range failed {
		s.asm.Clear(id)
	}
	if len(failed) > 0 {
		s.logger.Info("in-flight messages failed", "count", len(failed), "reason", reason)
		s.notify()
	}
}

// RecordFeedback submits the user's verdict on an answer. First write
// wins: once feedback is recorded, or while a submission is still in
// flight, the call is a no-op, never a second submission. Feedback for
// an unknown message is also a no-op.
func (s *Store) RecordFeedback(ctx context.Context, chatID, messageID, feedback string) error {
	s.mu.Lock()
	msg := s.messageLocked(messageID)
	if msg == nil || msg.IsFeedbackGiven {
		s.mu.Unlock()
		return nil
	}
	if _, inFlight := s.pendingFeedback[messageID]; inFlight {
		s.mu.Unlock()
		return nil
	}
	s.pendingFeedback[messageID] = struct{}{}
	userID := s.userID
	s.mu.Unlock()

	err := s.backend.SubmitFeedback(ctx, userID, chatID, messageID, feedback)

	s.mu.Lock()
	delete(s.pendingFeedback, messageID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if msg := s.messageLocked(messageID); msg != nil && !msg.IsFeedbackGiven {
		msg.IsFeedbackGiven = true
		msg.Feedback = feedback
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// ReconcileWithServer fetches the authoritative chat list and merges
// it into local state keyed by id. The server wins for the fields it
// owns, except that a message still mid-stream is left alone so an
// in-progress answer is never visually truncated. Optimistic chats
// awaiting confirmation survive even though the server omits them.
func (s *Store) ReconcileWithServer(ctx context.Context) error {
	remote, err := s.backend.ListChats(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	local := make(map[string]*Chat, len(s.chats))
	for _, c := range s.chats {
		local[c.ID] = c
	}

	merged := make([]*Chat, 0, len(remote))
	seen := make(map[string]struct{}, len(remote))
	for i := range remote {
		rc := &remote[i]
		seen[rc.ID] = struct{}{}
		merged = append(merged, s.mergeChatLocked(local[rc.ID], rc))
	}

	// Local-only chats: keep optimistic creates and anything with an
	// in-flight turn; drop the rest as confirmed-stale.
	for _, c := range s.chats {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		if _, pending := s.pendingCreates[c.ID]; pending || s.hasInFlightLocked(c) {
			merged = append(merged, c)
			continue
		}
		s.logger.Debug("dropping chat absent from server", "chat_id", c.ID)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.After(merged[j].CreatedAt)
		}
		return merged[i].ID > merged[j].ID
	})
	s.chats = merged
	s.mu.Unlock()
	s.notify()
	return nil
}

// HandleEvent is the stream.Handler entry point: every channel event
// lands here and is dispatched to the matching store operation.
func (s *Store) HandleEvent(ev stream.Event) {
	switch e := ev.(type) {
	case stream.ChunkEvent:
		if e.Seq >= 0 {
			s.MergeStreamChunkSeq(e.MessageID, e.Data, e.Seq)
		} else {
			s.MergeStreamChunk(e.MessageID, e.Data)
		}
	case stream.CompleteEvent:
		s.FinalizeMessage(context.Background(), e.MessageID, e.Answer, e.OrderlineJSON, e.PreviousJSON)
	case stream.ErrorEvent:
		s.FailInFlight(e.Message)
	case stream.DisconnectEvent:
		s.FailInFlight("connection lost: " + e.Reason)
	}
}

// mergeChatLocked folds one remote chat into its local counterpart,
// or converts it wholesale when there is no local record.
func (s *Store) mergeChatLocked(lc *Chat, rc *rest.Chat) *Chat {
	if lc == nil {
		lc = &Chat{ID: rc.ID}
	}
	lc.Name = rc.Name
	if rc.UserID != "" {
		lc.UserID = rc.UserID
	}
	if !rc.CreatedAt.IsZero() {
		lc.CreatedAt = rc.CreatedAt
	}

	byID := make(map[string]*Message, len(lc.Messages))
	for _, m := range lc.Messages {
		byID[m.ID] = m
	}

	msgs := make([]*Message, 0, len(rc.Messages))
	seen := make(map[string]struct{}, len(rc.Messages))
	for i := range rc.Messages {
		rm := &rc.Messages[i]
		seen[rm.ID] = struct{}{}
		msgs = append(msgs, s.mergeMessageLocked(byID[rm.ID], rm, lc.ID))
	}
	for _, m := range lc.Messages {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		if m.State == AnswerPending || m.State == AnswerStreaming || s.asm.Active(m.ID) {
			msgs = append(msgs, m)
			continue
		}
		s.logger.Debug("dropping message absent from server", "message_id", m.ID)
	}
	lc.Messages = msgs
	return lc
}

func (s *Store) mergeMessageLocked(lm *Message, rm *rest.Message, chatID string) *Message {
	if lm == nil {
		lm = &Message{ID: rm.ID, ChatID: chatID, State: AnswerPending}
	}
	// Mid-stream messages are off limits until finalized.
	if s.asm.Active(lm.ID) || lm.State == AnswerStreaming {
		return lm
	}

	lm.Question = rm.Question
	if !rm.QTimestamp.IsZero() {
		lm.QTimestamp = rm.QTimestamp
	}
	// The server only carries an answer once it has persisted one; an
	// empty remote answer never erases a locally finalized one.
	if rm.Answer != "" {
		lm.Answer = rm.Answer
		lm.State = AnswerFinalized
		lm.FailReason = ""
		if rm.ATimestamp != nil {
			lm.ATimestamp = rm.ATimestamp
		}
		if len(rm.OrderlineJSON) > 0 {
			lm.OrderlineJSON = rm.OrderlineJSON
		}
		if len(rm.PreviousJSON) > 0 {
			lm.PreviousJSON = rm.PreviousJSON
		}
	}
	if rm.IsFeedbackGiven && !lm.IsFeedbackGiven {
		lm.IsFeedbackGiven = true
		lm.Feedback = rm.Feedback
	}
	return lm
}

// afterAmbiguousFailure re-syncs after a transport-level failure whose
// server-side effect is unknown, rather than guessing.
func (s *Store) afterAmbiguousFailure(ctx context.Context, err error) {
	var re *rest.Error
	if !errors.As(err, &re) || re.StatusCode != 0 {
		return
	}
	if rerr := s.ReconcileWithServer(ctx); rerr != nil {
		s.logger.Warn("reconcile after ambiguous failure failed", "error", rerr)
	}
}

func (s *Store) chatLocked(id string) *Chat {
	for _, c := range s.chats {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *Store) messageLocked(id string) *Message {
	for _, c := range s.chats {
		if m := c.message(id); m != nil {
			return m
		}
	}
	return nil
}

func (s *Store) removeChatLocked(id string) {
	for i, c := range s.chats {
		if c.ID == id {
			s.chats = append(s.chats[:i], s.chats[i+1:]...)
			return
		}
	}
}

func (s *Store) hasInFlightLocked(c *Chat) bool {
	for _, m := range c.Messages {
		if m.State == AnswerPending || m.State == AnswerStreaming || s.asm.Active(m.ID) {
			return true
		}
	}
	return false
}

// nextMessageIDLocked derives a millisecond-timestamp id, bumped past
// the previous one so two sends in the same millisecond stay unique.
func (s *Store) nextMessageIDLocked() string {
	ms := time.Now().UnixMilli()
	if ms <= s.lastMsgID {
		ms = s.lastMsgID + 1
	}
	s.lastMsgID = ms
	return strconv.FormatInt(ms, 10)
}
