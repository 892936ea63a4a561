// Package tui is the terminal chat screen: a read-only observer of the
// conversation store that renders the thread, streams partial answers
// as they assemble, and turns key presses into store and session
// operations.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/orderchat/orderchat/internal/app"
	"github.com/orderchat/orderchat/internal/conversation"
	"github.com/orderchat/orderchat/internal/stream"
)

const (
	inputHeight    = 3
	statusHeight   = 2
	inputCharLimit = 4000
)

type (
	// storeChangedMsg arrives whenever the conversation store notifies
	// its observers.
	storeChangedMsg struct{}

	connectResultMsg struct{ err error }
	opFailedMsg      struct{ err error }
	chatCreatedMsg   struct{ id string }
)

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	app    *app.App
	chatID string

	view  viewport.Model
	input textarea.Model
	spin  spinner.Model
	md    *markdownRenderer

	width  int
	height int
	ready  bool

	lastErr error
}

// NewModel builds the chat screen over an assembled application.
func NewModel(a *app.App, chatID string) Model {
	input := textarea.New()
	input.Placeholder = "Ask about an order…"
	input.CharLimit = inputCharLimit
	input.SetHeight(inputHeight - 1)
	input.ShowLineNumbers = false
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return Model{
		app:    a,
		chatID: chatID,
		view:   viewport.New(80, 20),
		input:  input,
		spin:   spin,
		md:     newMarkdownRenderer(80),
	}
}

// ChatID returns the chat the screen currently shows; Run persists it
// on exit.
func (m Model) ChatID() string { return m.chatID }

// Init connects the streaming session and starts the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.connectCmd(), m.spin.Tick, textarea.Blink)
}

// Update processes one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		model, cmd := m.handleKey(msg)
		return model, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.view.Width = msg.Width
		m.view.Height = msg.Height - inputHeight - statusHeight
		m.input.SetWidth(msg.Width)
		m.md.UpdateWidth(msg.Width - 2)
		m.ready = true
		m.refresh()

	case storeChangedMsg:
		m.refresh()

	case connectResultMsg:
		m.lastErr = msg.err
		m.refresh()

	case opFailedMsg:
		m.lastErr = msg.err

	case chatCreatedMsg:
		m.chatID = msg.id
		m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.view, cmd = m.view.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "enter":
		question := strings.TrimSpace(m.input.Value())
		if question == "" {
			return m, nil
		}
		m.input.Reset()
		m.lastErr = nil
		return m, m.sendCmd(question)

	case "ctrl+n":
		return m, m.newChatCmd()

	case "tab":
		m.cycleChat(1)
		m.refresh()
		return m, nil

	case "shift+tab":
		m.cycleChat(-1)
		m.refresh()
		return m, nil

	case "ctrl+g":
		return m, m.feedbackCmd(conversation.FeedbackPositive)

	case "ctrl+b":
		return m, m.feedbackCmd(conversation.FeedbackNegative)
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.view, cmd = m.view.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// View renders the screen.
func (m Model) View() string {
	if !m.ready {
		return "loading…"
	}
	return m.view.View() + "\n" + m.statusLine() + "\n" + m.input.View()
}

func (m *Model) refresh() {
	chat, _ := m.app.Store.ChatByID(m.chatID)
	atBottom := m.view.AtBottom()
	m.view.SetContent(renderThread(chat, m.app.Store.PartialAnswer, m.md.Render))
	if atBottom {
		m.view.GotoBottom()
	}
}

func (m Model) statusLine() string {
	state := m.app.Session.State().String()
	name := "no chat"
	if chat, ok := m.app.Store.ChatByID(m.chatID); ok {
		name = chat.Name
	}

	left := headerStyle.Render(name) + dimStyle.Render("  ["+state+"]")
	if m.streamingActive() {
		left += "  " + m.spin.View()
	}
	if m.lastErr != nil {
		left += "  " + errorStyle.Render(m.lastErr.Error())
	}
	help := dimStyle.Render("enter send · tab switch chat · ctrl+n new · ctrl+g/ctrl+b feedback · ctrl+c quit")
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(help)
	if gap < 1 {
		return left
	}
	return left + strings.Repeat(" ", gap) + help
}

func (m Model) streamingActive() bool {
	chat, ok := m.app.Store.ChatByID(m.chatID)
	if !ok {
		return false
	}
	for _, msg := range chat.Messages {
		if msg.State == conversation.AnswerPending || msg.State == conversation.AnswerStreaming {
			return true
		}
	}
	return false
}

func (m *Model) cycleChat(dir int) {
	chats := m.app.Store.Chats()
	if len(chats) == 0 {
		return
	}
	idx := 0
	for i, c := range chats {
		if c.ID == m.chatID {
			idx = i
			break
		}
	}
	idx = (idx + dir + len(chats)) % len(chats)
	m.chatID = chats[idx].ID
	m.app.Store.SelectChat(m.chatID)
}

func (m Model) connectCmd() tea.Cmd {
	return func() tea.Msg {
		return connectResultMsg{err: m.app.Session.Connect(context.Background())}
	}
}

func (m Model) sendCmd(question string) tea.Cmd {
	chatID := m.chatID
	return func() tea.Msg {
		id, ok := m.app.Store.AppendQuestion(chatID, question)
		if !ok {
			return nil
		}
		err := m.app.Session.SendQuery(context.Background(), stream.Query{
			UserID:    m.app.Config.UserID,
			Question:  question,
			ChatID:    chatID,
			MessageID: id,
		})
		if err != nil {
			m.app.Store.FailMessage(id, err.Error())
			return opFailedMsg{err: err}
		}
		return nil
	}
}

func (m Model) newChatCmd() tea.Cmd {
	return func() tea.Msg {
		chat, err := m.app.Store.CreateChat(context.Background())
		if err != nil {
			return opFailedMsg{err: err}
		}
		m.app.Store.SelectChat(chat.ID)
		return chatCreatedMsg{id: chat.ID}
	}
}

func (m Model) feedbackCmd(feedback string) tea.Cmd {
	chat, ok := m.app.Store.ChatByID(m.chatID)
	if !ok {
		return nil
	}
	var target string
	for i := len(chat.Messages) - 1; i >= 0; i-- {
		msg := chat.Messages[i]
		if msg.State == conversation.AnswerFinalized && !msg.IsFeedbackGiven {
			target = msg.ID
			break
		}
	}
	if target == "" {
		return nil
	}

	chatID := m.chatID
	return func() tea.Msg {
		if err := m.app.Store.RecordFeedback(context.Background(), chatID, target, feedback); err != nil {
			return opFailedMsg{err: err}
		}
		return nil
	}
}

// Run opens the chat screen, restoring the chat selected in the last
// run, and persists the selection on exit. The streaming session is
// closed on every exit path.
func Run(ctx context.Context, a *app.App) error {
	defer a.Session.Close()

	if err := a.Store.ReconcileWithServer(ctx); err != nil {
		a.Logger.Warn("initial chat fetch failed", "error", err)
	}

	chatID := restoreChat(a)
	if chatID == "" {
		chat, err := a.Store.CreateChat(ctx)
		if err != nil {
			return err
		}
		chatID = chat.ID
	}
	a.Store.SelectChat(chatID)

	p := tea.NewProgram(NewModel(a, chatID), tea.WithAltScreen())
	a.Store.Subscribe(func() { p.Send(storeChangedMsg{}) })

	final, err := p.Run()
	if err != nil {
		return err
	}
	if model, ok := final.(Model); ok && model.ChatID() != "" {
		if serr := conversation.SaveCurrentChatID(model.ChatID()); serr != nil {
			a.Logger.Warn("saving current chat failed", "error", serr)
		}
	}
	return nil
}

// restoreChat picks the chat to show: the persisted one when it still
// exists, otherwise the newest.
func restoreChat(a *app.App) string {
	saved, err := conversation.LoadCurrentChatID()
	if err != nil {
		a.Logger.Warn("reading current chat state failed", "error", err)
	}
	if saved != "" {
		if _, ok := a.Store.ChatByID(saved); ok {
			return saved
		}
	}
	if chats := a.Store.Chats(); len(chats) > 0 {
		return chats[0].ID
	}
	return ""
}
