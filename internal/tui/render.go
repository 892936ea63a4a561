package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/orderchat/orderchat/internal/conversation"
	"github.com/orderchat/orderchat/internal/orderline"
)

var (
	questionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	answerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	partialStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	feedbackStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	changedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
)

const orderColumnWidth = 18

// renderOrderTable renders a parsed order-line payload as fixed-width
// text. Degraded payloads render the raw server text, changed rows get
// a leading marker.
func renderOrderTable(table *orderline.Table) string {
	if table.Degraded() {
		return "Message from Server: " + table.Raw
	}
	if len(table.Rows) == 0 {
		return "No order data available"
	}

	var b strings.Builder

	b.WriteString("  ")
	for _, col := range table.Columns {
		b.WriteString(pad(orderline.ColumnTitle(col)))
	}
	b.WriteString("\n")

	for _, row := range table.Rows {
		marker := "  "
		if row.Changed {
			marker = changedStyle.Render("* ")
		}
		b.WriteString(marker)
		for _, col := range table.Columns {
			b.WriteString(pad(row.Cells[col]))
		}
		b.WriteString("\n")
	}

	if n := table.ChangedRows(); n > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("%d row(s) changed from previous version", n)))
		b.WriteString("\n")
	}
	return b.String()
}

func pad(s string) string {
	if len(s) >= orderColumnWidth {
		return s[:orderColumnWidth-1] + " "
	}
	return s + strings.Repeat(" ", orderColumnWidth-len(s))
}

// answerBody resolves what to show under a question for each state of
// the answer lifecycle.
func answerBody(msg *conversation.Message, partial string, markdown func(string) string) string {
	switch msg.State {
	case conversation.AnswerFailed:
		reason := msg.FailReason
		if reason == "" {
			reason = "delivery failed"
		}
		return errorStyle.Render("✗ " + reason + " (resend to retry)")
	case conversation.AnswerStreaming:
		return partialStyle.Render(partial) + dimStyle.Render(" ▌")
	case conversation.AnswerPending:
		return dimStyle.Render("thinking…")
	default:
		body := answerStyle.Render(markdown(msg.Answer))
		if len(msg.OrderlineJSON) > 0 {
			table := orderline.Parse(msg.OrderlineJSON, msg.PreviousJSON)
			body += "\n" + renderOrderTable(table)
		}
		if msg.IsFeedbackGiven {
			body += "\n" + feedbackStyle.Render("feedback: "+msg.Feedback)
		}
		return body
	}
}

// renderThread renders a whole chat. partials supplies the in-flight
// text per message id, markdown the finalized-answer formatter.
func renderThread(chat *conversation.Chat, partials func(string) string, markdown func(string) string) string {
	if chat == nil {
		return dimStyle.Render("No chat selected. Press ctrl+n to start one.")
	}

	var b strings.Builder
	for _, msg := range chat.Messages {
		b.WriteString(questionStyle.Render("You: " + msg.Question))
		b.WriteString("\n")
		b.WriteString(answerBody(msg, partials(msg.ID), markdown))
		b.WriteString("\n\n")
	}
	if len(chat.Messages) == 0 {
		b.WriteString(dimStyle.Render("No messages yet. Ask about an order."))
	}
	return b.String()
}
