package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/iris-chat/internal/model/chat"
	"github.com/zhouzirui/iris-chat/internal/service/session"
)

func authorName(m chat.Message) string {
	if m.IsFromUser {
		return "You"
	}
	return "Iris"
}

func attachmentLabel(a *chat.Attachment) string {
	name := a.DisplayName
	if name == "" {
		name = a.URL
	}
	if a.MimeType == "" {
		return fmt.Sprintf("[attachment %s]", name)
	}
	return fmt.Sprintf("[attachment %s (%s)]", name, a.MimeType)
}

// plainLine renders a message without styling.
func plainLine(m chat.Message) string {
	body := m.Text
	if m.Attachment != nil {
		body = strings.TrimSpace(attachmentLabel(m.Attachment) + " " + m.Text)
	}
	return authorName(m) + ": " + body
}

func renderMessages(messages []chat.Message, width int, theme uiTheme) string {
	if len(messages) == 0 {
		return theme.helpText.Render("No messages yet. Say hello to Iris.")
	}

	body := lipgloss.NewStyle().Width(max(width, 10))
	var b strings.Builder
	for i, m := range messages {
		author := theme.assistant.Render(authorName(m))
		if m.IsFromUser {
			author = theme.user.Render(authorName(m))
		}
		meta := theme.meta.Render(fmt.Sprintf("#%d · %s", i+1, m.Time().Format("15:04")))
		b.WriteString(author + " " + meta + "\n")

		if m.Attachment != nil {
			b.WriteString(theme.meta.Render(attachmentLabel(m.Attachment)) + "\n")
		}
		if m.Text != "" {
			b.WriteString(body.Render(m.Text) + "\n")
		}
		if i < len(messages)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// formatCountdown renders seconds as mm:ss.
func formatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func sessionLabel(s chat.TimedSession) string {
	return fmt.Sprintf("♪ sound #%d · %s left · /stop", s.SoundIndex, formatCountdown(s.RemainingSeconds))
}

func awaitingLabel(s session.Snapshot) string {
	if s.SlowResponse {
		return "Iris is taking longer than usual..."
	}
	return "Iris is typing..."
}
