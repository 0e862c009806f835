package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/zhouzirui/iris-chat/internal/model/chat"
	"github.com/zhouzirui/iris-chat/internal/service/connection"
	"github.com/zhouzirui/iris-chat/internal/service/session"
	"github.com/zhouzirui/iris-chat/internal/service/upload"
)

const helpLine = "/attach <path> [mime] · /delete <n> · /clear · /stop · /quit"

type snapshotMsg session.Snapshot

type actionDoneMsg struct {
	status string
	err    error
}

type uiTheme struct {
	header      lipgloss.Style
	panel       lipgloss.Style
	user        lipgloss.Style
	assistant   lipgloss.Style
	meta        lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	session     lipgloss.Style
	helpText    lipgloss.Style
	connection  map[chat.ConnectionState]lipgloss.Style
}

func newTheme() uiTheme {
	violet := lipgloss.Color("#b48ead")
	teal := lipgloss.Color("#88c0d0")
	green := lipgloss.Color("#a3be8c")
	amber := lipgloss.Color("#ebcb8b")
	red := lipgloss.Color("#bf616a")
	muted := lipgloss.Color("#7b88a1")

	return uiTheme{
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(violet).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),
		user:        lipgloss.NewStyle().Foreground(teal).Bold(true),
		assistant:   lipgloss.NewStyle().Foreground(violet).Bold(true),
		meta:        lipgloss.NewStyle().Foreground(muted),
		status:      lipgloss.NewStyle().Foreground(teal),
		errorStatus: lipgloss.NewStyle().Foreground(red).Bold(true),
		session:     lipgloss.NewStyle().Foreground(green).Bold(true),
		helpText:    lipgloss.NewStyle().Foreground(muted),
		connection: map[chat.ConnectionState]lipgloss.Style{
			chat.Disconnected: lipgloss.NewStyle().Foreground(muted),
			chat.Connecting:   lipgloss.NewStyle().Foreground(amber),
			chat.Connected:    lipgloss.NewStyle().Foreground(green),
			chat.Failed:       lipgloss.NewStyle().Foreground(red),
		},
	}
}

type model struct {
	ctx   context.Context
	coord *session.Coordinator

	snap       session.Snapshot
	statusLine string
	statusErr  bool

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model

	theme uiTheme
}

func newModel(ctx context.Context, coord *session.Coordinator) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Message Iris"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#b48ead"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true

	return model{
		ctx:        ctx,
		coord:      coord,
		snap:       coord.Snapshot(),
		statusLine: helpLine,
		input:      input,
		timeline:   timeline,
		spinner:    sp,
		theme:      newTheme(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitSnapshot(m.coord.Updates()),
	)
}

// waitSnapshot blocks on the next published snapshot.
func waitSnapshot(ch <-chan session.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		m.renderTimeline()
		cmds = append(cmds, waitSnapshot(m.coord.Updates()))
	case actionDoneMsg:
		if msg.err != nil {
			m.statusLine = msg.err.Error()
			m.statusErr = true
		} else if msg.status != "" {
			m.statusLine = msg.status
			m.statusErr = false
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderTimeline()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			return m, cmd
		case "enter":
			line := m.input.Value()
			m.input.Reset()
			in, err := parseInput(line)
			if err != nil {
				m.statusLine = err.Error()
				m.statusErr = true
				return m, nil
			}
			if in.kind == inputQuit {
				return m, tea.Quit
			}
			return m, m.runInput(in)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *model) resize() {
	// header, status line, input panel and the timeline border
	chrome := 1 + 1 + 3 + 2
	m.timeline.Width = max(m.width-4, 10)
	m.timeline.Height = max(m.height-chrome, 3)
	m.input.Width = max(m.width-6, 10)
}

func (m *model) renderTimeline() {
	m.timeline.SetContent(renderMessages(m.snap.Messages, m.timeline.Width, m.theme))
	m.timeline.GotoBottom()
}

func (m model) runInput(in input) tea.Cmd {
	ctx := m.ctx
	coord := m.coord
	messages := m.snap.Messages

	switch in.kind {
	case inputSend:
		return func() tea.Msg {
			err := coord.SendUserMessage(ctx, in.text)
			if errors.Is(err, connection.ErrNotConnected) {
				return actionDoneMsg{err: errors.New("not connected, message not sent; reconnecting")}
			}
			return actionDoneMsg{err: err}
		}
	case inputStop:
		return func() tea.Msg {
			coord.StopSession()
			return actionDoneMsg{status: "session stopped"}
		}
	case inputClear:
		return func() tea.Msg {
			return actionDoneMsg{status: "conversation cleared", err: coord.ClearHistory(ctx)}
		}
	case inputDelete:
		if in.index < 1 || in.index > len(messages) {
			return func() tea.Msg {
				return actionDoneMsg{err: fmt.Errorf("no message #%d", in.index)}
			}
		}
		id := messages[in.index-1].ID
		return func() tea.Msg {
			return actionDoneMsg{status: fmt.Sprintf("deleted message #%d", in.index), err: coord.DeleteMessage(ctx, id)}
		}
	case inputAttach:
		return func() tea.Msg {
			f := upload.LocalFile(in.path)
			return actionDoneMsg{status: "attached " + f.Name, err: coord.AttachFile(ctx, f, in.mimeType)}
		}
	case inputHelp:
		return func() tea.Msg {
			return actionDoneMsg{status: helpLine}
		}
	}
	return nil
}

func (m model) View() string {
	header := m.theme.header.Render("Iris") + " " +
		m.theme.connection[m.snap.Connection].Render("● "+m.snap.Connection.String())
	if m.snap.Session.Active {
		header += "  " + m.theme.session.Render(sessionLabel(m.snap.Session))
	}

	var status string
	switch {
	case m.snap.AwaitingReply:
		status = m.theme.status.Render(m.spinner.View() + " " + awaitingLabel(m.snap))
	case m.statusErr:
		status = m.theme.errorStatus.Render(m.statusLine)
	default:
		status = m.theme.helpText.Render(m.statusLine)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.theme.panel.Render(m.timeline.View()),
		status,
		m.theme.panel.Render(m.input.View()),
	)
}

func runInteractiveChat(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.start(ctx); err != nil {
		return err
	}

	p := tea.NewProgram(newModel(ctx, a.coord), tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat interface: %w", err)
	}
	logger.Info("chat interface closed", zap.Strings("calls_placed", a.calls.Placed()))
	return nil
}

type inputKind int

const (
	inputSend inputKind = iota
	inputQuit
	inputClear
	inputStop
	inputDelete
	inputAttach
	inputHelp
)

type input struct {
	kind     inputKind
	text     string
	index    int
	path     string
	mimeType string
}

// parseInput turns one line of the input box into an action. Lines that do
// not start with a slash are messages.
func parseInput(line string) (input, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return input{kind: inputSend, text: line}, nil
	}

	fields := strings.Fields(trimmed)
	switch fields[0] {
	case "/quit", "/exit":
		return input{kind: inputQuit}, nil
	case "/clear":
		return input{kind: inputClear}, nil
	case "/stop":
		return input{kind: inputStop}, nil
	case "/help":
		return input{kind: inputHelp}, nil
	case "/delete":
		if len(fields) != 2 {
			return input{}, errors.New("usage: /delete <n>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return input{}, fmt.Errorf("usage: /delete <n>: %q is not a number", fields[1])
		}
		return input{kind: inputDelete, index: n}, nil
	case "/attach":
		if len(fields) < 2 || len(fields) > 3 {
			return input{}, errors.New("usage: /attach <path> [mime]")
		}
		in := input{kind: inputAttach, path: fields[1]}
		if len(fields) == 3 {
			in.mimeType = fields[2]
		}
		return in, nil
	default:
		return input{}, fmt.Errorf("unknown command %s", fields[0])
	}
}
