package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Candyboy02/bridge-link/internal/link"
	"github.com/Candyboy02/bridge-link/internal/session"
	"github.com/Candyboy02/bridge-link/internal/transfer"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ChatOptions wires the chat screen to a session.
type ChatOptions struct {
	RoomID string
	Events <-chan session.Event
	// Tracker receives every event; it may be shared with the caller to
	// print a summary afterwards.
	Tracker *Tracker

	SendText func(content string) error
	// SendFile validates and sends the file at path. It blocks until the
	// send finishes and runs off the UI goroutine.
	SendFile func(path string) error
	// SaveFile stores a received file and returns where it went.
	SaveFile func(f transfer.File) (string, error)
}

type lineKind int

const (
	lineSelf lineKind = iota
	linePeer
	lineSystem
	lineError
)

type chatLine struct {
	kind lineKind
	text string
	at   time.Time
}

type eventMsg session.Event

type eventsClosedMsg struct{}

type sendDoneMsg struct {
	name string
	err  error
}

type savedMsg struct {
	name string
	path string
	err  error
}

// ChatModel is the Bubble Tea model of the chat screen.
type ChatModel struct {
	opts ChatOptions

	input    textinput.Model
	viewport viewport.Model
	bar      progress.Model
	spinner  spinner.Model

	lines    []chatLine
	state    link.State
	ready    bool
	sending  bool
	progress *transfer.Progress
	width    int
	quitting bool
}

// NewChatModel returns the chat screen for opts.
func NewChatModel(opts ChatOptions) *ChatModel {
	if opts.Tracker == nil {
		opts.Tracker = NewTracker()
	}

	ti := textinput.New()
	ti.Placeholder = "Type a message, /send <path> or /quit"
	ti.CharLimit = 4096
	ti.Prompt = "› "

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = SpinnerStyle

	return &ChatModel{
		opts:     opts,
		input:    ti,
		viewport: viewport.New(80, 20),
		bar: progress.New(
			progress.WithGradient(ProgressStart, ProgressEnd),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
		spinner: s,
		state:   link.StateIdle,
		width:   80,
	}
}

// RunChat runs the chat screen until the user quits or the session ends.
func RunChat(opts ChatOptions) error {
	_, err := tea.NewProgram(NewChatModel(opts), tea.WithAltScreen()).Run()
	return err
}

func (m *ChatModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

func (m *ChatModel) listen() tea.Cmd {
	events := m.opts.Events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m, m.submit()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(3, msg.Height-5)
		m.input.Width = max(10, msg.Width-4)
		m.bar.Width = max(10, min(40, msg.Width-40))
		m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case eventMsg:
		cmds = append(cmds, m.handleEvent(session.Event(msg)), m.listen())

	case eventsClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case sendDoneMsg:
		m.sending = false
		m.progress = nil
		if msg.err != nil {
			m.opts.Tracker.Fail(msg.name, msg.err)
			m.addLine(lineError, fmt.Sprintf("Send failed: %v", msg.err))
		}

	case savedMsg:
		if msg.err != nil {
			m.addLine(lineError, fmt.Sprintf("Could not save %s: %v", msg.name, msg.err))
		} else {
			m.opts.Tracker.Saved(msg.name, msg.path)
			m.addLine(lineSystem, fmt.Sprintf("Saved to %s", msg.path))
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit handles the input line.
func (m *ChatModel) submit() tea.Cmd {
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return nil
	}
	m.input.Reset()

	switch {
	case value == "/quit":
		m.quitting = true
		return tea.Quit

	case strings.HasPrefix(value, "/send"):
		path := strings.TrimSpace(strings.TrimPrefix(value, "/send"))
		if path == "" {
			m.addLine(lineError, "Usage: /send <path>")
			return nil
		}
		if !m.ready {
			m.addLine(lineError, "Not connected yet")
			return nil
		}
		if m.sending {
			m.addLine(lineError, "A file is already being sent")
			return nil
		}
		m.sending = true
		send := m.opts.SendFile
		return func() tea.Msg {
			return sendDoneMsg{name: filepath.Base(path), err: send(path)}
		}

	default:
		if !m.ready {
			m.addLine(lineError, "Not connected yet")
			return nil
		}
		if err := m.opts.SendText(value); err != nil {
			m.addLine(lineError, fmt.Sprintf("Message not sent: %v", err))
			return nil
		}
		m.addLine(lineSelf, value)
		return nil
	}
}

func (m *ChatModel) handleEvent(ev session.Event) tea.Cmd {
	m.opts.Tracker.Observe(ev)

	switch ev.Kind {
	case session.EventState:
		if ev.State != link.StateClosed {
			m.state = ev.State
		}
	case session.EventReady:
		m.ready = true
		m.state = link.StateConnected
		return m.input.Focus()
	case session.EventText:
		m.addLine(linePeer, ev.Text)
	case session.EventSystem:
		m.addLine(lineSystem, ev.Text)
	case session.EventProgress:
		p := ev.Progress
		m.progress = &p
	case session.EventFileSent:
		m.progress = nil
	case session.EventFileReceived:
		m.progress = nil
		f := ev.File
		save := m.opts.SaveFile
		return func() tea.Msg {
			path, err := save(f)
			return savedMsg{name: f.Name, path: path, err: err}
		}
	}
	return nil
}

func (m *ChatModel) addLine(kind lineKind, text string) {
	m.lines = append(m.lines, chatLine{kind: kind, text: text, at: time.Now()})
	m.refresh()
}

func (m *ChatModel) refresh() {
	var b strings.Builder
	for i, l := range m.lines {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(renderLine(l))
	}
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(b.String()))
	m.viewport.GotoBottom()
}

func renderLine(l chatLine) string {
	stamp := MutedStyle.Render(l.at.Format("15:04"))
	switch l.kind {
	case lineSelf:
		return fmt.Sprintf("%s %s %s", stamp, SelfStyle.Render("You:"), l.text)
	case linePeer:
		return fmt.Sprintf("%s %s %s", stamp, PeerStyle.Render("Peer:"), l.text)
	case lineError:
		return fmt.Sprintf("%s %s", stamp, ErrorStyle.Render(l.text))
	default:
		return fmt.Sprintf("%s %s", stamp, SystemStyle.Render("· "+l.text))
	}
}

func (m *ChatModel) badge() string {
	switch m.state {
	case link.StateConnected:
		return BadgeStyle(Success).Render("connected")
	case link.StateDisconnectedConfirmed:
		return BadgeStyle(Error).Render("disconnected")
	default:
		return BadgeStyle(Warning).Render("waiting")
	}
}

func (m *ChatModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	title := HeaderStyle.Render(fmt.Sprintf("BridgeLink · room %s", m.opts.RoomID))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, title, " ", m.badge()))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if p := m.progress; p != nil {
		icon := IconSend
		if p.Direction == transfer.Inbound {
			icon = IconReceive
		}
		b.WriteString(fmt.Sprintf("%s %s %s %3d%%", icon, truncate(p.Name, 24), m.bar.ViewAs(float64(p.Percent)/100), p.Percent))
	}
	b.WriteString("\n")

	if m.ready {
		b.WriteString(m.input.View())
	} else {
		b.WriteString(fmt.Sprintf("%s %s", m.spinner.View(), MutedStyle.Render("Waiting for the peer to connect...")))
	}
	b.WriteString("\n")
	b.WriteString(FooterStyle.Render("/send <path> · /quit · ctrl+c"))

	return b.String()
}
