package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"ChatWidget/internal/chatbot"
	"ChatWidget/internal/session"
)

// Controller is the part of the chat controller the model drives
type Controller interface {
	Snapshot() session.Snapshot
	Accept(text string) (*chatbot.Exchange, session.Snapshot, error)
	Complete(ctx context.Context, ex *chatbot.Exchange)
	CheckBackendHealth(ctx context.Context) session.BackendStatus
	ClearTranscript(ctx context.Context)
	ToggleTheme(ctx context.Context) session.Theme
}

// chrome is the number of lines around the transcript viewport:
// header, notice area (3), input, status bar, help
const chrome = 7

// warningTTL is how long input warnings raised by the model stay visible
const warningTTL = 3 * time.Second

type renderMsg struct{ snap session.Snapshot }

type notifyMsg struct{ n chatbot.Notification }

type toastExpiredMsg struct{ id int }

type toast struct {
	id int
	n  chatbot.Notification
}

// Model is the Bubble Tea model for one chat session
type Model struct {
	ctx  context.Context
	ctrl Controller
	keys keyMap

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model

	snap   session.Snapshot
	styles Styles

	renderer      *glamour.TermRenderer
	rendererTheme session.Theme
	rendererWidth int

	toast       *toast
	nextToastID int

	width, height int
	ready         bool
}

// NewModel creates a model showing ctrl's current state. maxLength limits
// the input field; zero means no limit.
func NewModel(ctx context.Context, ctrl Controller, maxLength int) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.Prompt = "> "
	ti.CharLimit = maxLength
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot

	snap := ctrl.Snapshot()
	return Model{
		ctx:      ctx,
		ctrl:     ctrl,
		keys:     defaultKeyMap(),
		viewport: viewport.New(80, 20),
		input:    ti,
		spinner:  s,
		help:     help.New(),
		snap:     snap,
		styles:   NewStyles(snap.Theme),
	}
}

// Init starts the cursor, the spinner and the startup health check
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.run(func(ctx context.Context) {
		m.ctrl.CheckBackendHealth(ctx)
	}))
}

// run executes fn off the event loop. Results come back through the surface.
func (m Model) run(fn func(ctx context.Context)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		fn(ctx)
		return nil
	}
}

// Update handles a message
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chrome, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.help.Width = msg.Width
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Submit):
			// accepted here, on the event loop, so a second Enter sees it
			ex, snap, err := m.ctrl.Accept(m.input.Value())
			if err != nil {
				var tooLong *chatbot.MessageTooLongError
				if errors.As(err, &tooLong) {
					return m, m.showToast(chatbot.Notification{Level: chatbot.LevelWarning, Text: tooLong.Notice(), TTL: warningTTL})
				}
				return m, nil
			}
			m.input.Reset()
			m.apply(snap)
			return m, m.run(func(ctx context.Context) {
				m.ctrl.Complete(ctx, ex)
			})

		case key.Matches(msg, m.keys.Clear):
			return m, m.run(m.ctrl.ClearTranscript)

		case key.Matches(msg, m.keys.Theme):
			return m, m.run(func(ctx context.Context) {
				m.ctrl.ToggleTheme(ctx)
			})

		case key.Matches(msg, m.keys.Health):
			return m, m.run(func(ctx context.Context) {
				m.ctrl.CheckBackendHealth(ctx)
			})

		case key.Matches(msg, m.keys.PageUp):
			m.viewport.ViewUp()
			return m, nil

		case key.Matches(msg, m.keys.PageDown):
			m.viewport.ViewDown()
			return m, nil
		}

	case renderMsg:
		m.apply(msg.snap)
		return m, nil

	case notifyMsg:
		return m, m.showToast(msg.n)

	case toastExpiredMsg:
		if m.toast != nil && m.toast.id == msg.id {
			m.toast = nil
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// apply shows snap unless a newer snapshot is already displayed
func (m *Model) apply(snap session.Snapshot) {
	if snap.Version <= m.snap.Version {
		return
	}
	if snap.Theme != m.snap.Theme {
		m.styles = NewStyles(snap.Theme)
	}
	m.snap = snap
	m.refresh()
}

func (m *Model) showToast(n chatbot.Notification) tea.Cmd {
	m.nextToastID++
	id := m.nextToastID
	m.toast = &toast{id: id, n: n}
	return tea.Tick(n.TTL, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: id}
	})
}

// refresh re-renders the transcript into the viewport
func (m *Model) refresh() {
	m.ensureRenderer()
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m *Model) ensureRenderer() {
	width := max(m.viewport.Width-4, 20)
	if m.renderer != nil && m.rendererTheme == m.snap.Theme && m.rendererWidth == width {
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(string(m.snap.Theme)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		m.renderer = nil
		return
	}
	m.renderer = r
	m.rendererTheme = m.snap.Theme
	m.rendererWidth = width
}

func (m *Model) transcript() string {
	var b strings.Builder
	for _, msg := range m.snap.Transcript {
		if msg.Sender == session.SenderUser {
			b.WriteString(m.styles.UserLabel.Render("You"))
			b.WriteString("\n")
			b.WriteString(m.styles.User.MaxWidth(max(m.viewport.Width-2, 10)).Render(msg.Text))
			b.WriteString("\n\n")
			continue
		}
		b.WriteString(m.styles.BotLabel.Render("Bot"))
		b.WriteString("\n")
		b.WriteString(m.markdown(msg.Text))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) markdown(text string) string {
	if m.renderer == nil {
		return text + "\n"
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return strings.Trim(out, "\n") + "\n"
}

// View renders the screen
func (m Model) View() string {
	if !m.ready {
		return "Starting..."
	}

	header := m.styles.Header.Render("ChatWidget")

	var notice string
	switch {
	case m.toast != nil:
		notice = m.styles.Toast[m.toast.n.Level].Render(m.toast.n.Text)
	case m.snap.IsSending:
		notice = m.spinner.View() + m.styles.Typing.Render(" Bot is typing...")
	}
	notice = lipgloss.NewStyle().Height(3).MaxHeight(3).Render(notice)

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		notice,
		m.input.View(),
		m.statusBar(),
		m.help.View(m.keys),
	)
}

func (m Model) statusBar() string {
	status := m.styles.StatusBar.Render("backend: unknown")
	switch m.snap.Status {
	case session.StatusOnline:
		status = m.styles.Online.Render("backend: online")
	case session.StatusOffline:
		status = m.styles.Offline.Render("backend: offline")
	}
	rest := m.styles.StatusBar.Render(fmt.Sprintf(" | theme: %s | messages: %d", m.snap.Theme, len(m.snap.Transcript)))
	return status + rest
}
