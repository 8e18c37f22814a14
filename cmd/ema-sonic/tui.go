package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/koscakluka/ema-sonic/core/events"
	"github.com/koscakluka/ema-sonic/core/protocol"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)

	noteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)
)

type eventMsg struct{ event events.Event }
type statusMsg string
type errMsg struct{ err error }

type transcriptLine struct {
	speaker string
	text    string
	note    bool
}

type model struct {
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	sendText func(string) error

	lines        []transcriptLine
	status       string
	usage        string
	toolsRunning int
	err          error

	width  int
	height int
	ready  bool
}

func newModel(sendText func(string) error) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ti := textinput.New()
	ti.Placeholder = "Speak, or type and press enter..."
	ti.CharLimit = 500
	ti.Width = 60
	ti.Focus()

	return model{
		input:    ti,
		spinner:  s,
		sendText: sendText,
		status:   "connecting",
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.SetValue("")
			if err := m.sendText(text); err != nil {
				m.err = err
			} else {
				m.appendLine(transcriptLine{speaker: "you (typed)", text: text})
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		viewportHeight := max(msg.Height-5, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, viewportHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = viewportHeight
		}
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()

	case eventMsg:
		m.handleEvent(msg.event)

	case statusMsg:
		m.status = string(msg)

	case errMsg:
		m.err = msg.err

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) handleEvent(event events.Event) {
	switch e := event.(type) {
	case events.SessionStarted:
		m.status = "listening"
		m.err = nil
	case events.SessionClosed:
		m.status = "disconnected"
	case events.SessionFaulted:
		m.status = "connection lost"
		m.err = fmt.Errorf("%s", e.Error)
	case events.TurnCompleted:
		speaker := "assistant"
		if protocol.Role(e.Role) == protocol.RoleUser {
			speaker = "you"
		}
		text := e.Text
		if e.Interrupted {
			text += " …"
		}
		m.appendLine(transcriptLine{speaker: speaker, text: text})
	case events.AssistantPlaybackInterrupted:
		m.appendLine(transcriptLine{text: "interrupted", note: true})
	case events.ToolCallStarted:
		m.toolsRunning++
		m.appendLine(transcriptLine{text: "calling " + e.Name, note: true})
	case events.ToolCallCompleted:
		m.toolsRunning = max(m.toolsRunning-1, 0)
	case events.ToolCallFailed:
		m.toolsRunning = max(m.toolsRunning-1, 0)
		m.appendLine(transcriptLine{text: e.Name + " failed: " + e.Error, note: true})
	case events.UsageUpdated:
		m.usage = fmt.Sprintf("%d tokens", e.TotalTokens)
	}
}

func (m *model) appendLine(line transcriptLine) {
	m.lines = append(m.lines, line)
	m.refresh()
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m model) renderTranscript() string {
	width := max(m.width-2, 20)

	var b strings.Builder
	for _, line := range m.lines {
		if line.note {
			b.WriteString(noteStyle.Render(wordwrap.String("· "+line.text, width)))
			b.WriteString("\n")
			continue
		}

		style := assistantStyle
		if strings.HasPrefix(line.speaker, "you") {
			style = userStyle
		}
		b.WriteString(style.Render(line.speaker))
		b.WriteString("\n")
		b.WriteString(wordwrap.String(line.text, width))
		b.WriteString("\n\n")
	}
	return b.String()
}

func (m model) View() string {
	if !m.ready {
		return m.spinner.View() + " starting..."
	}

	status := m.status
	if m.toolsRunning > 0 {
		status = m.spinner.View() + " running tools"
	}
	bar := status
	if m.usage != "" {
		bar += " · " + m.usage
	}
	if m.err != nil {
		bar += " · " + errorStyle.Render(m.err.Error())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("ema-sonic"),
		m.viewport.View(),
		m.input.View(),
		statusBarStyle.Width(m.width).Render(bar),
	)
}
