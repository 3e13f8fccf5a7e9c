package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"resumerag/internal/domain"
	"resumerag/internal/service"
)

// RAGPort is the TUI-facing subset of the RAG service.
type RAGPort interface {
	Chat(ctx context.Context, sessionID, query string) (service.ChatResult, error)
}

// Model is the Bubble Tea model for the terminal chat client.
type Model struct {
	service   RAGPort
	sessionID string
	input     textinput.Model
	viewport  viewport.Model
	answer    service.ChatResult
	header    string
	status    string
	cursor    int
	ready     bool
	lastQuery string
}

// New creates a chat client bound to one session. header describes the loaded document.
func New(svc RAGPort, sessionID, header string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the document and press Enter"
	ti.Focus()
	ti.CharLimit = 2000
	vp := viewport.New(0, 0)
	return Model{service: svc, sessionID: sessionID, input: ti, viewport: vp, header: header, status: "Loaded. Ask a question."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// answerMsg carries the result of an asynchronous chat call.
type answerMsg struct {
	query  string
	result service.ChatResult
	err    error
}

func (m Model) ask(q string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.service.Chat(context.Background(), m.sessionID, q)
		return answerMsg{query: q, result: res, err: err}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around answer and query boxes
		_, rh := answerBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header lines, status, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderAnswer())
		return m, nil
	case answerMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error (%s): %v", domain.CodeOf(msg.err), msg.err)
		} else {
			m.answer = msg.result
			m.cursor = 0
			m.lastQuery = msg.query
			m.status = fmt.Sprintf("Answer for %q with %d citation(s)", msg.query, len(msg.result.Citations))
		}
		m.viewport.SetContent(m.renderAnswer())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				m.input.SetValue("")
				m.status = "Thinking..."
				return m, m.ask(q)
			}
		case "down":
			if n := len(m.answer.Citations); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.renderAnswer())
				return m, nil
			}
		case "up":
			if n := len(m.answer.Citations); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.renderAnswer())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and the current answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := lipgloss.NewStyle().Bold(true).Render("Résumé Chat")
	header := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.header)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	answer := answerBoxStyle.Render(m.viewport.View())
	return title + "\n" + header + "\n" + answer + "\n" + input + "\n" + status
}

// renderAnswer shows the answer with resolved markers styled, followed by the selected citation.
func (m Model) renderAnswer() string {
	if len(m.answer.Segments) == 0 {
		return "No answer yet."
	}
	var selected *domain.Citation
	if len(m.answer.Citations) > 0 {
		selected = &m.answer.Citations[m.cursor]
	}

	var b strings.Builder
	for _, seg := range m.answer.Segments {
		if seg.Kind != domain.SegmentCitation || seg.Citation == nil {
			b.WriteString(seg.Text)
			continue
		}
		style := markerStyle
		if selected != nil && seg.Citation.ID == selected.ID {
			style = highlightStyle
		}
		b.WriteString(style.Render(seg.Text))
	}
	if selected == nil {
		return b.String()
	}
	bb := selected.BBox
	fmt.Fprintf(&b, "\n\nCitation %d/%d  [%d] page %d  bbox (%.1f, %.1f, %.1f, %.1f)\n",
		m.cursor+1, len(m.answer.Citations), selected.ID, selected.Page, bb.X0, bb.Y0, bb.X1, bb.Y1)
	b.WriteString(citationStyle.Render(selected.Text))
	return b.String()
}

var (
	answerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	markerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	citationStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)
