package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"document-qa/internal/models"
)

// ChatPort is the TUI-facing subset of a chat session. Transcript is read
// once; the model keeps its own copy afterwards so rendering never waits on
// a pending answer.
type ChatPort interface {
	Ask(ctx context.Context, question string) (*models.PromptResponse, error)
	Transcript() []models.Turn
}

type answerMsg struct {
	resp *models.PromptResponse
	err  error
}

// Model is the Bubble Tea model for the terminal chat.
type Model struct {
	ctx           context.Context
	chat          ChatPort
	title         string
	summary       string
	sourceDisplay int
	input         textinput.Model
	viewport      viewport.Model
	turns         []models.Turn
	sources       []models.SourceSnippet
	status        string
	busy          bool
	ready         bool
}

func New(ctx context.Context, chat ChatPort, title, summary string, sourceDisplay int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:           ctx,
		chat:          chat,
		title:         title,
		summary:       summary,
		sourceDisplay: sourceDisplay,
		input:         ti,
		viewport:      vp,
		turns:         chat.Transcript(),
		status:        "Ready. Ctrl+C to quit.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := transcriptBoxStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + summary, status, input line
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.refresh()
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.sources = nil
		} else {
			m.status = fmt.Sprintf("Answered from %d sources", len(msg.resp.Sources))
			m.sources = msg.resp.Sources
			m.turns = append(m.turns, models.Turn{Role: models.RoleAssistant, Content: msg.resp.Answer})
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			m.busy = true
			m.status = "Thinking..."
			m.turns = append(m.turns, models.Turn{Role: models.RoleUser, Content: q})
			m.refresh()
			return m, m.ask(q)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	ctx, chat := m.ctx, m.chat
	return func() tea.Msg {
		resp, err := chat.Ask(ctx, question)
		return answerMsg{resp: resp, err: err}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render(m.title)
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	body := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + summary + "\n" + body + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	var b strings.Builder
	for _, t := range m.turns {
		if t.Role == models.RoleUser {
			b.WriteString(userStyle.Render("You: "))
		} else {
			b.WriteString(assistantStyle.Render("Assistant: "))
		}
		b.WriteString(t.Content)
		b.WriteString("\n\n")
	}

	n := min(m.sourceDisplay, len(m.sources))
	if n > 0 {
		b.WriteString(sourceStyle.Render("Sources"))
		b.WriteString("\n")
		for _, s := range m.sources[:n] {
			b.WriteString(sourceStyle.Render(fmt.Sprintf("- %s, page %d", s.Source, s.Page)))
			b.WriteString("\n  ")
			b.WriteString(snippet(s.Content, 200))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit]) + "..."
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	sourceStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)
