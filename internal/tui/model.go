// Package tui is the terminal chat front end for a document session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bull/docchat/internal/extract"
	"github.com/bull/docchat/internal/memory"
	"github.com/bull/docchat/internal/qa"
)

// SessionPort is the TUI-facing subset of qa.Session.
type SessionPort interface {
	Ingest(ctx context.Context, sources []extract.Source) (*qa.IngestResult, error)
	Ask(ctx context.Context, question string) (*qa.Answer, error)
	History() []memory.Turn
	Reset(ctx context.Context) error
	Status() qa.Status
}

// LoadFunc turns the arguments of /ingest into sources.
type LoadFunc func(paths []string) ([]extract.Source, error)

// Options configures the model.
type Options struct {
	Context context.Context // nil uses context.Background()
	Load    LoadFunc
	// Paths are ingested on start, and again whenever Changes fires.
	Paths   []string
	Changes <-chan []string
}

type role int

const (
	roleUser role = iota
	roleBot
	roleInfo
)

type entry struct {
	role role
	text string
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	session SessionPort
	opts    Options
	ctx     context.Context

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	entries []entry
	paths   []string // last successfully ingested arguments
	status  string
	busy    bool
	reload  bool // files changed while busy
	ready   bool
	turns   int // answered since the last successful ingest
}

// New creates a new chat model.
func New(session SessionPort, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or /help"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	return Model{
		session:  session,
		opts:     opts,
		ctx:      ctx,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Process documents with /ingest <paths>, then ask questions.",
	}
}

// Init starts the cursor blink, the initial ingest and the change listener.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, waitForChange(m.opts.Changes)}
	if len(m.opts.Paths) > 0 {
		cmds = append(cmds, func() tea.Msg { return startIngestMsg{paths: m.opts.Paths} })
	}
	return tea.Batch(cmds...)
}

// Update handles key, window and result messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ch := chatBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-ch)
		m.input.Width = max(10, msg.Width-6)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.Type {
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			if m.busy {
				m.status = "Still working, please wait."
				return m, nil
			}
			m.input.Reset()
			return m.handleLine(line)
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case startIngestMsg:
		if m.busy {
			m.reload = true
			return m, nil
		}
		return m.startIngest(msg.paths)

	case changedMsg:
		next := waitForChange(m.opts.Changes)
		if len(m.paths) == 0 {
			return m, next
		}
		if m.busy {
			m.reload = true
			return m, next
		}
		m.add(roleInfo, "Documents changed, re-processing.")
		m2, cmd := m.startIngest(m.paths)
		return m2, tea.Batch(cmd, next)

	case ingestMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Processing failed."
			m.add(roleInfo, describeError(msg.err))
		} else {
			m.paths = msg.paths
			m.status = fmt.Sprintf("Processed %d documents into %d chunks. Ask away.", len(msg.res.Documents), msg.res.Chunks)
			if msg.res.Chunks == 0 {
				m.status = "No text could be extracted from these documents."
			}
			m.add(roleInfo, m.status)
			if m.turns > 0 {
				m.add(roleInfo, "The conversation starts over.")
			}
			m.turns = 0
		}
		return m.afterOperation()

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Could not answer."
			m.add(roleInfo, describeError(msg.err))
		} else {
			m.turns++
			m.status = fmt.Sprintf("Turn %d.", msg.ans.Turn.Seq)
			m.add(roleBot, msg.ans.Text+citeSources(msg.ans))
		}
		return m.afterOperation()

	case resetMsg:
		m.busy = false
		m.paths = nil
		m.entries = nil
		m.turns = 0
		m.status = "Session reset. Process documents with /ingest <paths>."
		if msg.err != nil {
			m.add(roleInfo, describeError(msg.err))
		}
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// afterOperation re-ingests when files changed during the operation.
func (m Model) afterOperation() (tea.Model, tea.Cmd) {
	m.refresh()
	if m.reload && len(m.paths) > 0 {
		m.reload = false
		return m.startIngest(m.paths)
	}
	m.reload = false
	return m, nil
}

// View renders the header, conversation, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("docchat")
	chat := chatBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + chat + "\n" + input + "\n" + status
}

func (m *Model) add(r role, text string) {
	m.entries = append(m.entries, entry{role: r, text: text})
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

func (m Model) renderConversation() string {
	if len(m.entries) == 0 {
		return infoStyle.Render("No conversation yet.")
	}
	width := max(20, m.viewport.Width-4)
	blocks := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		switch e.role {
		case roleUser:
			blocks = append(blocks, userLabel.Render("You")+"\n"+userBubble.Width(width).Render(e.text))
		case roleBot:
			blocks = append(blocks, botLabel.Render("Bot")+"\n"+botBubble.Width(width).Render(e.text))
		default:
			blocks = append(blocks, infoStyle.Width(width).Render(e.text))
		}
	}
	return strings.Join(blocks, "\n\n")
}

func describeError(err error) string {
	var extractErr *qa.ExtractionError
	var embedErr *qa.EmbeddingError
	var genErr *qa.GenerationError
	switch {
	case errors.Is(err, qa.ErrNotReady):
		return "Please process documents first with /ingest <paths>."
	case errors.Is(err, qa.ErrEmptyInput):
		return "Please provide at least one document."
	case errors.As(err, &extractErr):
		return fmt.Sprintf("Could not read %s: %v", extractErr.Name, extractErr.Err)
	case errors.As(err, &embedErr):
		return "Embedding failed: " + embedErr.Err.Error()
	case errors.As(err, &genErr):
		return "Answer generation failed: " + genErr.Err.Error()
	default:
		return "Error: " + err.Error()
	}
}

// citeSources lists the distinct documents behind an answer.
func citeSources(ans *qa.Answer) string {
	seen := map[string]bool{}
	var names []string
	for _, r := range ans.Sources {
		if r.Chunk.Source != "" && !seen[r.Chunk.Source] {
			seen[r.Chunk.Source] = true
			names = append(names, r.Chunk.Source)
		}
	}
	if len(names) == 0 {
		return ""
	}
	return "\n\nSources: " + strings.Join(names, ", ")
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	chatBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	userLabel     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	botLabel      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	userBubble    = lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("236"))
	botBubble     = lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("235"))
)
