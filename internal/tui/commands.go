package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bull/docchat/internal/qa"
)

const helpText = `/ingest <paths...>  process files, directories or globs (replaces the index)
/history            show the remembered turns
/status             show what is indexed
/reset              drop the documents and the conversation
/quit               leave`

type (
	startIngestMsg struct{ paths []string }
	changedMsg     struct{ paths []string }
	ingestMsg      struct {
		paths []string
		res   *qa.IngestResult
		err   error
	}
	answerMsg struct {
		ans *qa.Answer
		err error
	}
	resetMsg struct{ err error }
)

// handleLine runs a slash command or asks a question.
func (m Model) handleLine(line string) (tea.Model, tea.Cmd) {
	if !strings.HasPrefix(line, "/") {
		return m.startAsk(line)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/ingest":
		if len(fields) < 2 {
			m.status = "Usage: /ingest <paths...>"
			return m, nil
		}
		return m.startIngest(fields[1:])
	case "/reset":
		m.busy = true
		m.status = "Resetting..."
		session, ctx := m.session, m.ctx
		return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
			return resetMsg{err: session.Reset(ctx)}
		})
	case "/history":
		m.add(roleInfo, renderHistory(m.session))
		return m, nil
	case "/status":
		m.add(roleInfo, renderStatus(m.session.Status()))
		return m, nil
	case "/help":
		m.add(roleInfo, helpText)
		return m, nil
	case "/quit", "/exit":
		return m, tea.Quit
	default:
		m.status = fmt.Sprintf("Unknown command %s. Try /help.", fields[0])
		return m, nil
	}
}

func (m Model) startAsk(question string) (tea.Model, tea.Cmd) {
	m.add(roleUser, question)
	m.busy = true
	m.status = "Thinking..."
	session, ctx := m.session, m.ctx
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		ans, err := session.Ask(ctx, question)
		return answerMsg{ans: ans, err: err}
	})
}

func (m Model) startIngest(paths []string) (Model, tea.Cmd) {
	if m.opts.Load == nil {
		m.status = "Loading documents is not configured."
		return m, nil
	}
	m.busy = true
	m.status = "Processing your documents..."
	session, ctx, load := m.session, m.ctx, m.opts.Load
	paths = append([]string(nil), paths...)
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		sources, err := load(paths)
		if err != nil {
			return ingestMsg{paths: paths, err: err}
		}
		res, err := session.Ingest(ctx, sources)
		return ingestMsg{paths: paths, res: res, err: err}
	})
}

// waitForChange blocks on the watcher channel. A nil channel never fires.
func waitForChange(changes <-chan []string) tea.Cmd {
	if changes == nil {
		return nil
	}
	return func() tea.Msg {
		paths, ok := <-changes
		if !ok {
			return nil
		}
		return changedMsg{paths: paths}
	}
}

func renderHistory(session SessionPort) string {
	turns := session.History()
	if len(turns) == 0 {
		return "No turns remembered yet."
	}
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. You: %s\n   Bot: %s", t.Seq, t.Question, t.Answer)
	}
	return b.String()
}

func renderStatus(st qa.Status) string {
	if st.State != qa.Ready {
		return "No documents processed."
	}
	return fmt.Sprintf("%d documents, %d chunks, %d/%d turns remembered, top %d passages, embedder %s",
		len(st.Documents), st.Chunks, st.Turns, st.Window, st.TopK, st.Embedder)
}
