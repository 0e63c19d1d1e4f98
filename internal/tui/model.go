package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragkb/internal/domain"
	"ragkb/internal/tokenizer"
)

// SearchPort is the TUI-facing subset of the retrieval engine.
type SearchPort interface {
	Search(query string, k int, threshold float64) ([]domain.SearchResult, error)
	RebuildIndex(ctx context.Context) error
	Stats() domain.Stats
}

// Options configures the query defaults and the header summary.
type Options struct {
	TopK      int
	Threshold float64
	Summary   string
	// Rebuild, when set, runs instead of SearchPort.RebuildIndex on ctrl+r,
	// e.g. to resync a directory first.
	Rebuild func(ctx context.Context) error
	// Context is passed to rebuilds; it should be the context the program runs with.
	// Defaults to context.Background.
	Context context.Context
}

type rebuiltMsg struct {
	stats domain.Stats
	err   error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	engine     SearchPort
	opts       Options
	input      textinput.Model
	viewport   viewport.Model
	results    []domain.SearchResult
	status     string
	cursor     int
	ready      bool
	rebuilding bool
	lastQuery  string
}

// New creates a new TUI model instance.
func New(engine SearchPort, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type query and press Enter (ctrl+r rebuilds the index)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	return Model{engine: engine, opts: opts, input: ti, viewport: vp, status: statsLine(engine.Stats())}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2                                    // header + summary
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := max(3, msg.Height-reserved)
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case rebuiltMsg:
		m.rebuilding = false
		if msg.err != nil {
			m.status = "Rebuild failed: " + msg.err.Error()
		} else {
			m.status = "Rebuilt. " + statsLine(msg.stats)
			m.results = nil
			m.cursor = 0
		}
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				m.runQuery(q)
				return m, nil
			}
		case "ctrl+r":
			if m.rebuilding {
				return m, nil
			}
			m.rebuilding = true
			m.status = "Rebuilding index..."
			return m, m.rebuild()
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) runQuery(q string) {
	res, err := m.engine.Search(q, m.opts.TopK, m.opts.Threshold)
	switch {
	case err != nil:
		m.status = "Error: " + err.Error()
		m.results = nil
	case len(res) == 0:
		m.status = fmt.Sprintf("No passages above %.2f for %q", m.opts.Threshold, q)
		m.results = nil
	default:
		m.status = fmt.Sprintf("%d results for %q", len(res), q)
		m.results = res
	}
	m.cursor = 0
	m.lastQuery = q
	m.viewport.SetContent(m.renderCurrentResult())
}

func (m Model) rebuild() tea.Cmd {
	engine, custom, ctx := m.engine, m.opts.Rebuild, m.opts.Context
	return func() tea.Msg {
		var err error
		if custom != nil {
			err = custom(ctx)
		} else {
			err = engine.RebuildIndex(ctx)
		}
		return rebuiltMsg{stats: engine.Stats(), err: err}
	}
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Knowledge Base Search")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.opts.Summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	r := m.results[m.cursor]
	title := fmt.Sprintf("Result %d/%d  %s  score=%.3f", m.cursor+1, len(m.results), titleStyle.Render(r.Title), r.Score)
	body := highlightBestSentence(r.Text, m.lastQuery)
	return title + "\n\n" + body
}

func statsLine(st domain.Stats) string {
	return fmt.Sprintf("%d docs, %d chunks, %d terms, %s", st.Documents, st.ChunkCount, st.VocabularySize, st.Strategy)
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	titleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	sentenceRe     = regexp.MustCompile(`(?m)[^.!?\n]+(?:[.!?]+|$)`)
)

// highlightBestSentence emphasises the sentence sharing the most distinct
// question tokens with query. The first sentence wins ties.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	var sentences []string
	for _, s := range sentenceRe.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := tokenizer.QuestionTokens(s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	for _, t := range tokenizer.Set(tokenizer.QuestionTokens(sentence)) {
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
