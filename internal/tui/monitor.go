package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusFailed = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
)

// historySize is how many depth samples feed the trend line.
const historySize = 40

var sparkChars = []rune("▁▂▃▄▅▆▇█")

// --- Types ---

// Source is the queue the monitor watches. *queue.Enqueuer satisfies it.
type Source interface {
	Key() string
	Depth(ctx context.Context) (int64, error)
	Peek(ctx context.Context, n int64) ([][]byte, error)
}

// Model is a bubbletea model showing queue depth, its trend and the entries
// at the head of the queue.
type Model struct {
	src      Source
	interval time.Duration
	headSize int64

	width  int
	height int

	depth     int64
	prevDepth int64
	rate      float64
	history   []int64
	updated   time.Time
	lastErr   error

	headTable table.Model
}

type snapshotMsg struct {
	depth int64
	head  [][]byte
	at    time.Time
}

type errMsg struct{ err error }

// --- Init ---

// NewMonitor returns a monitor polling src every interval and listing up to
// headSize entries from the head of the queue.
func NewMonitor(src Source, interval time.Duration, headSize int64) Model {
	if interval <= 0 {
		interval = time.Second
	}
	if headSize <= 0 {
		headSize = 10
	}

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "#", Width: 4},
			{Title: "Bytes", Width: 7},
			{Title: "Object", Width: 26},
			{Title: "Preview", Width: 60},
		}),
		table.WithFocused(true),
		table.WithHeight(int(headSize)),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return Model{
		src:       src,
		interval:  interval,
		headSize:  headSize,
		prevDepth: -1,
		headTable: t,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.poll(),
		tea.EnterAltScreen,
	)
}

// --- Update ---

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.headTable.SetWidth(m.width - 6)

	case snapshotMsg:
		m.applySnapshot(msg)
		return m, m.tick()

	case errMsg:
		m.lastErr = msg.err
		return m, m.tick()
	}

	m.headTable, cmd = m.headTable.Update(msg)
	return m, cmd
}

func (m *Model) applySnapshot(s snapshotMsg) {
	if m.prevDepth >= 0 && !m.updated.IsZero() {
		if elapsed := s.at.Sub(m.updated).Seconds(); elapsed > 0 {
			m.rate = float64(s.depth-m.prevDepth) / elapsed
		}
	}
	m.prevDepth = s.depth
	m.depth = s.depth
	m.updated = s.at
	m.lastErr = nil

	m.history = append(m.history, s.depth)
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}

	rows := make([]table.Row, 0, len(s.head))
	for i, entry := range s.head {
		object, preview := summarize(entry)
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", i),
			fmt.Sprintf("%d", len(entry)),
			object,
			preview,
		})
	}
	m.headTable.SetRows(rows)
}

// summarize returns the top-level "object" field of a queued payload, if
// any, and a single-line preview of it.
func summarize(entry []byte) (string, string) {
	object := "-"
	var doc map[string]any
	if err := json.Unmarshal(entry, &doc); err == nil {
		if v, ok := doc["object"].(string); ok && v != "" {
			object = v
		}
	}

	var compact bytes.Buffer
	preview := string(entry)
	if err := json.Compact(&compact, entry); err == nil {
		preview = compact.String()
	}
	const maxPreview = 58
	if r := []rune(preview); len(r) > maxPreview {
		preview = string(r[:maxPreview]) + "…"
	}
	return object, preview
}

// sparkline renders values scaled between their min and max.
func sparkline(values []int64) string {
	if len(values) == 0 {
		return ""
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	var b strings.Builder
	for _, v := range values {
		idx := 0
		if hi > lo {
			idx = int((v - lo) * int64(len(sparkChars)-1) / (hi - lo))
		}
		b.WriteRune(sparkChars[idx])
	}
	return b.String()
}

// --- View ---

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	header := m.renderHeader()
	head := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Queue Head"),
			m.headTable.View(),
		),
	)

	help := dimStyle.Render(" [q] Quit • [↑/↓] Scroll")

	return docStyle.Render(
		lipgloss.JoinVertical(
			lipgloss.Left,
			header,
			head,
			help,
		),
	)
}

func (m Model) renderHeader() string {
	status := statusOK.Render("OK")
	if m.lastErr != nil {
		status = statusFailed.Render("UNREACHABLE")
	}

	updated := "never"
	if !m.updated.IsZero() {
		updated = m.updated.Format("15:04:05")
	}

	col := lipgloss.NewStyle().Width((m.width - 4) / 4)
	top := lipgloss.JoinHorizontal(lipgloss.Top,
		col.Render(fmt.Sprintf("Queue: %s", m.src.Key())),
		col.Render(fmt.Sprintf("Store: %s", status)),
		col.Render(fmt.Sprintf("Depth: %d", m.depth)),
		col.Render(fmt.Sprintf("Net rate: %+.1f/s", m.rate)),
	)

	lines := []string{top, dimStyle.Render(fmt.Sprintf("Trend %s  updated %s", sparkline(m.history), updated))}
	if m.lastErr != nil {
		lines = append(lines, statusFailed.Render(m.lastErr.Error()))
	}

	return borderStyle.Width(m.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// --- Commands ---

func (m Model) poll() tea.Cmd {
	return func() tea.Msg {
		return m.fetch()
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return m.fetch()
	})
}

func (m Model) fetch() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	depth, err := m.src.Depth(ctx)
	if err != nil {
		return errMsg{err: err}
	}
	head, err := m.src.Peek(ctx, m.headSize)
	if err != nil {
		return errMsg{err: err}
	}
	return snapshotMsg{depth: depth, head: head, at: time.Now()}
}
