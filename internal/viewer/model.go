package viewer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/timeviewer/backend/internal/session"
	"github.com/timeviewer/backend/internal/timeline"
)

const (
	maxTotals = 10
	maxRecent = 8
)

var (
	colorBorder  = lipgloss.Color("#4b5563")
	colorDimmed  = lipgloss.Color("#6b7280")
	colorBright  = lipgloss.Color("#f9fafb")
	colorHealthy = lipgloss.Color("#22c55e")
	colorError   = lipgloss.Color("#dc2626")
	colorAccent  = lipgloss.Color("#3b82f6")

	styleHeader  = lipgloss.NewStyle().Bold(true).Foreground(colorBright)
	styleDimmed  = lipgloss.NewStyle().Foreground(colorDimmed)
	styleOnline  = lipgloss.NewStyle().Foreground(colorHealthy)
	styleOffline = lipgloss.NewStyle().Foreground(colorError)
	styleCurrent = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
	styleBar = lipgloss.NewStyle().Foreground(colorAccent)
)

// Breakdown selects which totals table is shown.
type Breakdown int

const (
	BreakdownApps Breakdown = iota
	BreakdownSites
)

type tickMsg time.Time

// Model is the root Bubble Tea model.
type Model struct {
	client *Client
	ctx    context.Context
	cancel context.CancelFunc
	keys   KeyMap
	now    func() time.Time

	width  int
	height int

	timeline  *timeline.Timeline
	breakdown Breakdown
	connected bool
	lastErr   error
}

func New(client *Client) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		client:   client,
		ctx:      ctx,
		cancel:   cancel,
		keys:     DefaultKeyMap(),
		now:      time.Now,
		timeline: timeline.New(nil),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.client.Listen(m.ctx), tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		return m, tick()

	case ConnectedMsg:
		m.connected = true
		m.lastErr = nil
		return m, m.client.ReadLoop(m.ctx)

	case DisconnectedMsg:
		m.connected = false
		m.lastErr = msg.Err
		return m, m.client.Listen(m.ctx)

	case SnapshotMsg:
		m.timeline.Reset(msg.Segments)
		return m, m.client.ReadLoop(m.ctx)

	case UpdateMsg:
		m.timeline.Apply(msg.Update)
		return m, m.client.ReadLoop(m.ctx)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		m.client.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Breakdown):
		if m.breakdown == BreakdownApps {
			m.breakdown = BreakdownSites
		} else {
			m.breakdown = BreakdownApps
		}
		return m, nil

	case key.Matches(msg, m.keys.Reconnect):
		// Dropping the connection makes the read loop report a
		// disconnect, which dials again.
		m.client.Close()
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	now := m.now()
	sections := []string{
		m.renderStatus(),
		m.renderCurrent(now),
		m.renderTotals(now),
		m.renderRecent(now),
		styleDimmed.Render("  tab:apps/sites  r:reconnect  q:quit"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderStatus() string {
	status := styleOnline.Render("● live")
	if !m.connected {
		status = styleOffline.Render("○ offline")
		if m.lastErr != nil {
			status += styleDimmed.Render("  " + m.lastErr.Error())
		}
	}
	return styleHeader.Render("timeviewer") + "  " + status
}

func (m Model) renderCurrent(now time.Time) string {
	cur, ok := m.timeline.Current()
	if !ok {
		return styleCurrent.Render(styleDimmed.Render("idle"))
	}
	line := styleHeader.Render(cur.App)
	if cur.Title != nil && *cur.Title != "" {
		line += "  " + *cur.Title
	}
	line += "  " + styleBar.Render(timeline.FormatDuration(cur.Duration(now)))
	return styleCurrent.Render(line)
}

func (m Model) renderTotals(now time.Time) string {
	heading, keyFn := "Apps", timeline.KeyFunc(timeline.ByApp)
	if m.breakdown == BreakdownSites {
		heading, keyFn = "Sites", timeline.ByHost
	}

	totals := m.timeline.Totals(now, keyFn)
	lines := []string{styleHeader.Render(heading)}
	if len(totals) == 0 {
		return strings.Join(append(lines, styleDimmed.Render("  nothing yet")), "\n")
	}
	longest := totals[0].Duration
	for i, t := range totals {
		if i == maxTotals {
			break
		}
		lines = append(lines, fmt.Sprintf("  %-24s %8s %s",
			truncate(t.Key, 24), timeline.FormatDuration(t.Duration), bar(t.Duration, longest, 20)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderRecent(now time.Time) string {
	segments := m.timeline.Segments()
	lines := []string{styleHeader.Render("Recent")}
	for i := len(segments) - 1; i >= 0 && len(lines) <= maxRecent; i-- {
		seg := segments[i]
		lines = append(lines, fmt.Sprintf("  %s  %-16s %-32s %8s",
			seg.Start.Local().Format("15:04"), truncate(seg.App, 16), truncate(title(seg), 32),
			timeline.FormatDuration(seg.Duration(now))))
	}
	return strings.Join(lines, "\n")
}

func title(seg session.Segment) string {
	if seg.Title == nil {
		return ""
	}
	return *seg.Title
}

func bar(d, longest time.Duration, width int) string {
	if longest <= 0 {
		return ""
	}
	n := int(float64(width) * float64(d) / float64(longest))
	if n < 1 {
		n = 1
	}
	return styleBar.Render(strings.Repeat("█", n))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
