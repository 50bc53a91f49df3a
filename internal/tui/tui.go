// Package tui renders a live status view of the data layer: network
// state, pending outbox entries and the current session's plan queue.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dogtracker/dogtracker/internal/netmon"
	"github.com/dogtracker/dogtracker/internal/outbox"
	"github.com/dogtracker/dogtracker/internal/plan"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#06B6D4"))
	onlineStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#22C55E"))
	offlineStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	itemStyle    = lipgloss.NewStyle().PaddingLeft(2)
)

type stateMsg netmon.State

type refreshMsg struct {
	entries []outbox.Entry
	items   []plan.Item
}

type tickMsg struct{}

// Model is the bubbletea model for `dogtracker watch`.
type Model struct {
	monitor   *netmon.Monitor
	outbox    *outbox.Outbox
	plans     *plan.Store
	sessionID int64

	state   netmon.State
	entries []outbox.Entry
	items   []plan.Item
	spin    spinner.Model
	states  chan netmon.State
}

// New creates the watch model. sessionID selects which plan queue to
// show; 0 hides the plan section.
func New(m *netmon.Monitor, o *outbox.Outbox, p *plan.Store, sessionID int64) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	states := make(chan netmon.State, 16)
	m.Subscribe(func(st netmon.State) {
		select {
		case states <- st:
		default:
		}
	})
	return &Model{
		monitor:   m,
		outbox:    o,
		plans:     p,
		sessionID: sessionID,
		state:     m.State(),
		spin:      s,
		states:    states,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.waitForState(), m.refresh(), tick())
}

func (m *Model) waitForState() tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-m.states)
	}
}

func (m *Model) refresh() tea.Cmd {
	return func() tea.Msg {
		var msg refreshMsg
		if entries, err := m.outbox.Entries(); err == nil {
			msg.entries = entries
		}
		if m.sessionID != 0 {
			if items, err := m.plans.Items(m.sessionID); err == nil {
				msg.items = items
			}
		}
		return msg
	}
}

func tick() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		}
	case stateMsg:
		m.state = netmon.State(msg)
		return m, tea.Batch(m.waitForState(), m.refresh())
	case refreshMsg:
		m.entries = msg.entries
		m.items = msg.items
		return m, nil
	case tickMsg:
		return m, tea.Batch(m.refresh(), tick())
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) View() string {
	s := titleStyle.Render("dogtracker") + "\n\n"
	s += "  network:  " + m.badge() + "\n"
	s += fmt.Sprintf("  outbox:   %d pending\n", m.state.Queued)

	if len(m.entries) > 0 {
		s += "\n" + mutedStyle.Render("  pending mutations") + "\n"
		for _, e := range m.entries {
			s += itemStyle.Render(fmt.Sprintf("%s %s (%s)",
				e.Method, e.Path, e.EnqueuedAt.Format("15:04:05"))) + "\n"
		}
	}

	if m.sessionID != 0 {
		s += "\n" + mutedStyle.Render(fmt.Sprintf("  plan queue (session %d)", m.sessionID)) + "\n"
		if len(m.items) == 0 {
			s += itemStyle.Render("no items planned") + "\n"
		}
		for i, it := range m.items {
			marker := "  "
			if i == 0 {
				marker = "> "
			}
			s += itemStyle.Render(fmt.Sprintf("%s dog %d  exercise %d  behavior %d",
				marker, it.DogID, it.ExerciseID, it.PlannedBehaviorID)) + "\n"
		}
	}

	s += "\n" + mutedStyle.Render("  r: refresh  q: quit") + "\n"
	return s
}

func (m *Model) badge() string {
	var b string
	if m.state.Online {
		b = onlineStyle.Render("online")
	} else {
		b = offlineStyle.Render("offline")
	}
	if m.state.Syncing {
		b += "  " + m.spin.View() + mutedStyle.Render("syncing")
	}
	return b
}
