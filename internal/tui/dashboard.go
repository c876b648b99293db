// Package tui implements olla-sidecard-top: a bubbletea dashboard that
// polls a running sidecar's admin endpoint and renders router and
// telemetry state, the way an operator would watch `top` against a
// proxy. It has no access to the sidecar's internals: everything it
// shows comes from /internal/status over HTTP,
// same as any other admin client.
package tui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle = lipgloss.NewStyle().Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Status mirrors Application.statusHandler's response body.
type Status struct {
	LoadBalancer          string `json:"load_balancer"`
	InboundResidentKeys   int    `json:"inbound_resident_keys"`
	OutboundResidentKeys  int    `json:"outbound_resident_keys"`
	DroppedEvents         uint64 `json:"dropped_telemetry_events"`
}

// Model is the bubbletea model driving the dashboard: it owns the poll
// interval and the last-fetched Status, and re-fetches on every tick.
type Model struct {
	client   *http.Client
	adminURL string
	interval time.Duration

	status    Status
	fetchErr  error
	lastFetch time.Time
	width     int
}

func NewModel(adminURL string, interval time.Duration) Model {
	return Model{
		client:   &http.Client{Timeout: 2 * time.Second},
		adminURL: strings.TrimRight(adminURL, "/"),
		interval: interval,
	}
}

type tickMsg time.Time

type statusMsg struct {
	status Status
	err    error
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) fetch() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.Get(m.adminURL + "/internal/status")
		if err != nil {
			return statusMsg{err: err}
		}
		defer resp.Body.Close()

		var s Status
		if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{status: s}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil
	case tickMsg:
		return m, tea.Batch(m.fetch(), m.tick())
	case statusMsg:
		m.lastFetch = time.Now()
		m.fetchErr = msg.err
		if msg.err == nil {
			m.status = msg.status
		}
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("olla-sidecard-top"))
	b.WriteString("  ")
	b.WriteString(labelStyle.Render(m.adminURL))
	b.WriteString("\n\n")

	if m.fetchErr != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("fetch error: %s", m.fetchErr)))
		b.WriteString("\n\n")
	}

	rows := []struct {
		label string
		value string
	}{
		{"load balancer", m.status.LoadBalancer},
		{"inbound resident keys", fmt.Sprintf("%d", m.status.InboundResidentKeys)},
		{"outbound resident keys", fmt.Sprintf("%d", m.status.OutboundResidentKeys)},
		{"dropped telemetry events", fmt.Sprintf("%d", m.status.DroppedEvents)},
	}

	var body strings.Builder
	for _, row := range rows {
		body.WriteString(labelStyle.Render(fmt.Sprintf("%-26s", row.label)))
		body.WriteString(valueStyle.Render(row.value))
		body.WriteString("\n")
	}

	b.WriteString(boxStyle.Render(strings.TrimRight(body.String(), "\n")))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("last refresh: " + m.lastFetch.Format(time.TimeOnly) + "  (q to quit)"))
	return b.String()
}
