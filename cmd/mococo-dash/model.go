package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mococo/pkg/eventlog"
)

// tickMsg triggers a periodic data refresh.
type tickMsg time.Time

// eventsMsg carries freshly fetched events, newest first.
type eventsMsg []eventlog.Event

// countsMsg carries per-type counts over the last 24h.
type countsMsg map[string]int

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	summaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	tableStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))
)

// Model is the Bubble Tea model for the mococo dashboard.
type Model struct {
	dbPath string
	table  table.Model
	counts map[string]int
	width  int
	height int
}

func newModel(dbPath string) Model {
	t := table.New(
		table.WithColumns(eventColumns(100)),
		table.WithFocused(true),
		table.WithHeight(20),
	)
	return Model{dbPath: dbPath, table: t}
}

func eventColumns(width int) []table.Column {
	payload := width - 10 - 16 - 14 - 6
	if payload < 20 {
		payload = 20
	}
	return []table.Column{
		{Title: "Time", Width: 10},
		{Title: "Type", Width: 16},
		{Title: "Worker", Width: 14},
		{Title: "Payload", Width: payload},
	}
}

// tickCmd schedules the next refresh in 2 seconds.
func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) fetchCmd() tea.Cmd {
	dbPath := m.dbPath
	return tea.Batch(
		func() tea.Msg { return eventsMsg(fetchEvents(context.Background(), dbPath)) },
		func() tea.Msg { return countsMsg(fetchCounts(context.Background(), dbPath)) },
	)
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), tickCmd(), watchEventsDB(m.dbPath))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.fetchCmd()
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetColumns(eventColumns(msg.Width - 4))
		if msg.Height > 8 {
			m.table.SetHeight(msg.Height - 6)
		}
	case tickMsg:
		return m, tea.Batch(m.fetchCmd(), tickCmd())
	case dbChangeMsg:
		// Refresh immediately and rearm the watcher.
		return m, tea.Batch(m.fetchCmd(), watchEventsDB(m.dbPath))
	case eventsMsg:
		m.table.SetRows(eventRows(msg))
	case countsMsg:
		m.counts = msg
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func eventRows(events []eventlog.Event) []table.Row {
	rows := make([]table.Row, 0, len(events))
	for _, ev := range events {
		worker := ev.WorkerID
		if worker == "" {
			worker = "-"
		}
		rows = append(rows, table.Row{
			ev.CreatedAt.Local().Format("15:04:05"),
			ev.Type,
			worker,
			ev.Payload,
		})
	}
	return rows
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("mococo scheduler events"))
	b.WriteString("\n")
	b.WriteString(summaryStyle.Render(summaryLine(m.counts)))
	b.WriteString("\n")
	b.WriteString(tableStyle.Render(m.table.View()))
	b.WriteString("\n")
	b.WriteString(summaryStyle.Render("q quit  r refresh"))
	return b.String()
}

// summaryLine renders 24h counts for the most interesting event types.
func summaryLine(counts map[string]int) string {
	if len(counts) == 0 {
		return "no events in the last 24h"
	}
	headline := []string{
		eventlog.TypeInvokeDone,
		eventlog.TypeDispatch,
		eventlog.TypeNudge,
		eventlog.TypeEscalate,
		eventlog.TypeLoopStop,
		eventlog.TypeBudgetStop,
	}
	parts := make([]string, 0, len(headline)+1)
	for _, t := range headline {
		if n, ok := counts[t]; ok {
			parts = append(parts, fmt.Sprintf("%s %d", t, n))
		}
	}
	other := 0
	seen := make(map[string]bool, len(headline))
	for _, t := range headline {
		seen[t] = true
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		if !seen[t] {
			other += counts[t]
		}
	}
	if other > 0 {
		parts = append(parts, fmt.Sprintf("other %d", other))
	}
	return "24h: " + strings.Join(parts, "  ")
}
