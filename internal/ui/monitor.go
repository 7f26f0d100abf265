package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/wifiportal/internal/supervisor"
)

// Source provides the state shown by the monitor.
type Source interface {
	Snapshot() supervisor.Snapshot
}

// Controls are the actions the monitor can trigger. Either may be nil.
type Controls interface {
	RequestScan()
	StartPortal()
}

// historySize is how many mode transitions the monitor keeps.
const historySize = 8

type snapshotMsg supervisor.Snapshot

type monitorKeyMap struct {
	Scan   key.Binding
	Portal key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Scan, k.Portal, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

type transition struct {
	at       time.Time
	from, to string
}

// Monitor is a Bubble Tea model showing the supervisor state.
type Monitor struct {
	source   Source
	controls Controls
	interval time.Duration

	current supervisor.Snapshot
	seen    bool
	history []transition
	notice  string

	Width   int
	Spinner spinner.Model
	Help    help.Model
	Keys    monitorKeyMap
}

// NewMonitor creates a monitor polling source every interval.
func NewMonitor(source Source, controls Controls, interval time.Duration) Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return Monitor{
		source:   source,
		controls: controls,
		interval: interval,
		Width:    GetTerminalWidth(),
		Spinner:  s,
		Help:     help.New(),
		Keys: monitorKeyMap{
			Scan: key.NewBinding(
				key.WithKeys("s"),
				key.WithHelp("s", "scan"),
			),
			Portal: key.NewBinding(
				key.WithKeys("p"),
				key.WithHelp("p", "start portal"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "ctrl+c"),
				key.WithHelp("q", "quit"),
			),
		},
	}
}

// Init implements tea.Model
func (m Monitor) Init() tea.Cmd {
	return tea.Batch(m.poll(0), m.Spinner.Tick)
}

func (m Monitor) poll(after time.Duration) tea.Cmd {
	read := func() tea.Msg { return snapshotMsg(m.source.Snapshot()) }
	if after <= 0 {
		return read
	}
	return tea.Tick(after, func(time.Time) tea.Msg { return read() })
}

// Update implements tea.Model
func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.Keys.Scan):
			if m.controls != nil {
				m.controls.RequestScan()
				m.notice = "scan requested"
			}
		case key.Matches(msg, m.Keys.Portal):
			if m.controls != nil {
				m.controls.StartPortal()
				m.notice = "access point requested"
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		if m.Width > MaxContentWidth {
			m.Width = MaxContentWidth
		}
		return m, nil

	case snapshotMsg:
		snap := supervisor.Snapshot(msg)
		if m.seen && snap.Mode != m.current.Mode {
			m.history = append(m.history, transition{at: snap.At, from: m.current.Mode.String(), to: snap.Mode.String()})
			if len(m.history) > historySize {
				m.history = m.history[len(m.history)-historySize:]
			}
		}
		m.current = snap
		m.seen = true
		return m, m.poll(m.interval)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m Monitor) View() string {
	if !m.seen {
		return m.Spinner.View() + " waiting for supervisor\n"
	}
	s := m.current
	mode := s.Mode.String()

	lines := []string{
		TitleStyle.Render("WIFIPORTAL"),
		Divider(m.Width - 6),
		KeyValue("Mode", ModeStyle(mode).Render(mode)),
		KeyValue("Connected", yesNo(s.Connected)),
		KeyValue("Network", orDash(s.SSID)),
		KeyValue("Station IP", orDash(s.StationIP)),
		KeyValue("Portal", yesNo(s.PortalActive)),
	}
	if s.ConnectPending {
		lines = append(lines, KeyValue("Connect", m.Spinner.View()+" pending"))
	}
	if s.RetryEnabled && s.NextRetry != nil {
		lines = append(lines, KeyValue("Next retry", s.NextRetry.Format("15:04:05")))
	}
	if s.LastFault != "" {
		lines = append(lines, KeyValue("Last fault", ErrorMessageStyle.Render(s.LastFault)))
	}

	if len(m.history) > 0 {
		lines = append(lines, "", MutedStyle.Render("Transitions"))
		for i := len(m.history) - 1; i >= 0; i-- {
			t := m.history[i]
			lines = append(lines, MutedStyle.Render(fmt.Sprintf("  %s  %s → %s", t.at.Format("15:04:05"), t.from, t.to)))
		}
	}
	if m.notice != "" {
		lines = append(lines, "", MutedStyle.Render(m.notice))
	}

	var b strings.Builder
	b.WriteString(BoxStyle(m.Width, PrimaryColor).Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
	b.WriteString("\n")
	b.WriteString(m.Help.View(m.Keys))
	b.WriteString("\n")
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
