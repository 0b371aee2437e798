package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/redis/go-redis/v9"

	"robot-service/internal/messaging"
)

const refreshPeriod = 2 * time.Second

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	nameStyle    = lipgloss.NewStyle().Width(14).Foreground(lipgloss.Color("39"))
	pathStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle    = lipgloss.NewStyle().Faint(true)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

type keyMap struct {
	Pause  key.Binding
	Resume key.Binding
	Stop   key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Resume, k.Stop, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Pause:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
	Resume: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resume")),
	Stop:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// source is the part of the Redis client the monitor reads from
type source interface {
	GetServiceStates() (map[string]string, error)
	GetHashField(hash, field string) (string, error)
	SendCommand(list, command string) error
}

type snapshot struct {
	services  map[string]string
	lifecycle string
	robot     string
	message   string
}

type snapshotMsg struct {
	snapshot
	err error
}

type changedMsg struct{}

type tickMsg time.Time

type model struct {
	src     source
	changes <-chan *redis.Message

	snapshot
	updated time.Time
	err     error
	width   int
	help    help.Model
}

func newModel(src source, changes <-chan *redis.Message) model {
	return model{src: src, changes: changes, width: 80, help: help.New()}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.wait(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshPeriod, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// wait blocks until the service publishes anything on its channel
func (m model) wait() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-m.changes; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func (m model) load() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		var s snapshot
		var err error
		if s.services, err = src.GetServiceStates(); err != nil {
			return snapshotMsg{err: err}
		}
		if s.lifecycle, err = src.GetHashField(messaging.RobotHash, "state"); err != nil {
			return snapshotMsg{err: err}
		}
		if s.robot, err = src.GetHashField(messaging.RobotHash, "robot"); err != nil {
			return snapshotMsg{err: err}
		}
		if s.message, err = src.GetHashField(messaging.RobotHash, "message"); err != nil {
			return snapshotMsg{err: err}
		}
		return snapshotMsg{snapshot: s}
	}
}

func (m model) control(command string) tea.Cmd {
	src := m.src
	return func() tea.Msg {
		if err := src.SendCommand(messaging.ControlList, command); err != nil {
			return snapshotMsg{err: err}
		}
		return changedMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Pause):
			return m, m.control("pause")
		case key.Matches(msg, keys.Resume):
			return m, m.control("resume")
		case key.Matches(msg, keys.Stop):
			return m, m.control("stop")
		}
	case changedMsg:
		return m, tea.Batch(m.load(), m.wait())
	case tickMsg:
		return m, tea.Batch(m.load(), tick())
	case snapshotMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.snapshot = msg.snapshot
		m.err = nil
		m.updated = time.Now()
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	title := "robot-service"
	if m.robot != "" {
		title += " (" + m.robot + ")"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("  ")
	b.WriteString(lifecycleStyle(m.lifecycle).Render(m.lifecycle))
	b.WriteString("\n\n")

	names := make([]string, 0, len(m.services))
	for name := range m.services {
		names = append(names, name)
	}
	sort.Strings(names)

	var rows []string
	for _, name := range names {
		rows = append(rows, nameStyle.Render(name)+pathStyle.Render(m.services[name]))
	}
	if len(rows) == 0 {
		rows = append(rows, helpStyle.Render("no services published"))
	}
	b.WriteString(boxStyle.Render(strings.Join(rows, "\n")))
	b.WriteString("\n")

	if m.message != "" {
		fmt.Fprintf(&b, "\n%s\n", wordwrap.String("message: "+m.message, m.width))
	}
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render(m.err.Error()) + "\n")
	}
	if !m.updated.IsZero() {
		b.WriteString(helpStyle.Render("updated " + m.updated.Format("15:04:05")))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(keys))
	return b.String()
}

func lifecycleStyle(state string) lipgloss.Style {
	if state == "running" {
		return runningStyle
	}
	return stoppedStyle
}
