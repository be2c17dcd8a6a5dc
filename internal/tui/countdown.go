package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF7DB")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1)
)

// CountdownModel shows the remaining capture time during a fixed-duration
// run. Quitting early (q / ctrl+c) aborts the capture but still lets the
// caller process whatever was recorded.
type CountdownModel struct {
	iface    string
	target   string
	duration time.Duration
	started  time.Time
	bar      progress.Model

	// Aborted is set when the operator quit before the timer ran out.
	Aborted bool
}

type tickMsg time.Time

// NewCountdownModel builds the countdown for a capture on iface. target is
// optional and only affects the header.
func NewCountdownModel(iface, target string, duration time.Duration) CountdownModel {
	return CountdownModel{
		iface:    iface,
		target:   target,
		duration: duration,
		started:  time.Now(),
		bar:      progress.New(progress.WithDefaultGradient()),
	}
}

func (m CountdownModel) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m CountdownModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.Aborted = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.bar.Width = msg.Width - 8
		return m, nil

	case tickMsg:
		if time.Since(m.started) >= m.duration {
			return m, tea.Quit
		}
		return m, tick()
	}
	return m, nil
}

func (m CountdownModel) View() string {
	header := fmt.Sprintf("netrecon - capturing on %s", m.iface)
	if m.target != "" {
		header += fmt.Sprintf(" [MITM target: %s]", m.target)
	}
	title := titleStyle.Render(header)

	elapsed := time.Since(m.started)
	remaining := m.duration - elapsed
	if remaining < 0 {
		remaining = 0
	}
	percent := elapsed.Seconds() / m.duration.Seconds()
	if percent > 1 {
		percent = 1
	}

	body := fmt.Sprintf("Time remaining: %4ds\n%s",
		int(remaining.Seconds()), m.bar.ViewAs(percent))
	box := infoStyle.Render(body)

	return lipgloss.JoinVertical(lipgloss.Left, title, box) + "\nPress q to stop early.\n"
}
