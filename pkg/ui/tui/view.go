package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// View renders the entire TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	width := m.width - 2
	sections := []string{
		m.renderHeader(),
		m.renderStages(width),
		m.renderStats(width),
		m.renderActive(width),
		m.renderLogs(width),
	}

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("q quit • ? help"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderHeader() string {
	name := "igarchiver"
	if m.username != "" {
		name += "  @" + m.username
	}
	return headerStyle.Render(name)
}

func (m *Model) renderStages(width int) string {
	lines := []string{titleStyle.Render("PIPELINE"), m.progress.ViewAs(m.stageProgress())}

	current := -1
	for i, s := range stages {
		if s == m.stage {
			current = i
		}
	}

	for i, s := range stages {
		var marker string
		switch {
		case m.done || i < current:
			marker = successStyle.Render("✓")
		case i == current:
			marker = m.spinner.View()
		default:
			marker = dimStyle.Render("·")
		}
		lines = append(lines, fmt.Sprintf("%s %s", marker, stageTitles[s]))
	}

	return panelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderStats(width int) string {
	row := func(label, value string) string {
		return fmt.Sprintf("%s %s", statsLabelStyle.Render(label), statsValueStyle.Render(value))
	}

	rows := []string{
		titleStyle.Render("STATS"),
		row("Elapsed:", formatDuration(m.now().Sub(m.startTime))),
		row("Posts on profile:", humanize.Comma(int64(m.totalPosts))),
		row("Downloaded:", fmt.Sprintf("%s files (%s)", humanize.Comma(int64(m.completed)), humanize.Bytes(uint64(m.bytes)))),
		row("Already present:", humanize.Comma(int64(m.skipped))),
	}
	if m.failed > 0 {
		rows = append(rows, errorStyle.Render(fmt.Sprintf("Failed: %d", m.failed)))
	}
	if !m.rateLimitEnd.IsZero() {
		rows = append(rows, warningStyle.Render("Rate limited, retry after "+m.rateLimitEnd.Format("15:04:05")))
	}
	if m.interrupted {
		rows = append(rows, warningStyle.Render("Interrupted"))
	}

	return panelStyle.Width(width).Render(strings.Join(rows, "\n"))
}

func (m *Model) renderActive(width int) string {
	lines := []string{titleStyle.Render("DOWNLOADING")}

	active := m.activeDownloads()
	if len(active) == 0 {
		lines = append(lines, dimStyle.Render("Idle"))
	}
	for i, item := range active {
		if i == 5 {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("... and %d more", len(active)-5)))
			break
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", m.spinner.View(), item.Filename,
			dimStyle.Render(formatDuration(m.now().Sub(item.StartTime)))))
	}

	return panelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderLogs(width int) string {
	lines := []string{titleStyle.Render("LOG")}

	start := len(m.logMessages) - 8
	if start < 0 {
		start = 0
	}
	maxLen := width - 22
	for _, log := range m.logMessages[start:] {
		message := log.Message
		if maxLen > 3 && len(message) > maxLen {
			message = message[:maxLen-3] + "..."
		}
		level := lipgloss.NewStyle().Foreground(levelColor(log.Level)).Bold(true).Render(fmt.Sprintf("%-7s", log.Level))
		lines = append(lines, fmt.Sprintf("%s %s %s", logTimestampStyle.Render(log.Time.Format("15:04:05")), level, message))
	}
	if len(lines) == 1 {
		lines = append(lines, dimStyle.Render("No messages yet"))
	}

	return panelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderHelp() string {
	return helpStyle.Render(strings.Join([]string{
		"q / ctrl+c  stop downloading; URL files and archives are still written",
		"q (again)   leave immediately",
		"ctrl+l      clear the log",
		"?           toggle this help",
	}, "\n"))
}

// formatDuration formats a duration as mm:ss or hh:mm:ss
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	h := int(d.Hours())
	mins := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, mins, s)
	}
	return fmt.Sprintf("%02d:%02d", mins, s)
}
