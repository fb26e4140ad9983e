package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"igarchiver/pkg/ui"
)

// StageMsg is sent when the pipeline enters a new stage
type StageMsg struct {
	Stage  ui.Stage
	Detail string
}

// TotalMsg carries the profile's post count
type TotalMsg struct {
	Username string
	Total    int
}

// DownloadStartMsg is sent when a download starts
type DownloadStartMsg struct {
	ID       string
	Filename string
}

// DownloadCompleteMsg is sent when a download completes or is skipped
type DownloadCompleteMsg struct {
	ID      string
	Size    int64
	Skipped bool
}

// DownloadErrorMsg is sent when a download fails
type DownloadErrorMsg struct {
	ID    string
	Error error
}

// RateLimitMsg is sent when Instagram rate limits the session
type RateLimitMsg struct {
	Wait time.Duration
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		return m, tickCmd()

	case StageMsg:
		m.setStage(msg.Stage, msg.Detail)
		if title, ok := stageTitles[msg.Stage]; ok {
			m.addLog(levelInfo, title)
		}
		if msg.Stage == ui.StageDone {
			return m, tea.Quit
		}
		return m, nil

	case TotalMsg:
		m.username = msg.Username
		m.totalPosts = msg.Total
		m.addLog(levelInfo, fmt.Sprintf("@%s has %s posts", msg.Username, humanize.Comma(int64(msg.Total))))
		return m, nil

	case DownloadStartMsg:
		m.startDownload(msg.ID, msg.Filename)
		return m, nil

	case DownloadCompleteMsg:
		m.completeDownload(msg.ID, msg.Size, msg.Skipped)
		return m, nil

	case DownloadErrorMsg:
		m.failDownload(msg.ID, msg.Error)
		return m, nil

	case RateLimitMsg:
		m.rateLimitEnd = m.now().Add(msg.Wait)
		m.addLog(levelWarn, "Rate limited by Instagram, stopping early")
		return m, nil

	case LogMsg:
		m.addLog(msg.Level, msg.Message)
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if !m.done && !m.interrupted {
			m.interrupted = true
			m.addLog(levelWarn, "Interrupted, finishing with what was fetched")
			if m.onInterrupt != nil {
				m.onInterrupt()
			}
			// Keep running so the remaining stages stay visible
			return m, nil
		}
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logMessages = nil
		return m, nil
	}

	return m, nil
}

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
