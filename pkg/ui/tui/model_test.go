package tui

import (
	stderrors "errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igarchiver/pkg/ui"
)

func newTestModel(onInterrupt func()) *Model {
	m := NewModel(onInterrupt)
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	m.startTime = now
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m
}

func TestModelDownloadEvents(t *testing.T) {
	m := newTestModel(nil)

	m.Update(StageMsg{Stage: ui.StageDownload, Detail: "natgeo"})
	m.Update(TotalMsg{Username: "natgeo", Total: 1234})
	m.Update(DownloadStartMsg{ID: "a.jpg", Filename: "a.jpg"})
	m.Update(DownloadStartMsg{ID: "b.mp4", Filename: "b.mp4"})
	m.Update(DownloadStartMsg{ID: "c.jpg", Filename: "c.jpg"})

	require.Len(t, m.activeDownloads(), 3)

	m.Update(DownloadCompleteMsg{ID: "a.jpg", Size: 2048})
	m.Update(DownloadCompleteMsg{ID: "c.jpg", Skipped: true})
	m.Update(DownloadErrorMsg{ID: "b.mp4", Error: stderrors.New("timeout")})

	assert.Empty(t, m.activeDownloads())
	assert.Equal(t, 1, m.completed)
	assert.Equal(t, 1, m.skipped)
	assert.Equal(t, 1, m.failed)
	assert.Equal(t, int64(2048), m.bytes)

	last := m.logMessages[len(m.logMessages)-1]
	assert.Equal(t, levelError, last.Level)
	assert.Equal(t, "Failed: b.mp4 - timeout", last.Message)

	view := m.View()
	assert.Contains(t, view, "@natgeo")
	assert.Contains(t, view, "1,234")
	assert.Contains(t, view, "2.0 kB")
	assert.Contains(t, view, "Failed: 1")
}

func TestModelStages(t *testing.T) {
	m := newTestModel(nil)

	m.Update(StageMsg{Stage: ui.StageDownload})
	assert.Equal(t, 0.0, m.stageProgress())

	m.Update(StageMsg{Stage: ui.StageCompress})
	assert.InDelta(t, 2.0/3.0, m.stageProgress(), 0.001)

	_, cmd := m.Update(StageMsg{Stage: ui.StageDone})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Equal(t, 1.0, m.stageProgress())
	assert.True(t, m.done)
}

func TestModelInterrupt(t *testing.T) {
	interrupted := 0
	m := newTestModel(func() { interrupted++ })
	m.Update(StageMsg{Stage: ui.StageDownload})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Nil(t, cmd, "first interrupt keeps the view open")
	assert.Equal(t, 1, interrupted)
	assert.True(t, m.interrupted)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Equal(t, 1, interrupted)
}

func TestModelRateLimit(t *testing.T) {
	m := newTestModel(nil)
	m.Update(RateLimitMsg{Wait: 5 * time.Minute})

	assert.Equal(t, m.now().Add(5*time.Minute), m.rateLimitEnd)
	assert.Contains(t, m.View(), "retry after 08:05:00")
}

func TestModelLogLimit(t *testing.T) {
	m := newTestModel(nil)
	for i := 0; i < 60; i++ {
		m.Update(LogMsg{Level: levelInfo, Message: "line"})
	}
	assert.Len(t, m.logMessages, 50)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Empty(t, m.logMessages)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:42", formatDuration(42*time.Second))
	assert.Equal(t, "02:05", formatDuration(125*time.Second))
	assert.Equal(t, "01:30:00", formatDuration(90*time.Minute))
	assert.Equal(t, "00:00", formatDuration(-time.Second))
}
