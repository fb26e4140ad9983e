package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"igarchiver/pkg/ui"
)

const (
	levelInfo    = "INFO"
	levelSuccess = "SUCCESS"
	levelWarn    = "WARN"
	levelError   = "ERROR"
)

// stages in display order
var stages = []ui.Stage{ui.StageDownload, ui.StageURLs, ui.StageCompress}

var stageTitles = map[ui.Stage]string{
	ui.StageDownload: "Download posts",
	ui.StageURLs:     "Write post URLs",
	ui.StageCompress: "Compress media",
}

// DownloadItem is a media file currently being fetched
type DownloadItem struct {
	ID        string
	Filename  string
	StartTime time.Time
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
}

// Model is the bubbletea model of the archive view
type Model struct {
	spinner  spinner.Model
	progress progress.Model

	username     string
	stage        ui.Stage
	stageDetail  string
	totalPosts   int
	downloads    map[string]*DownloadItem
	order        []string
	completed    int
	skipped      int
	failed       int
	bytes        int64
	startTime    time.Time
	rateLimitEnd time.Time

	logMessages    []LogMessage
	maxLogMessages int

	width       int
	height      int
	showHelp    bool
	done        bool
	interrupted bool
	onInterrupt func()
	now         func() time.Time
}

// NewModel creates the model. onInterrupt runs when the user quits before
// the pipeline has finished.
func NewModel(onInterrupt func()) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accent)

	p := progress.New(progress.WithGradient(string(accent), string(accentSoft)))
	p.Width = 40

	return &Model{
		spinner:        s,
		progress:       p,
		downloads:      make(map[string]*DownloadItem),
		startTime:      time.Now(),
		maxLogMessages: 50,
		onInterrupt:    onInterrupt,
		now:            time.Now,
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func (m *Model) setStage(stage ui.Stage, detail string) {
	m.stage = stage
	m.stageDetail = detail
	if stage == ui.StageDone {
		m.done = true
		m.downloads = make(map[string]*DownloadItem)
		m.order = nil
	}
}

func (m *Model) startDownload(id, filename string) {
	if _, ok := m.downloads[id]; ok {
		return
	}
	m.downloads[id] = &DownloadItem{ID: id, Filename: filename, StartTime: m.now()}
	m.order = append(m.order, id)
}

func (m *Model) finishDownload(id string) {
	if _, ok := m.downloads[id]; !ok {
		return
	}
	delete(m.downloads, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Model) completeDownload(id string, size int64, skipped bool) {
	m.finishDownload(id)
	if skipped {
		m.skipped++
		return
	}
	m.completed++
	m.bytes += size
}

func (m *Model) failDownload(id string, err error) {
	m.finishDownload(id)
	m.failed++
	m.addLog(levelError, "Failed: "+id+" - "+err.Error())
}

// addLog appends a log message, keeping only the most recent ones
func (m *Model) addLog(level, message string) {
	m.logMessages = append(m.logMessages, LogMessage{
		Time:    m.now(),
		Level:   level,
		Message: message,
	})
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// activeDownloads returns in-flight downloads in start order
func (m *Model) activeDownloads() []*DownloadItem {
	items := make([]*DownloadItem, 0, len(m.order))
	for _, id := range m.order {
		items = append(items, m.downloads[id])
	}
	return items
}

// stageProgress is the share of pipeline stages already finished
func (m *Model) stageProgress() float64 {
	if m.done {
		return 1
	}
	for i, s := range stages {
		if s == m.stage {
			return float64(i) / float64(len(stages))
		}
	}
	return 0
}
