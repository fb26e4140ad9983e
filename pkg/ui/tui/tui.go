package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"igarchiver/pkg/ui"
)

// TUI is a full-screen ui.Reporter. Events are forwarded to the bubbletea
// program, so it is safe to call from any goroutine.
type TUI struct {
	program *tea.Program
	model   *Model
}

var _ ui.Reporter = (*TUI)(nil)

// NewTUI creates a new TUI. onInterrupt is called when the user presses q
// or ctrl+c before the run is done.
func NewTUI(onInterrupt func(), opts ...tea.ProgramOption) *TUI {
	model := NewModel(onInterrupt)
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)

	return &TUI{
		program: tea.NewProgram(model, opts...),
		model:   model,
	}
}

// Run blocks until the pipeline reports StageDone or the user quits
func (t *TUI) Run() error {
	_, err := t.program.Run()
	return err
}

// Stop stops the TUI
func (t *TUI) Stop() {
	t.program.Quit()
}

func (t *TUI) send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

func (t *TUI) SetStage(stage ui.Stage, detail string) {
	t.send(StageMsg{Stage: stage, Detail: detail})
}

func (t *TUI) SetTotal(username string, total int) {
	t.send(TotalMsg{Username: username, Total: total})
}

func (t *TUI) StartDownload(id, filename string) {
	t.send(DownloadStartMsg{ID: id, Filename: filename})
}

func (t *TUI) CompleteDownload(id string, size int64, skipped bool) {
	t.send(DownloadCompleteMsg{ID: id, Size: size, Skipped: skipped})
}

func (t *TUI) FailDownload(id string, err error) {
	t.send(DownloadErrorMsg{ID: id, Error: err})
}

func (t *TUI) RateLimited(wait time.Duration) {
	t.send(RateLimitMsg{Wait: wait})
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log(levelInfo, format, args...)
}

func (t *TUI) LogSuccess(format string, args ...interface{}) {
	t.Log(levelSuccess, format, args...)
}

func (t *TUI) LogWarning(format string, args ...interface{}) {
	t.Log(levelWarn, format, args...)
}

func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log(levelError, format, args...)
}
