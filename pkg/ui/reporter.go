package ui

import "time"

// Stage is one step of the archive pipeline
type Stage string

const (
	StageDownload Stage = "download"
	StageURLs     Stage = "urls"
	StageCompress Stage = "compress"
	StageDone     Stage = "done"
)

// Reporter receives progress events from the downloader and the pipeline.
// Implementations must be safe for concurrent use.
type Reporter interface {
	SetStage(stage Stage, detail string)
	SetTotal(username string, total int)
	StartDownload(id, filename string)
	CompleteDownload(id string, size int64, skipped bool)
	FailDownload(id string, err error)
	RateLimited(wait time.Duration)
	LogInfo(format string, args ...interface{})
	LogSuccess(format string, args ...interface{})
	LogWarning(format string, args ...interface{})
	LogError(format string, args ...interface{})
}

// NopReporter discards every event
type NopReporter struct{}

func (NopReporter) SetStage(Stage, string)               {}
func (NopReporter) SetTotal(string, int)                 {}
func (NopReporter) StartDownload(string, string)         {}
func (NopReporter) CompleteDownload(string, int64, bool) {}
func (NopReporter) FailDownload(string, error)           {}
func (NopReporter) RateLimited(time.Duration)            {}
func (NopReporter) LogInfo(string, ...interface{})       {}
func (NopReporter) LogSuccess(string, ...interface{})    {}
func (NopReporter) LogWarning(string, ...interface{})    {}
func (NopReporter) LogError(string, ...interface{})      {}
