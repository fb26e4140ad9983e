package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"igarchiver/pkg/config"
	"igarchiver/pkg/logger"
	"igarchiver/pkg/postprocess"
	"igarchiver/pkg/scraper"
	"igarchiver/pkg/ui"
)

// Outcome classifies how a run ended
type Outcome string

const (
	// OutcomeSuccess means the whole profile was downloaded and post-processed
	OutcomeSuccess Outcome = "success"
	// OutcomePartial means a soft error ended the download early but
	// post-processing succeeded on what was fetched
	OutcomePartial Outcome = "partial"
	// OutcomePostProcessFailed means the download ran but URL extraction or
	// compression failed
	OutcomePostProcessFailed Outcome = "postprocess_failed"
	// OutcomeDownloadFailed means the download failed outright and nothing
	// was post-processed
	OutcomeDownloadFailed Outcome = "download_failed"
)

// Failed reports whether the outcome should make the command fail
func (o Outcome) Failed() bool {
	return o == OutcomeDownloadFailed || o == OutcomePostProcessFailed
}

// Downloader fetches a profile into its folder
type Downloader interface {
	Download(ctx context.Context, username string, opts scraper.Options) (*scraper.Summary, error)
}

// Result describes a pipeline run
type Result struct {
	RunID     string
	Username  string
	OutputDir string
	Outcome   Outcome
	Download  *scraper.Summary
	URLs      *postprocess.URLResult
	Compress  *postprocess.CompressResult
	// Err is the error behind a failed outcome
	Err      error
	Duration time.Duration
}

// Pipeline downloads a profile, then writes URL files and compresses media
type Pipeline struct {
	config     *config.Config
	downloader Downloader
	processor  *postprocess.Processor
	reporter   ui.Reporter
	logger     logger.Logger
}

// New creates a Pipeline that downloads with a scraper built from cfg
func New(cfg *config.Config, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.GetLogger()
	}
	return NewWithDownloader(cfg, scraper.New(cfg, log), log)
}

// NewWithDownloader creates a Pipeline around an existing downloader
func NewWithDownloader(cfg *config.Config, d Downloader, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pipeline{
		config:     cfg,
		downloader: d,
		processor:  postprocess.FromConfig(cfg, log),
		reporter:   ui.NopReporter{},
		logger:     log,
	}
}

// SetReporter sets the progress reporter, passing it on to the downloader
// when it accepts one
func (p *Pipeline) SetReporter(r ui.Reporter) {
	if r == nil {
		r = ui.NopReporter{}
	}
	p.reporter = r
	if s, ok := p.downloader.(interface{ SetReporter(ui.Reporter) }); ok {
		s.SetReporter(r)
	}
}

// Run downloads username and post-processes its folder. Soft download
// errors (rate limiting, forbidden, connection failures, cancellation) still
// lead to post-processing, which runs even after ctx is cancelled. The
// returned error is non-nil exactly when the outcome is a failure.
func (p *Pipeline) Run(ctx context.Context, username string, opts scraper.Options) (*Result, error) {
	start := time.Now()
	log, runID := logger.WithRunID(p.logger)
	log = log.WithField("username", username)

	result := &Result{
		RunID:     runID,
		Username:  username,
		OutputDir: p.config.ProfileDir(username),
	}
	defer func() { result.Duration = time.Since(start) }()

	logger.LogStage(log, string(ui.StageDownload), result.OutputDir)
	summary, err := p.downloader.Download(ctx, username, opts)
	result.Download = summary
	if summary != nil {
		result.Username = summary.Username
		result.OutputDir = summary.OutputDir
	}
	if err != nil {
		log.WithError(err).Error("Download failed, skipping post-processing")
		p.reporter.LogError("Download failed: %v", err)
		p.reporter.SetStage(ui.StageDone, result.Username)
		result.Outcome = OutcomeDownloadFailed
		result.Err = err
		return result, err
	}

	result.Outcome = OutcomeSuccess
	if summary != nil && summary.Incomplete {
		result.Outcome = OutcomePartial
	}

	// Post-processing works on whatever reached the disk, even after an
	// interrupt
	if err := p.postProcess(context.WithoutCancel(ctx), log, result); err != nil {
		log.WithError(err).Error("Download succeeded but post-processing failed")
		p.reporter.LogError("Download succeeded, post-processing failed: %v", err)
		result.Outcome = OutcomePostProcessFailed
		result.Err = err
	}

	p.reporter.SetStage(ui.StageDone, result.Username)
	log.InfoWithFields("Pipeline finished", map[string]interface{}{
		"outcome":  string(result.Outcome),
		"duration": time.Since(start).String(),
	})
	return result, result.Err
}

func (p *Pipeline) postProcess(ctx context.Context, log logger.Logger, result *Result) error {
	dir := result.OutputDir
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Info("Nothing was downloaded, skipping post-processing")
		return nil
	}

	if p.config.PostProcess.ExtractURLs {
		p.reporter.SetStage(ui.StageURLs, dir)
		logger.LogStage(log, string(ui.StageURLs), dir)

		urls, err := p.processor.ExtractPostURLs(ctx, dir)
		if err != nil {
			return fmt.Errorf("failed to extract post URLs: %w", err)
		}
		result.URLs = urls
		p.reporter.LogSuccess("%d post URLs saved", urls.Written)
	}

	if p.config.PostProcess.CompressMedia {
		p.reporter.SetStage(ui.StageCompress, dir)
		logger.LogStage(log, string(ui.StageCompress), dir)

		compressed, err := p.processor.CompressMedia(ctx, dir)
		result.Compress = compressed
		if err != nil {
			return fmt.Errorf("failed to compress media: %w", err)
		}
		p.reporter.LogSuccess("%d media files compressed into %d archives", compressed.Files, compressed.Archives)
	}
	return nil
}
