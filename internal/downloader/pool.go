package downloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"igarchiver/pkg/logger"
	"igarchiver/pkg/ratelimit"
)

// DownloadJob represents a single media file to fetch
type DownloadJob struct {
	URL       string
	Filename  string
	Shortcode string
	Username  string
	IsVideo   bool
}

// MediaType returns "video" or "image"
func (j DownloadJob) MediaType() string {
	if j.IsVideo {
		return "video"
	}
	return "image"
}

// DownloadResult represents the result of a download job
type DownloadResult struct {
	Job      DownloadJob
	Success  bool
	Skipped  bool
	Error    error
	Duration time.Duration
	Size     int64
}

// MediaDownloader fetches media bytes
type MediaDownloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// MediaStorage stores media files
type MediaStorage interface {
	Has(name string) bool
	SaveMedia(r io.Reader, name string) (int64, error)
}

// WorkerPool manages concurrent download workers
type WorkerPool struct {
	numWorkers     int
	jobQueue       chan DownloadJob
	resultQueue    chan DownloadResult
	wg             sync.WaitGroup
	ctx            context.Context
	cancel         context.CancelFunc
	client         MediaDownloader
	storageManager MediaStorage
	rateLimiter    ratelimit.Limiter
	logger         logger.Logger
}

// NewWorkerPool creates a new download worker pool. Cancelling ctx stops the
// workers after their current job.
func NewWorkerPool(
	ctx context.Context,
	numWorkers int,
	client MediaDownloader,
	storageManager MediaStorage,
	rateLimiter ratelimit.Limiter,
	log logger.Logger,
) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)

	if log == nil {
		log = logger.GetLogger()
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.Unlimited()
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	return &WorkerPool{
		numWorkers:     numWorkers,
		jobQueue:       make(chan DownloadJob, numWorkers*2),
		resultQueue:    make(chan DownloadResult, numWorkers),
		ctx:            ctx,
		cancel:         cancel,
		client:         client,
		storageManager: storageManager,
		rateLimiter:    rateLimiter,
		logger:         log,
	}
}

// Start initializes and starts all workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the queue, waits for the workers to drain it and closes Results
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Debug("Worker pool stopped")
}

// Submit adds a new download job to the queue
func (wp *WorkerPool) Submit(job DownloadJob) error {
	if err := wp.ctx.Err(); err != nil {
		return fmt.Errorf("worker pool is shutting down: %w", err)
	}
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results returns the result channel for consuming download results
func (wp *WorkerPool) Results() <-chan DownloadResult {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		if wp.ctx.Err() != nil {
			return
		}

		result := wp.processJob(job, id)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

// processJob handles a single download job
func (wp *WorkerPool) processJob(job DownloadJob, workerID int) DownloadResult {
	start := time.Now()
	result := DownloadResult{Job: job}

	if wp.storageManager.Has(job.Filename) {
		wp.logger.DebugWithFields("Media already downloaded", map[string]interface{}{
			"worker_id": workerID,
			"file":      job.Filename,
		})
		result.Success = true
		result.Skipped = true
		result.Duration = time.Since(start)
		return result
	}

	if err := wp.rateLimiter.Wait(wp.ctx); err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	data, err := wp.client.Download(wp.ctx, job.URL)
	if err != nil {
		result.Error = fmt.Errorf("download failed: %w", err)
		result.Duration = time.Since(start)
		logger.LogDownload(wp.logger, job.Username, job.Shortcode, job.MediaType(), 0, err)
		return result
	}

	size, err := wp.storageManager.SaveMedia(bytes.NewReader(data), job.Filename)
	if err != nil {
		result.Error = fmt.Errorf("save failed: %w", err)
		result.Duration = time.Since(start)

		wp.logger.ErrorWithFields("Worker failed to save media", map[string]interface{}{
			"worker_id": workerID,
			"file":      job.Filename,
			"error":     err.Error(),
		})
		return result
	}

	result.Success = true
	result.Size = size
	result.Duration = time.Since(start)
	logger.LogDownload(wp.logger, job.Username, job.Shortcode, job.MediaType(), size, nil)

	return result
}
