package scraper

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"igarchiver/internal/downloader"
	"igarchiver/pkg/checkpoint"
	"igarchiver/pkg/config"
	"igarchiver/pkg/errors"
	"igarchiver/pkg/instagram"
	"igarchiver/pkg/logger"
	"igarchiver/pkg/ratelimit"
	"igarchiver/pkg/storage"
	"igarchiver/pkg/ui"
)

// Options controls a single profile download
type Options struct {
	// Year keeps only posts taken in this year (UTC). 0 downloads everything.
	Year int
	// Resume continues from the saved checkpoint when it matches
	Resume bool
	// ForceRestart discards any saved checkpoint
	ForceRestart bool
}

// Summary describes what a download run did
type Summary struct {
	Username     string
	UserID       string
	OutputDir    string
	Year         int
	Pages        int
	PostsSeen    int
	PostsMatched int
	Downloaded   int
	Skipped      int
	Failed       int
	Bytes        int64
	// Incomplete is set when a soft error ended the download early
	Incomplete bool
	// Cause is the soft error that ended the download, if any
	Cause    error
	Duration time.Duration
}

// Scraper downloads a profile's posts into its profile folder
type Scraper struct {
	client       InstagramClient
	config       *config.Config
	logger       logger.Logger
	reporter     ui.Reporter
	mediaLimiter ratelimit.Limiter
	now          func() time.Time
}

// New creates a Scraper talking to Instagram with the configured client
func New(cfg *config.Config, log logger.Logger) *Scraper {
	if log == nil {
		log = logger.GetLogger()
	}
	return NewWithClient(cfg, instagram.NewClientFromConfig(cfg, log), log)
}

// NewWithClient creates a Scraper using the given client
func NewWithClient(cfg *config.Config, client InstagramClient, log logger.Logger) *Scraper {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Scraper{
		client:   client,
		config:   cfg,
		logger:   log,
		reporter: ui.NopReporter{},
		// CDN fetches get their own bucket with the same budget as API calls
		mediaLimiter: ratelimit.FromConfig(&cfg.RateLimit),
		now:          time.Now,
	}
}

// SetReporter sets the progress reporter
func (s *Scraper) SetReporter(r ui.Reporter) {
	if r == nil {
		r = ui.NopReporter{}
	}
	s.reporter = r
}

// OutputDir returns the profile folder for username
func (s *Scraper) OutputDir(username string) string {
	return s.config.ProfileDir(username)
}

// pendingPost tracks the media files of one post still in flight
type pendingPost struct {
	stem      string
	remaining int
	failed    bool
}

// run holds the mutable state of one Download call
type run struct {
	*Scraper
	logger   logger.Logger
	username string
	opts     Options
	summary  *Summary
	store    *storage.Manager

	cpMgr *checkpoint.Manager
	cp    *checkpoint.Checkpoint

	mu         sync.Mutex
	pending    map[string]*pendingPost
	cause      error
	stopPaging context.CancelFunc
	stopPool   context.CancelFunc
}

// Download fetches the profile's posts. Hard failures (unknown profile,
// login required, unreadable responses, disk errors) are returned as errors.
// Soft failures (rate limiting, forbidden, connection problems, an open
// circuit, cancellation) end the download early: the Summary is returned
// with Incomplete set and Cause holding the error.
func (s *Scraper) Download(ctx context.Context, username string, opts Options) (*Summary, error) {
	start := s.now()
	username = instagram.SanitizeUsername(username)
	if !instagram.IsValidUsername(username) {
		return nil, fmt.Errorf("invalid Instagram username %q", username)
	}

	log := s.logger.WithFields(map[string]interface{}{
		"username": username,
		"year":     opts.Year,
	})

	r := &run{
		Scraper:  s,
		logger:   log,
		username: username,
		opts:     opts,
		pending:  make(map[string]*pendingPost),
		summary: &Summary{
			Username:  username,
			OutputDir: s.OutputDir(username),
			Year:      opts.Year,
		},
	}
	defer func() { r.summary.Duration = time.Since(start) }()

	s.reporter.SetStage(ui.StageDownload, username)
	log.Info("Starting profile download")

	user, err := s.client.FetchProfile(ctx, username)
	if err != nil {
		if errors.IsSoft(err) {
			r.markIncomplete(err)
			return r.summary, nil
		}
		return r.summary, fmt.Errorf("failed to fetch profile: %w", err)
	}
	r.summary.UserID = user.ID
	if user.IsPrivate {
		log.Warn("Profile is private; only posts visible to the session can be downloaded")
	}

	store, err := storage.NewManager(r.summary.OutputDir, storage.Options{
		SaveMetadata:     s.config.Download.SaveMetadata,
		CompressMetadata: s.config.Download.CompressMetadata,
		SaveCaptions:     s.config.Download.SaveCaptions,
	}, log)
	if err != nil {
		return r.summary, err
	}
	r.store = store

	r.loadCheckpoint(user)
	s.reporter.SetTotal(username, user.EdgeOwnerToTimelineMedia.Count)

	// A soft error while paging lets queued media finish; one from the
	// media workers stops them too.
	poolCtx, stopPool := context.WithCancel(ctx)
	defer stopPool()
	pageCtx, stopPaging := context.WithCancel(poolCtx)
	defer stopPaging()
	r.stopPool = stopPool
	r.stopPaging = stopPaging

	pool := downloader.NewWorkerPool(poolCtx, s.config.Download.ConcurrentDownloads,
		s.client, store, s.mediaLimiter, log)
	pool.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.processResults(pool.Results())
	}()

	if s.config.Download.ProfilePic && !store.HasProfilePic() && user.ProfilePic() != "" {
		r.submit(pool, downloader.DownloadJob{
			URL:      user.ProfilePic(),
			Filename: storage.ProfilePicName(s.now()),
			Username: username,
		})
	}

	paginateErr := r.paginate(pageCtx, pool, user)

	pool.Stop()
	wg.Wait()

	if paginateErr != nil {
		return r.summary, paginateErr
	}

	r.mu.Lock()
	cause := r.cause
	r.mu.Unlock()
	if cause == nil && ctx.Err() != nil {
		cause = ctx.Err()
	}
	if cause != nil {
		r.markIncomplete(cause)
	} else {
		r.finishCheckpoint()
	}

	log.InfoWithFields("Profile download finished", map[string]interface{}{
		"downloaded": r.summary.Downloaded,
		"skipped":    r.summary.Skipped,
		"failed":     r.summary.Failed,
		"incomplete": r.summary.Incomplete,
	})
	return r.summary, nil
}

// paginate walks the timeline, queueing media of matching posts. It returns
// only hard errors; soft ones are recorded as the run's cause.
func (r *run) paginate(ctx context.Context, pool *downloader.WorkerPool, user *instagram.User) error {
	page := &user.EdgeOwnerToTimelineMedia
	pageNum := 0

	if r.cp != nil && r.cp.EndCursor != "" {
		pageNum = r.cp.LastProcessedPage
		next, err := r.fetchPage(ctx, user.ID, r.cp.EndCursor)
		if err != nil || next == nil {
			return err
		}
		page = next
	}

	for {
		if ctx.Err() != nil {
			r.setCause(ctx.Err())
			return nil
		}

		pageNum++
		r.summary.Pages++
		r.reporter.LogInfo("Scanning page %d", pageNum)

		older, err := r.queuePage(ctx, pool, page)
		if err != nil {
			return err
		}

		cursor := ""
		if page.PageInfo.HasNextPage {
			cursor = page.PageInfo.EndCursor
		}

		if cursor == "" {
			r.logger.Debug("No more pages to fetch")
			return nil
		}
		if r.opts.Year > 0 && len(page.Edges) > 0 && older == len(page.Edges) {
			r.logger.DebugWithFields("Page is older than the year filter, stopping", map[string]interface{}{
				"page": pageNum,
			})
			return nil
		}

		next, err := r.fetchPage(ctx, user.ID, cursor)
		if err != nil || next == nil {
			return err
		}
		page = next
		// A resumed run refetches the page it was working on; finished
		// files are skipped by the storage index.
		r.saveProgress(cursor, pageNum)
	}
}

// fetchPage fetches a timeline page. A soft failure is recorded and yields
// nil, nil.
func (r *run) fetchPage(ctx context.Context, userID, cursor string) (*instagram.EdgeOwnerToTimelineMedia, error) {
	page, err := r.client.FetchTimeline(ctx, userID, cursor, r.config.Download.PageSize)
	if err != nil {
		if errors.IsSoft(err) {
			r.setCause(err)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch timeline: %w", err)
	}
	return page, nil
}

// queuePage queues every matching post on the page and returns how many
// posts were older than the year filter
func (r *run) queuePage(ctx context.Context, pool *downloader.WorkerPool, page *instagram.EdgeOwnerToTimelineMedia) (int, error) {
	older := 0
	for i := range page.Edges {
		node := &page.Edges[i].Node
		r.summary.PostsSeen++

		if r.opts.Year > 0 {
			year := node.TakenAt().Year()
			if year < r.opts.Year {
				older++
			}
			if year != r.opts.Year {
				continue
			}
		}
		r.summary.PostsMatched++

		if err := r.queuePost(ctx, pool, node); err != nil {
			return older, err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return older, nil
}

// queuePost writes a post's metadata and queues its media files
func (r *run) queuePost(ctx context.Context, pool *downloader.WorkerPool, node *instagram.Node) error {
	log := r.logger.WithField("shortcode", node.Shortcode)

	if r.resumedPost(node.Shortcode) || r.store.IsPostComplete(node) {
		log.Debug("Post already downloaded")
		r.mu.Lock()
		r.summary.Skipped += len(node.MediaItems())
		r.mu.Unlock()
		r.recordPost(node.Shortcode, storage.Stem(node.TakenAt()))
		return nil
	}

	if r.needsVideoLookup(node) {
		full, err := r.client.FetchPost(ctx, node.Shortcode)
		if err != nil {
			if errors.IsSoft(err) {
				r.setCause(err)
				return nil
			}
			log.WithError(err).Warn("Skipping post whose video URL could not be resolved")
			r.addFailed()
			return nil
		}
		mergeVideoURLs(node, full)
	}

	if err := r.store.SavePost(node); err != nil {
		return err
	}

	stem := storage.Stem(node.TakenAt())
	var jobs []downloader.DownloadJob
	for _, item := range node.MediaItems() {
		if item.IsVideo && r.config.Download.SkipVideos {
			continue
		}
		if item.URL == "" {
			log.WithField("index", item.Index).Warn("Media item has no URL")
			r.addFailed()
			continue
		}
		jobs = append(jobs, downloader.DownloadJob{
			URL:       item.URL,
			Filename:  storage.MediaName(stem, item.Index, item.IsVideo),
			Shortcode: node.Shortcode,
			Username:  r.username,
			IsVideo:   item.IsVideo,
		})
	}
	if len(jobs) == 0 {
		return nil
	}

	// Register the whole post before submitting so a fast worker cannot
	// complete it early.
	r.mu.Lock()
	r.pending[node.Shortcode] = &pendingPost{stem: stem, remaining: len(jobs)}
	r.mu.Unlock()

	for _, job := range jobs {
		if !r.submit(pool, job) {
			break
		}
	}
	return nil
}

func (r *run) needsVideoLookup(node *instagram.Node) bool {
	if r.config.Download.SkipVideos {
		return false
	}
	for _, item := range node.MediaItems() {
		if item.IsVideo && item.URL == "" {
			return true
		}
	}
	return false
}

// mergeVideoURLs copies video URLs from a full post lookup into a timeline node
func mergeVideoURLs(node, full *instagram.Node) {
	if node.IsVideo && node.VideoURL == "" {
		node.VideoURL = full.VideoURL
	}
	if node.Sidecar == nil || full.Sidecar == nil {
		return
	}
	for i := range node.Sidecar.Edges {
		if i >= len(full.Sidecar.Edges) {
			break
		}
		child := &node.Sidecar.Edges[i].Node
		if child.IsVideo && child.VideoURL == "" {
			child.VideoURL = full.Sidecar.Edges[i].Node.VideoURL
		}
	}
}

func (r *run) submit(pool *downloader.WorkerPool, job downloader.DownloadJob) bool {
	if err := pool.Submit(job); err != nil {
		r.logger.WithError(err).WithField("file", job.Filename).Debug("Failed to submit download job")
		return false
	}
	r.reporter.StartDownload(job.Filename, job.Filename)
	return true
}

// processResults aggregates worker results until the pool is stopped
func (r *run) processResults(results <-chan downloader.DownloadResult) {
	for result := range results {
		job := result.Job

		r.mu.Lock()
		switch {
		case result.Error != nil:
			r.summary.Failed++
		case result.Skipped:
			r.summary.Skipped++
		default:
			r.summary.Downloaded++
			r.summary.Bytes += result.Size
		}
		post := r.pending[job.Shortcode]
		done := false
		if post != nil {
			post.remaining--
			post.failed = post.failed || result.Error != nil
			done = post.remaining == 0 && !post.failed
			if post.remaining == 0 {
				delete(r.pending, job.Shortcode)
			}
		}
		r.mu.Unlock()

		if result.Error != nil {
			r.reporter.FailDownload(job.Filename, result.Error)
			if errors.IsSoft(result.Error) && !stderrors.Is(result.Error, context.Canceled) {
				r.setCause(result.Error)
				r.stopPool()
			}
			continue
		}
		r.reporter.CompleteDownload(job.Filename, result.Size, result.Skipped)
		if done {
			r.recordPost(job.Shortcode, post.stem)
		}
	}
}

func (r *run) addFailed() {
	r.mu.Lock()
	r.summary.Failed++
	r.mu.Unlock()
}

// setCause records the first soft error and stops paging
func (r *run) setCause(err error) {
	r.mu.Lock()
	if r.cause == nil {
		r.cause = err
		r.logger.WithError(err).Warn("Download interrupted; continuing with what was fetched")
		if errors.TypeOf(err) == errors.ErrorTypeRateLimit {
			r.reporter.RateLimited(r.config.RateLimit.Cooldown)
		}
	}
	r.mu.Unlock()

	if r.stopPaging != nil {
		r.stopPaging()
	}
}

func (r *run) markIncomplete(cause error) {
	r.summary.Incomplete = true
	r.summary.Cause = cause
	r.reporter.LogWarning("Download incomplete: %v", cause)
}

func (r *run) loadCheckpoint(user *instagram.User) {
	mgr, err := checkpoint.NewManager(r.username, r.logger)
	if err != nil {
		r.logger.WithError(err).Warn("Checkpoints disabled")
		return
	}
	r.cpMgr = mgr

	if r.opts.ForceRestart {
		if err := mgr.Delete(); err != nil {
			r.logger.WithError(err).Warn("Failed to delete existing checkpoint")
		}
	} else if r.opts.Resume {
		cp, err := mgr.Load()
		if err != nil {
			r.logger.WithError(err).Warn("Ignoring unreadable checkpoint")
		} else if cp != nil && cp.Matches(user.ID, r.opts.Year) {
			r.cp = cp
			r.reporter.LogInfo("Resuming from checkpoint (%d posts done)", cp.TotalDownloaded)
			r.logger.WithField("checkpoint", mgr.Path()).Debug("Loaded checkpoint")
			return
		} else if cp != nil {
			r.logger.Info("Checkpoint belongs to a different user or year filter, starting over")
		}
	} else if mgr.Exists() {
		r.reporter.LogInfo("Previous download found; use --resume to continue from it")
	}

	cp, err := mgr.Create(r.username, user.ID, r.opts.Year)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to create checkpoint")
		return
	}
	r.cp = cp
}

// resumedPost reports whether a resumed checkpoint already recorded the post
func (r *run) resumedPost(shortcode string) bool {
	if !r.opts.Resume || r.cp == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cp.IsPostDownloaded(shortcode)
}

func (r *run) saveProgress(cursor string, pageNum int) {
	if r.cpMgr == nil || r.cp == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cp.TotalQueued = r.summary.PostsMatched
	if err := r.cpMgr.UpdateProgress(r.cp, cursor, pageNum); err != nil {
		r.logger.WithError(err).Warn("Failed to update checkpoint progress")
	}
}

func (r *run) recordPost(shortcode, stem string) {
	if r.cpMgr == nil || r.cp == nil || shortcode == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.cpMgr.RecordPost(r.cp, shortcode, stem); err != nil {
		r.logger.WithError(err).Warn("Failed to record post in checkpoint")
	}
}

func (r *run) finishCheckpoint() {
	if r.cpMgr == nil {
		return
	}
	if err := r.cpMgr.Delete(); err != nil {
		r.logger.WithError(err).Warn("Failed to delete checkpoint")
	}
}
