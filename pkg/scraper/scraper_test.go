package scraper

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"igarchiver/pkg/checkpoint"
	"igarchiver/pkg/config"
	"igarchiver/pkg/errors"
	"igarchiver/pkg/instagram"
	"igarchiver/pkg/logger"
)

var fixedNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

// fakeClient is an in-memory Instagram
type fakeClient struct {
	mu sync.Mutex

	user        *instagram.User
	profileErr  error
	pages       map[string]*instagram.EdgeOwnerToTimelineMedia
	timelineErr map[string]error
	posts       map[string]*instagram.Node
	mediaErr    map[string]error

	timelineCalls []string
	postCalls     []string
	downloads     []string
}

func newFakeClient(first []instagram.Edge, nextCursor string) *fakeClient {
	return &fakeClient{
		user: &instagram.User{
			ID:                       "42",
			Username:                 "natgeo",
			ProfilePicURLHD:          "https://cdn.test/pic.jpg",
			EdgeOwnerToTimelineMedia: page(first, nextCursor),
		},
		pages:       make(map[string]*instagram.EdgeOwnerToTimelineMedia),
		timelineErr: make(map[string]error),
		posts:       make(map[string]*instagram.Node),
		mediaErr:    make(map[string]error),
	}
}

func (f *fakeClient) addPage(cursor string, edges []instagram.Edge, next string) {
	p := page(edges, next)
	f.pages[cursor] = &p
}

func (f *fakeClient) FetchProfile(ctx context.Context, username string) (*instagram.User, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	u := *f.user
	return &u, nil
}

func (f *fakeClient) FetchTimeline(ctx context.Context, userID, after string, limit int) (*instagram.EdgeOwnerToTimelineMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timelineCalls = append(f.timelineCalls, after)
	if err := f.timelineErr[after]; err != nil {
		return nil, err
	}
	p, ok := f.pages[after]
	if !ok {
		return nil, errors.New(errors.ErrorTypeNotFound, 404, "no such page")
	}
	cp := *p
	cp.Edges = append([]instagram.Edge(nil), p.Edges...)
	return &cp, nil
}

func (f *fakeClient) FetchPost(ctx context.Context, shortcode string) (*instagram.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postCalls = append(f.postCalls, shortcode)
	n, ok := f.posts[shortcode]
	if !ok {
		return nil, errors.New(errors.ErrorTypeNotFound, 404, "post not found")
	}
	return n, nil
}

func (f *fakeClient) Download(ctx context.Context, mediaURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mediaErr[mediaURL]; err != nil {
		return nil, err
	}
	f.downloads = append(f.downloads, mediaURL)
	return []byte("data:" + mediaURL), nil
}

func page(edges []instagram.Edge, next string) instagram.EdgeOwnerToTimelineMedia {
	return instagram.EdgeOwnerToTimelineMedia{
		Count:    len(edges),
		Edges:    edges,
		PageInfo: instagram.PageInfo{HasNextPage: next != "", EndCursor: next},
	}
}

func photo(shortcode string, t time.Time) instagram.Edge {
	return instagram.Edge{Node: instagram.Node{
		ID:               shortcode,
		Typename:         instagram.TypeImage,
		Shortcode:        shortcode,
		DisplayURL:       "https://cdn.test/" + shortcode + ".jpg",
		TakenAtTimestamp: t.Unix(),
	}}
}

func video(shortcode string, t time.Time, withURL bool) instagram.Edge {
	e := photo(shortcode, t)
	e.Node.Typename = instagram.TypeVideo
	e.Node.IsVideo = true
	if withURL {
		e.Node.VideoURL = "https://cdn.test/" + shortcode + ".mp4"
	}
	return e
}

func date(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func newTestScraper(t *testing.T, client InstagramClient) (*Scraper, *config.Config) {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = t.TempDir()
	cfg.RateLimit.RequestsPerMinute = 600
	cfg.RateLimit.BurstSize = 50

	s := NewWithClient(cfg, client, logger.NewTestLogger())
	s.now = func() time.Time { return fixedNow }
	return s, cfg
}

func checkpointExists(t *testing.T, username string) bool {
	t.Helper()
	mgr, err := checkpoint.NewManager(username, logger.NewNopLogger())
	require.NoError(t, err)
	return mgr.Exists()
}

func TestDownloadWholeProfile(t *testing.T) {
	sidecar := photo("CAR", date(2024, 2, 1, 10))
	sidecar.Node.Typename = instagram.TypeSidecar
	sidecar.Node.Sidecar = &instagram.SidecarEdges{Edges: []instagram.Edge{
		{Node: instagram.Node{DisplayURL: "https://cdn.test/car1.jpg"}},
		{Node: instagram.Node{IsVideo: true, DisplayURL: "https://cdn.test/car2-thumb.jpg"}},
	}}
	first := photo("ONE", date(2024, 3, 1, 10))
	first.Node.Caption.Edges = []instagram.CaptionEdge{{Node: instagram.CaptionNode{Text: "first"}}}

	client := newFakeClient([]instagram.Edge{first, sidecar}, "c1")
	client.addPage("c1", []instagram.Edge{video("VID", time.Date(2023, 12, 31, 23, 30, 0, 0, time.UTC), true)}, "")

	full := sidecar.Node
	full.Sidecar = &instagram.SidecarEdges{Edges: []instagram.Edge{
		{Node: instagram.Node{DisplayURL: "https://cdn.test/car1.jpg"}},
		{Node: instagram.Node{IsVideo: true, VideoURL: "https://cdn.test/car2.mp4"}},
	}}
	client.posts["CAR"] = &full

	s, cfg := newTestScraper(t, client)
	summary, err := s.Download(context.Background(), "@natgeo", Options{})
	require.NoError(t, err)

	dir := filepath.Join(cfg.Output.BaseDirectory, "natgeo")
	assert.Equal(t, dir, summary.OutputDir)
	for _, name := range []string{
		"2024-03-01_10-00-00_UTC.jpg",
		"2024-03-01_10-00-00_UTC.json.xz",
		"2024-03-01_10-00-00_UTC.txt",
		"2024-02-01_10-00-00_UTC_1.jpg",
		"2024-02-01_10-00-00_UTC_2.mp4",
		"2024-02-01_10-00-00_UTC.json.xz",
		"2023-12-31_23-30-00_UTC.mp4",
		"2025-06-01_08-00-00_UTC_profile_pic.jpg",
	} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	data, err := os.ReadFile(filepath.Join(dir, "2024-02-01_10-00-00_UTC_2.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "data:https://cdn.test/car2.mp4", string(data))

	assert.False(t, summary.Incomplete)
	assert.NoError(t, summary.Cause)
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 3, summary.PostsSeen)
	assert.Equal(t, 5, summary.Downloaded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, []string{"c1"}, client.timelineCalls)
	assert.Equal(t, []string{"CAR"}, client.postCalls)
	assert.False(t, checkpointExists(t, "natgeo"), "a complete run removes its checkpoint")
}

func TestDownloadYearFilterStopsEarly(t *testing.T) {
	client := newFakeClient([]instagram.Edge{
		photo("A", date(2025, 1, 5, 9)),
		photo("B", date(2024, 6, 1, 9)),
	}, "c1")
	client.addPage("c1", []instagram.Edge{
		photo("D", date(2023, 7, 1, 9)),
		photo("E", date(2023, 3, 1, 9)),
	}, "c2")
	client.addPage("c2", []instagram.Edge{photo("F", date(2022, 1, 1, 9))}, "c3")
	client.addPage("c3", []instagram.Edge{photo("G", date(2021, 1, 1, 9))}, "")

	s, cfg := newTestScraper(t, client)
	cfg.Download.ProfilePic = false

	summary, err := s.Download(context.Background(), "natgeo", Options{Year: 2023})
	require.NoError(t, err)

	assert.Equal(t, []string{"c1", "c2"}, client.timelineCalls, "page c3 is never requested")
	assert.Equal(t, 2, summary.PostsMatched)
	assert.Equal(t, 2, summary.Downloaded)

	dir := summary.OutputDir
	assert.FileExists(t, filepath.Join(dir, "2023-07-01_09-00-00_UTC.jpg"))
	assert.FileExists(t, filepath.Join(dir, "2023-03-01_09-00-00_UTC.jpg"))
	assert.NoFileExists(t, filepath.Join(dir, "2024-06-01_09-00-00_UTC.jpg"))
	assert.NoFileExists(t, filepath.Join(dir, "2022-01-01_09-00-00_UTC.jpg"))
}

func TestDownloadRateLimitedTimelineIsSoft(t *testing.T) {
	client := newFakeClient([]instagram.Edge{photo("ONE", date(2024, 3, 1, 10))}, "c1")
	client.addPage("c1", []instagram.Edge{photo("TWO", date(2024, 2, 1, 10))}, "")
	client.timelineErr["c1"] = errors.New(errors.ErrorTypeRateLimit, 429, "rate limit exceeded")

	s, cfg := newTestScraper(t, client)
	cfg.Download.ProfilePic = false

	summary, err := s.Download(context.Background(), "natgeo", Options{})
	require.NoError(t, err)

	assert.True(t, summary.Incomplete)
	assert.Equal(t, errors.ErrorTypeRateLimit, errors.TypeOf(summary.Cause))
	assert.FileExists(t, filepath.Join(summary.OutputDir, "2024-03-01_10-00-00_UTC.jpg"))
	assert.True(t, checkpointExists(t, "natgeo"), "an incomplete run keeps its checkpoint")
}

func TestDownloadResumeFromCursor(t *testing.T) {
	client := newFakeClient([]instagram.Edge{photo("ONE", date(2024, 3, 1, 10))}, "c1")
	client.addPage("c1", []instagram.Edge{photo("TWO", date(2024, 2, 1, 10))}, "c2")
	client.addPage("c2", []instagram.Edge{photo("THREE", date(2024, 1, 1, 10))}, "")
	client.timelineErr["c2"] = errors.New(errors.ErrorTypeForbidden, 403, "access forbidden")

	s, cfg := newTestScraper(t, client)
	cfg.Download.ProfilePic = false

	first, err := s.Download(context.Background(), "natgeo", Options{})
	require.NoError(t, err)
	require.True(t, first.Incomplete)
	assert.Equal(t, 2, first.Downloaded)

	delete(client.timelineErr, "c2")
	client.timelineCalls = nil

	second, err := s.Download(context.Background(), "natgeo", Options{Resume: true})
	require.NoError(t, err)
	assert.False(t, second.Incomplete)
	assert.Equal(t, []string{"c1", "c2"}, client.timelineCalls)
	assert.Equal(t, 2, second.PostsSeen, "the profile page is not rescanned")
	assert.Equal(t, 1, second.Downloaded)
	assert.Equal(t, 1, second.Skipped)
	assert.FileExists(t, filepath.Join(second.OutputDir, "2024-01-01_10-00-00_UTC.jpg"))
}

func TestDownloadResumeSkipsCheckpointedPosts(t *testing.T) {
	client := newFakeClient([]instagram.Edge{photo("ONE", date(2024, 3, 1, 10))}, "c1")
	client.addPage("c1", []instagram.Edge{photo("TWO", date(2024, 2, 1, 10))}, "c2")
	client.addPage("c2", []instagram.Edge{photo("THREE", date(2024, 1, 1, 10))}, "")
	client.timelineErr["c2"] = errors.New(errors.ErrorTypeForbidden, 403, "access forbidden")

	s, cfg := newTestScraper(t, client)
	cfg.Download.ProfilePic = false

	first, err := s.Download(context.Background(), "natgeo", Options{})
	require.NoError(t, err)
	require.True(t, first.Incomplete)

	// Media moved out of the folder after the first session
	require.NoError(t, os.Remove(filepath.Join(first.OutputDir, "2024-02-01_10-00-00_UTC.jpg")))

	delete(client.timelineErr, "c2")
	client.downloads = nil

	second, err := s.Download(context.Background(), "natgeo", Options{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.test/THREE.jpg"}, client.downloads)
	assert.Equal(t, 1, second.Skipped)
	assert.NoFileExists(t, filepath.Join(second.OutputDir, "2024-02-01_10-00-00_UTC.jpg"))
}

func TestDownloadSkipsArchivedMedia(t *testing.T) {
	client := newFakeClient([]instagram.Edge{
		photo("ONE", date(2024, 3, 1, 10)),
		photo("TWO", date(2024, 3, 2, 10)),
	}, "")

	s, cfg := newTestScraper(t, client)
	cfg.Download.ProfilePic = false

	dir := filepath.Join(cfg.Output.BaseDirectory, "natgeo")
	require.NoError(t, os.MkdirAll(dir, 0755))
	f, err := os.Create(filepath.Join(dir, "media_2024-03-01.zip"))
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	_, err = zw.Create("2024-03-01_10-00-00_UTC.jpg")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	summary, err := s.Download(context.Background(), "natgeo", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, []string{"https://cdn.test/TWO.jpg"}, client.downloads)
	assert.NoFileExists(t, filepath.Join(dir, "2024-03-01_10-00-00_UTC.jpg"))
}

func TestDownloadSkipVideos(t *testing.T) {
	client := newFakeClient([]instagram.Edge{
		video("VID", date(2024, 3, 1, 10), false),
		photo("PIC", date(2024, 3, 2, 10)),
	}, "")

	s, cfg := newTestScraper(t, client)
	cfg.Download.ProfilePic = false
	cfg.Download.SkipVideos = true

	summary, err := s.Download(context.Background(), "natgeo", Options{})
	require.NoError(t, err)

	assert.Empty(t, client.postCalls, "no lookups for skipped videos")
	assert.Equal(t, []string{"https://cdn.test/PIC.jpg"}, client.downloads)
	assert.Equal(t, 1, summary.Downloaded)
}

func TestDownloadMediaForbiddenEndsEarly(t *testing.T) {
	client := newFakeClient([]instagram.Edge{photo("ONE", date(2024, 3, 1, 10))}, "")
	client.mediaErr["https://cdn.test/ONE.jpg"] = errors.New(errors.ErrorTypeForbidden, 403, "access forbidden")

	s, cfg := newTestScraper(t, client)
	cfg.Download.ProfilePic = false

	summary, err := s.Download(context.Background(), "natgeo", Options{})
	require.NoError(t, err)

	assert.True(t, summary.Incomplete)
	assert.Equal(t, errors.ErrorTypeForbidden, errors.TypeOf(summary.Cause))
	assert.Equal(t, 1, summary.Failed)
}

func TestDownloadProfileErrors(t *testing.T) {
	t.Run("not found is hard", func(t *testing.T) {
		client := newFakeClient(nil, "")
		client.profileErr = errors.New(errors.ErrorTypeNotFound, 404, "profile does not exist")
		s, _ := newTestScraper(t, client)

		_, err := s.Download(context.Background(), "ghost", Options{})
		require.Error(t, err)
		assert.Equal(t, errors.ErrorTypeNotFound, errors.TypeOf(err))
	})

	t.Run("connection failure is soft", func(t *testing.T) {
		client := newFakeClient(nil, "")
		client.profileErr = errors.Wrap(errors.ErrorTypeNetwork, assert.AnError, "network error")
		s, _ := newTestScraper(t, client)

		summary, err := s.Download(context.Background(), "natgeo", Options{})
		require.NoError(t, err)
		assert.True(t, summary.Incomplete)
	})

	t.Run("invalid username", func(t *testing.T) {
		s, _ := newTestScraper(t, newFakeClient(nil, ""))
		_, err := s.Download(context.Background(), "not a user", Options{})
		assert.ErrorContains(t, err, "invalid Instagram username")
	})
}

func TestDownloadCancelledIsSoft(t *testing.T) {
	client := newFakeClient([]instagram.Edge{photo("ONE", date(2024, 3, 1, 10))}, "c1")
	client.addPage("c1", nil, "")

	s, _ := newTestScraper(t, client)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := s.Download(ctx, "natgeo", Options{})
	require.NoError(t, err)
	assert.True(t, summary.Incomplete)
	assert.ErrorIs(t, summary.Cause, context.Canceled)
}

func TestParseYear(t *testing.T) {
	now := date(2025, 6, 1, 0)
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"all", 0, false},
		{"ALL", 0, false},
		{"2010", 2010, false},
		{" 2025 ", 2025, false},
		{"2009", 0, true},
		{"2026", 0, true},
		{"twenty", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseYear(tt.in, now)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
