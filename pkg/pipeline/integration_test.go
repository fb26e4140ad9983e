package pipeline

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igarchiver/pkg/config"
	"igarchiver/pkg/instagram"
	"igarchiver/pkg/logger"
	"igarchiver/pkg/retry"
	"igarchiver/pkg/scraper"
)

// setupArchive wires the real client, scraper and pipeline to a mock server
func setupArchive(t *testing.T) (*mockInstagramServer, *Pipeline, *config.Config) {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	mock := newMockInstagramServer()
	t.Cleanup(mock.Close)

	post := func(shortcode string, ts time.Time, file string) instagram.Edge {
		return instagram.Edge{Node: instagram.Node{
			ID:               shortcode,
			Typename:         instagram.TypeImage,
			Shortcode:        shortcode,
			DisplayURL:       mock.MediaURL(file),
			TakenAtTimestamp: ts.Unix(),
		}}
	}

	video := post("VID", time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC), "vid-thumb.jpg")
	video.Node.Typename = instagram.TypeVideo
	video.Node.IsVideo = true
	full := video.Node
	full.VideoURL = mock.MediaURL("vid.mp4")
	mock.posts["VID"] = &full

	mock.users["natgeo"] = &instagram.User{
		ID:       "42",
		Username: "natgeo",
		EdgeOwnerToTimelineMedia: instagram.EdgeOwnerToTimelineMedia{
			Count: 3,
			Edges: []instagram.Edge{
				post("ABC", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), "abc.jpg"),
				video,
			},
			PageInfo: instagram.PageInfo{HasNextPage: true, EndCursor: "c1"},
		},
	}
	mock.pages["c1"] = instagram.EdgeOwnerToTimelineMedia{
		Count: 3,
		Edges: []instagram.Edge{post("OLD", time.Date(2023, 6, 1, 8, 0, 0, 0, time.UTC), "old.jpg")},
	}

	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = t.TempDir()
	cfg.Download.ProfilePic = false
	cfg.RateLimit.RequestsPerMinute = 600
	cfg.RateLimit.BurstSize = 50

	log := logger.NewNopLogger()
	client := instagram.NewClientWithOptions(instagram.Options{
		BaseURL: mock.URL(),
		Timeout: 5 * time.Second,
		Retry: &retry.Policy{
			MaxAttempts: 1,
			Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
		},
	}, log)

	p := NewWithDownloader(cfg, scraper.NewWithClient(cfg, client, log), log)
	return mock, p, cfg
}

func archiveNames(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestArchiveEndToEnd(t *testing.T) {
	_, p, cfg := setupArchive(t)

	result, err := p.Run(context.Background(), "natgeo", scraper.Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, 3, result.Download.Downloaded)

	dir := cfg.ProfileDir("natgeo")
	assert.ElementsMatch(t, []string{
		"2024-01-01_12-00-00_UTC.jpg",
		"2024-01-01_18-00-00_UTC.mp4",
	}, archiveNames(t, filepath.Join(dir, "media_2024-01-01.zip")))
	assert.ElementsMatch(t, []string{
		"2023-06-01_08-00-00_UTC.jpg",
	}, archiveNames(t, filepath.Join(dir, "media_2023-06-01.zip")))

	data, err := os.ReadFile(filepath.Join(dir, "2024-01-01_VID_url.txt"))
	require.NoError(t, err)
	assert.Equal(t, "https://www.instagram.com/p/VID/", string(data))
	assert.FileExists(t, filepath.Join(dir, "2024-01-01_ABC_url.txt"))
	assert.FileExists(t, filepath.Join(dir, "2023-06-01_OLD_url.txt"))
	assert.FileExists(t, filepath.Join(dir, "2024-01-01_12-00-00_UTC.json.xz"))
	assert.NoFileExists(t, filepath.Join(dir, "2024-01-01_12-00-00_UTC.jpg"))

	// A second run finds everything inside the archives
	again, err := p.Run(context.Background(), "natgeo", scraper.Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Download.Downloaded)
	assert.Equal(t, 3, again.Download.Skipped)
}

func TestArchiveYearFilter(t *testing.T) {
	_, p, cfg := setupArchive(t)

	result, err := p.Run(context.Background(), "natgeo", scraper.Options{Year: 2023})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, 1, result.Download.Downloaded)

	dir := cfg.ProfileDir("natgeo")
	assert.FileExists(t, filepath.Join(dir, "media_2023-06-01.zip"))
	assert.NoFileExists(t, filepath.Join(dir, "media_2024-01-01.zip"))
}

func TestArchiveRateLimitedIsPartial(t *testing.T) {
	mock, p, cfg := setupArchive(t)
	mock.SetError("c1", http.StatusTooManyRequests)

	result, err := p.Run(context.Background(), "natgeo", scraper.Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomePartial, result.Outcome)

	// The first page still made it through post-processing
	dir := cfg.ProfileDir("natgeo")
	assert.FileExists(t, filepath.Join(dir, "media_2024-01-01.zip"))
	assert.FileExists(t, filepath.Join(dir, "2024-01-01_ABC_url.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "2023-06-01_OLD_url.txt"))
}

func TestArchiveForbiddenMediaIsPartial(t *testing.T) {
	mock, p, _ := setupArchive(t)
	mock.SetError("cdn/abc.jpg", http.StatusForbidden)

	result, err := p.Run(context.Background(), "natgeo", scraper.Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomePartial, result.Outcome)
	assert.GreaterOrEqual(t, result.Download.Failed, 1)
}

func TestArchiveUnknownProfileFails(t *testing.T) {
	_, p, cfg := setupArchive(t)

	result, err := p.Run(context.Background(), "nobody", scraper.Options{})
	require.Error(t, err)
	assert.Equal(t, OutcomeDownloadFailed, result.Outcome)
	assert.NoDirExists(t, cfg.ProfileDir("nobody"))
}
