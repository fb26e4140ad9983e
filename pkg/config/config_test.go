package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at a temp dir so no user config leaks into the test
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 3, cfg.Download.ConcurrentDownloads)
	assert.Equal(t, ".", cfg.Output.BaseDirectory)
	assert.Equal(t, "UTC", cfg.PostProcess.Timezone)
	assert.True(t, cfg.PostProcess.ExtractURLs)
	assert.True(t, cfg.PostProcess.CompressMedia)
	assert.ElementsMatch(t, DefaultMediaExtensions, cfg.PostProcess.MediaExtensions)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultMediaExtensionsAreCopied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PostProcess.MediaExtensions[0] = ".tiff"

	assert.Equal(t, ".jpg", DefaultMediaExtensions[0])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "too many concurrent downloads",
			mutate:  func(c *Config) { c.Download.ConcurrentDownloads = 15 },
			wantErr: "download.concurrent_downloads must be at most 10",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level must be one of",
		},
		{
			name:    "unknown timezone",
			mutate:  func(c *Config) { c.PostProcess.Timezone = "Mars/Olympus" },
			wantErr: "postprocess.timezone must be a valid IANA timezone",
		},
		{
			name:    "extension without dot",
			mutate:  func(c *Config) { c.PostProcess.MediaExtensions = []string{"jpg"} },
			wantErr: "must start with",
		},
		{
			name:    "max delay below initial delay",
			mutate:  func(c *Config) { c.Retry.MaxDelay = time.Millisecond },
			wantErr: "retry.max_delay must not be less than InitialDelay",
		},
		{
			name:    "empty output directory",
			mutate:  func(c *Config) { c.Output.BaseDirectory = "" },
			wantErr: "output.base_directory is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateJoinsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Download.ConcurrentDownloads = 0
	cfg.Logging.Level = "nope"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download.concurrent_downloads")
	assert.Contains(t, err.Error(), "logging.level")
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()

	cfg.MergeCommandLineFlags(map[string]interface{}{
		"output":      "/flag/output",
		"concurrent":  7,
		"log-level":   "error",
		"timezone":    "Asia/Jakarta",
		"no-compress": true,
		"account":     "work",
	})

	assert.Equal(t, "/flag/output", cfg.Output.BaseDirectory)
	assert.Equal(t, 7, cfg.Download.ConcurrentDownloads)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, "Asia/Jakarta", cfg.PostProcess.Timezone)
	assert.False(t, cfg.PostProcess.CompressMedia)
	assert.True(t, cfg.PostProcess.ExtractURLs)
	assert.Equal(t, "work", cfg.Instagram.Account)
}

func TestLoadPrecedence(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
download:
  concurrent_downloads: 4
  page_size: 20
postprocess:
  timezone: Europe/Berlin
logging:
  level: debug
`), 0644))

	t.Setenv("IGARCHIVER_DOWNLOAD__CONCURRENT_DOWNLOADS", "6")
	t.Setenv("IGARCHIVER_SESSION_ID", "env-session")

	cfg, err := Load(path, map[string]interface{}{"log-level": "warn"})
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Download.ConcurrentDownloads, "env beats file")
	assert.Equal(t, 20, cfg.Download.PageSize, "file beats defaults")
	assert.Equal(t, "Europe/Berlin", cfg.PostProcess.Timezone)
	assert.Equal(t, "warn", cfg.Logging.Level, "flags beat file")
	assert.Equal(t, "env-session", cfg.Instagram.SessionID)
	assert.Equal(t, 30*time.Second, cfg.Download.DownloadTimeout, "defaults survive")
}

func TestLoadSplitsExtensionList(t *testing.T) {
	isolate(t)
	t.Setenv("IGARCHIVER_POSTPROCESS__MEDIA_EXTENSIONS", ".jpg, .mp4")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{".jpg", ".mp4"}, cfg.PostProcess.MediaExtensions)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("download:\n  concurrent_downloads: 99\n"), 0644))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "instagram.session_id", envTransform("IGARCHIVER_SESSION_ID"))
	assert.Equal(t, "download.page_size", envTransform("IGARCHIVER_DOWNLOAD__PAGE_SIZE"))
	assert.Equal(t, "", envTransform("IGARCHIVER_UNRELATED"))
}

func TestSaveAndLoad(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Instagram.SessionID = "saved-session"
	cfg.Download.ConcurrentDownloads = 8
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "saved-session", loaded.Instagram.SessionID)
	assert.Equal(t, 8, loaded.Download.ConcurrentDownloads)
	assert.Equal(t, cfg.Retry.MaxDelay, loaded.Retry.MaxDelay)
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PostProcess.Timezone = "Not/AZone"
	assert.Equal(t, time.UTC, cfg.Location())

	cfg.PostProcess.Timezone = "Asia/Jakarta"
	assert.Equal(t, "Asia/Jakarta", cfg.Location().String())
}
