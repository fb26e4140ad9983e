package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix shared by every environment variable the archiver reads
const EnvPrefix = "IGARCHIVER_"

// Config holds all configuration options for the archiver
type Config struct {
	// Instagram session credentials
	Instagram InstagramConfig `koanf:"instagram" yaml:"instagram" json:"instagram"`

	// Request pacing against the Instagram API
	RateLimit RateLimitConfig `koanf:"rate_limit" yaml:"rate_limit" json:"rate_limit"`

	// Retry policy for transient API failures
	Retry RetryConfig `koanf:"retry" yaml:"retry" json:"retry"`

	// Where profile folders are created
	Output OutputConfig `koanf:"output" yaml:"output" json:"output"`

	// Download settings
	Download DownloadConfig `koanf:"download" yaml:"download" json:"download"`

	// URL extraction and media compression
	PostProcess PostProcessConfig `koanf:"postprocess" yaml:"postprocess" json:"postprocess"`

	// Notification preferences
	Notifications NotificationConfig `koanf:"notifications" yaml:"notifications" json:"notifications"`

	// Logging configuration
	Logging LoggingConfig `koanf:"logging" yaml:"logging" json:"logging"`
}

// InstagramConfig holds Instagram-specific configuration
type InstagramConfig struct {
	SessionID string `koanf:"session_id" yaml:"session_id" json:"session_id"`
	CSRFToken string `koanf:"csrf_token" yaml:"csrf_token" json:"csrf_token"`
	UserAgent string `koanf:"user_agent" yaml:"user_agent" json:"user_agent" validate:"required"`
	Account   string `koanf:"account" yaml:"account" json:"account"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `koanf:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute" validate:"gte=1,lte=600"`
	BurstSize         int           `koanf:"burst_size" yaml:"burst_size" json:"burst_size" validate:"gte=1"`
	Cooldown          time.Duration `koanf:"cooldown" yaml:"cooldown" json:"cooldown" validate:"gte=0s"`
}

// RetryConfig holds the backoff policy used by the API client
type RetryConfig struct {
	Enabled      bool          `koanf:"enabled" yaml:"enabled" json:"enabled"`
	MaxAttempts  int           `koanf:"max_attempts" yaml:"max_attempts" json:"max_attempts" validate:"gte=1,lte=10"`
	InitialDelay time.Duration `koanf:"initial_delay" yaml:"initial_delay" json:"initial_delay" validate:"gt=0s"`
	MaxDelay     time.Duration `koanf:"max_delay" yaml:"max_delay" json:"max_delay" validate:"gtefield=InitialDelay"`
	Multiplier   float64       `koanf:"multiplier" yaml:"multiplier" json:"multiplier" validate:"gte=1"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory string `koanf:"base_directory" yaml:"base_directory" json:"base_directory" validate:"required"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	ConcurrentDownloads int           `koanf:"concurrent_downloads" yaml:"concurrent_downloads" json:"concurrent_downloads" validate:"gte=1,lte=10"`
	DownloadTimeout     time.Duration `koanf:"download_timeout" yaml:"download_timeout" json:"download_timeout" validate:"gt=0s"`
	PageSize            int           `koanf:"page_size" yaml:"page_size" json:"page_size" validate:"gte=1,lte=50"`
	SkipVideos          bool          `koanf:"skip_videos" yaml:"skip_videos" json:"skip_videos"`
	ProfilePic          bool          `koanf:"profile_pic" yaml:"profile_pic" json:"profile_pic"`
	SaveMetadata        bool          `koanf:"save_metadata" yaml:"save_metadata" json:"save_metadata"`
	CompressMetadata    bool          `koanf:"compress_metadata" yaml:"compress_metadata" json:"compress_metadata"`
	SaveCaptions        bool          `koanf:"save_captions" yaml:"save_captions" json:"save_captions"`
	BreakerThreshold    int           `koanf:"breaker_threshold" yaml:"breaker_threshold" json:"breaker_threshold" validate:"gte=1"`
}

// PostProcessConfig controls what happens to the profile folder after download
type PostProcessConfig struct {
	ExtractURLs     bool     `koanf:"extract_urls" yaml:"extract_urls" json:"extract_urls"`
	CompressMedia   bool     `koanf:"compress_media" yaml:"compress_media" json:"compress_media"`
	Timezone        string   `koanf:"timezone" yaml:"timezone" json:"timezone" validate:"required,timezone"`
	MediaExtensions []string `koanf:"media_extensions" yaml:"media_extensions" json:"media_extensions" validate:"min=1,dive,startswith=."`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled          bool   `koanf:"enabled" yaml:"enabled" json:"enabled"`
	OnComplete       bool   `koanf:"on_complete" yaml:"on_complete" json:"on_complete"`
	OnError          bool   `koanf:"on_error" yaml:"on_error" json:"on_error"`
	NotificationType string `koanf:"notification_type" yaml:"notification_type" json:"notification_type" validate:"oneof=terminal desktop none"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `koanf:"level" yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	File    string `koanf:"file" yaml:"file" json:"file"`
	Format  string `koanf:"format" yaml:"format" json:"format" validate:"oneof=console json"`
	NoColor bool   `koanf:"no_color" yaml:"no_color" json:"no_color"`
}

// DefaultMediaExtensions lists the file extensions treated as media by the compressor
var DefaultMediaExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp",
	".mp4", ".mov", ".avi", ".mkv", ".webm",
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Instagram: InstagramConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         5,
			Cooldown:          time.Minute,
		},
		Retry: RetryConfig{
			Enabled:      true,
			MaxAttempts:  3,
			InitialDelay: 2 * time.Second,
			MaxDelay:     time.Minute,
			Multiplier:   2.0,
		},
		Output: OutputConfig{
			BaseDirectory: ".",
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 3,
			DownloadTimeout:     30 * time.Second,
			PageSize:            12,
			SkipVideos:          false,
			ProfilePic:          true,
			SaveMetadata:        true,
			CompressMetadata:    true,
			SaveCaptions:        true,
			BreakerThreshold:    5,
		},
		PostProcess: PostProcessConfig{
			ExtractURLs:     true,
			CompressMedia:   true,
			Timezone:        "UTC",
			MediaExtensions: append([]string(nil), DefaultMediaExtensions...),
		},
		Notifications: NotificationConfig{
			Enabled:          true,
			OnComplete:       true,
			OnError:          true,
			NotificationType: "terminal",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Location resolves the configured post-processing timezone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.PostProcess.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ProfileDir returns the profile folder for username
func (c *Config) ProfileDir(username string) string {
	return filepath.Join(c.Output.BaseDirectory, username)
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() string {
	home, _ := os.UserHomeDir()
	locations := []string{
		".igarchiver.yaml",
		".igarchiver.yml",
		filepath.Join(home, ".config", "igarchiver", "config.yaml"),
		filepath.Join(home, ".config", "igarchiver", "config.yml"),
		filepath.Join(home, ".igarchiver.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// envAliases maps short environment variable names to config paths
var envAliases = map[string]string{
	"session_id":           "instagram.session_id",
	"csrf_token":           "instagram.csrf_token",
	"user_agent":           "instagram.user_agent",
	"account":              "instagram.account",
	"output_dir":           "output.base_directory",
	"concurrent_downloads": "download.concurrent_downloads",
	"requests_per_minute":  "rate_limit.requests_per_minute",
	"log_level":            "logging.level",
	"timezone":             "postprocess.timezone",
}

// envTransform maps IGARCHIVER_ variables to koanf paths.
// IGARCHIVER_DOWNLOAD__PAGE_SIZE becomes download.page_size.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if path, ok := envAliases[key]; ok {
		return path
	}
	if !strings.Contains(key, "__") {
		return ""
	}
	return strings.ReplaceAll(key, "__", ".")
}

// sliceConfigPaths are split on commas when they arrive as a single string
var sliceConfigPaths = []string{
	"postprocess.media_extensions",
}

func splitSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok || raw == "" {
			continue
		}
		var parts []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Zero values are treated as "not set".
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if concurrent, ok := flags["concurrent"].(int); ok && concurrent > 0 {
		c.Download.ConcurrentDownloads = concurrent
	}
	if rpm, ok := flags["rate-limit"].(int); ok && rpm > 0 {
		c.RateLimit.RequestsPerMinute = rpm
	}
	if retries, ok := flags["max-retries"].(int); ok && retries > 0 {
		c.Retry.MaxAttempts = retries
	}
	if timeout, ok := flags["download-timeout"].(time.Duration); ok && timeout > 0 {
		c.Download.DownloadTimeout = timeout
	}
	if account, ok := flags["account"].(string); ok && account != "" {
		c.Instagram.Account = account
	}
	if tz, ok := flags["timezone"].(string); ok && tz != "" {
		c.PostProcess.Timezone = tz
	}
	if skip, ok := flags["skip-videos"].(bool); ok && skip {
		c.Download.SkipVideos = true
	}
	if noZip, ok := flags["no-compress"].(bool); ok && noZip {
		c.PostProcess.CompressMedia = false
	}
	if noURLs, ok := flags["no-urls"].(bool); ok && noURLs {
		c.PostProcess.ExtractURLs = false
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if noColor, ok := flags["no-color"].(bool); ok && noColor {
		c.Logging.NoColor = true
	}
	if notify, ok := flags["notifications"].(bool); ok {
		c.Notifications.Enabled = notify
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: flags > environment (.env included) > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	home, _ := os.UserHomeDir()
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(home, ".igarchiver.env"))

	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath == "" {
		configPath = FindConfigFile()
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := splitSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.MergeCommandLineFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
