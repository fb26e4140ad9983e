package logger

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WithRunID returns a logger tagged with a fresh run identifier, plus the id
func WithRunID(l Logger) (Logger, string) {
	id := uuid.NewString()
	return l.WithField("run_id", id), id
}

// LogDownload logs the outcome of a single media download
func LogDownload(l Logger, username, shortcode, mediaType string, size int64, err error) {
	fields := map[string]interface{}{
		"username":   username,
		"shortcode":  shortcode,
		"media_type": mediaType,
	}

	if err != nil {
		l.WithError(err).WarnWithFields("Download failed", fields)
		return
	}
	fields["size"] = humanize.IBytes(uint64(size))
	l.DebugWithFields("Download completed", fields)
}

// LogRateLimit logs rate limiting events
func LogRateLimit(l Logger, endpoint string, cooldown string) {
	l.WithFields(map[string]interface{}{
		"endpoint": endpoint,
		"cooldown": cooldown,
		"action":   "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// LogStage logs the start of a pipeline stage
func LogStage(l Logger, stage, dir string) {
	l.WithFields(map[string]interface{}{
		"stage": stage,
		"dir":   dir,
	}).Info("Stage started")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
