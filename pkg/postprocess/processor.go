package postprocess

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"igarchiver/pkg/config"
	"igarchiver/pkg/logger"
)

// Processor runs the post-download steps on a profile folder
type Processor struct {
	location   *time.Location
	extensions map[string]bool
	logger     logger.Logger
}

// New creates a Processor. A nil location means UTC; no extensions means
// config.DefaultMediaExtensions.
func New(location *time.Location, extensions []string, log logger.Logger) *Processor {
	if location == nil {
		location = time.UTC
	}
	if len(extensions) == 0 {
		extensions = config.DefaultMediaExtensions
	}
	if log == nil {
		log = logger.GetLogger()
	}

	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		exts[strings.ToLower(ext)] = true
	}

	return &Processor{
		location:   location,
		extensions: exts,
		logger:     log,
	}
}

// FromConfig creates a Processor from the postprocess settings
func FromConfig(cfg *config.Config, log logger.Logger) *Processor {
	return New(cfg.Location(), cfg.PostProcess.MediaExtensions, log)
}

// IsMedia reports whether name has one of the processor's media extensions
func (p *Processor) IsMedia(name string) bool {
	return p.extensions[strings.ToLower(filepath.Ext(name))]
}

// listFiles returns the names of the regular files in dir, sorted
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
