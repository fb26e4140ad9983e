package postprocess

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"igarchiver/pkg/instagram"
	"igarchiver/pkg/metadata"
)

// URLFileSuffix ends every post URL file name
const URLFileSuffix = "_url.txt"

// URLResult summarises a URL extraction run
type URLResult struct {
	Written int
	Skipped int
	Paths   []string
}

// URLFileName returns "<date>_<shortcode>_url.txt"
func URLFileName(date, shortcode string) string {
	return date + "_" + shortcode + URLFileSuffix
}

// ExtractPostURLs writes one URL file per metadata file in dir. Metadata
// that cannot be read or has no shortcode is skipped.
func (p *Processor) ExtractPostURLs(ctx context.Context, dir string) (*URLResult, error) {
	names, err := listFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list profile folder: %w", err)
	}

	result := &URLResult{}
	for _, name := range names {
		if !metadata.IsMetadataFile(name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		log := p.logger.WithField("file", name)

		rec, err := metadata.Load(filepath.Join(dir, name))
		if err != nil {
			log.WithError(err).Warn("Skipping unreadable metadata file")
			result.Skipped++
			continue
		}
		if rec.Shortcode == "" {
			log.Debug("Skipping metadata without a shortcode")
			result.Skipped++
			continue
		}

		date := p.postDate(rec, name)
		if date == "" {
			log.Debug("Skipping metadata without a date")
			result.Skipped++
			continue
		}

		path := filepath.Join(dir, URLFileName(date, rec.Shortcode))
		if err := os.WriteFile(path, []byte(instagram.GetPostURL(rec.Shortcode)), 0644); err != nil {
			return result, fmt.Errorf("failed to write URL file: %w", err)
		}
		result.Written++
		result.Paths = append(result.Paths, path)
	}

	p.logger.InfoWithFields("Post URLs extracted", map[string]interface{}{
		"written": result.Written,
		"skipped": result.Skipped,
	})
	return result, nil
}

// postDate is the post's date in the processor's timezone, falling back to
// the file name prefix when the metadata has no timestamp
func (p *Processor) postDate(rec *metadata.Record, name string) string {
	if rec.HasTakenAt {
		return rec.TakenAt.In(p.location).Format("2006-01-02")
	}
	stem := metadata.Stem(name)
	if i := strings.IndexByte(stem, '_'); i > 0 {
		return stem[:i]
	}
	return ""
}
