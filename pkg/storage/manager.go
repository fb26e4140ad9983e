package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"
	"igarchiver/pkg/instagram"
	"igarchiver/pkg/logger"
	"igarchiver/pkg/metadata"
)

const profilePicSuffix = "_profile_pic.jpg"

// Options controls which sidecar files SavePost writes
type Options struct {
	SaveMetadata     bool
	CompressMetadata bool
	SaveCaptions     bool
}

// DefaultOptions writes xz metadata and captions
func DefaultOptions() Options {
	return Options{SaveMetadata: true, CompressMetadata: true, SaveCaptions: true}
}

// Manager handles file storage in one profile folder and duplicate detection.
// A file counts as present when it exists loose in the folder or as an
// entry of one of the folder's media_*.zip archives.
type Manager struct {
	outputDir  string
	opts       Options
	logger     logger.Logger
	present    map[string]bool
	saved      int
	hasProfile bool
	mu         sync.RWMutex
}

// NewManager creates the profile folder if needed and indexes its contents
func NewManager(outputDir string, opts Options, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	m := &Manager{
		outputDir: outputDir,
		opts:      opts,
		logger:    log,
		present:   make(map[string]bool),
	}
	if err := m.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}
	return m, nil
}

// scanExistingFiles indexes loose files and archive entries
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if IsArchiveName(name) {
			m.indexArchive(filepath.Join(m.outputDir, name))
			continue
		}
		m.markPresent(name)
	}
	return nil
}

func (m *Manager) indexArchive(path string) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		m.logger.WithError(err).WarnWithFields("Skipping unreadable archive", map[string]interface{}{
			"archive": filepath.Base(path),
		})
		return
	}
	defer zr.Close()

	for _, f := range zr.File {
		m.markPresent(filepath.Base(f.Name))
	}
}

func (m *Manager) markPresent(name string) {
	m.present[name] = true
	if strings.HasSuffix(name, profilePicSuffix) {
		m.hasProfile = true
	}
}

// IsArchiveName reports whether name is a media_<date>.zip archive
func IsArchiveName(name string) bool {
	return strings.HasPrefix(name, "media_") && strings.HasSuffix(name, ".zip")
}

// Has reports whether a file with this name was already downloaded
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.present[name]
}

// HasProfilePic reports whether any profile picture is already stored
func (m *Manager) HasProfilePic() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasProfile
}

// IsPostComplete reports whether every media file of the post is present
func (m *Manager) IsPostComplete(node *instagram.Node) bool {
	stem := Stem(node.TakenAt())
	for _, item := range node.MediaItems() {
		if !m.Has(MediaName(stem, item.Index, item.IsVideo)) {
			return false
		}
	}
	return true
}

// SaveMedia writes r to name atomically and returns the number of bytes written
func (m *Manager) SaveMedia(r io.Reader, name string) (int64, error) {
	filename := filepath.Join(m.outputDir, name)

	tempFile := filename + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}

	n, err := io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to save media data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.markPresent(name)
	m.saved++
	m.mu.Unlock()

	return n, nil
}

// SavePost writes the metadata and caption files of a post, as configured.
// Existing files are left untouched.
func (m *Manager) SavePost(node *instagram.Node) error {
	stem := Stem(node.TakenAt())

	if m.opts.SaveMetadata && !metadata.Exists(m.outputDir, stem) {
		name := metadata.FileName(stem, m.opts.CompressMetadata)
		if err := metadata.NewPost(node).Save(filepath.Join(m.outputDir, name)); err != nil {
			return fmt.Errorf("failed to save metadata for %s: %w", node.Shortcode, err)
		}
		m.mu.Lock()
		m.markPresent(name)
		m.mu.Unlock()
	}

	caption := node.CaptionText()
	if m.opts.SaveCaptions && caption != "" {
		name := CaptionName(stem)
		if m.Has(name) {
			return nil
		}
		if _, err := m.SaveMedia(strings.NewReader(caption), name); err != nil {
			return fmt.Errorf("failed to save caption for %s: %w", node.Shortcode, err)
		}
	}
	return nil
}

// GetSavedCount returns the number of files written by this manager
func (m *Manager) GetSavedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saved
}
