package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/goccy/go-json"
	"igarchiver/pkg/logger"
)

// Version is the current checkpoint file format
const Version = 2

// Checkpoint represents the state of a download session
type Checkpoint struct {
	Username          string            `json:"username"`
	UserID            string            `json:"user_id"`
	Year              int               `json:"year,omitempty"`
	LastProcessedPage int               `json:"last_processed_page"`
	EndCursor         string            `json:"end_cursor"`
	DownloadedPosts   map[string]string `json:"downloaded_posts"` // shortcode -> file stem
	TotalQueued       int               `json:"total_queued"`
	TotalDownloaded   int               `json:"total_downloaded"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	Version           int               `json:"version"`
}

// Manager handles checkpoint operations
type Manager struct {
	checkpointPath string
	logger         logger.Logger
}

// NewManager creates a checkpoint manager for username
func NewManager(username string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	dataDir, err := getDataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}

	checkpointsDir := filepath.Join(dataDir, "checkpoints")
	if err := os.MkdirAll(checkpointsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &Manager{
		checkpointPath: filepath.Join(checkpointsDir, fmt.Sprintf("%s.checkpoint.json", username)),
		logger:         log,
	}, nil
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create starts a fresh checkpoint, replacing any existing one
func (m *Manager) Create(username, userID string, year int) (*Checkpoint, error) {
	now := time.Now()
	checkpoint := &Checkpoint{
		Username:        username,
		UserID:          userID,
		Year:            year,
		DownloadedPosts: make(map[string]string),
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         Version,
	}

	if err := m.Save(checkpoint); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint created", map[string]interface{}{
		"username": username,
		"path":     m.checkpointPath,
	})
	return checkpoint, nil
}

// Load loads an existing checkpoint. It returns nil, nil when there is none.
func (m *Manager) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if checkpoint.DownloadedPosts == nil {
		checkpoint.DownloadedPosts = make(map[string]string)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"username":         checkpoint.Username,
		"total_downloaded": checkpoint.TotalDownloaded,
		"last_cursor":      checkpoint.EndCursor,
		"updated_at":       checkpoint.UpdatedAt,
	})
	return &checkpoint, nil
}

// Save saves the checkpoint to disk atomically
func (m *Manager) Save(checkpoint *Checkpoint) error {
	checkpoint.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}
	return nil
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.logger.Debug("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// UpdateProgress records the cursor of the next page to fetch
func (m *Manager) UpdateProgress(checkpoint *Checkpoint, endCursor string, pageNum int) error {
	checkpoint.EndCursor = endCursor
	checkpoint.LastProcessedPage = pageNum
	return m.Save(checkpoint)
}

// RecordPost marks a post as fully downloaded
func (m *Manager) RecordPost(checkpoint *Checkpoint, shortcode, stem string) error {
	if _, seen := checkpoint.DownloadedPosts[shortcode]; !seen {
		checkpoint.TotalDownloaded++
	}
	checkpoint.DownloadedPosts[shortcode] = stem
	return m.Save(checkpoint)
}

// IsPostDownloaded checks if a post was completed in an earlier session
func (checkpoint *Checkpoint) IsPostDownloaded(shortcode string) bool {
	_, exists := checkpoint.DownloadedPosts[shortcode]
	return exists
}

// Matches reports whether the checkpoint belongs to the same user and year filter
func (checkpoint *Checkpoint) Matches(userID string, year int) bool {
	return checkpoint.UserID == userID && checkpoint.Year == year && checkpoint.Version == Version
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "igarchiver")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "igarchiver")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "igarchiver")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "igarchiver")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
