package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"igarchiver/pkg/config"
)

// Account holds the Instagram session cookies of one login
type Account struct {
	Username     string    `json:"username"`
	SessionID    string    `json:"session_id"`
	CSRFToken    string    `json:"csrf_token"`
	UserAgent    string    `json:"user_agent,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	Store(account *Account) error
	Retrieve(username string) (*Account, error)
	List() ([]*Account, error)
	Delete(username string) error
	Exists(username string) bool
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)

const defaultAccountFile = "default_account"

// Manager handles credential storage with fallback stores. Stores are tried
// in order; the first one that accepts a write wins.
type Manager struct {
	stores    []CredentialStore
	configDir string
}

// NewManager creates a manager backed by the system keychain (when
// available), an encrypted file and the environment
func NewManager() (*Manager, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	var stores []CredentialStore
	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore, NewEnvironmentStore())

	return NewManagerWithStores(configDir, stores...), nil
}

// NewManagerWithStores creates a manager over explicit stores. The default
// account choice is kept in configDir.
func NewManagerWithStores(configDir string, stores ...CredentialStore) *Manager {
	return &Manager{stores: stores, configDir: configDir}
}

// Store saves credentials using the first store that accepts them
func (m *Manager) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return errors.New("username is required")
	}
	if account.SessionID == "" {
		return errors.New("session ID is required")
	}
	if account.CSRFToken == "" {
		return errors.New("CSRF token is required")
	}

	account.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(account); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(username string) (*Account, error) {
	for _, store := range m.stores {
		if account, err := store.Retrieve(username); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w for user: %s", ErrCredentialsNotFound, username)
}

// RetrieveDefault returns the account chosen with SetDefault, falling back
// to the most recently stored account
func (m *Manager) RetrieveDefault() (*Account, error) {
	if name := m.Default(); name != "" {
		if account, err := m.Retrieve(name); err == nil {
			return account, nil
		}
	}

	accounts, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrCredentialsNotFound
	}

	latest := accounts[0]
	for _, account := range accounts[1:] {
		if account.LastModified.After(latest.LastModified) {
			latest = account
		}
	}
	return latest, nil
}

// List returns all stored accounts, sorted by username. When several
// stores hold the same account the most recently modified copy wins.
func (m *Manager) List() ([]*Account, error) {
	accountMap := make(map[string]*Account)

	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			continue
		}
		for _, account := range accounts {
			if existing, ok := accountMap[account.Username]; !ok || account.LastModified.After(existing.LastModified) {
				accountMap[account.Username] = account
			}
		}
	}

	result := make([]*Account, 0, len(accountMap))
	for _, account := range accountMap {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })

	return result, nil
}

// Delete removes credentials from every store
func (m *Manager) Delete(username string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(username); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted {
		if lastErr != nil && !errors.Is(lastErr, ErrCredentialsNotFound) && !errors.Is(lastErr, ErrStoreUnavailable) {
			return fmt.Errorf("failed to delete credentials: %w", lastErr)
		}
		return fmt.Errorf("%w for user: %s", ErrCredentialsNotFound, username)
	}

	if m.Default() == username {
		_ = os.Remove(m.defaultPath())
	}
	return nil
}

// DeleteAll removes all stored credentials
func (m *Manager) DeleteAll() error {
	accounts, err := m.List()
	if err != nil {
		return err
	}

	for _, account := range accounts {
		_ = m.Delete(account.Username)
	}
	return nil
}

// SetDefault records username as the account used when none is given
func (m *Manager) SetDefault(username string) error {
	if _, err := m.Retrieve(username); err != nil {
		return err
	}
	if m.configDir == "" {
		return ErrStoreUnavailable
	}
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(m.defaultPath(), []byte(username), 0600); err != nil {
		return fmt.Errorf("failed to save default account: %w", err)
	}
	return nil
}

// Default returns the account recorded with SetDefault, or ""
func (m *Manager) Default() string {
	if m.configDir == "" {
		return ""
	}
	data, err := os.ReadFile(m.defaultPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (m *Manager) defaultPath() string {
	return filepath.Join(m.configDir, defaultAccountFile)
}

// Apply fills the session cookies in cfg. An account named in cfg.Account
// must exist. Otherwise cookies already present in cfg (file or environment)
// are kept, and only when they are missing is the default account used.
// The returned account is nil when cfg already carried the cookies.
func (m *Manager) Apply(cfg *config.InstagramConfig) (*Account, error) {
	var account *Account
	var err error

	switch {
	case cfg.Account != "":
		account, err = m.Retrieve(cfg.Account)
		if err != nil {
			return nil, err
		}
	case cfg.SessionID != "" && cfg.CSRFToken != "":
		return nil, nil
	default:
		account, err = m.RetrieveDefault()
		if err != nil {
			return nil, err
		}
	}

	cfg.SessionID = account.SessionID
	cfg.CSRFToken = account.CSRFToken
	if account.UserAgent != "" {
		cfg.UserAgent = account.UserAgent
	}
	return account, nil
}

// getConfigDir returns the per-user configuration directory, creating it
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "igarchiver")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "igarchiver")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "igarchiver")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "igarchiver")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// SanitizeAccount creates a copy of the account with the cookies masked
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}

	return &Account{
		Username:     account.Username,
		SessionID:    MaskSecret(account.SessionID),
		CSRFToken:    MaskSecret(account.CSRFToken),
		UserAgent:    account.UserAgent,
		LastModified: account.LastModified,
	}
}

// MaskSecret keeps the first and last 4 characters of s
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
