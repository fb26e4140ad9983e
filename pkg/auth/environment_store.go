package auth

import "os"

// Environment variables read by EnvironmentStore
const (
	SessionIDEnv = "IGARCHIVER_SESSION_ID"
	CSRFTokenEnv = "IGARCHIVER_CSRF_TOKEN"
	UserAgentEnv = "IGARCHIVER_USER_AGENT"
)

// EnvironmentStore is a read-only CredentialStore over IGARCHIVER_*
// environment variables
type EnvironmentStore struct{}

// NewEnvironmentStore creates an environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported
func (e *EnvironmentStore) Store(*Account) error {
	return ErrStoreUnavailable
}

// EnvAccount is the account name under which the environment cookies appear
const EnvAccount = "env"

// Retrieve returns the environment cookies for "" or EnvAccount. The
// account has a zero LastModified so stored accounts take precedence.
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	if username != "" && username != EnvAccount {
		return nil, ErrCredentialsNotFound
	}
	sessionID := os.Getenv(SessionIDEnv)
	csrfToken := os.Getenv(CSRFTokenEnv)
	if sessionID == "" || csrfToken == "" {
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Username:  EnvAccount,
		SessionID: sessionID,
		CSRFToken: csrfToken,
		UserAgent: os.Getenv(UserAgentEnv),
	}, nil
}

// List returns a single account when the variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported
func (e *EnvironmentStore) Delete(string) error {
	return ErrStoreUnavailable
}

// Exists reports whether both cookies are set
func (e *EnvironmentStore) Exists(string) bool {
	return os.Getenv(SessionIDEnv) != "" && os.Getenv(CSRFTokenEnv) != ""
}
