// Package auth stores the login account used when a profile page is behind
// a login wall.
//
// Accounts are kept in the system keychain when one is available, otherwise
// in an AES-GCM encrypted file; IGHARVEST_LOGIN_USERNAME and
// IGHARVEST_LOGIN_PASSWORD act as a read-only last resort.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Account is a login identity
type Account struct {
	Username     string    `json:"username"`
	Password     string    `json:"password"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is one place accounts can live. Retrieve and Delete return
// ErrCredentialsNotFound for unknown usernames; read-only stores answer
// Store and Delete with ErrStoreUnavailable.
type CredentialStore interface {
	Store(account *Account) error
	Retrieve(username string) (*Account, error)
	List() ([]*Account, error)
	Delete(username string) error
	Exists(username string) bool
}

// Manager fans account operations out over its stores in priority order
type Manager struct {
	stores []CredentialStore
}

// NewManager uses the keychain when it answers, then the encrypted file in
// the config directory, then the environment
func NewManager() (*Manager, error) {
	dir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	file, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}

	m := NewManagerWithStores(file, NewEnvironmentStore())
	if kr, err := NewKeyringStore(); err == nil {
		m.stores = append([]CredentialStore{kr}, m.stores...)
	}
	return m, nil
}

// NewManagerWithStores creates a manager over the given stores, in priority order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store stamps LastModified and writes to the first store that accepts it
func (m *Manager) Store(account *Account) error {
	switch {
	case account == nil || account.Username == "":
		return errors.New("username is required")
	case account.Password == "":
		return errors.New("password is required")
	}
	account.LastModified = time.Now()

	var failures []error
	for _, store := range m.stores {
		err := store.Store(account)
		if err == nil {
			return nil
		}
		failures = append(failures, err)
	}
	if len(failures) == 0 {
		return ErrStoreUnavailable
	}
	return fmt.Errorf("failed to store credentials: %w", errors.Join(failures...))
}

// Retrieve returns the first copy found, in store priority order
func (m *Manager) Retrieve(username string) (*Account, error) {
	for _, store := range m.stores {
		account, err := store.Retrieve(username)
		if err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, username)
}

// RetrieveDefault returns the most recently modified account
func (m *Manager) RetrieveDefault() (*Account, error) {
	all, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrCredentialsNotFound
	}
	return all[0], nil
}

// List merges every readable store, newest first. When several stores
// hold the same username the most recently modified copy wins.
func (m *Manager) List() ([]*Account, error) {
	newest := map[string]*Account{}
	for _, store := range m.stores {
		found, err := store.List()
		if err != nil {
			continue
		}
		for _, a := range found {
			if cur, seen := newest[a.Username]; !seen || a.LastModified.After(cur.LastModified) {
				newest[a.Username] = a
			}
		}
	}

	out := make([]*Account, 0, len(newest))
	for _, a := range newest {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].LastModified.After(out[j].LastModified)
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}

// Delete removes the account from every store holding it
func (m *Manager) Delete(username string) error {
	removed := false
	var failures []error
	for _, store := range m.stores {
		err := store.Delete(username)
		switch {
		case err == nil:
			removed = true
		case errors.Is(err, ErrCredentialsNotFound), errors.Is(err, ErrStoreUnavailable):
		default:
			failures = append(failures, err)
		}
	}

	switch {
	case removed:
		return nil
	case len(failures) > 0:
		return fmt.Errorf("failed to delete credentials: %w", errors.Join(failures...))
	default:
		return fmt.Errorf("%w: %s", ErrCredentialsNotFound, username)
	}
}

// Provider resolves credentials lazily for the login flow. An empty username
// selects the default account.
func (m *Manager) Provider(username string) *AccountProvider {
	return &AccountProvider{manager: m, username: username}
}

// AccountProvider looks the account up each time it is asked
type AccountProvider struct {
	manager  *Manager
	username string
}

// Credentials returns the username and password to log in with
func (p *AccountProvider) Credentials(ctx context.Context) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	var account *Account
	var err error
	if p.username == "" {
		account, err = p.manager.RetrieveDefault()
	} else {
		account, err = p.manager.Retrieve(p.username)
	}
	if err != nil {
		return "", "", err
	}
	if account.Password == "" {
		return "", "", fmt.Errorf("%w: empty password for %s", ErrInvalidCredentials, account.Username)
	}
	return account.Username, account.Password, nil
}

// getConfigDir is the per-user igharvest directory, created on demand
func getConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "igharvest")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// SanitizeAccount returns a copy safe to print
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}
	masked := *account
	if masked.Password != "" {
		masked.Password = "********"
	}
	return &masked
}

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
