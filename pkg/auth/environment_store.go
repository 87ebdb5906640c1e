package auth

import (
	"os"
	"time"
)

const (
	envUsername = "IGHARVEST_LOGIN_USERNAME"
	envPassword = "IGHARVEST_LOGIN_PASSWORD"
)

// EnvironmentStore reads one account from the environment; it is read-only
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment account when username is empty or matches it
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	user := os.Getenv(envUsername)
	pass := os.Getenv(envPassword)
	if user == "" || pass == "" {
		return nil, ErrCredentialsNotFound
	}
	if username != "" && username != user {
		return nil, ErrCredentialsNotFound
	}
	return &Account{Username: user, Password: pass, LastModified: time.Time{}}, nil
}

func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

func (e *EnvironmentStore) Delete(username string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(username string) bool {
	_, err := e.Retrieve(username)
	return err == nil
}
