package auth

import (
	"sort"
	"sync"
)

// MockStore is an in-memory CredentialStore for tests. Every mutating or
// reading call is recorded as "op username", and FailOn makes an operation
// return an error instead of touching the map.
type MockStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	failures map[string]error
	calls    []string
}

func NewMockStore() *MockStore {
	return &MockStore{accounts: map[string]Account{}, failures: map[string]error{}}
}

// FailOn injects err for op: "store", "retrieve", "list" or "delete"
func (m *MockStore) FailOn(op string, err error) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
	return m
}

// Calls returns the recorded operations in order
func (m *MockStore) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Count is the number of stored accounts
func (m *MockStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

// enter locks the store and records the call; the caller unlocks
func (m *MockStore) enter(op, username string) {
	m.mu.Lock()
	if username != "" {
		op += " " + username
	}
	m.calls = append(m.calls, op)
}

func (m *MockStore) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}
	m.enter("store", account.Username)
	defer m.mu.Unlock()
	if err := m.failures["store"]; err != nil {
		return err
	}
	m.accounts[account.Username] = *account
	return nil
}

func (m *MockStore) Retrieve(username string) (*Account, error) {
	m.enter("retrieve", username)
	defer m.mu.Unlock()
	if err := m.failures["retrieve"]; err != nil {
		return nil, err
	}
	account, ok := m.accounts[username]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &account, nil
}

func (m *MockStore) List() ([]*Account, error) {
	m.enter("list", "")
	defer m.mu.Unlock()
	if err := m.failures["list"]; err != nil {
		return nil, err
	}
	out := make([]*Account, 0, len(m.accounts))
	for _, account := range m.accounts {
		account := account
		out = append(out, &account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *MockStore) Delete(username string) error {
	m.enter("delete", username)
	defer m.mu.Unlock()
	if err := m.failures["delete"]; err != nil {
		return err
	}
	if _, ok := m.accounts[username]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.accounts, username)
	return nil
}

// Exists is not recorded
func (m *MockStore) Exists(username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.accounts[username]
	return ok
}

// NewMockManager creates a Manager backed by a single MockStore
func NewMockManager() (*Manager, *MockStore) {
	store := NewMockStore()
	return NewManagerWithStores(store), store
}
