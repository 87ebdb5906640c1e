package auth

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"
)

const (
	vaultVersion = 2
	vaultKDF     = "argon2id"
	vaultKeyLen  = 32
	vaultSaltLen = 16
)

// vaultAAD binds the ciphertext to the file format
var vaultAAD = []byte("igharvest-credentials/v2")

// defaultKDF follows the argon2id parameters recommended in RFC 9106 for
// memory-constrained hosts
var defaultKDF = kdfParams{Name: vaultKDF, Time: 1, MemoryKiB: 64 * 1024, Threads: 4}

// ErrWrongPassphrase means the file exists but cannot be opened with the current key
var ErrWrongPassphrase = errors.New("credentials file cannot be decrypted")

type kdfParams struct {
	Name      string `json:"name"`
	Salt      []byte `json:"salt"`
	Time      uint32 `json:"time"`
	MemoryKiB uint32 `json:"memory_kib"`
	Threads   uint8  `json:"threads"`
}

// vaultFile is the on-disk envelope; byte slices are base64 in JSON
type vaultFile struct {
	Version  int       `json:"version"`
	KDF      kdfParams `json:"kdf"`
	Nonce    []byte    `json:"nonce"`
	Sealed   []byte    `json:"sealed"`
	Modified time.Time `json:"modified"`
}

// EncryptedFileStore keeps every account in one AES-GCM sealed file
type EncryptedFileStore struct {
	path       string
	passphrase string

	mu sync.RWMutex
	// key is derived once per salt
	keySalt []byte
	key     []byte
}

// NewEncryptedFileStore creates a store whose key derives from
// IGHARVEST_PASSPHRASE or a generated passphrase kept next to the config
func NewEncryptedFileStore(filePath string) (*EncryptedFileStore, error) {
	passphrase, err := getPassphrase()
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return NewEncryptedFileStoreWithPassphrase(filePath, passphrase)
}

// NewEncryptedFileStoreWithPassphrase creates a store keyed by passphrase
func NewEncryptedFileStoreWithPassphrase(filePath, passphrase string) (*EncryptedFileStore, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase is required")
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &EncryptedFileStore{path: filePath, passphrase: passphrase}, nil
}

func (e *EncryptedFileStore) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, params, err := e.open()
	if err != nil {
		return err
	}
	accounts[account.Username] = *account
	return e.seal(accounts, params)
}

func (e *EncryptedFileStore) Retrieve(username string) (*Account, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, _, err := e.open()
	if err != nil {
		return nil, err
	}
	account, ok := accounts[username]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &account, nil
}

// List returns accounts ordered by username
func (e *EncryptedFileStore) List() ([]*Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, _, err := e.open()
	if err != nil {
		return nil, err
	}
	out := make([]*Account, 0, len(accounts))
	for _, account := range accounts {
		account := account
		out = append(out, &account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Delete removes the account; the file goes away with the last one
func (e *EncryptedFileStore) Delete(username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, params, err := e.open()
	if err != nil {
		return err
	}
	if _, ok := accounts[username]; !ok {
		return ErrCredentialsNotFound
	}
	delete(accounts, username)

	if len(accounts) == 0 {
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove credentials file: %w", err)
		}
		return nil
	}
	return e.seal(accounts, params)
}

func (e *EncryptedFileStore) Exists(username string) bool {
	_, err := e.Retrieve(username)
	return err == nil
}

// open reads and decrypts the file. A missing file is an empty vault with
// fresh KDF parameters.
func (e *EncryptedFileStore) open() (map[string]Account, kdfParams, error) {
	raw, err := os.ReadFile(e.path)
	if os.IsNotExist(err) {
		params := defaultKDF
		params.Salt = make([]byte, vaultSaltLen)
		if _, err := rand.Read(params.Salt); err != nil {
			return nil, params, fmt.Errorf("failed to generate salt: %w", err)
		}
		return map[string]Account{}, params, nil
	}
	if err != nil {
		return nil, kdfParams{}, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var vf vaultFile
	if err := json.Unmarshal(raw, &vf); err != nil {
		return nil, kdfParams{}, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if vf.Version != vaultVersion || vf.KDF.Name != vaultKDF {
		return nil, kdfParams{}, fmt.Errorf("unsupported credentials file version %d (%s)", vf.Version, vf.KDF.Name)
	}

	aead, err := e.aead(vf.KDF)
	if err != nil {
		return nil, kdfParams{}, err
	}
	if len(vf.Nonce) != aead.NonceSize() {
		return nil, kdfParams{}, errors.New("credentials file has a malformed nonce")
	}
	plain, err := aead.Open(nil, vf.Nonce, vf.Sealed, vaultAAD)
	if err != nil {
		return nil, kdfParams{}, ErrWrongPassphrase
	}

	accounts := map[string]Account{}
	if err := json.Unmarshal(plain, &accounts); err != nil {
		return nil, kdfParams{}, fmt.Errorf("failed to parse accounts: %w", err)
	}
	return accounts, vf.KDF, nil
}

// seal encrypts accounts under a fresh nonce and replaces the file atomically
func (e *EncryptedFileStore) seal(accounts map[string]Account, params kdfParams) error {
	plain, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("failed to marshal accounts: %w", err)
	}
	aead, err := e.aead(params)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	content, err := json.MarshalIndent(vaultFile{
		Version:  vaultVersion,
		KDF:      params,
		Nonce:    nonce,
		Sealed:   aead.Seal(nil, nonce, plain, vaultAAD),
		Modified: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials file: %w", err)
	}
	return writeFileAtomic(e.path, content)
}

func (e *EncryptedFileStore) aead(params kdfParams) (cipher.AEAD, error) {
	if e.key == nil || !bytes.Equal(e.keySalt, params.Salt) {
		e.key = argon2.IDKey([]byte(e.passphrase), params.Salt, params.Time, params.MemoryKiB, params.Threads, vaultKeyLen)
		e.keySalt = append([]byte(nil), params.Salt...)
	}
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func writeFileAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict temp file: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace credentials file: %w", err)
	}
	return nil
}

// getPassphrase prefers IGHARVEST_PASSPHRASE, then a random passphrase
// generated on first use and kept in the config directory
func getPassphrase() (string, error) {
	if pass := os.Getenv("IGHARVEST_PASSPHRASE"); pass != "" {
		return pass, nil
	}

	configDir, err := getConfigDir()
	if err != nil {
		return "", err
	}
	file := filepath.Join(configDir, ".passphrase")

	if content, err := os.ReadFile(file); err == nil && len(bytes.TrimSpace(content)) > 0 {
		return string(bytes.TrimSpace(content)), nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := base64.RawURLEncoding.EncodeToString(buf)
	if err := writeFileAtomic(file, []byte(passphrase)); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}
