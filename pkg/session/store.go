package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"

	"igharvest/pkg/browser"
	"igharvest/pkg/logger"
	"igharvest/pkg/pacing"
)

const (
	// DefaultMaxAge is how long a saved set stays usable
	DefaultMaxAge = 24 * time.Hour
	// DefaultRetention is the age past which Sweep deletes a set
	DefaultRetention = 7 * 24 * time.Hour

	fileExt = ".json"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]`)

// SessionID derives the store key for a username
func SessionID(username string) string {
	return "instagram_" + nonAlnum.ReplaceAllString(strings.ToLower(username), "_")
}

// StoredCookie is the on-disk form of a cookie
type StoredCookie struct {
	Name      string     `json:"name"`
	Value     string     `json:"value"`
	Domain    string     `json:"domain,omitempty"`
	Path      string     `json:"path,omitempty"`
	Expiry    *time.Time `json:"expiry,omitempty"`
	Secure    bool       `json:"secure"`
	HTTPOnly  bool       `json:"http_only"`
	SameSite  string     `json:"same_site,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// CookieSet is one persisted session
type CookieSet struct {
	SessionID string         `json:"session_id"`
	SavedAt   time.Time      `json:"saved_at"`
	Cookies   []StoredCookie `json:"cookies"`
	Version   int            `json:"version"`
}

// Info summarizes a stored set for listing
type Info struct {
	ID      string
	Path    string
	SavedAt time.Time
	Cookies int
}

// Store reads and writes cookie sets
type Store struct {
	dir    string
	maxAge time.Duration
	clock  pacing.Clock
	logger logger.Logger
}

// Option configures a Store
type Option func(*Store)

func WithClock(c pacing.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithMaxAge(d time.Duration) Option {
	return func(s *Store) { s.maxAge = d }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a store rooted at dir; an empty dir uses the data directory
func NewStore(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		dataDir, err := getDataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "sessions")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	s := &Store{
		dir:    dir,
		maxAge: DefaultMaxAge,
		clock:  pacing.SystemClock{},
		logger: logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the directory holding the sets
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}

// Save captures the session's cookies under id
func (s *Store) Save(ctx context.Context, sess browser.Session, id string) error {
	cookies, err := sess.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("failed to read cookies: %w", err)
	}

	now := s.clock.Now()
	set := CookieSet{SessionID: id, SavedAt: now, Version: 1}
	for _, c := range cookies {
		stored := StoredCookie{
			Name:      c.Name,
			Value:     c.Value,
			Domain:    c.Domain,
			Path:      c.Path,
			Secure:    c.Secure,
			HTTPOnly:  c.HTTPOnly,
			SameSite:  c.SameSite,
			CreatedAt: now,
		}
		if !c.Expires.IsZero() {
			exp := c.Expires
			stored.Expiry = &exp
		}
		set.Cookies = append(set.Cookies, stored)
	}

	if err := s.write(&set); err != nil {
		return err
	}

	s.logger.InfoWithFields("Session cookies saved", map[string]interface{}{
		"session": id,
		"cookies": len(set.Cookies),
	})
	return nil
}

func (s *Store) write(set *CookieSet) error {
	target := s.path(set.SessionID)
	tempPath := target + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(set); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync session file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (s *Store) read(id string) (*CookieSet, error) {
	file, err := os.Open(s.path(id))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var set CookieSet
	if err := json.NewDecoder(file).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &set, nil
}

// Load applies the stored cookies for id to sess. It reports true only when
// at least one cookie was applied.
func (s *Store) Load(ctx context.Context, sess browser.Session, id string) (bool, error) {
	set, err := s.read(id)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	now := s.clock.Now()
	if now.Sub(set.SavedAt) > s.maxAge {
		s.logger.InfoWithFields("Session cookies expired, removing", map[string]interface{}{
			"session":  id,
			"saved_at": set.SavedAt,
		})
		return false, s.Clear(id)
	}

	var live []browser.Cookie
	for _, c := range set.Cookies {
		if c.Expiry != nil && c.Expiry.Before(now) {
			s.logger.DebugWithFields("Skipping expired cookie", map[string]interface{}{"cookie": c.Name})
			continue
		}
		cookie := browser.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
		}
		if c.Expiry != nil {
			cookie.Expires = *c.Expiry
		}
		live = append(live, cookie)
	}

	if len(live) == 0 {
		return false, nil
	}
	if err := sess.SetCookies(ctx, live); err != nil {
		return false, fmt.Errorf("failed to apply cookies: %w", err)
	}

	s.logger.InfoWithFields("Session cookies loaded", map[string]interface{}{
		"session": id,
		"cookies": len(live),
	})
	return true, nil
}

// Has reports whether a non-empty set exists for id
func (s *Store) Has(id string) bool {
	info, err := os.Stat(s.path(id))
	return err == nil && info.Size() > 0
}

// Clear deletes the set for id; a missing set is not an error
func (s *Store) Clear(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	s.logger.DebugWithFields("Session cookies cleared", map[string]interface{}{"session": id})
	return nil
}

// Sweep deletes every set saved more than olderThan ago and returns the count
func (s *Store) Sweep(olderThan time.Duration) (int, error) {
	infos, err := s.List()
	if err != nil {
		return 0, err
	}

	cutoff := s.clock.Now().Add(-olderThan)
	removed := 0
	for _, info := range infos {
		if !info.SavedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(info.Path); err != nil && !os.IsNotExist(err) {
			s.logger.WithError(err).WarnWithFields("Failed to sweep session", map[string]interface{}{"session": info.ID})
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.InfoWithFields("Old sessions swept", map[string]interface{}{"removed": removed})
	}
	return removed, nil
}

// List returns every stored set, oldest first. Unreadable files fall back to
// their modification time.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var infos []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), fileExt)
		info := Info{ID: id, Path: s.path(id)}

		if set, err := s.read(id); err == nil {
			info.SavedAt = set.SavedAt
			info.Cookies = len(set.Cookies)
		} else if fi, statErr := entry.Info(); statErr == nil {
			info.SavedAt = fi.ModTime()
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].SavedAt.Before(infos[j].SavedAt) })
	return infos, nil
}

// getDataDirectory returns the application data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "igharvest")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "igharvest")
	default:
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "igharvest")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "igharvest")
		}
	}
	return dataDir, nil
}
