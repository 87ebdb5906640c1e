package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"image/avif": ".avif",
	"video/mp4":  ".mp4",
}

// Extension maps a MIME type to a file extension, defaulting to .jpg
func Extension(mimeType string) string {
	if ext, ok := extensions[mimeType]; ok {
		return ext
	}
	return ".jpg"
}

// Files stores one media file per short code and remembers what is on disk
type Files struct {
	dir   string
	mu    sync.RWMutex
	saved map[string]string // shortcode -> path
}

// NewFiles creates the directory if needed and indexes existing files
func NewFiles(dir string) (*Files, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	f := &Files{dir: dir, saved: map[string]string{}}
	if err := f.scan(); err != nil {
		return nil, fmt.Errorf("failed to scan media directory: %w", err)
	}
	return f, nil
}

func (f *Files) scan() error {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		ext := filepath.Ext(name)
		if entry.IsDir() || ext == "" || ext == ".tmp" {
			continue
		}
		f.saved[strings.TrimSuffix(name, ext)] = filepath.Join(f.dir, name)
	}
	return nil
}

// Dir returns the media directory
func (f *Files) Dir() string {
	return f.dir
}

// Lookup returns the path of an already stored file
func (f *Files) Lookup(shortcode string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	path, ok := f.saved[shortcode]
	return path, ok
}

// Save writes img atomically as <shortcode><ext> and returns the path
func (f *Files) Save(shortcode string, img Image) (string, error) {
	if shortcode == "" || strings.ContainsAny(shortcode, `/\`) || strings.HasPrefix(shortcode, ".") {
		return "", fmt.Errorf("invalid shortcode %q", shortcode)
	}
	path := filepath.Join(f.dir, shortcode+Extension(img.MIMEType))
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, img.Data, 0644); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to rename media file: %w", err)
	}

	f.mu.Lock()
	f.saved[shortcode] = path
	f.mu.Unlock()
	return path, nil
}

// Count returns how many files are stored
func (f *Files) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.saved)
}
