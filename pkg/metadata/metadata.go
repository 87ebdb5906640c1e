// Package metadata writes JSON descriptions of captured posts, either as a
// sidecar next to a downloaded media file or as one export document per
// profile.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"igharvest/pkg/models"
)

const sidecarExt = ".json"

// PostMetadata describes one captured post
type PostMetadata struct {
	// Core identifiers
	ID        string             `json:"id"`
	Shortcode string             `json:"shortcode"`
	URL       string             `json:"url"`
	Kind      models.ContentKind `json:"kind"`
	Owner     string             `json:"owner"`

	// Media
	MediaURL  string `json:"media_url,omitempty"`
	MediaPath string `json:"media_path,omitempty"`
	MIMEType  string `json:"mime_type,omitempty"`

	// Timestamps
	CollectedAt time.Time  `json:"collected_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`

	Caption string `json:"caption,omitempty"`

	// Engagement, absent when the page did not show it
	Likes    *int64 `json:"likes,omitempty"`
	Comments *int64 `json:"comments,omitempty"`
	Views    *int64 `json:"views,omitempty"`
}

// Export is the document written for a whole profile
type Export struct {
	Profile    string         `json:"profile"`
	ExportedAt time.Time      `json:"exported_at"`
	Posts      []PostMetadata `json:"posts"`
}

// FromRecord converts a stored record
func FromRecord(rec models.ContentRecord, owner string) *PostMetadata {
	return &PostMetadata{
		ID:          rec.ID,
		Shortcode:   rec.ExternalID,
		URL:         rec.URL,
		Kind:        rec.Kind,
		Owner:       owner,
		MediaURL:    rec.MediaURL,
		MediaPath:   rec.MediaPath,
		MIMEType:    rec.ImageMIMEType,
		CollectedAt: rec.CollectedAt,
		PublishedAt: rec.PublishedAt,
		Caption:     rec.Caption,
		Likes:       rec.Likes,
		Comments:    rec.Comments,
		Views:       rec.Views,
	}
}

// Save writes the metadata next to the media file
func (m *PostMetadata) Save(mediaPath string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(mediaPath+sidecarExt, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// Load reads the sidecar of a media file
func Load(mediaPath string) (*PostMetadata, error) {
	data, err := os.ReadFile(mediaPath + sidecarExt)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta PostMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &meta, nil
}

// Exists checks if a sidecar exists for a media file
func Exists(mediaPath string) bool {
	_, err := os.Stat(mediaPath + sidecarExt)
	return err == nil
}

// WriteSidecars saves a sidecar for every record with a media file on disk
// and returns how many were written.
func WriteSidecars(records []models.ContentRecord, owner string) (int, error) {
	written := 0
	for _, rec := range records {
		if rec.MediaPath == "" {
			continue
		}
		if _, err := os.Stat(rec.MediaPath); err != nil {
			continue
		}
		if err := FromRecord(rec, owner).Save(rec.MediaPath); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// NewExport builds the export document for a profile
func NewExport(owner string, records []models.ContentRecord, now time.Time) *Export {
	exp := &Export{Profile: owner, ExportedAt: now, Posts: make([]PostMetadata, 0, len(records))}
	for _, rec := range records {
		exp.Posts = append(exp.Posts, *FromRecord(rec, owner))
	}
	return exp
}

// WriteFile writes the export as indented JSON
func (e *Export) WriteFile(path string) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

// FormattedCaption returns the caption on one line, truncated to maxLength runes
func FormattedCaption(caption string, maxLength int) string {
	caption = strings.Join(strings.Fields(caption), " ")
	r := []rune(caption)
	if maxLength <= 3 || len(r) <= maxLength {
		return caption
	}
	return string(r[:maxLength-3]) + "..."
}

// CleanOrphaned removes sidecars whose media file is gone
func CleanOrphaned(directory string) (int, error) {
	removed := 0
	err := filepath.Walk(directory, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != sidecarExt {
			return nil
		}

		mediaPath := strings.TrimSuffix(path, sidecarExt)
		if filepath.Ext(mediaPath) == "" {
			return nil
		}
		if _, err := os.Stat(mediaPath); os.IsNotExist(err) {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove orphaned metadata %s: %w", path, err)
			}
			removed++
		}
		return nil
	})
	return removed, err
}
