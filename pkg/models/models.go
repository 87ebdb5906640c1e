package models

import (
	"fmt"
	"time"
)

// MaxExternalIDLength bounds ContentRecord.ExternalID
const MaxExternalIDLength = 100

// Profile identifies a remote account to monitor
type Profile struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ContentKind is the kind of a discovered item
type ContentKind string

const (
	KindPost    ContentKind = "POST"
	KindReel    ContentKind = "REEL"
	KindUnknown ContentKind = "UNKNOWN"
)

// ContentRecord is one discovered post or reel
type ContentRecord struct {
	ID            string      `json:"id"`
	ProfileID     string      `json:"profile_id"`
	ExternalID    string      `json:"external_id"`
	URL           string      `json:"url"`
	MediaURL      string      `json:"media_url,omitempty"`
	Caption       string      `json:"caption,omitempty"`
	Kind          ContentKind `json:"kind"`
	CollectedAt   time.Time   `json:"collected_at"`
	PublishedAt   *time.Time  `json:"published_at,omitempty"`
	ThumbnailPath string      `json:"thumbnail_path,omitempty"`
	MediaPath     string      `json:"media_path,omitempty"`
	ImageBlob     []byte      `json:"-"`
	ImageMIMEType string      `json:"image_mime_type,omitempty"`
	Likes         *int64      `json:"likes,omitempty"`
	Comments      *int64      `json:"comments,omitempty"`
	Views         *int64      `json:"views,omitempty"`
}

// ApplyMetrics folds engagement counters into the record
func (r *ContentRecord) ApplyMetrics(m EngagementMetrics) {
	likes, comments, views := m.Likes, m.Comments, m.Views
	r.Likes = &likes
	r.Comments = &comments
	r.Views = &views
}

// EngagementMetrics is the transient result of metric extraction
type EngagementMetrics struct {
	Likes    int64
	Comments int64
	Views    int64
}

// ExecutionStatus is the state of one orchestrator run
type ExecutionStatus string

const (
	StatusStarted        ExecutionStatus = "STARTED"
	StatusSuccess        ExecutionStatus = "SUCCESS"
	StatusPartialSuccess ExecutionStatus = "PARTIAL_SUCCESS"
	StatusFailed         ExecutionStatus = "FAILED"
	StatusCancelled      ExecutionStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed
func (s ExecutionStatus) Terminal() bool {
	return s != StatusStarted && s != ""
}

// ExecutionRecord is the audit trail of one orchestrator run
type ExecutionRecord struct {
	ID                string          `json:"id"`
	ProfileID         string          `json:"profile_id"`
	Username          string          `json:"username"`
	StartedAt         time.Time       `json:"started_at"`
	FinishedAt        *time.Time      `json:"finished_at,omitempty"`
	Status            ExecutionStatus `json:"status"`
	AttemptNumber     int             `json:"attempt_number"`
	PostsFound        int             `json:"posts_found"`
	PostsProcessed    int             `json:"posts_processed"`
	PostsNew          int             `json:"posts_new"`
	PostsUpdated      int             `json:"posts_updated"`
	PostsSkipped      int             `json:"posts_skipped"`
	CaptionsExtracted int             `json:"captions_extracted"`
	ImagesSaved       int             `json:"images_saved"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	UserAgent         string          `json:"user_agent,omitempty"`
	Viewport          string          `json:"viewport,omitempty"`
	ExecutionTimeMs   int64           `json:"execution_time_ms"`
	ForceUpdate       bool            `json:"force_update"`
}

// SuccessRate is processed over found, in percent
func (e *ExecutionRecord) SuccessRate() float64 {
	if e.PostsFound == 0 {
		return 0
	}
	return float64(e.PostsProcessed) / float64(e.PostsFound) * 100
}

// IsSuccessful reports a SUCCESS or PARTIAL_SUCCESS outcome
func (e *ExecutionRecord) IsSuccessful() bool {
	return e.Status == StatusSuccess || e.Status == StatusPartialSuccess
}

// Summary renders a one-line description for logs and the CLI
func (e *ExecutionRecord) Summary() string {
	return fmt.Sprintf("%s: %d found, %d processed (%d new, %d updated), %d skipped, %d captions, %d images in %dms (attempt %d)",
		e.Status, e.PostsFound, e.PostsProcessed, e.PostsNew, e.PostsUpdated,
		e.PostsSkipped, e.CaptionsExtracted, e.ImagesSaved, e.ExecutionTimeMs, e.AttemptNumber)
}
