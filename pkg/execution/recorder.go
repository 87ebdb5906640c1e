// Package execution keeps the audit record of one scrape run.
//
// A Recorder moves forward only: STARTED, then exactly one of SUCCESS,
// PARTIAL_SUCCESS, FAILED or CANCELLED. Counter updates after that are
// ignored.
package execution

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"igharvest/pkg/models"
	"igharvest/pkg/pacing"
)

// ErrAlreadyFinalized is returned by a second Finalize or Cancel
var ErrAlreadyFinalized = errors.New("execution already finalized")

// Recorder owns one ExecutionRecord. It is safe for concurrent use so media
// workers can report saved images.
type Recorder struct {
	mu      sync.Mutex
	rec     models.ExecutionRecord
	clock   pacing.Clock
	skipped map[string]bool
	manual  time.Duration
}

// Option configures a Recorder
type Option func(*Recorder)

// WithClock sets the time source
func WithClock(c pacing.Clock) Option {
	return func(r *Recorder) { r.clock = c }
}

// Start opens a STARTED record for profile
func Start(profile models.Profile, forceUpdate bool, opts ...Option) *Recorder {
	r := &Recorder{clock: pacing.SystemClock{}, skipped: map[string]bool{}}
	for _, opt := range opts {
		opt(r)
	}
	r.rec = models.ExecutionRecord{
		ID:          uuid.NewString(),
		ProfileID:   profile.ID,
		Username:    profile.Username,
		StartedAt:   r.clock.Now(),
		Status:      models.StatusStarted,
		ForceUpdate: forceUpdate,
	}
	return r
}

// Snapshot returns a copy of the record
func (r *Recorder) Snapshot() models.ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.rec
	if r.rec.FinishedAt != nil {
		finished := *r.rec.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}

// Status returns the current status
func (r *Recorder) Status() models.ExecutionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.Status
}

// update applies fn unless the record is already terminal
func (r *Recorder) update(fn func(rec *models.ExecutionRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec.Status.Terminal() {
		return
	}
	fn(&r.rec)
}

// SetAttempt records the attempt now running
func (r *Recorder) SetAttempt(n int) {
	r.update(func(rec *models.ExecutionRecord) {
		if n > rec.AttemptNumber {
			rec.AttemptNumber = n
		}
	})
}

// SetIdentity records the browser identity of the current attempt
func (r *Recorder) SetIdentity(userAgent, viewport string) {
	r.update(func(rec *models.ExecutionRecord) {
		rec.UserAgent = userAgent
		rec.Viewport = viewport
	})
}

// RecordSkipped counts a known item once per run, however many attempts see it
func (r *Recorder) RecordSkipped(externalID string) {
	r.update(func(rec *models.ExecutionRecord) {
		if r.skipped[externalID] {
			return
		}
		r.skipped[externalID] = true
		rec.PostsSkipped++
	})
}

// RecordProduced counts one extracted item as new or updated
func (r *Recorder) RecordProduced(updated, captioned bool) {
	r.update(func(rec *models.ExecutionRecord) {
		rec.PostsProcessed++
		if updated {
			rec.PostsUpdated++
		} else {
			rec.PostsNew++
		}
		if captioned {
			rec.CaptionsExtracted++
		}
	})
}

// RecordImageSaved counts one stored media file
func (r *Recorder) RecordImageSaved() {
	r.update(func(rec *models.ExecutionRecord) {
		rec.ImagesSaved++
	})
}

// SetElapsed records a duration measured by the caller, used when the record
// has no finish time
func (r *Recorder) SetElapsed(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manual = d
}

// Finalize closes the run:
//   - nothing processed or skipped: FAILED with an error message
//   - nothing processed but some skipped: PARTIAL_SUCCESS
//   - processed at least half of batchTarget: SUCCESS
//   - otherwise PARTIAL_SUCCESS
//
// The half-batch threshold is a heuristic; with force-update a run that only
// re-processes known posts can still reach SUCCESS.
func (r *Recorder) Finalize(batchTarget int, cause error) (models.ExecutionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec.Status.Terminal() {
		return r.rec, ErrAlreadyFinalized
	}

	rec := &r.rec
	rec.PostsFound = rec.PostsProcessed + rec.PostsSkipped

	switch {
	case rec.PostsProcessed == 0 && rec.PostsSkipped == 0:
		rec.Status = models.StatusFailed
		if cause != nil {
			rec.ErrorMessage = fmt.Sprintf("no posts extracted after %d attempt(s): %v", rec.AttemptNumber, cause)
		} else {
			rec.ErrorMessage = fmt.Sprintf("no posts extracted after %d attempt(s)", rec.AttemptNumber)
		}
	case rec.PostsProcessed == 0:
		rec.Status = models.StatusPartialSuccess
	case rec.PostsProcessed >= batchTarget/2:
		rec.Status = models.StatusSuccess
	default:
		rec.Status = models.StatusPartialSuccess
	}
	if cause != nil && rec.ErrorMessage == "" {
		rec.ErrorMessage = cause.Error()
	}

	r.finish()
	return r.rec, nil
}

// Cancel closes the run as CANCELLED
func (r *Recorder) Cancel(cause error) (models.ExecutionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec.Status.Terminal() {
		return r.rec, ErrAlreadyFinalized
	}
	r.rec.Status = models.StatusCancelled
	r.rec.PostsFound = r.rec.PostsProcessed + r.rec.PostsSkipped
	if cause != nil {
		r.rec.ErrorMessage = cause.Error()
	}
	r.finish()
	return r.rec, nil
}

// finish stamps the finish time; callers hold mu
func (r *Recorder) finish() {
	now := r.clock.Now()
	r.rec.FinishedAt = &now
	r.rec.ExecutionTimeMs = r.elapsed().Milliseconds()
}

// ElapsedMs is finish minus start when both are set, else the duration
// recorded with SetElapsed
func (r *Recorder) ElapsedMs() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed().Milliseconds()
}

func (r *Recorder) elapsed() time.Duration {
	if !r.rec.StartedAt.IsZero() && r.rec.FinishedAt != nil {
		return r.rec.FinishedAt.Sub(r.rec.StartedAt)
	}
	return r.manual
}
