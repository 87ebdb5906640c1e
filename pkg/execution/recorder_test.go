package execution

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/models"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var demo = models.Profile{ID: "p-1", Username: "demoacct"}

func newRecorder() (*Recorder, *stepClock) {
	clock := &stepClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return Start(demo, false, WithClock(clock)), clock
}

func TestStart(t *testing.T) {
	r, clock := newRecorder()
	rec := r.Snapshot()

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "p-1", rec.ProfileID)
	assert.Equal(t, "demoacct", rec.Username)
	assert.Equal(t, models.StatusStarted, rec.Status)
	assert.Equal(t, clock.Now(), rec.StartedAt)
	assert.Nil(t, rec.FinishedAt)
	assert.False(t, rec.ForceUpdate)
}

func TestFinalizeRules(t *testing.T) {
	tests := []struct {
		name      string
		produced  int
		skipped   []string
		batch     int
		cause     error
		want      models.ExecutionStatus
		wantError bool
	}{
		{name: "nothing at all", batch: 6, cause: errors.New("rate limited"), want: models.StatusFailed, wantError: true},
		{name: "nothing without cause", batch: 6, want: models.StatusFailed, wantError: true},
		{name: "only duplicates", skipped: []string{"a", "b"}, batch: 6, want: models.StatusPartialSuccess},
		{name: "below half", produced: 2, batch: 6, want: models.StatusPartialSuccess},
		{name: "exactly half", produced: 3, batch: 6, want: models.StatusSuccess},
		{name: "odd batch rounds down", produced: 2, batch: 5, want: models.StatusSuccess},
		{name: "full batch", produced: 6, skipped: []string{"x"}, batch: 6, want: models.StatusSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newRecorder()
			r.SetAttempt(1)
			for i := 0; i < tt.produced; i++ {
				r.RecordProduced(false, true)
			}
			for _, id := range tt.skipped {
				r.RecordSkipped(id)
			}

			rec, err := r.Finalize(tt.batch, tt.cause)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Status)
			assert.Equal(t, rec.PostsProcessed+rec.PostsSkipped, rec.PostsFound)
			assert.Equal(t, tt.wantError, rec.ErrorMessage != "")
			require.NotNil(t, rec.FinishedAt)
		})
	}
}

func TestSkippedCountsOncePerRun(t *testing.T) {
	r, _ := newRecorder()
	for attempt := 1; attempt <= 3; attempt++ {
		r.SetAttempt(attempt)
		r.RecordSkipped("abc")
		r.RecordSkipped("def")
	}
	assert.Equal(t, 2, r.Snapshot().PostsSkipped)
	assert.Equal(t, 3, r.Snapshot().AttemptNumber)
}

func TestRecordProducedCounters(t *testing.T) {
	r, _ := newRecorder()
	r.RecordProduced(false, true)
	r.RecordProduced(true, false)
	r.RecordImageSaved()
	r.SetIdentity("agent", "1280x720")

	rec := r.Snapshot()
	assert.Equal(t, 2, rec.PostsProcessed)
	assert.Equal(t, 1, rec.PostsNew)
	assert.Equal(t, 1, rec.PostsUpdated)
	assert.Equal(t, 1, rec.CaptionsExtracted)
	assert.Equal(t, 1, rec.ImagesSaved)
	assert.Equal(t, "agent", rec.UserAgent)
	assert.Equal(t, "1280x720", rec.Viewport)
}

func TestFinalizeOnlyOnce(t *testing.T) {
	r, _ := newRecorder()
	r.RecordProduced(false, true)
	first, err := r.Finalize(6, nil)
	require.NoError(t, err)

	r.RecordProduced(false, true)
	r.RecordSkipped("late")
	r.SetAttempt(9)

	second, err := r.Finalize(1, errors.New("ignored"))
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
	assert.Equal(t, first, second)

	_, err = r.Cancel(nil)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
	assert.Equal(t, first.Status, r.Status())
}

func TestCancel(t *testing.T) {
	r, _ := newRecorder()
	r.RecordSkipped("a")
	rec, err := r.Cancel(errors.New("context canceled"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, rec.Status)
	assert.Equal(t, "context canceled", rec.ErrorMessage)
	assert.Equal(t, 1, rec.PostsFound)
}

func TestElapsed(t *testing.T) {
	r, clock := newRecorder()
	r.SetElapsed(1500 * time.Millisecond)
	assert.Equal(t, int64(1500), r.ElapsedMs(), "manual before finish")

	clock.advance(42 * time.Second)
	rec, err := r.Finalize(6, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42000), rec.ExecutionTimeMs)
	assert.Equal(t, int64(42000), r.ElapsedMs())
}

func TestConcurrentImageReports(t *testing.T) {
	r, _ := newRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RecordImageSaved()
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, r.Snapshot().ImagesSaved)
}
