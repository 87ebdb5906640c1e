package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionRecordHelpers(t *testing.T) {
	rec := &ExecutionRecord{
		Status:         StatusPartialSuccess,
		PostsFound:     4,
		PostsProcessed: 1,
		PostsNew:       1,
		PostsSkipped:   3,
	}

	assert.InDelta(t, 25.0, rec.SuccessRate(), 0.001)
	assert.True(t, rec.IsSuccessful())
	assert.Contains(t, rec.Summary(), "PARTIAL_SUCCESS: 4 found, 1 processed")

	rec.Status = StatusFailed
	assert.False(t, rec.IsSuccessful())

	empty := &ExecutionRecord{}
	assert.Zero(t, empty.SuccessRate())
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusStarted.Terminal())
	assert.False(t, ExecutionStatus("").Terminal())
	for _, s := range []ExecutionStatus{StatusSuccess, StatusPartialSuccess, StatusFailed, StatusCancelled} {
		assert.True(t, s.Terminal(), s)
	}
}

func TestApplyMetricsCopiesValues(t *testing.T) {
	m := EngagementMetrics{Likes: 1234, Comments: 56}
	var rec ContentRecord
	rec.ApplyMetrics(m)

	m.Likes = 0
	require.NotNil(t, rec.Likes)
	assert.Equal(t, int64(1234), *rec.Likes)
	assert.Equal(t, int64(56), *rec.Comments)
	assert.Equal(t, int64(0), *rec.Views)
}
