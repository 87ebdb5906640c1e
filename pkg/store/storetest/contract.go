// Package storetest holds behaviour tests shared by every store.Store adapter.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/models"
	"igharvest/pkg/store"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func count(n int64) *int64 { return &n }

// Run exercises an adapter; open must return a fresh, empty store
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("contents", func(t *testing.T) { contents(t, open(t)) })
	t.Run("force update", func(t *testing.T) { forceUpdate(t, open(t)) })
	t.Run("executions", func(t *testing.T) { executions(t, open(t)) })
	t.Run("profiles", func(t *testing.T) { profiles(t, open(t)) })
}

func contents(t *testing.T, s store.Store) {
	ctx := context.Background()
	cs := s.Contents()

	exists, err := cs.ExistsByExternalID(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = cs.FindByExternalID(ctx, "abc")
	assert.ErrorIs(t, err, store.ErrNotFound)

	saved, err := cs.SaveAll(ctx, []models.ContentRecord{
		{ProfileID: "p1", ExternalID: "abc", URL: "https://www.instagram.com/p/abc", Caption: "first",
			Kind: models.KindPost, CollectedAt: t0, Likes: count(10), ImageBlob: []byte{0xff, 0xd8}, ImageMIMEType: "image/jpeg"},
		{ProfileID: "p1", ExternalID: "def", URL: "https://www.instagram.com/reel/def", Caption: "second",
			Kind: models.KindReel, CollectedAt: t0.Add(time.Hour)},
		{ProfileID: "p2", ExternalID: "ghi", URL: "https://www.instagram.com/p/ghi", Kind: models.KindPost, CollectedAt: t0},
	})
	require.NoError(t, err)
	require.Len(t, saved, 3)
	for _, rec := range saved {
		assert.NotEmpty(t, rec.ID)
	}

	got, err := cs.FindByExternalID(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Caption)
	assert.Equal(t, models.KindPost, got.Kind)
	assert.True(t, t0.Equal(got.CollectedAt))
	require.NotNil(t, got.Likes)
	assert.Equal(t, int64(10), *got.Likes)
	assert.Nil(t, got.Comments)
	assert.Equal(t, []byte{0xff, 0xd8}, got.ImageBlob)

	// a second record with a known external id and no matching ID is ignored
	dup, err := cs.SaveAll(ctx, []models.ContentRecord{
		{ProfileID: "p1", ExternalID: "abc", URL: "x", Caption: "imposter", Kind: models.KindPost, CollectedAt: t0},
	})
	require.NoError(t, err)
	assert.Empty(t, dup)
	got, err = cs.FindByExternalID(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Caption)

	list, err := cs.FindByProfile(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "def", list[0].ExternalID, "newest first")
	assert.Equal(t, "abc", list[1].ExternalID)
}

func forceUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	cs := s.Contents()

	saved, err := cs.SaveAll(ctx, []models.ContentRecord{
		{ProfileID: "p1", ExternalID: "abc", URL: "u", Caption: "old", Kind: models.KindPost, CollectedAt: t0},
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)

	existing, err := cs.FindByExternalID(ctx, "abc")
	require.NoError(t, err)

	update := *existing
	update.Caption = "new"
	update.CollectedAt = t0.Add(time.Hour)
	update.ApplyMetrics(models.EngagementMetrics{Likes: 5})
	saved, err = cs.SaveAll(ctx, []models.ContentRecord{update})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, existing.ID, saved[0].ID)

	got, err := cs.FindByExternalID(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Caption)
	assert.Equal(t, int64(5), *got.Likes)
}

func executions(t *testing.T, s store.Store) {
	ctx := context.Background()
	es := s.Executions()

	_, err := es.FindLatestByProfile(ctx, "p1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	finished := t0.Add(time.Minute)
	recs := []models.ExecutionRecord{
		{ProfileID: "p1", Username: "demo", StartedAt: t0, Status: models.StatusFailed, ErrorMessage: "rate limited"},
		{ProfileID: "p1", Username: "demo", StartedAt: t0.Add(time.Hour), FinishedAt: &finished,
			Status: models.StatusPartialSuccess, PostsFound: 2, PostsProcessed: 2, PostsNew: 2, ForceUpdate: true},
		{ProfileID: "p2", Username: "other", StartedAt: t0.Add(2 * time.Hour), Status: models.StatusSuccess},
	}
	for i := range recs {
		require.NoError(t, es.Save(ctx, &recs[i]))
		assert.NotEmpty(t, recs[i].ID)
	}

	// Save replaces by id
	recs[0].AttemptNumber = 3
	require.NoError(t, es.Save(ctx, &recs[0]))

	latest, err := es.FindLatestByProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, recs[1].ID, latest.ID)
	assert.Equal(t, models.StatusPartialSuccess, latest.Status)
	assert.True(t, latest.ForceUpdate)
	require.NotNil(t, latest.FinishedAt)
	assert.True(t, finished.Equal(*latest.FinishedAt))

	recent, err := es.FindRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "other", recent[0].Username)

	all, err := es.FindRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ok, err := es.FindSuccessfulByProfile(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, ok, 1)
	assert.Equal(t, recs[1].ID, ok[0].ID)

	hit, err := es.HasRecentSuccess(ctx, "p1", t0.Add(30*time.Minute))
	require.NoError(t, err)
	assert.True(t, hit)
	hit, err = es.HasRecentSuccess(ctx, "p1", t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, hit)

	for _, r := range all {
		if r.ID == recs[0].ID {
			assert.Equal(t, 3, r.AttemptNumber)
		}
	}
}

func profiles(t *testing.T, s store.Store) {
	ctx := context.Background()
	ps := s.Profiles()

	_, err := ps.FindByUsername(ctx, "DemoAcct")
	assert.ErrorIs(t, err, store.ErrNotFound)

	p := &models.Profile{Username: "demoacct", DisplayName: "Demo", Active: true}
	require.NoError(t, ps.Save(ctx, p))
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	found, err := ps.FindByUsername(ctx, "DemoAcct")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)
	assert.Equal(t, "Demo", found.DisplayName)
	assert.True(t, found.Active)

	again := &models.Profile{Username: "demoacct", DisplayName: "Renamed"}
	require.NoError(t, ps.Save(ctx, again))
	assert.Equal(t, p.ID, again.ID)

	require.NoError(t, ps.Save(ctx, &models.Profile{Username: "another", Active: true}))
	list, err := ps.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "another", list[0].Username)
	assert.Equal(t, "Renamed", list[1].DisplayName)
	assert.False(t, list[1].Active)
}
