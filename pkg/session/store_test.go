package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/browser"
	"igharvest/pkg/browser/browsertest"
	"igharvest/pkg/logger"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	store, err := NewStore(t.TempDir(), WithClock(clock), WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	return store, clock
}

func sessionWithCookies(cookies ...browser.Cookie) *browsertest.Session {
	s := browsertest.NewSession(nil)
	_ = s.SetCookies(context.Background(), cookies)
	return s
}

func TestSessionID(t *testing.T) {
	tests := map[string]string{
		"demoacct":      "instagram_demoacct",
		"Demo.Acct":     "instagram_demo_acct",
		"user_name-123": "instagram_user_name_123",
	}
	for in, want := range tests {
		assert.Equal(t, want, SessionID(in), in)
	}
}

func TestSaveAndLoad(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	id := SessionID("demoacct")

	src := sessionWithCookies(
		browser.Cookie{Name: "sessionid", Value: "abc", Domain: ".instagram.com", Path: "/", Secure: true, HTTPOnly: true},
		browser.Cookie{Name: "csrftoken", Value: "xyz", Domain: ".instagram.com", Path: "/", Expires: clock.now.Add(48 * time.Hour)},
	)
	require.NoError(t, store.Save(ctx, src, id))
	assert.True(t, store.Has(id))

	dst := browsertest.NewSession(nil)
	applied, err := store.Load(ctx, dst, id)
	require.NoError(t, err)
	assert.True(t, applied)

	cookies, _ := dst.Cookies(ctx)
	require.Len(t, cookies, 2)
	assert.Equal(t, "sessionid", cookies[0].Name)
	assert.True(t, cookies[0].HTTPOnly)
	assert.True(t, cookies[0].Expires.IsZero())
	assert.Equal(t, clock.now.Add(48*time.Hour), cookies[1].Expires.UTC())
}

func TestLoadHonoursMaxAge(t *testing.T) {
	ctx := context.Background()
	id := SessionID("demoacct")

	t.Run("just under a day is still usable", func(t *testing.T) {
		store, clock := newTestStore(t)
		require.NoError(t, store.Save(ctx, sessionWithCookies(browser.Cookie{Name: "a", Value: "1"}), id))

		clock.now = clock.now.Add(23*time.Hour + 59*time.Minute)
		applied, err := store.Load(ctx, browsertest.NewSession(nil), id)
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("older than a day is deleted", func(t *testing.T) {
		store, clock := newTestStore(t)
		require.NoError(t, store.Save(ctx, sessionWithCookies(browser.Cookie{Name: "a", Value: "1"}), id))

		clock.now = clock.now.Add(24*time.Hour + time.Minute)
		applied, err := store.Load(ctx, browsertest.NewSession(nil), id)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.False(t, store.Has(id))
	})
}

func TestLoadSkipsExpiredCookies(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	id := SessionID("demoacct")

	require.NoError(t, store.Save(ctx, sessionWithCookies(
		browser.Cookie{Name: "stale", Value: "1", Expires: clock.now.Add(time.Hour)},
	), id))

	clock.now = clock.now.Add(2 * time.Hour)
	dst := browsertest.NewSession(nil)
	applied, err := store.Load(ctx, dst, id)
	require.NoError(t, err)
	assert.False(t, applied)

	cookies, _ := dst.Cookies(ctx)
	assert.Empty(t, cookies)
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	applied, err := store.Load(ctx, browsertest.NewSession(nil), "instagram_nobody")
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "instagram_broken.json"), []byte("{"), 0600))
	applied, err = store.Load(ctx, browsertest.NewSession(nil), "instagram_broken")
	assert.Error(t, err)
	assert.False(t, applied)
}

func TestClear(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	id := SessionID("demoacct")

	require.NoError(t, store.Save(ctx, sessionWithCookies(browser.Cookie{Name: "a", Value: "1"}), id))
	require.NoError(t, store.Clear(id))
	assert.False(t, store.Has(id))
	assert.NoError(t, store.Clear(id))
}

func TestSweepAndList(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	start := clock.now

	require.NoError(t, store.Save(ctx, sessionWithCookies(browser.Cookie{Name: "a", Value: "1"}), "instagram_old"))
	clock.now = start.Add(6 * 24 * time.Hour)
	require.NoError(t, store.Save(ctx, sessionWithCookies(browser.Cookie{Name: "b", Value: "2"}), "instagram_recent"))

	infos, err := store.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "instagram_old", infos[0].ID)
	assert.Equal(t, 1, infos[1].Cookies)

	clock.now = start.Add(8 * 24 * time.Hour)
	removed, err := store.Sweep(DefaultRetention)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.False(t, store.Has("instagram_old"))
	assert.True(t, store.Has("instagram_recent"))
}

func TestNewStoreUsesDataDirectory(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	store, err := NewStore("")
	require.NoError(t, err)
	assert.Contains(t, store.Dir(), filepath.Join("igharvest", "sessions"))
}
