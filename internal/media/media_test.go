package media

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
	"igharvest/pkg/ratelimit"
	"igharvest/pkg/retry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockFetcher struct {
	delay time.Duration
	err   error
	calls int32
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) (Image, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return Image{}, ctx.Err()
		}
	}
	if m.err != nil {
		return Image{}, m.err
	}
	return Image{Data: []byte("jpeg:" + url), MIMEType: "image/jpeg"}, nil
}

func (m *mockFetcher) count() int {
	return int(atomic.LoadInt32(&m.calls))
}

type memorySink struct {
	mu    sync.Mutex
	saved map[string]Image
	err   error
}

func newMemorySink() *memorySink {
	return &memorySink{saved: map[string]Image{}}
}

func (s *memorySink) Lookup(code string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.saved[code]
	return "mem://" + code, ok
}

func (s *memorySink) Save(code string, img Image) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[code] = img
	return "mem://" + code, nil
}

func jobs(n int) []Job {
	out := make([]Job, n)
	for i := range out {
		out[i] = Job{Index: i, ExternalID: fmt.Sprintf("code%d", i), URL: fmt.Sprintf("https://cdn.example/%d.jpg", i)}
	}
	return out
}

func TestPoolDownloadsEverything(t *testing.T) {
	fetcher := &mockFetcher{delay: 5 * time.Millisecond}
	sink := newMemorySink()
	pool := NewPool(3, fetcher, sink, ratelimit.NewTokenBucket(1000, time.Second, 10), logger.NewNopLogger())

	results := pool.Download(context.Background(), jobs(10))

	require.Len(t, results, 10)
	for i, r := range results {
		assert.Equal(t, i, r.Job.Index, "ordered by index")
		assert.NoError(t, r.Err)
		assert.Equal(t, "image/jpeg", r.Image.MIMEType)
		assert.Equal(t, "mem://"+r.Job.ExternalID, r.Path)
	}
	assert.Equal(t, 10, fetcher.count())
	assert.Len(t, sink.saved, 10)
}

func TestPoolReportsErrors(t *testing.T) {
	fetcher := &mockFetcher{err: errs.New(errs.ErrorTypeNotFound, "gone")}
	pool := NewPool(2, fetcher, newMemorySink(), nil, logger.NewNopLogger())

	results := pool.Download(context.Background(), jobs(4))
	require.Len(t, results, 4)
	for _, r := range results {
		assert.True(t, errs.IsType(r.Err, errs.ErrorTypeNotFound))
	}

	sink := newMemorySink()
	sink.err = fmt.Errorf("disk full")
	results = NewPool(1, &mockFetcher{}, sink, nil, logger.NewNopLogger()).Download(context.Background(), jobs(1))
	require.Len(t, results, 1)
	assert.ErrorContains(t, results[0].Err, "save failed")
}

func TestPoolSkipsStoredMedia(t *testing.T) {
	fetcher := &mockFetcher{}
	sink := newMemorySink()
	sink.saved["code1"] = Image{}
	sink.saved["code3"] = Image{}

	results := NewPool(2, fetcher, sink, nil, logger.NewNopLogger()).Download(context.Background(), jobs(4))

	require.Len(t, results, 4)
	assert.True(t, results[1].Cached)
	assert.True(t, results[3].Cached)
	assert.False(t, results[0].Cached)
	assert.Equal(t, 2, fetcher.count())
}

func TestPoolWithoutSinkKeepsBytes(t *testing.T) {
	results := NewPool(2, &mockFetcher{}, nil, nil, logger.NewNopLogger()).Download(context.Background(), jobs(2))
	require.Len(t, results, 2)
	assert.Empty(t, results[0].Path)
	assert.Equal(t, []byte("jpeg:https://cdn.example/0.jpg"), results[0].Image.Data)
}

func TestPoolStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &mockFetcher{delay: time.Second}
	results := NewPool(2, fetcher, nil, nil, logger.NewNopLogger()).Download(ctx, jobs(20))
	assert.Less(t, len(results), 20)
	for _, r := range results {
		assert.Error(t, r.Err)
	}
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.png"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "half.jpg.tmp"), []byte("x"), 0644))

	files, err := NewFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, files.Count())

	path, ok := files.Lookup("old")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "old.png"), path)

	path, err = files.Save("abc", Image{Data: []byte("webp"), MIMEType: "image/webp"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "abc.webp"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("webp"), data)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	_, err = files.Save("../escape", Image{Data: []byte("x")})
	assert.Error(t, err)

	assert.Equal(t, ".jpg", Extension("application/unknown"))
}

func instantBackoff() ClientOption {
	return WithBackoff(3, &retry.ConstantBackoff{Delay: time.Millisecond}, func(ctx context.Context, d time.Duration) error {
		return ctx.Err()
	})
}

func TestClientFetch(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		switch r.URL.Path {
		case "/flaky.jpg":
			if n == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("\xff\xd8\xff\xe0jpeg"))
		case "/sniff":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write([]byte("\x89PNG\r\n\x1a\n0000"))
		case "/big.jpg":
			w.Write(make([]byte, 64))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, "test-agent", 32, logger.NewNopLogger(), instantBackoff())
	ctx := context.Background()

	img, err := c.Fetch(ctx, srv.URL+"/flaky.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	img, err = c.Fetch(ctx, srv.URL+"/sniff")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)

	atomic.StoreInt32(&hits, 0)
	_, err = c.Fetch(ctx, srv.URL+"/missing.jpg")
	assert.True(t, errs.IsType(err, errs.ErrorTypeNotFound))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "404 is not retried")

	_, err = c.Fetch(ctx, srv.URL+"/big.jpg")
	assert.True(t, errs.IsType(err, errs.ErrorTypeExtraction))
}

func TestDownloaderReusesAcrossRuns(t *testing.T) {
	fetcher := &mockFetcher{}
	d := NewDownloader(2, fetcher, nil, nil, logger.NewNopLogger())

	assert.Nil(t, d.Download(context.Background(), nil))
	assert.Len(t, d.Download(context.Background(), jobs(3)), 3)
	assert.Len(t, d.Download(context.Background(), jobs(2)), 2)
	assert.Equal(t, 5, fetcher.count())
}
