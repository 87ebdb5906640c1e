package media

import (
	"context"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
	"igharvest/pkg/retry"
)

// Image is a downloaded media file
type Image struct {
	Data     []byte
	MIMEType string
}

// Fetcher downloads one media URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Image, error)
}

// Client fetches media over HTTP with resty, retrying throttling and server
// errors with exponential backoff
type Client struct {
	http     *resty.Client
	maxBytes int64
	retry    retry.Config
	logger   logger.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithBackoff replaces the retry policy between failed downloads
func WithBackoff(maxAttempts int, b retry.BackoffStrategy, sleep retry.SleepFunc) ClientOption {
	return func(c *Client) {
		c.retry.MaxAttempts = maxAttempts
		c.retry.Backoff = b
		c.retry.Sleep = sleep
	}
}

// NewClient creates a media client. A zero maxBytes disables the size check.
func NewClient(timeout time.Duration, userAgent string, maxBytes int64, log logger.Logger, opts ...ClientOption) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	rc := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	if userAgent != "" {
		rc.SetHeader("User-Agent", userAgent)
	}

	c := &Client{
		http:     rc,
		maxBytes: maxBytes,
		logger:   log,
		retry: retry.Config{
			MaxAttempts: 3,
			Backoff: &retry.ExponentialBackoff{
				Base:   time.Second,
				Cap:    10 * time.Second,
				Factor: 2,
				Jitter: 0.1,
			},
			RetryIf: retryable,
			Logger:  log,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryable retries throttling, server errors and timeouts only
func retryable(err error) bool {
	switch errs.TypeOf(err) {
	case errs.ErrorTypeRateLimit, errs.ErrorTypeNavigation, errs.ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// Fetch downloads url
func (c *Client) Fetch(ctx context.Context, url string) (Image, error) {
	cfg := c.retry
	cfg.Context = ctx
	return retry.DoWithResult(func(ctx context.Context, attempt int) (Image, error) {
		return c.fetchOnce(ctx, url, attempt)
	}, &cfg)
}

func (c *Client) fetchOnce(ctx context.Context, url string, attempt int) (Image, error) {
	c.logger.DebugWithFields("Downloading media", map[string]interface{}{
		"url":     url,
		"attempt": attempt,
	})

	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		if ctx.Err() != nil {
			return Image{}, ctx.Err()
		}
		return Image{}, errs.Wrap(errs.ErrorTypeNavigation, err, "download %s", url)
	}
	if err := c.checkResponseStatus(resp); err != nil {
		return Image{}, err
	}

	data := resp.Body()
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return Image{}, errs.New(errs.ErrorTypeExtraction, "media %s is %d bytes, limit %d", url, len(data), c.maxBytes)
	}
	if len(data) == 0 {
		return Image{}, errs.New(errs.ErrorTypeExtraction, "media %s is empty", url)
	}

	img := Image{Data: data, MIMEType: mimeOf(resp.Header().Get("Content-Type"), data)}
	c.logger.DebugWithFields("Media downloaded", map[string]interface{}{
		"url":  url,
		"size": len(data),
		"mime": img.MIMEType,
	})
	return img, nil
}

func (c *Client) checkResponseStatus(resp *resty.Response) error {
	code := resp.StatusCode()
	url := resp.Request.URL
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return errs.New(errs.ErrorTypeNotFound, "media %s: status %d", url, code)
	case code == http.StatusTooManyRequests:
		c.logger.WarnWithFields("Media rate limited", map[string]interface{}{"url": url})
		return errs.New(errs.ErrorTypeRateLimit, "media %s: status %d", url, code)
	case code >= 500:
		return errs.New(errs.ErrorTypeNavigation, "media %s: status %d", url, code)
	default:
		return errs.New(errs.ErrorTypeExtraction, "media %s: status %d", url, code)
	}
}

// mimeOf prefers the declared content type and sniffs when it is missing or generic
func mimeOf(header string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
		return mt
	}
	sniffed := http.DetectContentType(data)
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	return sniffed
}
