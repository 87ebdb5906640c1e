package extract

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"igharvest/pkg/browser"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
	"igharvest/pkg/models"
	"igharvest/pkg/pacing"
)

const renderPoll = 500 * time.Millisecond

// captionScript looks for a caption in embedded page data, then in test-id text
const captionScript = `(() => {
	const captions = [];
	if (window.__additionalDataLoaded) {
		try {
			const data = JSON.stringify(window.__additionalDataLoaded);
			const matches = data.match(/"caption"\s*:\s*"([^"]+)"/g) || [];
			for (const m of matches) {
				const c = m.match(/"caption"\s*:\s*"([^"]+)"/)[1];
				if (c && c.length > 10) captions.push(c);
			}
		} catch (e) {}
	}
	document.querySelectorAll('[data-testid]').forEach(el => {
		if (el.innerText && el.innerText.length > 10) captions.push(el.innerText);
	});
	return captions.length > 0 ? captions[0] : null;
})()`

// Post is what one post page yielded
type Post struct {
	Caption string
	// Captioned is false when Caption is the placeholder
	Captioned bool
	MediaURL  string
	Metrics   models.EngagementMetrics
}

// PostReader visits a post page and reads its caption, media URL and counters
type PostReader struct {
	policy    *pacing.Policy
	minMarkup int
	wait      time.Duration
	log       logger.Logger
}

// ReaderOption configures a PostReader
type ReaderOption func(*PostReader)

// WithRenderWait sets how long to wait for at least minMarkup bytes of markup
func WithRenderWait(minMarkup int, wait time.Duration) ReaderOption {
	return func(r *PostReader) {
		r.minMarkup = minMarkup
		r.wait = wait
	}
}

// WithReaderLogger sets the logger
func WithReaderLogger(l logger.Logger) ReaderOption {
	return func(r *PostReader) { r.log = l }
}

// NewPostReader creates a reader pacing its navigation through policy
func NewPostReader(policy *pacing.Policy, opts ...ReaderOption) *PostReader {
	r := &PostReader{
		policy:    policy,
		minMarkup: 1000,
		wait:      15 * time.Second,
		log:       logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read navigates to postURL, extracts what it can and goes back to the page
// the session was on. Only navigation and cancellation are errors; a page
// without a caption yields DefaultCaption.
func (r *PostReader) Read(ctx context.Context, s browser.Session, postURL string) (Post, error) {
	origin, _ := s.CurrentURL(ctx)

	if err := s.Navigate(ctx, postURL); err != nil {
		return Post{}, errs.Wrap(errs.ErrorTypeNavigation, err, "open %s", postURL)
	}
	defer r.returnTo(ctx, s, origin, postURL)

	if err := r.policy.RandomDelay(ctx, 3*time.Second, 5*time.Second); err != nil {
		return Post{}, err
	}
	doc, err := r.rendered(ctx, s)
	if err != nil {
		return Post{}, err
	}

	post := Post{
		MediaURL: MediaURL(doc),
		Metrics:  Metrics(doc),
	}

	raw, source := r.caption(ctx, s, doc)
	post.Caption = CleanCaption(raw)
	post.Captioned = post.Caption != DefaultCaption

	r.log.DebugWithFields("Post page read", map[string]interface{}{
		"url":      postURL,
		"source":   source,
		"likes":    post.Metrics.Likes,
		"comments": post.Metrics.Comments,
		"views":    post.Metrics.Views,
	})
	return post, nil
}

func (r *PostReader) caption(ctx context.Context, s browser.Session, doc *goquery.Document) (string, string) {
	if v, ok := First(doc, CaptionSteps); ok {
		return v, "page"
	}
	var embedded string
	if err := s.Evaluate(ctx, captionScript, &embedded); err != nil {
		r.log.WithError(err).Debug("Caption script failed")
	} else if runeLen(embedded) > 10 {
		return embedded, "embedded"
	}
	if v, ok := First(doc, BackupSteps); ok {
		return v, "backup"
	}
	return "", "none"
}

// rendered polls the markup until it is large enough or the wait runs out,
// then parses whatever is there
func (r *PostReader) rendered(ctx context.Context, s browser.Session) (*goquery.Document, error) {
	var markup string
	for waited := time.Duration(0); ; waited += renderPoll {
		var err error
		if markup, err = s.Markup(ctx); err != nil {
			return nil, errs.Wrap(errs.ErrorTypeExtraction, err, "read markup")
		}
		if len(markup) >= r.minMarkup || waited >= r.wait {
			break
		}
		if err := r.policy.Sleeper().Sleep(ctx, renderPoll); err != nil {
			return nil, err
		}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeExtraction, err, "parse markup")
	}
	return doc, nil
}

func (r *PostReader) returnTo(ctx context.Context, s browser.Session, origin, postURL string) {
	if origin == "" || origin == postURL || ctx.Err() != nil {
		return
	}
	if err := s.Navigate(ctx, origin); err != nil {
		r.log.WithError(err).DebugWithFields("Could not return to origin page", map[string]interface{}{"origin": origin})
		return
	}
	_ = r.policy.RandomDelay(ctx, 2*time.Second, 3*time.Second)
}
