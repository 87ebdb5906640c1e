package scraper

import (
	"context"
	"fmt"
	"time"

	"igharvest/pkg/browser"
)

const scrollSteps = 3

// pageOffsets reads the document height and the current scroll offset
const pageOffsets = `({height: document.body.scrollHeight, offset: window.pageYOffset})`

type offsets struct {
	Height int64 `json:"height"`
	Offset int64 `json:"offset"`
}

// loadMore scrolls the profile grid so lazy rows render: 500px first, then
// quarter-page steps, then back to the top. Scroll failures are logged and
// ignored.
func (s *Scraper) loadMore(ctx context.Context, sess browser.Session) {
	if !s.scrollTo(ctx, sess, 500) {
		return
	}
	if s.policy.RandomDelay(ctx, time.Second, 2*time.Second) != nil {
		return
	}

	for i := 0; i < scrollSteps; i++ {
		var before offsets
		if err := sess.Evaluate(ctx, pageOffsets, &before); err != nil {
			s.logger.WithError(err).Debug("Failed to read scroll position")
			break
		}
		if !s.scrollTo(ctx, sess, before.Offset+before.Height/4) {
			return
		}
		if s.policy.RandomDelay(ctx, 2*time.Second, 4*time.Second) != nil {
			return
		}

		var after offsets
		if err := sess.Evaluate(ctx, pageOffsets, &after); err == nil && after.Height > before.Height {
			s.logger.DebugWithFields("More content loaded", map[string]interface{}{
				"step":   i + 1,
				"height": after.Height,
			})
		}
	}

	if s.scrollTo(ctx, sess, 0) {
		_ = s.policy.RandomDelay(ctx, time.Second, 2*time.Second)
	}
}

func (s *Scraper) scrollTo(ctx context.Context, sess browser.Session, y int64) bool {
	if err := sess.Evaluate(ctx, fmt.Sprintf("window.scrollTo(0, %d)", y), nil); err != nil {
		s.logger.WithError(err).DebugWithFields("Scroll failed", map[string]interface{}{"y": y})
		return false
	}
	return true
}
