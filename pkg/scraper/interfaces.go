package scraper

import (
	"context"
	"time"

	"igharvest/internal/media"
	"igharvest/pkg/browser"
)

// PageValidator decides whether a profile page rendered and handles login
// walls and challenges. *antibot.Detector implements it.
type PageValidator interface {
	ProfileURL(username string) string
	NeedsLogin(url, markup string) bool
	ValidateLoaded(ctx context.Context, s browser.Session, username string) error
	DetectChallenge(ctx context.Context, s browser.Session) bool
	ResolveChallenge(ctx context.Context, s browser.Session) bool
}

// SessionStore restores and prunes persisted cookies. *session.Store
// implements it.
type SessionStore interface {
	Load(ctx context.Context, s browser.Session, id string) (bool, error)
	Clear(id string) error
	Sweep(olderThan time.Duration) (int, error)
}

// MediaDownloader fetches media for produced records after the browser
// session is gone. It is called at most once per run.
type MediaDownloader interface {
	Download(ctx context.Context, jobs []media.Job) []media.Result
}
