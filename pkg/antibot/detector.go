package antibot

import (
	"context"
	"strings"
	"time"

	"igharvest/pkg/browser"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
	"igharvest/pkg/pacing"
	"igharvest/pkg/session"
)

const markerPoll = 500 * time.Millisecond

// Detector validates that a profile page loaded and handles login walls and
// challenges found on the way
type Detector struct {
	policy     *pacing.Policy
	markers    Markers
	auth       Authenticator
	challenges *Challenges
	baseURL    string
	log        logger.Logger

	markerWait time.Duration
}

// Option configures a Detector
type Option func(*Detector)

func WithMarkers(m Markers) Option {
	return func(d *Detector) { d.markers = m }
}

func WithLogger(l logger.Logger) Option {
	return func(d *Detector) { d.log = l }
}

// WithMarkerWait bounds the wait for a platform marker
func WithMarkerWait(wait time.Duration) Option {
	return func(d *Detector) { d.markerWait = wait }
}

// NewDetector creates a detector. A nil auth behaves like NoLogin.
func NewDetector(baseURL string, policy *pacing.Policy, auth Authenticator, challenges *Challenges, opts ...Option) *Detector {
	d := &Detector{
		policy:     policy,
		markers:    DefaultMarkers(),
		auth:       auth,
		challenges: challenges,
		baseURL:    strings.TrimSuffix(baseURL, "/") + "/",
		log:        logger.GetLogger(),
		markerWait: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.auth == nil {
		d.auth = NoLogin{}
	}
	if d.challenges == nil {
		d.challenges = NewChallenges(policy, d.markers, d.log)
	}
	return d
}

// ProfileURL is the page for username
func (d *Detector) ProfileURL(username string) string {
	return d.baseURL + username + "/"
}

// NeedsLogin reports a login wall from the URL or markup
func (d *Detector) NeedsLogin(url, markup string) bool {
	if containsAny(url, d.markers.LoginURL) || containsAny(markup, d.markers.LoginMarkup) {
		return true
	}
	return strings.Contains(markup, "username") && strings.Contains(markup, "password")
}

// DetectChallenge reports whether the page shows a challenge
func (d *Detector) DetectChallenge(ctx context.Context, s browser.Session) bool {
	return d.challenges.Detect(ctx, s)
}

// ResolveChallenge tries to clear a challenge
func (d *Detector) ResolveChallenge(ctx context.Context, s browser.Session) bool {
	return d.challenges.Resolve(ctx, s)
}

// ValidateLoaded checks that the profile page for username rendered. It logs
// in first when a wall is shown, and fails with a typed error for not-found,
// rate-limit, login and timeout outcomes.
func (d *Detector) ValidateLoaded(ctx context.Context, s browser.Session, username string) error {
	url, markup, err := d.read(ctx, s)
	if err != nil {
		return err
	}

	if d.NeedsLogin(url, markup) {
		d.log.InfoWithFields("Login wall detected", map[string]interface{}{"url": url})
		if err := d.auth.Login(ctx, s, session.SessionID(username)); err != nil {
			return err
		}

		if err := s.Navigate(ctx, d.ProfileURL(username)); err != nil {
			return err
		}
		if err := d.policy.RandomDelay(ctx, 3*time.Second, 5*time.Second); err != nil {
			return err
		}
		if url, markup, err = d.read(ctx, s); err != nil {
			return err
		}
	}

	if !strings.Contains(url, username) && !strings.Contains(url, hostOf(d.baseURL)) {
		return errs.New(errs.ErrorTypeNavigation, "unexpected page after load: %s", url)
	}
	if containsAny(markup, d.markers.NotFound) {
		return errs.New(errs.ErrorTypeNotFound, "profile %s not found", username)
	}
	if containsAny(markup, d.markers.RateLimit) {
		return errs.New(errs.ErrorTypeRateLimit, "rate limit page shown for %s", username)
	}

	if err := d.waitForPlatform(ctx, s, markup); err != nil {
		return err
	}

	d.log.DebugWithFields("Profile page validated", map[string]interface{}{"username": username})
	return nil
}

func (d *Detector) read(ctx context.Context, s browser.Session) (string, string, error) {
	url, err := s.CurrentURL(ctx)
	if err != nil {
		return "", "", err
	}
	markup, err := s.Markup(ctx)
	if err != nil {
		return "", "", err
	}
	return url, markup, nil
}

// waitForPlatform polls the markup until a platform marker shows up
func (d *Detector) waitForPlatform(ctx context.Context, s browser.Session, markup string) error {
	for waited := time.Duration(0); ; waited += markerPoll {
		if containsAny(markup, d.markers.Platform) {
			return nil
		}
		if waited >= d.markerWait {
			return errs.New(errs.ErrorTypeTimeout, "no platform marker after %s", d.markerWait)
		}
		if err := d.policy.Sleeper().Sleep(ctx, markerPoll); err != nil {
			return err
		}
		var err error
		if markup, err = s.Markup(ctx); err != nil {
			return err
		}
	}
}

func hostOf(baseURL string) string {
	host := baseURL
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	host = strings.TrimSuffix(host, "/")
	return strings.TrimPrefix(host, "www.")
}
