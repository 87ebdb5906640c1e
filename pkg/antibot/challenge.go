package antibot

import (
	"context"
	"strings"
	"time"

	"igharvest/pkg/browser"
	"igharvest/pkg/logger"
	"igharvest/pkg/pacing"
)

// Challenges detects and tries to clear bot-challenge interstitials
type Challenges struct {
	policy  *pacing.Policy
	markers Markers
	log     logger.Logger

	probeWait time.Duration
	skipWait  time.Duration
}

// NewChallenges creates a challenge handler with the default 3s probe and 10s skip waits
func NewChallenges(policy *pacing.Policy, markers Markers, log logger.Logger) *Challenges {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Challenges{
		policy:    policy,
		markers:   markers,
		log:       log,
		probeWait: 3 * time.Second,
		skipWait:  10 * time.Second,
	}
}

// inChallenge checks the URL and markup tokens only
func (c *Challenges) inChallenge(url, markup string) bool {
	lowerURL := strings.ToLower(url)
	lowerMarkup := strings.ToLower(markup)
	return containsAny(lowerURL, c.markers.ChallengeURL) || containsAny(lowerMarkup, c.markers.Challenge)
}

// Detect reports whether the page shows a challenge. Read failures count as
// no challenge.
func (c *Challenges) Detect(ctx context.Context, s browser.Session) bool {
	url, err := s.CurrentURL(ctx)
	if err != nil {
		return false
	}
	markup, err := s.Markup(ctx)
	if err != nil {
		return false
	}
	if c.inChallenge(url, markup) {
		c.log.WarnWithFields("Challenge detected", map[string]interface{}{"url": url})
		return true
	}

	doc := snapshot(ctx, s)
	if sel, ok := firstVisible(ctx, s, doc, c.markers.ChallengeProbe, c.probeWait); ok {
		c.log.WarnWithFields("Challenge detected", map[string]interface{}{"selector": sel})
		return true
	}
	return false
}

// Resolve waits, tries skip controls, then waits passively. It reports true
// only when the challenge markers are gone afterwards.
func (c *Challenges) Resolve(ctx context.Context, s browser.Session) bool {
	c.log.Info("Attempting to resolve challenge")

	if err := c.policy.HumanDelay(ctx, 5*time.Second, 10*time.Second); err != nil {
		return false
	}

	doc := snapshot(ctx, s)
	if sel, ok := firstVisible(ctx, s, doc, skipSelectors, c.skipWait); ok {
		c.log.InfoWithFields("Clicking challenge skip control", map[string]interface{}{"selector": sel})
		if err := c.policy.Click(ctx, s, sel); err == nil {
			if err := c.policy.HumanDelay(ctx, 2*time.Second, 4*time.Second); err != nil {
				return false
			}
			if c.cleared(ctx, s) {
				return true
			}
		}
	}

	c.log.Info("Waiting for challenge to clear on its own")
	if err := c.policy.HumanDelay(ctx, 15*time.Second, 25*time.Second); err != nil {
		return false
	}
	if c.cleared(ctx, s) {
		c.log.Info("Challenge cleared")
		return true
	}

	c.log.Warn("Challenge still present")
	return false
}

func (c *Challenges) cleared(ctx context.Context, s browser.Session) bool {
	url, err := s.CurrentURL(ctx)
	if err != nil {
		return false
	}
	markup, err := s.Markup(ctx)
	if err != nil {
		return false
	}
	return !c.inChallenge(url, markup)
}
