package antibot

import (
	"context"
	"time"

	"igharvest/pkg/browser"
	"igharvest/pkg/logger"
	"igharvest/pkg/pacing"
)

// DismissPopups clicks away post-login prompts such as notification offers.
// Every matching control is tried once.
func DismissPopups(ctx context.Context, s browser.Session, policy *pacing.Policy, wait time.Duration, log logger.Logger) int {
	doc := snapshot(ctx, s)
	dismissed := 0
	for _, sel := range popupSelectors {
		target, ok := firstVisible(ctx, s, doc, []string{sel}, wait)
		if !ok {
			continue
		}
		if err := s.Click(ctx, target); err != nil {
			continue
		}
		dismissed++
		log.DebugWithFields("Popup dismissed", map[string]interface{}{"selector": sel})
		if err := policy.RandomDelay(ctx, time.Second, 2*time.Second); err != nil {
			break
		}
	}
	return dismissed
}

// DismissConsent accepts a cookie banner if one is shown
func DismissConsent(ctx context.Context, s browser.Session, policy *pacing.Policy, log logger.Logger) bool {
	doc := snapshot(ctx, s)
	target, ok := firstVisible(ctx, s, doc, consentSelectors, 3*time.Second)
	if !ok {
		return false
	}
	if err := s.Click(ctx, target); err != nil {
		return false
	}
	log.Info("Cookie consent accepted")
	_ = policy.RandomDelay(ctx, time.Second, 2*time.Second)
	return true
}
