// Package scraper runs scrape attempts against one profile page.
//
// A run makes up to MaxAttempts sequential attempts. Each attempt gets a
// fresh browser session from a browser.Factory and closes it before
// returning, so no two sessions are ever live at once:
//
//	landing page -> restore cookies -> profile page -> validate
//	  -> dismiss consent -> scroll -> discover candidates
//	  -> per candidate: dedup, read post, record
//
// The run stops at the first attempt that produces records. Between
// attempts it waits a random 3-8s through the pacing policy's Sleeper; no
// wait follows the last attempt. Produced records are written with one
// SaveAll, media is fetched after the session is closed when a
// MediaDownloader is configured, and the execution record is always
// finalized and saved.
//
// Usage:
//
//	s, err := scraper.New(cfg, scraper.Dependencies{
//	    Factory:    chrome,
//	    Validator:  detector,
//	    Sessions:   sessions,
//	    Contents:   db.Contents(),
//	    Executions: db.Executions(),
//	    Policy:     policy,
//	})
//	if err != nil {
//	    return err
//	}
//	records, err := s.ScrapeAndPersist(ctx, profile, false)
package scraper
