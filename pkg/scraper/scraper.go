package scraper

import (
	"context"
	"errors"
	"time"

	"igharvest/internal/media"
	"igharvest/pkg/antibot"
	"igharvest/pkg/browser"
	"igharvest/pkg/config"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/execution"
	"igharvest/pkg/extract"
	"igharvest/pkg/logger"
	"igharvest/pkg/metrics"
	"igharvest/pkg/models"
	"igharvest/pkg/pacing"
	"igharvest/pkg/retry"
	"igharvest/pkg/session"
	"igharvest/pkg/store"
)

// Dependencies are the collaborators of a Scraper. Media, Metrics, Chain and
// Reader are optional.
type Dependencies struct {
	Factory    browser.Factory
	Validator  PageValidator
	Sessions   SessionStore
	Contents   store.ContentStore
	Executions store.ExecutionStore
	Policy     *pacing.Policy

	Media   MediaDownloader
	Metrics *metrics.Metrics
	Logger  logger.Logger
	Clock   pacing.Clock

	// Chain and Reader replace the ones built from the configuration
	Chain  *extract.Chain
	Reader *extract.PostReader
}

// Scraper runs scrape attempts for one profile at a time
type Scraper struct {
	cfg       config.ScrapeConfig
	retention time.Duration

	factory    browser.Factory
	validator  PageValidator
	sessions   SessionStore
	contents   store.ContentStore
	executions store.ExecutionStore
	policy     *pacing.Policy
	chain      *extract.Chain
	reader     *extract.PostReader
	media      MediaDownloader
	metrics    *metrics.Metrics
	clock      pacing.Clock
	logger     logger.Logger
}

// RunResult is the outcome of Run
type RunResult struct {
	// Records are the records written to the content store
	Records   []models.ContentRecord
	Execution models.ExecutionRecord
	// Err is the failure of the last attempt, if any
	Err error
}

// New creates a Scraper from the scrape and session settings of cfg
func New(cfg *config.Config, deps Dependencies) (*Scraper, error) {
	switch {
	case deps.Factory == nil:
		return nil, errors.New("scraper: browser factory is required")
	case deps.Validator == nil:
		return nil, errors.New("scraper: page validator is required")
	case deps.Sessions == nil:
		return nil, errors.New("scraper: session store is required")
	case deps.Contents == nil || deps.Executions == nil:
		return nil, errors.New("scraper: content and execution stores are required")
	case deps.Policy == nil:
		return nil, errors.New("scraper: pacing policy is required")
	}

	s := &Scraper{
		cfg:        cfg.Scrape,
		retention:  cfg.Session.Retention,
		factory:    deps.Factory,
		validator:  deps.Validator,
		sessions:   deps.Sessions,
		contents:   deps.Contents,
		executions: deps.Executions,
		policy:     deps.Policy,
		chain:      deps.Chain,
		reader:     deps.Reader,
		media:      deps.Media,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.GetLogger()
	}
	if s.clock == nil {
		s.clock = pacing.SystemClock{}
	}
	if s.retention <= 0 {
		s.retention = session.DefaultRetention
	}
	if s.chain == nil {
		s.chain = extract.NewChain(s.cfg.BaseURL, s.cfg.BatchTarget,
			extract.WithScriptStrategy(s.cfg.ScriptStrategy),
			extract.WithPatternStrategy(s.cfg.PatternStrategy),
			extract.WithObserver(s.metrics.Discovered),
			extract.WithChainLogger(s.logger),
		)
	}
	if s.reader == nil {
		s.reader = extract.NewPostReader(s.policy, extract.WithReaderLogger(s.logger))
	}
	return s, nil
}

// ScrapeAndPersist runs a scrape and returns the persisted records. A run
// that neither produced nor skipped anything fails with an
// attempts_exhausted error; a run where every post was already known
// returns an empty slice.
func (s *Scraper) ScrapeAndPersist(ctx context.Context, profile models.Profile, forceUpdate bool) ([]models.ContentRecord, error) {
	res, err := s.Run(ctx, profile, forceUpdate)
	if err != nil {
		return nil, err
	}
	if res.Execution.Status == models.StatusFailed {
		return nil, errs.Wrap(errs.ErrorTypeAttemptsExhausted, res.Err,
			"no posts extracted for %s after %d attempt(s)", profile.Username, res.Execution.AttemptNumber)
	}
	return res.Records, nil
}

// Run performs up to MaxAttempts attempts, stopping at the first one that
// produces records, then persists them and finalizes the execution record.
// The returned error is non-nil only for cancellation or a store failure.
func (s *Scraper) Run(ctx context.Context, profile models.Profile, forceUpdate bool) (*RunResult, error) {
	rec := execution.Start(profile, forceUpdate, execution.WithClock(s.clock))
	log := s.logger.WithFields(map[string]interface{}{
		"username":     profile.Username,
		"execution_id": rec.Snapshot().ID,
	})
	log.InfoWithFields("Starting scrape", map[string]interface{}{
		"force_update": forceUpdate,
		"max_attempts": s.cfg.MaxAttempts,
		"batch_target": s.cfg.BatchTarget,
	})

	var (
		produced []models.ContentRecord
		lastErr  error
	)
	err := retry.Do(func(ctx context.Context, attempt int) error {
		logger.LogAttempt(log, profile.Username, attempt, s.cfg.MaxAttempts)
		records, err := s.attempt(ctx, rec, profile, forceUpdate, attempt)
		if ctx.Err() != nil {
			produced = append(produced, records...)
			return ctx.Err()
		}
		if len(records) > 0 {
			produced, lastErr = records, err
			s.metrics.Attempt(metrics.AttemptProduced)
			if err != nil {
				log.WithError(err).WarnWithFields("Attempt failed after producing records, keeping them", map[string]interface{}{
					"attempt": attempt,
					"records": len(records),
				})
			}
			return nil
		}
		if err == nil {
			err = errs.New(errs.ErrorTypeExtraction, "attempt %d produced no new posts", attempt)
			s.metrics.Attempt(metrics.AttemptEmpty)
		} else {
			s.metrics.Attempt(string(errs.TypeOf(err)))
		}
		lastErr = err
		logger.LogAttemptFailure(log, profile.Username, attempt, err)
		return err
	}, &retry.Config{
		MaxAttempts: s.cfg.MaxAttempts,
		Backoff:     retry.NewWindowBackoff(s.cfg.BackoffMin, s.cfg.BackoffMax, nil),
		RetryIf:     errs.ShouldRetry,
		OnRetry: func(attempt int, _ error, delay time.Duration) {
			logger.LogBackoff(log, attempt, delay)
		},
		Context: ctx,
		Logger:  log,
		Sleep:   s.policy.Sleeper().Sleep,
	})
	if lastErr == nil && err != nil && len(produced) == 0 {
		lastErr = err
	}

	if ctx.Err() != nil {
		return s.cancelled(ctx, rec, produced, log)
	}

	if len(produced) > 0 && s.media != nil {
		s.fetchMedia(ctx, rec, produced, log)
	}

	var storeErr error
	saved, err := s.contents.SaveAll(ctx, produced)
	if err != nil {
		storeErr = errs.Wrap(errs.ErrorTypeStore, err, "save %d record(s)", len(produced))
		log.WithError(err).Error("Failed to persist records")
		if lastErr == nil {
			lastErr = storeErr
		}
	}

	final, _ := rec.Finalize(s.cfg.BatchTarget, lastErr)
	s.saveExecution(ctx, &final, log)
	s.maybeSweep(log)

	log.InfoWithFields("Scrape finished", map[string]interface{}{
		"status":  final.Status,
		"summary": final.Summary(),
	})
	return &RunResult{Records: saved, Execution: final, Err: lastErr}, storeErr
}

// cancelled finalizes a run interrupted by ctx. Records produced before the
// interruption are still written.
func (s *Scraper) cancelled(ctx context.Context, rec *execution.Recorder, produced []models.ContentRecord, log logger.Logger) (*RunResult, error) {
	cause := ctx.Err()
	bg := context.WithoutCancel(ctx)

	var saved []models.ContentRecord
	if len(produced) > 0 {
		var err error
		if saved, err = s.contents.SaveAll(bg, produced); err != nil {
			log.WithError(err).Error("Failed to persist records of cancelled run")
		}
	}

	final, _ := rec.Cancel(cause)
	s.saveExecution(bg, &final, log)
	log.WarnWithFields("Scrape cancelled", map[string]interface{}{"processed": final.PostsProcessed})
	return &RunResult{Records: saved, Execution: final, Err: cause}, cause
}

func (s *Scraper) saveExecution(ctx context.Context, final *models.ExecutionRecord, log logger.Logger) {
	s.metrics.Run(*final)
	if err := s.executions.Save(ctx, final); err != nil {
		log.WithError(err).Error("Failed to save execution record")
	}
}

func (s *Scraper) maybeSweep(log logger.Logger) {
	if !s.policy.Chance(s.cfg.SweepProbability) {
		return
	}
	removed, err := s.sessions.Sweep(s.retention)
	if err != nil {
		log.WithError(err).Warn("Session sweep failed")
		return
	}
	log.DebugWithFields("Session sweep done", map[string]interface{}{"removed": removed})
}

// attempt runs the whole pipeline on a fresh session. The session is closed
// before attempt returns. Records produced before a failure are returned
// with the error.
func (s *Scraper) attempt(ctx context.Context, rec *execution.Recorder, profile models.Profile, forceUpdate bool, attempt int) ([]models.ContentRecord, error) {
	rec.SetAttempt(attempt)
	sess, err := s.factory.Create(ctx, attempt)
	if err != nil {
		return nil, classify(ctx, errs.ErrorTypeSession, err, "create browser session")
	}
	defer func() {
		if err := sess.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close browser session")
		}
	}()

	identity := sess.Identity()
	rec.SetIdentity(identity.UserAgent, identity.Viewport())

	if err := s.open(ctx, sess, profile.Username); err != nil {
		return nil, err
	}

	if s.validator.DetectChallenge(ctx, sess) && !s.validator.ResolveChallenge(ctx, sess) {
		s.logger.WarnWithFields("Challenge unresolved, continuing", map[string]interface{}{
			"username": profile.Username,
			"attempt":  attempt,
		})
	}
	antibot.DismissConsent(ctx, sess, s.policy, s.logger)
	s.loadMore(ctx, sess)

	candidates := s.chain.Discover(ctx, sess, attempt)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.logger.InfoWithFields("Candidates discovered", map[string]interface{}{
		"username":   profile.Username,
		"attempt":    attempt,
		"candidates": len(candidates),
	})
	if len(candidates) == 0 {
		return nil, errs.New(errs.ErrorTypeExtraction, "no candidate posts on %s", profile.Username)
	}

	return s.process(ctx, sess, rec, profile, forceUpdate, candidates)
}

// open loads the landing page, restores cookies and validates the profile
// page. Restored cookies that still land on a login wall are discarded.
func (s *Scraper) open(ctx context.Context, sess browser.Session, username string) error {
	if err := sess.Navigate(ctx, s.cfg.BaseURL); err != nil {
		return classify(ctx, errs.ErrorTypeNavigation, err, "open landing page")
	}
	if err := s.policy.HumanDelay(ctx, time.Second, 2*time.Second); err != nil {
		return err
	}

	sessionID := session.SessionID(username)
	restored, err := s.sessions.Load(ctx, sess, sessionID)
	if err != nil {
		s.logger.WithError(err).WarnWithFields("Failed to restore session cookies", map[string]interface{}{
			"session": sessionID,
		})
	}

	if err := sess.Navigate(ctx, s.validator.ProfileURL(username)); err != nil {
		return classify(ctx, errs.ErrorTypeNavigation, err, "open profile %s", username)
	}
	if err := s.policy.HumanDelay(ctx, 2*time.Second, 4*time.Second); err != nil {
		return err
	}

	if restored {
		url, _ := sess.CurrentURL(ctx)
		markup, _ := sess.Markup(ctx)
		if s.validator.NeedsLogin(url, markup) {
			s.logger.InfoWithFields("Restored session is no longer valid, clearing it", map[string]interface{}{
				"session": sessionID,
			})
			if err := s.sessions.Clear(sessionID); err != nil {
				s.logger.WithError(err).Warn("Failed to clear stale session")
			}
			if err := sess.ClearCookies(ctx); err != nil {
				s.logger.WithError(err).Warn("Failed to clear browser cookies")
			}
		}
	}

	return s.validator.ValidateLoaded(ctx, sess, username)
}

// process extracts candidates until BatchTarget records are produced.
// Failures of a single candidate are logged and skipped.
func (s *Scraper) process(ctx context.Context, sess browser.Session, rec *execution.Recorder, profile models.Profile, forceUpdate bool, candidates []string) ([]models.ContentRecord, error) {
	var records []models.ContentRecord
	for i, candidate := range candidates {
		if len(records) >= s.cfg.BatchTarget {
			break
		}
		if err := ctx.Err(); err != nil {
			return records, err
		}

		code := extract.Shortcode(candidate)
		existingID, known, err := s.lookup(ctx, code)
		if err != nil {
			s.metrics.Post(metrics.PostFailed)
			s.logger.WithError(err).WarnWithFields("Dedup check failed, skipping candidate", map[string]interface{}{
				"external_id": code,
			})
			continue
		}
		if known && !forceUpdate {
			rec.RecordSkipped(code)
			s.metrics.Post(metrics.PostSkipped)
			logger.LogItem(s.logger, code, "skipped", 0)
			continue
		}

		post, err := s.reader.Read(ctx, sess, candidate)
		if err != nil {
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			s.metrics.Post(metrics.PostFailed)
			s.logger.WithError(err).WarnWithFields("Failed to read post", map[string]interface{}{
				"url": candidate,
			})
			continue
		}

		record := models.ContentRecord{
			ID:          existingID,
			ProfileID:   profile.ID,
			ExternalID:  code,
			URL:         candidate,
			MediaURL:    post.MediaURL,
			Caption:     post.Caption,
			Kind:        extract.KindOf(candidate),
			CollectedAt: s.clock.Now(),
		}
		record.ApplyMetrics(post.Metrics)
		records = append(records, record)

		rec.RecordProduced(known, post.Captioned)
		action := metrics.PostSaved
		if known {
			action = metrics.PostUpdated
		}
		s.metrics.Post(action)
		logger.LogItem(s.logger, code, action, len(post.Caption))

		if i < len(candidates)-1 && len(records) < s.cfg.BatchTarget {
			if err := s.policy.RandomDelay(ctx, 500*time.Millisecond, 1500*time.Millisecond); err != nil {
				return records, err
			}
		}
	}
	return records, nil
}

// lookup reports whether code is stored and the ID of the stored record
func (s *Scraper) lookup(ctx context.Context, code string) (string, bool, error) {
	exists, err := s.contents.ExistsByExternalID(ctx, code)
	if err != nil || !exists {
		return "", false, err
	}
	existing, err := s.contents.FindByExternalID(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return existing.ID, true, nil
}

// fetchMedia downloads media for records that carry a media URL and stores
// the bytes on them
func (s *Scraper) fetchMedia(ctx context.Context, rec *execution.Recorder, records []models.ContentRecord, log logger.Logger) {
	var jobs []media.Job
	for i, r := range records {
		if r.MediaURL != "" {
			jobs = append(jobs, media.Job{Index: i, ExternalID: r.ExternalID, URL: r.MediaURL})
		}
	}
	if len(jobs) == 0 {
		return
	}

	for _, result := range s.media.Download(ctx, jobs) {
		r := &records[result.Job.Index]
		switch {
		case result.Err != nil:
			s.metrics.Media(metrics.MediaFailed)
			log.WithError(result.Err).WarnWithFields("Media not saved", map[string]interface{}{
				"external_id": r.ExternalID,
			})
		case result.Cached:
			s.metrics.Media(metrics.MediaCached)
			r.MediaPath = result.Path
		default:
			s.metrics.Media(metrics.MediaStored)
			r.ImageBlob = result.Image.Data
			r.ImageMIMEType = result.Image.MIMEType
			r.MediaPath = result.Path
			rec.RecordImageSaved()
		}
	}
}

// classify keeps typed errors and context errors as they are and wraps
// anything else as t
func classify(ctx context.Context, t errs.ErrorType, err error, format string, args ...interface{}) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errs.TypeOf(err) != errs.ErrorTypeUnknown {
		return err
	}
	return errs.Wrap(t, err, format, args...)
}
