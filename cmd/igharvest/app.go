package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"igharvest/internal/media"
	"igharvest/pkg/antibot"
	"igharvest/pkg/auth"
	"igharvest/pkg/browser"
	"igharvest/pkg/config"
	"igharvest/pkg/logger"
	"igharvest/pkg/metrics"
	"igharvest/pkg/models"
	"igharvest/pkg/pacing"
	"igharvest/pkg/ratelimit"
	"igharvest/pkg/scraper"
	"igharvest/pkg/session"
	"igharvest/pkg/store"
	"igharvest/pkg/store/memory"
	"igharvest/pkg/store/sqlite"
)

// app holds what every store-backed command needs
type app struct {
	cfg      *config.Config
	log      logger.Logger
	store    store.Store
	sessions *session.Store
}

// loadConfig merges the global flags into flags and loads the configuration
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return config.Load(configFile, flags)
}

// openApp loads the configuration, initializes logging and opens the stores
func openApp(ctx context.Context, flags map[string]interface{}) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.GetLogger()

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewStore(cfg.Session.Directory,
		session.WithMaxAge(cfg.Session.MaxAge),
		session.WithLogger(log),
	)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, store: st, sessions: sessions}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		return memory.New(), nil
	default:
		st, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open store %s: %w", cfg.DSN, err)
		}
		return st, nil
	}
}

// resolveProfile finds a profile by username, creating an active one when
// create is set.
func resolveProfile(ctx context.Context, profiles store.ProfileStore, username string, create bool) (*models.Profile, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, errors.New("username is required")
	}

	prof, err := profiles.FindByUsername(ctx, username)
	if err == nil {
		return prof, nil
	}
	if !errors.Is(err, store.ErrNotFound) || !create {
		return nil, err
	}

	prof = &models.Profile{Username: username, Active: true}
	if err := profiles.Save(ctx, prof); err != nil {
		return nil, fmt.Errorf("failed to save profile %s: %w", username, err)
	}
	return prof, nil
}

// newPolicy builds the pacing policy from the configuration
func newPolicy(cfg config.PacingConfig) *pacing.Policy {
	opts := []pacing.Option{pacing.WithScale(cfg.Scale)}
	if !cfg.Enabled {
		opts = append(opts, pacing.Disabled())
	}
	return pacing.New(nil, opts...)
}

// newScraper wires the browser, anti-bot, media and metrics layers into a
// scraper over the app's stores.
func (a *app) newScraper(m *metrics.Metrics) (*scraper.Scraper, error) {
	cfg := a.cfg
	policy := newPolicy(cfg.Pacing)

	proxies, err := browser.NewProxySource(cfg.Proxy.Servers, cfg.Proxy.Mode)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy configuration: %w", err)
	}
	factory, err := browser.NewChromeFactory(cfg.Browser, proxies, a.log)
	if err != nil {
		return nil, err
	}

	challenges := antibot.NewChallenges(policy, antibot.DefaultMarkers(), a.log)
	var login antibot.Authenticator = antibot.NoLogin{}
	if cfg.Login.Enabled {
		manager, err := auth.NewManager()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize credential manager: %w", err)
		}
		login = antibot.NewFormLogin(cfg.Scrape.BaseURL, manager.Provider(cfg.Login.Account), policy, challenges, a.sessions, a.log)
	}
	detector := antibot.NewDetector(cfg.Scrape.BaseURL, policy, login, challenges, antibot.WithLogger(a.log))

	deps := scraper.Dependencies{
		Factory:    factory,
		Validator:  detector,
		Sessions:   a.sessions,
		Contents:   a.store.Contents(),
		Executions: a.store.Executions(),
		Policy:     policy,
		Metrics:    m,
		Logger:     a.log,
	}
	if cfg.Media.Enabled {
		dl, err := newDownloader(cfg, a.log)
		if err != nil {
			return nil, err
		}
		deps.Media = dl
	}

	return scraper.New(cfg, deps)
}

func newDownloader(cfg *config.Config, log logger.Logger) (*media.Downloader, error) {
	files, err := media.NewFiles(cfg.Media.OutputDirectory)
	if err != nil {
		return nil, err
	}

	var userAgent string
	if len(cfg.Browser.UserAgents) > 0 {
		userAgent = cfg.Browser.UserAgents[0]
	}
	client := media.NewClient(cfg.Media.Timeout, userAgent, cfg.Media.MaxBytes, log)

	var limiter ratelimit.Limiter = ratelimit.Unlimited{}
	if cfg.Media.RequestsPerMinute > 0 {
		limiter = ratelimit.PerMinute(cfg.Media.RequestsPerMinute)
	}
	return media.NewDownloader(cfg.Media.Workers, client, files, limiter, log), nil
}

// serveMetrics exposes m on listen until the returned stop func is called
func serveMetrics(listen string, m *metrics.Metrics, log logger.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithField("listen", listen).Info("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server stopped")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
