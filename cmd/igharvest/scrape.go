package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"igharvest/pkg/metadata"
	"igharvest/pkg/metrics"
	"igharvest/pkg/models"
	"igharvest/pkg/ui"
)

var (
	// Scrape command flags
	forceUpdate   bool
	scrapeAll     bool
	skipRecent    time.Duration
	maxAttempts   int
	headful       bool
	accountName   string
	noLogin       bool
	dbPath        string
	withMedia     bool
	proxyServers  []string
	metricsListen string
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape [username...]",
	Short: "Capture recent posts from one or more profiles",
	Long: `Capture recent posts from one or more Instagram profiles.

Profiles named on the command line are added to the store if needed. With
--all every active stored profile is scraped. Posts already in the store are
skipped unless --force is given, in which case they are re-read and updated.

A login is attempted only when a profile page is behind a login wall; the
account comes from 'igharvest auth login'.`,
	Example: `  # Capture one profile
  igharvest scrape natgeo

  # Capture every active profile that had no successful run today
  igharvest scrape --all --skip-recent 24h

  # Re-read known posts and download their images
  igharvest scrape natgeo --force --media

  # Watch the browser and expose metrics while running
  igharvest scrape natgeo --headful --metrics-listen :9464`,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().BoolVarP(&forceUpdate, "force", "f", false, "re-read and update posts already stored")
	scrapeCmd.Flags().BoolVar(&scrapeAll, "all", false, "scrape every active stored profile")
	scrapeCmd.Flags().DurationVar(&skipRecent, "skip-recent", 0, "skip profiles with a successful run within this window")
	scrapeCmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "attempts per profile (default from config)")
	scrapeCmd.Flags().BoolVar(&headful, "headful", false, "show the browser window")
	scrapeCmd.Flags().StringVarP(&accountName, "account", "a", "", "stored account to log in with")
	scrapeCmd.Flags().BoolVar(&noLogin, "no-login", false, "fail instead of logging in at a login wall")
	scrapeCmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path")
	scrapeCmd.Flags().BoolVar(&withMedia, "media", false, "download post images")
	scrapeCmd.Flags().StringSliceVar(&proxyServers, "proxy", nil, "proxy URL, repeatable")
	scrapeCmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
}

func scrapeFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	changed := cmd.Flags().Changed
	if changed("max-attempts") {
		flags["max-attempts"] = maxAttempts
	}
	if changed("headful") {
		flags["headless"] = !headful
	}
	if changed("account") {
		flags["account"] = accountName
	}
	if changed("no-login") {
		flags["no-login"] = noLogin
	}
	if changed("db") {
		flags["db"] = dbPath
	}
	if changed("media") {
		flags["media"] = withMedia
	}
	if changed("proxy") {
		flags["proxy"] = proxyServers
	}
	if changed("metrics-listen") {
		flags["metrics-listen"] = metricsListen
	}
	return flags
}

func runScrape(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !scrapeAll {
		return errors.New("name at least one profile or pass --all")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, scrapeFlags(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	var m *metrics.Metrics
	if a.cfg.Metrics.Enabled {
		m = metrics.New(true)
		stopMetrics := serveMetrics(a.cfg.Metrics.Listen, m, a.log)
		defer stopMetrics()
	}

	s, err := a.newScraper(m)
	if err != nil {
		return fmt.Errorf("failed to initialize scraper: %w", err)
	}

	targets, err := scrapeTargets(ctx, a, args)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		ui.PrintWarning("No active profiles to scrape")
		return nil
	}

	ui.PrintLogo()
	failed := 0
	for _, prof := range targets {
		if ctx.Err() != nil {
			break
		}
		if err := scrapeOne(ctx, a, s, prof); err != nil {
			failed++
			a.log.WithError(err).WithField("username", prof.Username).Error("Scrape failed")
			ui.PrintError("Scrape failed for "+prof.Username, err)
		}
	}

	if ctx.Err() != nil {
		return fmt.Errorf("interrupted: %w", ctx.Err())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d profile(s) failed", failed, len(targets))
	}
	return nil
}

// scrapeTargets resolves the profiles named in args, or every active
// profile with --all.
func scrapeTargets(ctx context.Context, a *app, args []string) ([]models.Profile, error) {
	var targets []models.Profile
	if scrapeAll {
		all, err := a.store.Profiles().List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list profiles: %w", err)
		}
		for _, p := range all {
			if p.Active {
				targets = append(targets, p)
			}
		}
	}

	seen := make(map[string]bool, len(targets))
	for _, p := range targets {
		seen[p.ID] = true
	}
	for _, name := range args {
		prof, err := resolveProfile(ctx, a.store.Profiles(), name, true)
		if err != nil {
			return nil, err
		}
		if !seen[prof.ID] {
			seen[prof.ID] = true
			targets = append(targets, *prof)
		}
	}
	return targets, nil
}

type profileScraper interface {
	ScrapeAndPersist(ctx context.Context, profile models.Profile, forceUpdate bool) ([]models.ContentRecord, error)
}

func scrapeOne(ctx context.Context, a *app, s profileScraper, prof models.Profile) error {
	executions := a.store.Executions()

	if skipRecent > 0 {
		recent, err := executions.HasRecentSuccess(ctx, prof.ID, time.Now().Add(-skipRecent))
		if err != nil {
			return err
		}
		if recent {
			ui.PrintInfo("Skipping", prof.Username+" (scraped within "+skipRecent.String()+")")
			return nil
		}
	}

	ui.PrintInfo("Profile", prof.Username)
	records, err := s.ScrapeAndPersist(ctx, prof, forceUpdate)

	if latest, lerr := executions.FindLatestByProfile(context.WithoutCancel(ctx), prof.ID); lerr == nil {
		ui.PrintInfo("Execution", latest.Summary())
	}
	if err != nil {
		return err
	}

	if a.cfg.Media.Enabled {
		if n, err := metadata.WriteSidecars(records, prof.Username); err != nil {
			a.log.WithError(err).Warn("Failed to write metadata sidecars")
		} else if n > 0 {
			a.log.WithField("count", n).Debug("Wrote metadata sidecars")
		}
	}

	if len(records) == 0 {
		ui.PrintWarning("No new posts for " + prof.Username)
		return nil
	}
	ui.PrintSuccess(fmt.Sprintf("Saved %d post(s) for %s", len(records), prof.Username))
	return nil
}
