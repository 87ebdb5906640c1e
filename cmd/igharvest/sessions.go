package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"igharvest/pkg/session"
	"igharvest/pkg/ui"
)

var sweepOlderThan time.Duration

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and prune saved browser cookies",
	Long: `Inspect and prune the cookie sets saved after successful logins.

A set is restored into new browser sessions while it is younger than
session.max_age. Sets older than session.retention are removed by sweep,
which scrape runs also trigger now and then.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved cookie sets",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear <username>",
	Short: "Delete the cookie set saved for a username",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsClear,
}

var sessionsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete cookie sets past their retention",
	Args:  cobra.NoArgs,
	RunE:  runSessionsSweep,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsClearCmd, sessionsSweepCmd)

	sessionsSweepCmd.Flags().DurationVar(&sweepOlderThan, "older-than", 0, "age threshold (default session.retention)")
}

func openSessions() (*session.Store, time.Duration, error) {
	cfg, err := loadConfig(nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load configuration: %w", err)
	}
	store, err := session.NewStore(cfg.Session.Directory, session.WithMaxAge(cfg.Session.MaxAge))
	if err != nil {
		return nil, 0, err
	}
	return store, cfg.Session.Retention, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, _, err := openSessions()
	if err != nil {
		return err
	}

	infos, err := store.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		ui.PrintInfo("No saved sessions", store.Dir())
		return nil
	}

	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{
			info.ID,
			info.SavedAt.Local().Format("2006-01-02 15:04"),
			time.Since(info.SavedAt).Round(time.Minute).String(),
			strconv.Itoa(info.Cookies),
		})
	}
	ui.PrintTable([]string{"SESSION", "SAVED", "AGE", "COOKIES"}, rows)
	return nil
}

func runSessionsClear(cmd *cobra.Command, args []string) error {
	store, _, err := openSessions()
	if err != nil {
		return err
	}

	id := session.SessionID(args[0])
	if !store.Has(id) {
		ui.PrintWarning("No saved session", id)
		return nil
	}
	if err := store.Clear(id); err != nil {
		return err
	}
	ui.PrintSuccess("Session cleared: " + id)
	return nil
}

func runSessionsSweep(cmd *cobra.Command, args []string) error {
	store, retention, err := openSessions()
	if err != nil {
		return err
	}

	olderThan := retention
	if sweepOlderThan > 0 {
		olderThan = sweepOlderThan
	}
	removed, err := store.Sweep(olderThan)
	if err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Removed %d session(s) older than %s", removed, olderThan))
	return nil
}
