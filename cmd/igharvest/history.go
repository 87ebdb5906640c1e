package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"igharvest/pkg/metadata"
	"igharvest/pkg/models"
	"igharvest/pkg/ui"
)

var (
	historyLimit      int
	historySuccessful bool
	historyPosts      bool
)

var historyCmd = &cobra.Command{
	Use:   "history [username]",
	Short: "Show execution records",
	Long: `Show execution records.

Without a username the most recent runs across all profiles are listed. With
a username the runs of that profile are listed, optionally only successful
ones, followed by its stored posts when --posts is given.`,
	Example: `  igharvest history
  igharvest history natgeo --successful
  igharvest history natgeo --posts --limit 20`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "maximum rows per table")
	historyCmd.Flags().BoolVar(&historySuccessful, "successful", false, "only successful runs")
	historyCmd.Flags().BoolVar(&historyPosts, "posts", false, "also list stored posts")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	executions := a.store.Executions()

	if len(args) == 0 {
		recent, err := executions.FindRecent(ctx, historyLimit)
		if err != nil {
			return fmt.Errorf("failed to load executions: %w", err)
		}
		printExecutions(recent)
		return nil
	}

	prof, err := resolveProfile(ctx, a.store.Profiles(), args[0], false)
	if err != nil {
		return fmt.Errorf("profile %s: %w", args[0], err)
	}

	var runs []models.ExecutionRecord
	if historySuccessful {
		runs, err = executions.FindSuccessfulByProfile(ctx, prof.ID)
	} else {
		var latest *models.ExecutionRecord
		if latest, err = executions.FindLatestByProfile(ctx, prof.ID); err == nil {
			runs = []models.ExecutionRecord{*latest}
		}
	}
	if err != nil && len(runs) == 0 {
		ui.PrintInfo("No runs recorded", prof.Username)
	} else {
		if len(runs) > historyLimit {
			runs = runs[:historyLimit]
		}
		printExecutions(runs)
	}

	if !historyPosts {
		return nil
	}

	posts, err := a.store.Contents().FindByProfile(ctx, prof.ID)
	if err != nil {
		return fmt.Errorf("failed to load posts: %w", err)
	}
	if len(posts) > historyLimit {
		posts = posts[:historyLimit]
	}
	fmt.Println()
	rows := make([][]string, 0, len(posts))
	for _, p := range posts {
		rows = append(rows, []string{
			p.ExternalID,
			string(p.Kind),
			p.CollectedAt.Local().Format("2006-01-02 15:04"),
			count(p.Likes),
			count(p.Comments),
			metadata.FormattedCaption(p.Caption, 48),
		})
	}
	ui.PrintTable([]string{"SHORTCODE", "KIND", "COLLECTED", "LIKES", "COMMENTS", "CAPTION"}, rows)
	return nil
}

func printExecutions(runs []models.ExecutionRecord) {
	if len(runs) == 0 {
		ui.PrintInfo("No runs recorded", "Use 'igharvest scrape <username>' to start one")
		return
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Username,
			string(r.Status),
			strconv.Itoa(r.AttemptNumber),
			fmt.Sprintf("%d/%d", r.PostsProcessed, r.PostsFound),
			strconv.Itoa(r.PostsSkipped),
			fmt.Sprintf("%.1fs", float64(r.ExecutionTimeMs)/1000),
			metadata.FormattedCaption(r.ErrorMessage, 40),
		})
	}
	ui.PrintTable([]string{"STARTED", "PROFILE", "STATUS", "ATTEMPT", "PROCESSED", "SKIPPED", "TIME", "ERROR"}, rows)
}

func count(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}
