package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"igharvest/pkg/metadata"
	"igharvest/pkg/ui"
)

var (
	exportOutput   string
	exportSidecars bool
	exportPrune    bool
)

var exportCmd = &cobra.Command{
	Use:   "export <username>",
	Short: "Export a profile's stored posts as JSON",
	Long: `Export a profile's stored posts as one JSON document.

With --sidecars a <media>.json file is also written next to every downloaded
image, and --prune removes sidecars whose image is gone from the media
directory.`,
	Example: `  igharvest export natgeo
  igharvest export natgeo --output exports/natgeo.json --sidecars --prune`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default <username>.json)")
	exportCmd.Flags().BoolVar(&exportSidecars, "sidecars", false, "write a metadata file next to each downloaded image")
	exportCmd.Flags().BoolVar(&exportPrune, "prune", false, "remove sidecars without an image")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	prof, err := resolveProfile(ctx, a.store.Profiles(), args[0], false)
	if err != nil {
		return fmt.Errorf("profile %s: %w", args[0], err)
	}
	records, err := a.store.Contents().FindByProfile(ctx, prof.ID)
	if err != nil {
		return fmt.Errorf("failed to load posts: %w", err)
	}

	path := exportOutput
	if path == "" {
		path = prof.Username + ".json"
	}
	if err := metadata.NewExport(prof.Username, records, time.Now().UTC()).WriteFile(path); err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Exported %d post(s) to %s", len(records), path))

	if exportSidecars {
		n, err := metadata.WriteSidecars(records, prof.Username)
		if err != nil {
			return err
		}
		ui.PrintInfo("Sidecars written", fmt.Sprint(n))
	}
	if exportPrune {
		n, err := metadata.CleanOrphaned(a.cfg.Media.OutputDirectory)
		if err != nil {
			return err
		}
		ui.PrintInfo("Sidecars removed", fmt.Sprint(n))
	}
	return nil
}
