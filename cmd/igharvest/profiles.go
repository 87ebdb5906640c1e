package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"igharvest/pkg/ui"
)

var displayName string

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage monitored profiles",
}

var profilesAddCmd = &cobra.Command{
	Use:   "add <username...>",
	Short: "Add profiles to the store",
	Example: `  igharvest profiles add natgeo nasa
  igharvest profiles add natgeo --display-name "National Geographic"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProfilesAdd,
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored profiles",
	Args:  cobra.NoArgs,
	RunE:  runProfilesList,
}

var profilesPauseCmd = &cobra.Command{
	Use:   "pause <username>",
	Short: "Exclude a profile from 'scrape --all'",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setActive(cmd, args[0], false) },
}

var profilesResumeCmd = &cobra.Command{
	Use:   "resume <username>",
	Short: "Include a paused profile in 'scrape --all' again",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setActive(cmd, args[0], true) },
}

func init() {
	rootCmd.AddCommand(profilesCmd)
	profilesCmd.AddCommand(profilesAddCmd, profilesListCmd, profilesPauseCmd, profilesResumeCmd)

	profilesAddCmd.Flags().StringVar(&displayName, "display-name", "", "display name for a single profile")
}

func runProfilesAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, name := range args {
		prof, err := resolveProfile(ctx, a.store.Profiles(), name, true)
		if err != nil {
			return err
		}
		if displayName != "" && len(args) == 1 {
			prof.DisplayName = displayName
			if err := a.store.Profiles().Save(ctx, prof); err != nil {
				return err
			}
		}
		ui.PrintSuccess("Profile added: " + prof.Username)
	}
	return nil
}

func runProfilesList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	profiles, err := a.store.Profiles().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}
	if len(profiles) == 0 {
		ui.PrintInfo("No stored profiles", "Use 'igharvest profiles add <username>' to add one")
		return nil
	}

	rows := make([][]string, 0, len(profiles))
	for _, p := range profiles {
		state := "active"
		if !p.Active {
			state = "paused"
		}
		last := "-"
		if exec, err := a.store.Executions().FindLatestByProfile(ctx, p.ID); err == nil {
			last = fmt.Sprintf("%s %s", exec.StartedAt.Local().Format("2006-01-02 15:04"), exec.Status)
		}
		rows = append(rows, []string{p.Username, p.DisplayName, state, last})
	}
	ui.PrintTable([]string{"USERNAME", "NAME", "STATE", "LAST RUN"}, rows)
	return nil
}

func setActive(cmd *cobra.Command, username string, active bool) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	prof, err := resolveProfile(ctx, a.store.Profiles(), username, false)
	if err != nil {
		return fmt.Errorf("profile %s: %w", username, err)
	}
	prof.Active = active
	if err := a.store.Profiles().Save(ctx, prof); err != nil {
		return err
	}

	if active {
		ui.PrintSuccess("Profile resumed: " + prof.Username)
	} else {
		ui.PrintSuccess("Profile paused: " + prof.Username)
	}
	return nil
}
