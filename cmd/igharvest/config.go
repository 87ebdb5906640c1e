package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"igharvest/pkg/browser"
	"igharvest/pkg/config"
	"igharvest/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage igharvest configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (IGHARVEST_*, also read from .env)
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to a file",
	Long: `Write the default configuration with all available options.

The file is created as '.igharvest.yaml' in the current directory unless a
different path is given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration after merging all sources.

Proxy passwords are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Validate the effective configuration.

Besides value ranges this checks that the browser executable exists when one
is configured and that the store, media and log directories can be created.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".igharvest.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Adjust scrape, browser and store settings in the file")
	fmt.Println("2. Run 'igharvest config validate' to check the configuration")
	fmt.Println("3. Store a login account with 'igharvest auth login'")
	fmt.Println("4. Start with 'igharvest scrape <username>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	data, err := yaml.Marshal(maskConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))
	return nil
}

// maskConfig returns a copy safe to print
func maskConfig(cfg *config.Config) *config.Config {
	masked := *cfg
	masked.Proxy.Servers = make([]string, len(cfg.Proxy.Servers))
	for i, raw := range cfg.Proxy.Servers {
		if p, err := browser.ParseProxy(raw); err == nil {
			masked.Proxy.Servers[i] = p.String()
		} else {
			masked.Proxy.Servers[i] = "<invalid>"
		}
	}
	return &masked
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	problems := checkEnvironment(cfg)
	if len(problems) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return errors.New("configuration is not usable")
	}

	ui.PrintSuccess("Configuration is valid")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Attempts: %d, batch target: %d\n", cfg.Scrape.MaxAttempts, cfg.Scrape.BatchTarget)
	fmt.Printf("  Backoff: %s to %s\n", cfg.Scrape.BackoffMin, cfg.Scrape.BackoffMax)
	fmt.Printf("  Store: %s %s\n", cfg.Store.Driver, cfg.Store.DSN)
	fmt.Printf("  Login: %t, proxies: %d\n", cfg.Login.Enabled, len(cfg.Proxy.Servers))
	fmt.Printf("  Media: %t, metrics: %t\n", cfg.Media.Enabled, cfg.Metrics.Enabled)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}

// checkEnvironment reports settings that validate but cannot work on this host
func checkEnvironment(cfg *config.Config) []string {
	var problems []string

	if cfg.Browser.ExecPath != "" {
		if _, err := os.Stat(cfg.Browser.ExecPath); err != nil {
			problems = append(problems, fmt.Sprintf("browser executable not found: %s", cfg.Browser.ExecPath))
		}
	}
	for _, raw := range cfg.Proxy.Servers {
		if _, err := browser.ParseProxy(raw); err != nil {
			problems = append(problems, err.Error())
		}
	}

	dirs := map[string]string{}
	if cfg.Store.Driver == "sqlite" {
		dirs["store"] = filepath.Dir(cfg.Store.DSN)
	}
	if cfg.Media.Enabled {
		dirs["media"] = cfg.Media.OutputDirectory
	}
	if cfg.Logging.File != "" {
		dirs["log"] = filepath.Dir(cfg.Logging.File)
	}
	for name, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create %s directory: %v", name, err))
		}
	}

	return problems
}
