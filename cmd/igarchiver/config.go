package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"igarchiver/pkg/auth"
	"igarchiver/pkg/config"
	"igarchiver/pkg/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage igarchiver configuration files.

Configuration is layered, highest priority first:
  - command line flags
  - environment variables (IGARCHIVER_SECTION__KEY, IGARCHIVER_SESSION_ID, ...)
  - the configuration file
  - defaults`,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a configuration file with the default values",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for errors",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var configForce bool

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		path = ".igarchiver.yaml"
	}

	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration written to " + path)
	fmt.Fprintln(ui.Output, "\nNext steps:")
	fmt.Fprintln(ui.Output, "  1. Store a session with 'igarchiver auth login'")
	fmt.Fprintln(ui.Output, "  2. Check the file with 'igarchiver config validate'")
	fmt.Fprintln(ui.Output, "  3. Archive a profile with 'igarchiver <username>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	display := *cfg
	display.Instagram.SessionID = auth.MaskSecret(cfg.Instagram.SessionID)
	display.Instagram.CSRFToken = auth.MaskSecret(cfg.Instagram.CSRFToken)

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	source := configFile
	if source == "" {
		source = config.FindConfigFile()
	}
	if source == "" {
		source = "(defaults only)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n%s", source, data)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	source := configFile
	if source == "" {
		source = config.FindConfigFile()
	}
	if source == "" {
		ui.PrintWarning("No configuration file found, checking defaults and environment")
	} else {
		ui.PrintInfo("Validating", source)
	}

	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	var warnings []string
	if cfg.Instagram.SessionID == "" || cfg.Instagram.CSRFToken == "" {
		warnings = append(warnings, "no session cookies configured; 'igarchiver auth login' stores them")
	}
	if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
		return fmt.Errorf("cannot create output directory: %w", err)
	}
	if cfg.Notifications.Enabled && cfg.Notifications.NotificationType == ui.NotifyDesktop && !ui.DesktopNotificationsSupported() {
		warnings = append(warnings, "desktop notifications are not supported on this platform")
	}

	for _, w := range warnings {
		ui.PrintWarning(w)
	}
	ui.PrintSuccess("Configuration is valid")
	return nil
}
