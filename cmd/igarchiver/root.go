package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"igarchiver/pkg/config"
	"igarchiver/pkg/logger"
	"igarchiver/pkg/ui"
)

var (
	// Version information, set with -ldflags
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	noColor       bool
	notifications bool
	quiet         bool
	verbose       bool
)

// errReported is returned by commands that already printed their failure
var errReported = errors.New("failed")

var rootCmd = &cobra.Command{
	Use:   "igarchiver [username]",
	Short: "Archive an Instagram profile into dated media archives",
	Long: `igarchiver downloads the posts of an Instagram profile, writes one
<date>_<shortcode>_url.txt file per post and packs the media into
media_<date>.zip archives, one per day.

Running igarchiver with a bare username is the same as "igarchiver archive".`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.SetColor(!noColor)
		if quiet {
			ui.Output = io.Discard
		}
		logger.Version = version
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runArchive(cmd, args[0], true)
	},
}

// Execute runs the command line and returns the process exit code
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, ui.Red("Error: "+err.Error()))
		}
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.igarchiver.yaml or ~/.config/igarchiver/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&notifications, "notifications", true, "announce the end of a run")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print one line per file instead of a progress line")

	addRunFlags(rootCmd, true)

	rootCmd.SetVersionTemplate(`igarchiver {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads the configuration, applying the global flags and extra
// command flags on top
func loadConfig(cmd *cobra.Command, flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = strings.ToLower(logLevel)
	}
	if noColor {
		flags["no-color"] = true
	}
	if cmd.Flags().Changed("notifications") {
		flags["notifications"] = notifications
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if quiet && cfg.Notifications.NotificationType == ui.NotifyTerminal {
		cfg.Notifications.Enabled = false
	}
	return cfg, nil
}

// newLogger builds the run logger. Console logs would tear the full-screen
// UI, so with tuiMode they go to the log file or nowhere.
func newLogger(cfg *config.Config, tuiMode bool) (logger.Logger, error) {
	logCfg := cfg.Logging
	// The progress display carries normal runs; console logs only show
	// errors unless asked for
	if logLevel == "" && logCfg.File == "" && logCfg.Level == "info" && !verbose {
		logCfg.Level = "error"
	}

	var (
		log logger.Logger
		err error
	)
	if tuiMode && logCfg.File == "" {
		log, err = logger.NewWithWriter(&logCfg, io.Discard)
	} else {
		log, err = logger.New(&logCfg)
	}
	if err != nil {
		return nil, err
	}

	logger.SetLogger(log)
	return log, nil
}
