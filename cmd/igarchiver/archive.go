package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"igarchiver/pkg/auth"
	"igarchiver/pkg/config"
	"igarchiver/pkg/logger"
	"igarchiver/pkg/pipeline"
	"igarchiver/pkg/scraper"
	"igarchiver/pkg/ui"
	"igarchiver/pkg/ui/tui"
)

// runOptions are the flags shared by the root, archive and download commands
type runOptions struct {
	year            string
	output          string
	concurrent      int
	rateLimit       int
	maxRetries      int
	downloadTimeout time.Duration
	account         string
	timezone        string
	skipVideos      bool
	noURLs          bool
	noCompress      bool
	resume          bool
	forceRestart    bool
	useTUI          bool
}

var runOpts runOptions

var archiveCmd = &cobra.Command{
	Use:   "archive <username>",
	Short: "Download a profile, write post URL files and compress the media",
	Long: `Download every post of a profile (or only one year of it) into
<output>/<username>/, write a <date>_<shortcode>_url.txt file per post and
pack the media files into one media_<date>.zip archive per day.

A download that is cut short by rate limiting, a forbidden file or a lost
connection still post-processes what was fetched. Run again with --resume to
continue from where it stopped.`,
	Example: `  # Whole profile
  igarchiver archive natgeo

  # Only the posts of 2024
  igarchiver archive natgeo --year 2024

  # Continue an interrupted download with the full-screen UI
  igarchiver archive natgeo --resume --tui`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runArchive(cmd, args[0], true)
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <username>",
	Short: "Download a profile without post-processing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runArchive(cmd, args[0], false)
	},
}

func init() {
	addRunFlags(archiveCmd, true)
	addRunFlags(downloadCmd, false)
	rootCmd.AddCommand(archiveCmd, downloadCmd)
}

func addRunFlags(cmd *cobra.Command, postProcess bool) {
	f := cmd.Flags()
	f.StringVarP(&runOpts.year, "year", "y", "", `only download posts from this year ("all" for every year)`)
	f.StringVarP(&runOpts.output, "output", "o", "", "base directory for profile folders")
	f.IntVar(&runOpts.concurrent, "concurrent", 0, "number of concurrent downloads")
	f.IntVar(&runOpts.rateLimit, "rate-limit", 0, "API requests per minute")
	f.IntVar(&runOpts.maxRetries, "max-retries", 0, "attempts per API request")
	f.DurationVar(&runOpts.downloadTimeout, "download-timeout", 0, "timeout per HTTP request")
	f.StringVarP(&runOpts.account, "account", "a", "", "use a specific stored account")
	f.StringVar(&runOpts.timezone, "timezone", "", "timezone for the dates in URL file names")
	f.BoolVar(&runOpts.skipVideos, "skip-videos", false, "do not download videos")
	f.BoolVar(&runOpts.resume, "resume", false, "resume from the last checkpoint")
	f.BoolVar(&runOpts.forceRestart, "force-restart", false, "discard any checkpoint and start over")
	f.BoolVar(&runOpts.useTUI, "tui", false, "use the full-screen terminal UI")
	if postProcess {
		f.BoolVar(&runOpts.noURLs, "no-urls", false, "do not write post URL files")
		f.BoolVar(&runOpts.noCompress, "no-compress", false, "do not compress media into archives")
	}
}

func (o *runOptions) flags() map[string]interface{} {
	return map[string]interface{}{
		"output":           o.output,
		"concurrent":       o.concurrent,
		"rate-limit":       o.rateLimit,
		"max-retries":      o.maxRetries,
		"download-timeout": o.downloadTimeout,
		"account":          o.account,
		"timezone":         o.timezone,
		"skip-videos":      o.skipVideos,
		"no-urls":          o.noURLs,
		"no-compress":      o.noCompress,
	}
}

func runArchive(cmd *cobra.Command, username string, postProcess bool) error {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")

	year, err := scraper.ParseYear(runOpts.year, time.Now())
	if err != nil {
		return err
	}
	if runOpts.resume && runOpts.forceRestart {
		return fmt.Errorf("--resume and --force-restart cannot be used together")
	}

	cfg, err := loadConfig(cmd, runOpts.flags())
	if err != nil {
		return err
	}
	if !postProcess {
		cfg.PostProcess.ExtractURLs = false
		cfg.PostProcess.CompressMedia = false
	}

	log, err := newLogger(cfg, runOpts.useTUI)
	if err != nil {
		return err
	}

	if err := applyCredentials(cfg, log); err != nil {
		return err
	}

	if !runOpts.useTUI {
		ui.PrintBanner()
		ui.PrintInfo("Profile", "@"+username)
		if year != 0 {
			ui.PrintInfo("Year", fmt.Sprint(year))
		}
	}

	opts := scraper.Options{Year: year, Resume: runOpts.resume, ForceRestart: runOpts.forceRestart}
	p := pipeline.New(cfg, log)

	var result *pipeline.Result
	if runOpts.useTUI {
		result, err = runWithTUI(cmd.Context(), p, username, opts)
	} else {
		if quiet {
			p.SetReporter(ui.NopReporter{})
		} else {
			p.SetReporter(ui.NewProgressDisplay(ui.Output, verbose))
		}
		result, err = p.Run(cmd.Context(), username, opts)
	}
	if result == nil {
		return err
	}

	printResult(result)
	notify(cfg, result)

	if result.Outcome.Failed() {
		if quiet {
			fmt.Fprintln(os.Stderr, ui.Red(fmt.Sprintf("%s: %v", result.Outcome, result.Err)))
		}
		return errReported
	}
	return nil
}

// applyCredentials fills the session cookies from the credential store.
// Without any cookies the run continues anonymously.
func applyCredentials(cfg *config.Config, log logger.Logger) error {
	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("Credential store unavailable")
		if cfg.Instagram.Account != "" {
			return err
		}
		return nil
	}

	account, err := manager.Apply(&cfg.Instagram)
	switch {
	case err != nil && cfg.Instagram.Account != "":
		return fmt.Errorf("account %q: %w (see 'igarchiver auth list')", cfg.Instagram.Account, err)
	case err != nil:
		log.Warn("No Instagram session found, continuing without login")
		ui.PrintWarning("No stored Instagram session; private data and some profiles need 'igarchiver auth login'")
	case account != nil:
		log.WithField("account", account.Username).Info("Using stored credentials")
	default:
		log.Info("Using credentials from configuration")
	}
	return nil
}

// runWithTUI runs the pipeline behind the full-screen UI. The first q or
// ctrl+c cancels the download; post-processing still runs on what was
// fetched and the UI closes when the pipeline reports it is done.
func runWithTUI(ctx context.Context, p *pipeline.Pipeline, username string, opts scraper.Options) (*pipeline.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	terminal := tui.NewTUI(cancel)
	p.SetReporter(terminal)

	type outcome struct {
		result *pipeline.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := p.Run(ctx, username, opts)
		done <- outcome{result, err}
	}()

	if err := terminal.Run(); err != nil {
		logger.WithError(err).Error("Terminal UI failed")
	}
	cancel()

	out := <-done
	return out.result, out.err
}

func printResult(result *pipeline.Result) {
	ui.PrintInfo("Profile folder", result.OutputDir)

	if s := result.Download; s != nil {
		ui.PrintInfo("Posts matched", fmt.Sprintf("%d of %d seen", s.PostsMatched, s.PostsSeen))
		ui.PrintInfo("Files", fmt.Sprintf("%d downloaded (%s), %d already present, %d failed",
			s.Downloaded, humanize.Bytes(uint64(s.Bytes)), s.Skipped, s.Failed))
	}
	if u := result.URLs; u != nil {
		ui.PrintInfo("URL files", fmt.Sprintf("%d written, %d skipped", u.Written, u.Skipped))
	}
	if c := result.Compress; c != nil && c.Files > 0 {
		ui.PrintInfo("Archives", fmt.Sprintf("%d files into %d archives (%s to %s)",
			c.Files, c.Archives, humanize.Bytes(uint64(c.BytesIn)), humanize.Bytes(uint64(c.BytesOut))))
	}

	switch result.Outcome {
	case pipeline.OutcomeSuccess:
		ui.PrintSuccess("Archive complete")
	case pipeline.OutcomePartial:
		ui.PrintWarning("Download incomplete", result.Download.Cause)
		ui.PrintWarning("Run again with --resume to continue")
	case pipeline.OutcomePostProcessFailed:
		ui.PrintError("Post-processing failed", result.Err)
	case pipeline.OutcomeDownloadFailed:
		ui.PrintError("Download failed", result.Err)
	}
}

func notify(cfg *config.Config, result *pipeline.Result) {
	n := ui.NewNotifier(cfg.Notifications)
	title := "igarchiver @" + result.Username

	switch {
	case result.Outcome.Failed():
		n.Error(title, result.Err.Error())
	case result.Outcome == pipeline.OutcomePartial:
		n.Complete(title, fmt.Sprintf("Stopped early after %d files: %v", result.Download.Downloaded, result.Download.Cause))
	default:
		downloaded := 0
		if result.Download != nil {
			downloaded = result.Download.Downloaded
		}
		n.Complete(title, fmt.Sprintf("Archived %d new files in %s", downloaded, result.Duration.Round(time.Second)))
	}
}
