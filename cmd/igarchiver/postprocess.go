package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"igarchiver/pkg/config"
	"igarchiver/pkg/postprocess"
	"igarchiver/pkg/ui"
)

var (
	urlsTimezone string
	reportFormat string
	reportOut    string
)

var urlsCmd = &cobra.Command{
	Use:   "urls <dir|username>",
	Short: "Write a <date>_<shortcode>_url.txt file for every post in a folder",
	Long: `Read the metadata files (.json or .json.xz) of a profile folder and write
one <date>_<shortcode>_url.txt file per post. Existing URL files are
rewritten; unreadable metadata and metadata without a shortcode are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runURLs,
}

var compressCmd = &cobra.Command{
	Use:   "compress <dir|username>",
	Short: "Pack the media files of a folder into media_<date>.zip archives",
	Long: `Group the media files of a folder by the first 10 characters of their
name and move each group into media_<prefix>.zip. Files already inside an
existing archive are kept; metadata and text files are never touched.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompress,
}

var reportCmd = &cobra.Command{
	Use:   "report <dir|username>",
	Short: "Export a table of the posts in a folder",
	Long: `Build one row per post (date, URL, caption) from the metadata, caption
and URL files of a folder and write it as an Excel workbook or CSV file.`,
	Example: `  igarchiver report natgeo
  igarchiver report ./natgeo --format csv --out posts.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	urlsCmd.Flags().StringVar(&urlsTimezone, "timezone", "", "timezone for the dates in URL file names")
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", "xlsx", "report format (xlsx or csv)")
	reportCmd.Flags().StringVar(&reportOut, "out", "", "output file (default: posts_<date>.<format> in the folder)")

	rootCmd.AddCommand(urlsCmd, compressCmd, reportCmd)
}

// resolveDir accepts a folder path or the username of a profile folder
// under the configured base directory
func resolveDir(cfg *config.Config, arg string) (string, error) {
	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		return arg, nil
	}
	dir := cfg.ProfileDir(strings.TrimPrefix(arg, "@"))
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir, nil
	}
	return "", fmt.Errorf("%s is not a folder or a downloaded profile", arg)
}

func setupProcessor(cmd *cobra.Command, arg string, flags map[string]interface{}) (*postprocess.Processor, string, error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, "", err
	}
	log, err := newLogger(cfg, false)
	if err != nil {
		return nil, "", err
	}
	dir, err := resolveDir(cfg, arg)
	if err != nil {
		return nil, "", err
	}
	return postprocess.FromConfig(cfg, log), dir, nil
}

func runURLs(cmd *cobra.Command, args []string) error {
	p, dir, err := setupProcessor(cmd, args[0], map[string]interface{}{"timezone": urlsTimezone})
	if err != nil {
		return err
	}

	result, err := p.ExtractPostURLs(cmd.Context(), dir)
	if err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Wrote %d URL files in %s (%d metadata files skipped)", result.Written, dir, result.Skipped))
	return nil
}

func runCompress(cmd *cobra.Command, args []string) error {
	p, dir, err := setupProcessor(cmd, args[0], nil)
	if err != nil {
		return err
	}

	result, err := p.CompressMedia(cmd.Context(), dir)
	if result != nil {
		for _, g := range result.Groups {
			ui.PrintInfo(g.Archive, fmt.Sprintf("%d files", len(g.Files)))
		}
	}
	if err != nil {
		return err
	}
	if result.Files == 0 {
		ui.PrintWarning("No media files to compress in " + dir)
		return nil
	}
	ui.PrintSuccess(fmt.Sprintf("Compressed %d files into %d archives (%s to %s)",
		result.Files, result.Archives, humanize.Bytes(uint64(result.BytesIn)), humanize.Bytes(uint64(result.BytesOut))))
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(reportFormat)
	if format != "xlsx" && format != "csv" {
		return fmt.Errorf("unknown report format %q (use xlsx or csv)", reportFormat)
	}

	p, dir, err := setupProcessor(cmd, args[0], nil)
	if err != nil {
		return err
	}

	rows, err := p.BuildReport(cmd.Context(), dir)
	if err != nil {
		return err
	}

	out := reportOut
	if out == "" {
		out = filepath.Join(dir, postprocess.ReportFileName(time.Now(), format))
	}

	if format == "csv" {
		err = postprocess.WriteCSV(rows, out)
	} else {
		err = postprocess.WriteXLSX(rows, out)
	}
	if err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Wrote %d posts to %s", len(rows), out))
	return nil
}
