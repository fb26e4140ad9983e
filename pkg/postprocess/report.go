package postprocess

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"igarchiver/pkg/instagram"
	"igarchiver/pkg/metadata"
)

// Missing is shown for values a post does not have
const Missing = "-"

// ReportSheet is the worksheet name used by WriteXLSX
const ReportSheet = "Posts"

var urlFilePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})_(.+)_url\.txt$`)

// ReportRow is one post in the report
type ReportRow struct {
	Date      string
	Shortcode string
	URL       string
	Caption   string
}

// ReportFileName returns the default report name for the given day
func ReportFileName(now time.Time, ext string) string {
	return "posts_" + now.Format("2006-01-02") + "." + ext
}

// BuildReport collects one row per post from the metadata, caption and URL
// files in dir, sorted by date then shortcode
func (p *Processor) BuildReport(ctx context.Context, dir string) ([]ReportRow, error) {
	names, err := listFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list profile folder: %w", err)
	}

	rows := make(map[string]*ReportRow)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch {
		case metadata.IsMetadataFile(name):
			p.addMetadataRow(rows, dir, name)
		case urlFilePattern.MatchString(name):
			p.addURLRow(rows, dir, name)
		}
	}

	report := make([]ReportRow, 0, len(rows))
	for _, row := range rows {
		if row.URL == "" {
			row.URL = instagram.GetPostURL(row.Shortcode)
		}
		report = append(report, fillMissing(*row))
	}
	sort.Slice(report, func(i, j int) bool {
		if report[i].Date != report[j].Date {
			return report[i].Date < report[j].Date
		}
		return report[i].Shortcode < report[j].Shortcode
	})
	return report, nil
}

func (p *Processor) addMetadataRow(rows map[string]*ReportRow, dir, name string) {
	rec, err := metadata.Load(filepath.Join(dir, name))
	if err != nil || rec.Shortcode == "" {
		p.logger.WithField("file", name).Debug("Metadata file left out of the report")
		return
	}

	row := rowFor(rows, rec.Shortcode)
	row.Date = p.postDate(rec, name)
	row.Caption = rec.Caption
	if row.Caption == "" {
		// Fall back to the caption file written next to the metadata
		if data, err := os.ReadFile(filepath.Join(dir, metadata.Stem(name)+".txt")); err == nil {
			row.Caption = strings.TrimSpace(string(data))
		}
	}
}

func (p *Processor) addURLRow(rows map[string]*ReportRow, dir, name string) {
	m := urlFilePattern.FindStringSubmatch(name)
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		p.logger.WithError(err).WithField("file", name).Warn("Failed to read URL file")
		return
	}

	row := rowFor(rows, m[2])
	if row.Date == "" {
		row.Date = m[1]
	}
	row.URL = strings.TrimSpace(string(data))
}

func rowFor(rows map[string]*ReportRow, shortcode string) *ReportRow {
	row, ok := rows[shortcode]
	if !ok {
		row = &ReportRow{Shortcode: shortcode}
		rows[shortcode] = row
	}
	return row
}

func fillMissing(row ReportRow) ReportRow {
	for _, v := range []*string{&row.Date, &row.Shortcode, &row.URL, &row.Caption} {
		if strings.TrimSpace(*v) == "" {
			*v = Missing
		}
	}
	return row
}

// WriteXLSX writes the report as a workbook with a single Posts sheet
func WriteXLSX(rows []ReportRow, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ReportSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := []interface{}{"Date", "URL", "Caption"}
	if err := f.SetSheetRow(ReportSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{row.Date, row.URL, row.Caption}
		if err := f.SetSheetRow(ReportSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	for col, width := range map[string]float64{"A": 20, "B": 50, "C": 80} {
		if err := f.SetColWidth(ReportSheet, col, col, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// WriteCSV writes the report as CSV with a header row
func WriteCSV(rows []ReportRow, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"date", "shortcode", "url", "caption"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write([]string{row.Date, row.Shortcode, row.URL, row.Caption}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}
