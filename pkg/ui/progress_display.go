package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// ProgressDisplay is a single-line Reporter for plain terminals. In verbose
// mode it prints one line per event instead of redrawing.
type ProgressDisplay struct {
	mu         sync.Mutex
	out        io.Writer
	verbose    bool
	username   string
	stage      Stage
	total      int
	downloaded int
	skipped    int
	failed     int
	bytes      int64
	current    string
	startTime  time.Time
}

// NewProgressDisplay creates a ProgressDisplay writing to out
func NewProgressDisplay(out io.Writer, verbose bool) *ProgressDisplay {
	return &ProgressDisplay{
		out:       out,
		verbose:   verbose,
		startTime: time.Now(),
	}
}

// SetStage starts a new pipeline stage
func (p *ProgressDisplay) SetStage(stage Stage, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stage == StageDownload && stage != StageDownload && !p.verbose {
		fmt.Fprintln(p.out)
	}
	p.stage = stage
	p.current = ""

	switch stage {
	case StageDownload:
		fmt.Fprintf(p.out, "%s Downloading @%s\n", Magenta("→"), detail)
	case StageURLs:
		fmt.Fprintf(p.out, "%s Writing post URL files\n", Magenta("→"))
	case StageCompress:
		fmt.Fprintf(p.out, "%s Compressing media\n", Magenta("→"))
	case StageDone:
		p.printSummary()
	}
}

// SetTotal records the number of posts on the profile
func (p *ProgressDisplay) SetTotal(username string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.username = username
	p.total = total
}

// StartDownload marks the start of a new download
func (p *ProgressDisplay) StartDownload(id, filename string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = filename
	if !p.verbose {
		p.printProgress()
	}
}

// CompleteDownload marks a download as complete
func (p *ProgressDisplay) CompleteDownload(id string, size int64, skipped bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if skipped {
		p.skipped++
	} else {
		p.downloaded++
		p.bytes += size
	}

	if p.verbose {
		if skipped {
			fmt.Fprintf(p.out, "%s %s %s\n", Dim("="), id, Dim("(exists)"))
		} else {
			fmt.Fprintf(p.out, "%s %s • %s\n", Green("✓"), id, humanize.Bytes(uint64(size)))
		}
		return
	}
	p.printProgress()
}

// FailDownload marks a download as failed
func (p *ProgressDisplay) FailDownload(id string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failed++
	if p.verbose {
		fmt.Fprintf(p.out, "%s %s - %v\n", Red("✗"), id, err)
		return
	}
	p.printProgress()
}

// RateLimited shows a rate limit warning
func (p *ProgressDisplay) RateLimited(wait time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\n%s Rate limited by Instagram. Try again in %s\n",
		Yellow("⚠"), formatDuration(wait))
}

func (p *ProgressDisplay) LogInfo(format string, args ...interface{}) {
	p.log(Cyan("•"), format, args...)
}

func (p *ProgressDisplay) LogSuccess(format string, args ...interface{}) {
	p.log(Green("✓"), format, args...)
}

func (p *ProgressDisplay) LogWarning(format string, args ...interface{}) {
	p.log(Yellow("⚠"), format, args...)
}

func (p *ProgressDisplay) LogError(format string, args ...interface{}) {
	p.log(Red("✗"), format, args...)
}

func (p *ProgressDisplay) log(prefix, format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	lead := ""
	if !p.verbose && p.stage == StageDownload && p.current != "" {
		lead = "\n"
	}
	fmt.Fprintf(p.out, "%s%s %s\n", lead, prefix, fmt.Sprintf(format, args...))
}

// printProgress redraws the progress line
func (p *ProgressDisplay) printProgress() {
	done := p.downloaded + p.skipped + p.failed

	line := fmt.Sprintf("%s %s files • %s • %s",
		Cyan("@"+p.username),
		humanize.Comma(int64(done)),
		humanize.Bytes(uint64(p.bytes)),
		formatDuration(time.Since(p.startTime)),
	)
	if p.total > 0 {
		line += fmt.Sprintf(" • %s posts on profile", humanize.Comma(int64(p.total)))
	}
	if p.failed > 0 {
		line += " • " + Red(fmt.Sprintf("%d failed", p.failed))
	}
	if p.current != "" {
		line += " • " + Dim(p.current)
	}

	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 120), line)
}

func (p *ProgressDisplay) printSummary() {
	elapsed := time.Since(p.startTime)
	fmt.Fprintf(p.out, "\n%s Downloaded %d files from @%s (%d already present)\n",
		Green("✓"), p.downloaded, p.username, p.skipped)
	fmt.Fprintf(p.out, "  %s %s in %s\n", Dim("•"), humanize.Bytes(uint64(p.bytes)), formatDuration(elapsed))
	if p.failed > 0 {
		fmt.Fprintf(p.out, "  %s %d downloads failed\n", Dim("•"), p.failed)
	}
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
