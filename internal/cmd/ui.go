package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fcjr/sdburn/internal/device"
	"github.com/fcjr/sdburn/internal/image"
	"github.com/fcjr/sdburn/internal/progress"
	"github.com/schollz/progressbar/v3"
)

const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Bold   = "\033[1m"
)

var stdin = bufio.NewReader(os.Stdin)

func printHeader(w io.Writer, info image.Info) {
	fmt.Fprintf(w, "\n%s%s🔥 sdburn%s\n", Bold, Yellow, Reset)
	fmt.Fprintf(w, "%s%s═══════════════%s\n\n", Bold, Yellow, Reset)
	fmt.Fprintf(w, "%sImage file: %s%s%s\n", Bold, Green, info.Path, Reset)
	fmt.Fprintf(w, "%sImage size: %s (%s)%s\n", Bold, FormatBytes(info.Size), info.Codec, Reset)
	if info.Codec.Compressed() {
		fmt.Fprintf(w, "%sExpands to: %s%s\n", Bold, imageSizeLabel(info), Reset)
	}
	fmt.Fprintln(w)
}

func displayDevices(w io.Writer, devices []device.Device) {
	fmt.Fprintf(w, "\n%sAvailable storage devices:%s\n", Bold, Reset)
	for i, d := range devices {
		fmt.Fprintf(w, "  %s%d.%s %s\n", Cyan, i+1, Reset, deviceLine(d))
	}
}

func deviceLine(d device.Device) string {
	status := ""
	if d.Mounted() {
		status = fmt.Sprintf(" (mounted at %s)", strings.Join(d.MountPoints, ", "))
	}
	media := "fixed"
	if d.RemovableMedia() {
		media = "removable"
	}
	return fmt.Sprintf("%s - %s - %s %s - %s%s",
		d.Path, FormatBytes(int64(d.Size)), d.Kind, media, d.Description(), status)
}

// prompt prints question and returns the trimmed answer.
func prompt(question string) (string, error) {
	fmt.Print(question)
	input, err := stdin.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(input), nil
}

// choose asks for a 1-based index into n items.
func choose(what string, n int) (int, error) {
	for {
		input, err := prompt(fmt.Sprintf("\n%sSelect %s (1-%d, or 'q' to quit): %s", Bold, what, n, Reset))
		if err != nil {
			return 0, err
		}
		if input == "q" || input == "quit" {
			return 0, fmt.Errorf("operation cancelled")
		}

		choice, err := strconv.Atoi(input)
		if err != nil || choice < 1 || choice > n {
			fmt.Printf("%sInvalid selection. Please enter a number between 1 and %d.%s\n", Red, n, Reset)
			continue
		}
		return choice - 1, nil
	}
}

// confirmErase is the interactive confirmation passed to the writer.
func confirmErase(question string) bool {
	fmt.Printf("\n%s⚠️  WARNING: %s%s\n", Red, question, Reset)
	answer, err := prompt(fmt.Sprintf("%sType 'yes' to continue: %s", Bold, Reset))
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "yes" || answer == "y"
}

// newProgressBar renders monitor events as a byte progress bar on stderr.
func newProgressBar(total int64) (progress.Handler, *progressbar.ProgressBar) {
	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetDescription("Writing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	var attempts attemptTracker
	handler := func(e progress.Event) {
		if attempts.restarted(e) {
			bar.Reset()
		}
		if e.Done {
			_ = bar.Finish()
			fmt.Fprintln(os.Stderr)
			return
		}
		_ = bar.Set64(int64(e.Written))
	}
	return handler, bar
}

// attemptTracker spots the first event of a retried write. Each attempt runs
// its own monitor, so written bytes and elapsed time start over.
type attemptTracker struct {
	last     progress.Event
	started  bool
	finished bool
}

func (t *attemptTracker) restarted(e progress.Event) bool {
	restart := t.started && (t.finished || e.Written < t.last.Written || e.Elapsed < t.last.Elapsed)
	t.last, t.started, t.finished = e, true, e.Done
	return restart
}

func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}
