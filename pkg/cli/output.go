package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/wxauto/wxprobe/pkg/core"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

const tableWidth = 72

// printRunSummary prints the per-step table of a controller run.
func printRunSummary(w io.Writer, result *core.RunResult) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %sRun%s %s  %s%s%s\n",
		color(colorBold), color(colorReset), result.RunID,
		color(colorGray), result.Device, color(colorReset))
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
	fmt.Fprintf(w, "  %-4s %-20s %-10s %10s  %s\n", "#", "Step", "Status", "Duration", "Detail")
	fmt.Fprintln(w, strings.Repeat("─", tableWidth))

	for i, s := range result.Steps {
		label, statusColor := statusLabel(s.Status)
		detail := s.Message
		if s.Error != "" {
			detail = s.Error
		}
		dur := "-"
		if s.Status != core.StatusSkipped {
			dur = formatDuration(s.Duration)
		}
		fmt.Fprintf(w, "  %-4d %-20s %s%-10s%s %10s  %s\n",
			i+1, s.Name, statusColor, label, color(colorReset), dur, detail)
		for _, a := range s.Attachments {
			fmt.Fprintf(w, "       %s╰─ %s%s\n", color(colorGray), a.Path, color(colorReset))
		}
	}

	fmt.Fprintln(w, strings.Repeat("─", tableWidth))
	label, statusColor := statusLabel(result.Status)
	fmt.Fprintf(w, "  %s%-25s%s %s%-10s%s %10s  %d/%d passed\n",
		color(colorBold), "TOTAL", color(colorReset),
		statusColor, label, color(colorReset),
		formatDuration(result.Duration), result.PassedSteps+result.WarnedSteps, result.TotalSteps)
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))

	if result.Interrupted {
		fmt.Fprintf(w, "  %sInterrupted%s\n", color(colorYellow), color(colorReset))
	}
}

func statusLabel(s core.StepStatus) (string, string) {
	switch s {
	case core.StatusPassed:
		return "✓ PASS", color(colorGreen)
	case core.StatusWarned:
		return "⚠ WARN", color(colorYellow)
	case core.StatusSkipped:
		return "- SKIP", color(colorCyan)
	case core.StatusFailed:
		return "✗ FAIL", color(colorRed)
	case core.StatusErrored:
		return "✗ ERROR", color(colorRed)
	default:
		return strings.ToUpper(s.String()), ""
	}
}

// formatDuration shows milliseconds below one second, seconds below a
// minute and minutes above.
func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
