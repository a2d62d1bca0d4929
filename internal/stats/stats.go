// Package stats renders result history for the terminal.
package stats

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/verte-zerg/typestream/internal/model"
)

const sparkChars = " .:-=+*#%@"

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		out[i] = sum / float64(min(i+1, window))
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi-lo < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	last := len(sparkChars) - 1
	for _, v := range values {
		idx := int(math.Round((v - lo) / (hi - lo) * float64(last)))
		b.WriteByte(sparkChars[max(0, min(idx, last))])
	}
	return b.String()
}

// Downsample averages values into at most width buckets.
func Downsample(values []float64, width int) []float64 {
	if width <= 0 || len(values) <= width {
		return values
	}
	out := make([]float64, width)
	for i := range out {
		from := i * len(values) / width
		to := (i + 1) * len(values) / width
		var sum float64
		for _, v := range values[from:to] {
			sum += v
		}
		out[i] = sum / float64(to-from)
	}
	return out
}

// RenderSummary prints the aggregate figures.
func RenderSummary(w io.Writer, summary model.ResultSummary) error {
	if summary.Count == 0 {
		_, err := fmt.Fprintln(w, "No results found.")
		return err
	}
	lines := []string{
		"Summary",
		fmt.Sprintf("Sessions: %d", summary.Count),
		fmt.Sprintf("Avg WPM: %.2f", summary.AvgWPM),
		fmt.Sprintf("Best WPM: %.2f", summary.BestWPM),
		fmt.Sprintf("Last WPM: %.2f", summary.LastWPM),
		fmt.Sprintf("Avg Accuracy: %.2f%%", summary.AvgAccuracy),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderTrend prints smoothed WPM and accuracy sparklines no wider than width.
func RenderTrend(w io.Writer, results []model.Result, window, width int) error {
	if len(results) < 2 {
		return nil
	}
	wpms := make([]float64, len(results))
	accs := make([]float64, len(results))
	for i, r := range results {
		wpms[i] = r.WPM
		accs[i] = r.Accuracy
	}
	label := fmt.Sprintf("%-9s", "WPM")
	width -= len(label) + 1
	if _, err := fmt.Fprintf(w, "%s %s\n", label, Sparkline(Downsample(MovingAverage(wpms, window), width))); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%-9s %s\n\n", "Accuracy", Sparkline(Downsample(MovingAverage(accs, window), width))); err != nil {
		return err
	}
	return nil
}

// RenderResults prints one row per result.
func RenderResults(w io.Writer, results []model.Result) error {
	if len(results) == 0 {
		return nil
	}
	headers := []string{"Ended", "Words", "WPM", "Net", "Accuracy", "Errors/min", "Time"}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.EndedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", r.WordCount),
			fmt.Sprintf("%.2f", r.WPM),
			fmt.Sprintf("%.2f", r.NetWPM),
			fmt.Sprintf("%.2f%%", r.Accuracy),
			fmt.Sprintf("%.2f", r.ErrorRate),
			fmt.Sprintf("%.1fs", float64(r.DurationMs)/1000),
		})
	}
	rightAlign := map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
