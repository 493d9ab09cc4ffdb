package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/rampfire/internal/runner"
)

// TimestampLayout renders level boundaries with microsecond precision.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// FormatTimestamp formats t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Report is the final dump of a ramp.
type Report struct {
	RunID  string               `json:"run_id" yaml:"run_id"`
	Levels []runner.LevelResult `json:"levels" yaml:"levels"`
}

// NewReport assembles the final dump.
func NewReport(runID string, levels []runner.LevelResult) Report {
	if levels == nil {
		levels = []runner.LevelResult{}
	}
	return Report{RunID: runID, Levels: levels}
}

// FormatLevelLine renders the one-line summary printed when a level ends.
func FormatLevelLine(r runner.LevelResult) string {
	latency := "n/a"
	if r.Snapshot.Latency != nil {
		latency = formatMs(r.Snapshot.Latency.P90)
	}
	return fmt.Sprintf("%d start_time: %s end_time: %s latency: %s",
		r.Concurrency, FormatTimestamp(r.Start), FormatTimestamp(r.End), latency)
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, report Report, colors *ColorScheme) {
	c := colors
	if c == nil {
		c = NoColorScheme()
	}
	fmt.Fprintln(w, c.Header.Sprint("\n--- Ramp Results ---"))
	fmt.Fprintf(w, "Run ID:            %s\n", report.RunID)
	fmt.Fprintf(w, "Levels:            %d\n", len(report.Levels))

	for _, r := range report.Levels {
		snap := r.Snapshot
		fmt.Fprintf(w, "\nConcurrency %d\n", r.Concurrency)
		fmt.Fprintf(w, "  Start:           %s\n", FormatTimestamp(r.Start))
		fmt.Fprintf(w, "  End:             %s\n", FormatTimestamp(r.End))
		fmt.Fprintf(w, "  Duration:        %s\n", r.Duration().Round(time.Millisecond))
		fmt.Fprintf(w, "  Measurements:    %d\n", snap.Count)
		fmt.Fprintf(w, "  Successful:      %d\n", snap.Successes)
		if snap.Failures > 0 {
			fmt.Fprintf(w, "  Failed:          %s\n", c.Failure.Sprintf("%d (%.2f%%)", snap.Failures, snap.FailureRate))
		} else {
			fmt.Fprintf(w, "  Failed:          %d (%.2f%%)\n", snap.Failures, snap.FailureRate)
		}
		if l := snap.Latency; l != nil {
			fmt.Fprintln(w, "  Latency:")
			fmt.Fprintf(w, "    Min:           %s\n", formatMs(l.Min))
			fmt.Fprintf(w, "    Max:           %s\n", formatMs(l.Max))
			fmt.Fprintf(w, "    Mean:          %s\n", formatMs(l.Mean))
			fmt.Fprintf(w, "    P50:           %s\n", c.Latency.Sprint(formatMs(l.P50)))
			fmt.Fprintf(w, "    P90:           %s\n", c.Latency.Sprint(formatMs(l.P90)))
			fmt.Fprintf(w, "    Std:           %s\n", formatMs(l.StdDev))
		}
		if snap.Overall.Recorded > int64(snap.Count) || snap.Overall.P99 > 0 {
			fmt.Fprintf(w, "  Overall:         %d recorded, %d failed, p99=%s\n",
				snap.Overall.Recorded, snap.Overall.Failures, formatMs(snap.Overall.P99))
		}
		if len(snap.FailureReasons) > 0 {
			fmt.Fprintln(w, "  Failure Reasons:")
			writeFailureReasons(w, snap.FailureReasons, "    ")
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, report Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}

func writeFailureReasons(w io.Writer, reasons map[string]int, indent string) {
	names := make([]string, 0, len(reasons))
	for name := range reasons {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if reasons[names[i]] != reasons[names[j]] {
			return reasons[names[i]] > reasons[names[j]]
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		fmt.Fprintf(w, "%s%s: %d\n", indent, name, reasons[name])
	}
}
