package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/gofrs/flock"

	"github.com/torosent/rampfire/internal/runner"
)

var csvHeader = []string{
	"run_id", "start_time", "end_time", "concurrency",
	"count", "failures", "failure_rate",
	"min_ms", "max_ms", "p50_ms", "p90_ms", "std_ms", "p99_ms",
}

// WriteCSV writes one row per level, optionally preceded by the header row.
func WriteCSV(w io.Writer, results []runner.LevelResult, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
	}
	for _, r := range results {
		if err := cw.Write(csvRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// AppendResultsFile appends rows to the CSV file at path, writing the header
// when the file is new or empty. A sibling .lock file serializes writers.
func AppendResultsFile(path string, results ...runner.LevelResult) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock results file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open results file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat results file: %w", err)
	}
	if err := WriteCSV(f, results, info.Size() == 0); err != nil {
		_ = f.Close()
		return fmt.Errorf("write results file: %w", err)
	}
	return f.Close()
}

func csvRow(r runner.LevelResult) []string {
	s := r.Snapshot
	row := []string{
		r.RunID,
		FormatTimestamp(r.Start),
		FormatTimestamp(r.End),
		strconv.Itoa(r.Concurrency),
		strconv.Itoa(s.Count),
		strconv.Itoa(s.Failures),
		formatFloat(s.FailureRate),
	}
	if l := s.Latency; l != nil {
		row = append(row,
			formatFloat(l.MinMs),
			formatFloat(l.MaxMs),
			formatFloat(l.P50Ms),
			formatFloat(l.P90Ms),
			formatFloat(l.StdDevMs),
		)
	} else {
		row = append(row, "", "", "", "", "")
	}
	if s.Overall.P99 > 0 {
		row = append(row, formatFloat(s.Overall.P99Ms))
	} else {
		row = append(row, "")
	}
	return row
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
