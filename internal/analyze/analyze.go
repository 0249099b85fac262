// Package analyze post-processes performance logs written by the monitor:
// session statistics plus degradation windows. It shares its thresholds
// with the monitor so the two tools never disagree about what counts as
// degraded.
package analyze

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// Record is one parsed performance-log row.
type Record struct {
	Timestamp      time.Time
	Phase          string
	ItemsDone      int64
	ItemsTotal     int64
	Rate           float64
	ElapsedSeconds int64
}

// Thresholds mirror the monitor's degradation settings.
type Thresholds struct {
	LowRate float64
	Items   int64
}

// Degraded reports whether a single record sits in degraded territory.
func (t Thresholds) Degraded(r Record) bool {
	return r.ItemsDone > t.Items && r.Rate < t.LowRate
}

// Window is a run of consecutive degraded ticks.
type Window struct {
	Start   time.Time
	End     time.Time
	Ticks   int
	MinRate float64
}

// Report summarizes one performance log.
type Report struct {
	Records            int
	FinalPhase         string
	ItemsDone          int64
	ItemsTotal         int64
	DurationSeconds    int64
	AverageRate        float64
	PeakRate           float64
	DegradationWindows []Window
}

// ParseFile reads a performance log, skipping header comments and the
// column header. Malformed rows are skipped rather than failing the whole
// file; a partially written last line is the normal case on a live log.
func ParseFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open performance log: %w", err)
	}
	defer f.Close()
	return parseRecords(f), nil
}

func parseRecords(r io.Reader) []Record {
	var records []Record
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if rec, ok := ParseLine(scanner.Text()); ok {
			records = append(records, rec)
		}
	}
	return records
}

// ParseLine parses one data row. Returns false for comments, the column
// header and malformed rows.
func ParseLine(line string) (Record, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "timestamp,") {
		return Record{}, false
	}
	fields := strings.Split(line, ",")
	if len(fields) != 8 {
		return Record{}, false
	}

	ts, err := time.Parse(timestampLayout, fields[0])
	if err != nil {
		return Record{}, false
	}
	items, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Record{}, false
	}
	total, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return Record{}, false
	}
	rate, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return Record{}, false
	}
	elapsed, err := strconv.ParseInt(fields[7], 10, 64)
	if err != nil {
		return Record{}, false
	}

	return Record{
		Timestamp:      ts,
		Phase:          fields[1],
		ItemsDone:      items,
		ItemsTotal:     total,
		Rate:           rate,
		ElapsedSeconds: elapsed,
	}, true
}

// Analyze computes session statistics and degradation windows over parsed
// records.
func Analyze(records []Record, t Thresholds) Report {
	rep := Report{Records: len(records)}
	if len(records) == 0 {
		return rep
	}

	last := records[len(records)-1]
	rep.FinalPhase = last.Phase
	rep.ItemsDone = last.ItemsDone
	rep.ItemsTotal = last.ItemsTotal
	rep.DurationSeconds = last.ElapsedSeconds
	if rep.DurationSeconds > 0 {
		rep.AverageRate = float64(rep.ItemsDone) / float64(rep.DurationSeconds)
	}

	var open *Window
	for _, rec := range records {
		if rec.Rate > rep.PeakRate {
			rep.PeakRate = rec.Rate
		}
		if t.Degraded(rec) {
			if open == nil {
				open = &Window{Start: rec.Timestamp, MinRate: rec.Rate}
			}
			open.End = rec.Timestamp
			open.Ticks++
			if rec.Rate < open.MinRate {
				open.MinRate = rec.Rate
			}
			continue
		}
		if open != nil {
			rep.DegradationWindows = append(rep.DegradationWindows, *open)
			open = nil
		}
	}
	if open != nil {
		rep.DegradationWindows = append(rep.DegradationWindows, *open)
	}
	return rep
}

// Format renders a report for the console.
func Format(rep Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "records:          %d\n", rep.Records)
	fmt.Fprintf(&b, "final phase:      %s\n", rep.FinalPhase)
	fmt.Fprintf(&b, "items processed:  %d of %d\n", rep.ItemsDone, rep.ItemsTotal)
	fmt.Fprintf(&b, "duration:         %ds\n", rep.DurationSeconds)
	fmt.Fprintf(&b, "average rate:     %.2f items/sec\n", rep.AverageRate)
	fmt.Fprintf(&b, "peak rate:        %.2f items/sec\n", rep.PeakRate)
	if len(rep.DegradationWindows) == 0 {
		fmt.Fprintf(&b, "degradation:      none\n")
		return b.String()
	}
	fmt.Fprintf(&b, "degradation:      %d window(s)\n", len(rep.DegradationWindows))
	for i, w := range rep.DegradationWindows {
		fmt.Fprintf(&b, "  window %d: %s -> %s (%d ticks, min %.2f items/sec)\n",
			i+1,
			w.Start.Format(timestampLayout),
			w.End.Format(timestampLayout),
			w.Ticks,
			w.MinRate)
	}
	return b.String()
}
