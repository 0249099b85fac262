// Package perflog owns the on-disk output of a monitoring session: the
// per-tick performance and resource logs, the leveled detail log, and the
// final summary. Formats are stable for downstream tooling (the analyze
// command and external spreadsheets).
package perflog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gosimple/slug"

	"github.com/veloscale/velobench/internal/monitor"
)

const timestampLayout = "2006-01-02 15:04:05"

// Session holds the open log files for one monitoring run. All files live
// under the session's output directory and are owned exclusively by this
// process, so writes are plain appends with no locking.
type Session struct {
	Dir       string
	SessionID string

	perfPath    string
	resPath     string
	detailPath  string
	summaryPath string

	perf   *os.File
	res    *os.File
	detail *os.File
}

// NewSession creates the output directory if absent, opens the per-tick log
// files and writes the performance log header. The summary file is not
// created until WriteSummary.
func NewSession(dir string, job monitor.JobHandle, sessionID string, start time.Time) (*Session, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", dir, err)
	}

	base := slug.Make(fmt.Sprintf("%s-%s", job.Kind, job.Name))
	s := &Session{
		Dir:         dir,
		SessionID:   sessionID,
		perfPath:    filepath.Join(dir, base+"_performance.csv"),
		resPath:     filepath.Join(dir, base+"_resources.csv"),
		detailPath:  filepath.Join(dir, base+"_detailed.log"),
		summaryPath: filepath.Join(dir, base+"_summary.txt"),
	}

	var err error
	if s.perf, err = os.OpenFile(s.perfPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err != nil {
		return nil, fmt.Errorf("open performance log: %w", err)
	}
	if s.res, err = os.OpenFile(s.resPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err != nil {
		s.Close()
		return nil, fmt.Errorf("open resource log: %w", err)
	}
	if s.detail, err = os.OpenFile(s.detailPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err != nil {
		s.Close()
		return nil, fmt.Errorf("open detailed log: %w", err)
	}

	fmt.Fprintf(s.perf, "# velobench performance log\n")
	fmt.Fprintf(s.perf, "# session: %s\n", sessionID)
	fmt.Fprintf(s.perf, "# job: %s\n", job)
	fmt.Fprintf(s.perf, "# started: %s\n", start.Format(timestampLayout))
	fmt.Fprintf(s.perf, "timestamp,phase,progress_blob,items_processed,total_items,items_per_second,phase_again,elapsed_seconds\n")
	fmt.Fprintf(s.res, "timestamp,cpu,memory,pod_phase\n")

	return s, nil
}

// PerformancePath returns the path of the per-tick performance log.
func (s *Session) PerformancePath() string { return s.perfPath }

// SummaryPath returns the path the summary will be written to.
func (s *Session) SummaryPath() string { return s.summaryPath }

// RecordPerformance appends one tick's sample to the performance log.
func (s *Session) RecordPerformance(sample monitor.StatusSample, rate float64) error {
	_, err := fmt.Fprintf(s.perf, "%s,%s,%s,%d,%d,%.2f,%s,%d\n",
		sample.Timestamp.Format(timestampLayout),
		sample.Phase,
		ProgressBlob(sample.ItemsDone, sample.ItemsTotal),
		sample.ItemsDone,
		sample.ItemsTotal,
		rate,
		sample.Phase,
		int64(sample.Elapsed.Seconds()),
	)
	return err
}

// RecordResources appends one tick's resource usage to the resource log.
func (s *Session) RecordResources(ts time.Time, res monitor.ResourceSample) error {
	_, err := fmt.Fprintf(s.res, "%s,%s,%s,%s\n",
		ts.Format(timestampLayout), res.CPU, res.Memory, res.PodPhase)
	return err
}

// WriteSummary writes the final session summary, replacing any previous
// summary file for this job.
func (s *Session) WriteSummary(sum monitor.SessionSummary) error {
	body := fmt.Sprintf(`velobench session summary
=========================
job_name:             %s
job_kind:             %s
namespace:            %s
session_id:           %s
final_phase:          %s
total_items:          %d
objects_processed:    %d
total_duration_sec:   %d
average_rate:         %.2f items/sec
degradation_detected: %t
generated_at:         %s
`,
		sum.Job.Name,
		sum.Job.Kind,
		sum.Job.Namespace,
		sum.SessionID,
		sum.FinalPhase,
		sum.ItemsTotal,
		sum.ItemsDone,
		int64(sum.Elapsed.Seconds()),
		sum.AverageRate,
		sum.DegradationDetected,
		sum.GeneratedAt.Format(timestampLayout),
	)
	return os.WriteFile(s.summaryPath, []byte(body), 0o644)
}

// Close flushes and closes all open log files.
func (s *Session) Close() {
	for _, f := range []*os.File{s.perf, s.res, s.detail} {
		if f != nil {
			f.Sync()
			f.Close()
		}
	}
	s.perf, s.res, s.detail = nil, nil, nil
}

// ProgressBlob renders the done/total pair the way the performance log and
// console line show it. An unknown total (zero) renders as "?".
func ProgressBlob(done, total int64) string {
	if total <= 0 {
		return fmt.Sprintf("%d/?", done)
	}
	return fmt.Sprintf("%d/%d", done, total)
}
