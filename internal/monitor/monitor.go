package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Recorder persists per-tick samples and the final summary. Satisfied by
// perflog.Session; tests substitute an in-memory implementation.
type Recorder interface {
	RecordPerformance(sample StatusSample, rate float64) error
	RecordResources(ts time.Time, res ResourceSample) error
	WriteSummary(sum SessionSummary) error
}

// Config carries the validated settings a Monitor runs with.
type Config struct {
	Job              JobHandle
	SessionID        string
	PollInterval     time.Duration
	PodSelector      string
	LowRateThreshold float64 // items/sec below which throughput counts as degraded
	DegradationItems int64   // items processed before degradation checks apply
}

// Monitor observes one external job until it reaches a terminal phase,
// recording throughput per tick and flagging sustained degradation at most
// once per session. Single goroutine, blocking sleeps between ticks; the
// observed job runs out-of-process and is never affected by the monitor.
type Monitor struct {
	cfg       Config
	status    StatusSource
	resources ResourceSource
	rec       Recorder
	logger    *log.Logger
	console   *Console

	// injected for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.RWMutex
	start    time.Time
	last     StatusSample
	lastRate float64
	degraded bool
	summary  *SessionSummary
}

// New builds a monitor. resources and console may be nil; logger must not be.
func New(cfg Config, status StatusSource, resources ResourceSource, rec Recorder, logger *log.Logger) *Monitor {
	return &Monitor{
		cfg:       cfg,
		status:    status,
		resources: resources,
		rec:       rec,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// SetConsole attaches a live console status line. Optional.
func (m *Monitor) SetConsole(c *Console) { m.console = c }

// Run executes the polling loop until the job reaches a terminal phase or
// ctx is cancelled. On terminal phase it writes the summary and returns it;
// on cancellation it returns ctx.Err() with no summary (logs already
// appended stay on disk).
func (m *Monitor) Run(ctx context.Context) (SessionSummary, error) {
	start := m.now()
	m.mu.Lock()
	m.start = start
	m.mu.Unlock()

	m.logger.WithFields(log.Fields{
		"job":           m.cfg.Job.String(),
		"session_id":    m.cfg.SessionID,
		"poll_interval": m.cfg.PollInterval,
	}).Info("🚀 Monitoring started")

	var prev *StatusSample
	for {
		sample := m.observe(start)

		rate := 0.0
		if prev != nil {
			rate = rateBetween(*prev, sample)
		}

		if err := m.rec.RecordPerformance(sample, rate); err != nil {
			m.logger.WithError(err).Warn("Failed to append performance record")
		}

		m.recordResources(sample.Timestamp)
		m.checkDegradation(sample, rate, prev != nil)
		m.publish(sample, rate)

		if m.console != nil {
			m.console.Update(sample, rate)
		}

		if sample.Phase.Terminal() {
			sum := m.finish(sample)
			return sum, nil
		}

		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			m.logger.Info("🛑 Monitoring interrupted")
			return SessionSummary{}, err
		}
		s := sample
		prev = &s
	}
}

// observe issues one status query. Any failure or unparseable answer
// degrades to Unknown/0 for this tick only; the loop never aborts on a
// single bad poll.
func (m *Monitor) observe(start time.Time) StatusSample {
	now := m.now()
	sample := StatusSample{
		Timestamp: now,
		Phase:     PhaseUnknown,
		Elapsed:   now.Sub(start),
	}

	st, err := m.status.JobStatus(m.cfg.Job)
	if err != nil {
		m.logger.WithError(err).WithField("job", m.cfg.Job.String()).
			Debug("Status query failed, recording Unknown for this tick")
		return sample
	}

	sample.Phase = st.Phase
	sample.ItemsDone = st.ItemsDone
	sample.ItemsTotal = st.ItemsTotal
	return sample
}

// recordResources samples worker pod usage on a best-effort basis. A failed
// usage query records placeholders and never contaminates the status sample.
func (m *Monitor) recordResources(ts time.Time) {
	res := UnavailableResources()
	if m.resources != nil {
		got, err := m.resources.PodUsage(m.cfg.Job.Namespace, m.cfg.PodSelector)
		if err != nil {
			m.logger.WithError(err).Debug("Resource usage query unavailable")
		} else {
			res = got
		}
	}
	if err := m.rec.RecordResources(ts, res); err != nil {
		m.logger.WithError(err).Warn("Failed to append resource record")
	}
}

// checkDegradation records the degradation event at most once per session:
// the first tick where enough items have been processed for the rate to be
// meaningful and the rate sits below the configured floor.
func (m *Monitor) checkDegradation(sample StatusSample, rate float64, haveRate bool) {
	if m.degraded || !haveRate {
		return
	}
	if sample.ItemsDone > m.cfg.DegradationItems && rate < m.cfg.LowRateThreshold {
		m.mu.Lock()
		m.degraded = true
		m.mu.Unlock()
		m.logger.WithFields(log.Fields{
			"items_processed": sample.ItemsDone,
			"items_per_sec":   fmt.Sprintf("%.2f", rate),
			"threshold":       m.cfg.LowRateThreshold,
		}).Warn("⚠️ Performance degradation detected")
	}
}

// finish builds the summary, persists it and logs the session outcome. The
// monitor's own exit is successful regardless of the job's final phase.
func (m *Monitor) finish(sample StatusSample) SessionSummary {
	avg := 0.0
	if secs := sample.Elapsed.Seconds(); secs > 0 {
		avg = float64(sample.ItemsDone) / secs
	}

	sum := SessionSummary{
		Job:                 m.cfg.Job,
		SessionID:           m.cfg.SessionID,
		FinalPhase:          sample.Phase,
		ItemsDone:           sample.ItemsDone,
		ItemsTotal:          sample.ItemsTotal,
		Elapsed:             sample.Elapsed,
		AverageRate:         avg,
		DegradationDetected: m.degraded,
		GeneratedAt:         m.now(),
	}

	if err := m.rec.WriteSummary(sum); err != nil {
		m.logger.WithError(err).Error("Failed to write session summary")
	}

	m.mu.Lock()
	m.summary = &sum
	m.mu.Unlock()

	if m.console != nil {
		m.console.Finish()
	}

	m.logger.WithFields(log.Fields{
		"final_phase":   sum.FinalPhase,
		"items":         sum.ItemsDone,
		"elapsed":       sum.Elapsed.Round(time.Second),
		"avg_items_sec": fmt.Sprintf("%.2f", sum.AverageRate),
		"degraded":      sum.DegradationDetected,
	}).Info("✅ Monitoring session complete")

	return sum
}

// publish stores the latest sample for concurrent readers (the status API).
func (m *Monitor) publish(sample StatusSample, rate float64) {
	m.mu.Lock()
	m.last = sample
	m.lastRate = rate
	m.mu.Unlock()
}

// Status is the monitor's externally visible state, served by the live
// status API.
type Status struct {
	Job            string  `json:"job"`
	Kind           JobKind `json:"kind"`
	Namespace      string  `json:"namespace"`
	SessionID      string  `json:"session_id"`
	Phase          Phase   `json:"phase"`
	ItemsDone      int64   `json:"items_processed"`
	ItemsTotal     int64   `json:"total_items"`
	ItemsPerSecond float64 `json:"items_per_second"`
	ElapsedSeconds int64   `json:"elapsed_seconds"`
	Degraded       bool    `json:"degradation_detected"`
	Done           bool    `json:"done"`
}

// Snapshot returns the current session state. Safe for concurrent use.
func (m *Monitor) Snapshot() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Status{
		Job:            m.cfg.Job.Name,
		Kind:           m.cfg.Job.Kind,
		Namespace:      m.cfg.Job.Namespace,
		SessionID:      m.cfg.SessionID,
		Phase:          m.last.Phase,
		ItemsDone:      m.last.ItemsDone,
		ItemsTotal:     m.last.ItemsTotal,
		ItemsPerSecond: m.lastRate,
		ElapsedSeconds: int64(m.last.Elapsed.Seconds()),
		Degraded:       m.degraded,
		Done:           m.summary != nil,
	}
	if st.Phase == "" {
		st.Phase = PhaseUnknown
	}
	return st
}

// sleepContext blocks for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
