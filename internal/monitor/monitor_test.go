package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource replays a fixed sequence of answers, holding the last one
// once the script runs out.
type scriptedSource struct {
	statuses []JobStatus
	errs     []error
	calls    int
}

func (s *scriptedSource) JobStatus(job JobHandle) (JobStatus, error) {
	i := s.calls
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return JobStatus{}, s.errs[i]
	}
	return s.statuses[i], nil
}

type scriptedResources struct {
	sample ResourceSample
	err    error
}

func (s *scriptedResources) PodUsage(namespace, selector string) (ResourceSample, error) {
	if s.err != nil {
		return ResourceSample{}, s.err
	}
	return s.sample, nil
}

type perfRecord struct {
	sample StatusSample
	rate   float64
}

type memRecorder struct {
	perf    []perfRecord
	res     []ResourceSample
	summary *SessionSummary
}

func (r *memRecorder) RecordPerformance(s StatusSample, rate float64) error {
	r.perf = append(r.perf, perfRecord{sample: s, rate: rate})
	return nil
}

func (r *memRecorder) RecordResources(ts time.Time, res ResourceSample) error {
	r.res = append(r.res, res)
	return nil
}

func (r *memRecorder) WriteSummary(sum SessionSummary) error {
	r.summary = &sum
	return nil
}

// newTestMonitor wires a monitor with a simulated clock: each sleep
// advances time by the poll interval, so tick N observes elapsed
// N*interval without real waiting.
func newTestMonitor(t *testing.T, cfg Config, src StatusSource, res ResourceSource) (*Monitor, *memRecorder, *logtest.Hook) {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(log.DebugLevel)

	rec := &memRecorder{}
	m := New(cfg, src, res, rec, logger)

	clock := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	m.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		clock = clock.Add(d)
		return nil
	}
	return m, rec, hook
}

func testConfig() Config {
	return Config{
		Job:              JobHandle{Kind: KindBackup, Name: "scale-30k", Namespace: "velero"},
		SessionID:        "test-session",
		PollInterval:     10 * time.Second,
		PodSelector:      "deploy=velero",
		LowRateThreshold: 5.0,
		DegradationItems: 5000,
	}
}

func TestRateBetween(t *testing.T) {
	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	sample := func(offset time.Duration, items int64) StatusSample {
		return StatusSample{Timestamp: base.Add(offset), ItemsDone: items}
	}

	tests := []struct {
		name string
		prev StatusSample
		cur  StatusSample
		want float64
	}{
		{"steady progress", sample(0, 100), sample(10*time.Second, 200), 10},
		{"no progress", sample(0, 100), sample(10*time.Second, 100), 0},
		{"negative item delta", sample(0, 200), sample(10*time.Second, 100), 0},
		{"zero time delta", sample(0, 100), sample(0, 200), 0},
		{"negative time delta", sample(10*time.Second, 100), sample(0, 200), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rateBetween(tt.prev, tt.cur))
		})
	}
}

func TestRunTerminatesOnTerminalPhase(t *testing.T) {
	for _, terminal := range []Phase{PhaseCompleted, PhaseFailed, PhasePartiallyFailed} {
		t.Run(string(terminal), func(t *testing.T) {
			src := &scriptedSource{statuses: []JobStatus{
				{Phase: PhaseNew},
				{Phase: PhaseUnknown},
				{Phase: PhaseInProgress, ItemsDone: 100, ItemsTotal: 1000},
				{Phase: terminal, ItemsDone: 1000, ItemsTotal: 1000},
			}}
			m, rec, _ := newTestMonitor(t, testConfig(), src, nil)

			sum, err := m.Run(context.Background())
			require.NoError(t, err)

			// Non-terminal phases (New, Unknown, InProgress) all kept the
			// loop alive; only the terminal tick ended it.
			assert.Len(t, rec.perf, 4)
			assert.Equal(t, terminal, sum.FinalPhase)
			require.NotNil(t, rec.summary)
			assert.Equal(t, terminal, rec.summary.FinalPhase)
		})
	}
}

func TestElapsedMonotonic(t *testing.T) {
	src := &scriptedSource{statuses: []JobStatus{
		{Phase: PhaseInProgress, ItemsDone: 10},
		{Phase: PhaseInProgress, ItemsDone: 20},
		{Phase: PhaseInProgress, ItemsDone: 30},
		{Phase: PhaseCompleted, ItemsDone: 40},
	}}
	m, rec, _ := newTestMonitor(t, testConfig(), src, nil)

	_, err := m.Run(context.Background())
	require.NoError(t, err)

	var prev time.Duration = -1
	for _, p := range rec.perf {
		assert.GreaterOrEqual(t, p.sample.Elapsed, prev)
		prev = p.sample.Elapsed
	}
}

func TestTransientQueryFailureDegradesTickOnly(t *testing.T) {
	src := &scriptedSource{
		statuses: []JobStatus{
			{Phase: PhaseInProgress, ItemsDone: 100, ItemsTotal: 1000},
			{}, // replaced by the error below
			{Phase: PhaseInProgress, ItemsDone: 300, ItemsTotal: 1000},
			{Phase: PhaseCompleted, ItemsDone: 1000, ItemsTotal: 1000},
		},
		errs: []error{nil, errors.New("connection refused"), nil, nil},
	}
	m, rec, _ := newTestMonitor(t, testConfig(), src, nil)

	_, err := m.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, rec.perf, 4)
	bad := rec.perf[1].sample
	assert.Equal(t, PhaseUnknown, bad.Phase)
	assert.Zero(t, bad.ItemsDone)
	// The degraded tick never produces a negative or poisoned rate on the
	// next sample either: 300-0 over one interval.
	assert.Equal(t, 30.0, rec.perf[2].rate)
}

func TestDegradationFiresAtMostOnce(t *testing.T) {
	// Crosses the item threshold with a slow rate on tick 3 and is slow
	// again on tick 7; exactly one warning may fire.
	src := &scriptedSource{statuses: []JobStatus{
		{Phase: PhaseInProgress, ItemsDone: 4000},
		{Phase: PhaseInProgress, ItemsDone: 5480}, // 148/s, above threshold
		{Phase: PhaseInProgress, ItemsDone: 5500}, // 2/s -> degradation
		{Phase: PhaseInProgress, ItemsDone: 6500},
		{Phase: PhaseInProgress, ItemsDone: 7500},
		{Phase: PhaseInProgress, ItemsDone: 7540},
		{Phase: PhaseInProgress, ItemsDone: 7550}, // 1/s, already recorded
		{Phase: PhaseCompleted, ItemsDone: 8000},
	}}
	m, rec, hook := newTestMonitor(t, testConfig(), src, nil)

	sum, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.DegradationDetected)
	require.NotNil(t, rec.summary)
	assert.True(t, rec.summary.DegradationDetected)

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings)
}

func TestNoDegradationBelowItemThreshold(t *testing.T) {
	// Rate is far below the threshold the whole time, but the session
	// never processes enough items for the check to apply.
	src := &scriptedSource{statuses: []JobStatus{
		{Phase: PhaseInProgress, ItemsDone: 10},
		{Phase: PhaseInProgress, ItemsDone: 20},
		{Phase: PhaseCompleted, ItemsDone: 30},
	}}
	m, _, _ := newTestMonitor(t, testConfig(), src, nil)

	sum, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, sum.DegradationDetected)
}

func TestSummaryAverageRate(t *testing.T) {
	// Completed on the sixth tick: 150000 items over 50 seconds.
	src := &scriptedSource{statuses: []JobStatus{
		{Phase: PhaseNew},
		{Phase: PhaseInProgress, ItemsDone: 30000, ItemsTotal: 150000},
		{Phase: PhaseInProgress, ItemsDone: 60000, ItemsTotal: 150000},
		{Phase: PhaseInProgress, ItemsDone: 90000, ItemsTotal: 150000},
		{Phase: PhaseInProgress, ItemsDone: 120000, ItemsTotal: 150000},
		{Phase: PhaseCompleted, ItemsDone: 150000, ItemsTotal: 150000},
	}}
	m, _, _ := newTestMonitor(t, testConfig(), src, nil)

	sum, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(150000), sum.ItemsDone)
	assert.Equal(t, 50*time.Second, sum.Elapsed)
	assert.InDelta(t, 3000.0, sum.AverageRate, 0.001)
	assert.False(t, sum.DegradationDetected)
}

func TestResourceFailureDoesNotContaminateStatus(t *testing.T) {
	src := &scriptedSource{statuses: []JobStatus{
		{Phase: PhaseInProgress, ItemsDone: 100},
		{Phase: PhaseCompleted, ItemsDone: 200},
	}}
	res := &scriptedResources{err: errors.New("metrics-server unavailable")}
	m, rec, _ := newTestMonitor(t, testConfig(), src, res)

	_, err := m.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, rec.perf, 2)
	require.Len(t, rec.res, 2)
	for _, r := range rec.res {
		assert.Equal(t, UnavailableResources(), r)
	}
	assert.Equal(t, PhaseInProgress, rec.perf[0].sample.Phase)
}

func TestResourceSampleRecorded(t *testing.T) {
	src := &scriptedSource{statuses: []JobStatus{
		{Phase: PhaseCompleted, ItemsDone: 10},
	}}
	res := &scriptedResources{sample: ResourceSample{CPU: "120m", Memory: "256Mi", PodPhase: "Running"}}
	m, rec, _ := newTestMonitor(t, testConfig(), src, res)

	_, err := m.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, rec.res, 1)
	assert.Equal(t, "120m", rec.res[0].CPU)
	assert.Equal(t, "Running", rec.res[0].PodPhase)
}

func TestCancellationStopsBetweenTicks(t *testing.T) {
	src := &scriptedSource{statuses: []JobStatus{
		{Phase: PhaseInProgress, ItemsDone: 100},
	}}
	m, rec, _ := newTestMonitor(t, testConfig(), src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	// The first tick still ran and was recorded; no summary was written.
	assert.Len(t, rec.perf, 1)
	assert.Nil(t, rec.summary)
}

func TestSnapshotTracksLatestSample(t *testing.T) {
	src := &scriptedSource{statuses: []JobStatus{
		{Phase: PhaseInProgress, ItemsDone: 500, ItemsTotal: 1000},
		{Phase: PhaseCompleted, ItemsDone: 1000, ItemsTotal: 1000},
	}}
	m, _, _ := newTestMonitor(t, testConfig(), src, nil)

	before := m.Snapshot()
	assert.Equal(t, PhaseUnknown, before.Phase)
	assert.False(t, before.Done)

	_, err := m.Run(context.Background())
	require.NoError(t, err)

	after := m.Snapshot()
	assert.Equal(t, PhaseCompleted, after.Phase)
	assert.Equal(t, int64(1000), after.ItemsDone)
	assert.True(t, after.Done)
}
