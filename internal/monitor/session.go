package monitor

import (
	"errors"
	"fmt"
	"time"
)

// JobKind identifies which Velero object type a session observes.
type JobKind string

const (
	KindBackup  JobKind = "backup"
	KindRestore JobKind = "restore"
)

// Phase is the observed lifecycle phase of a backup or restore job. The
// external system owns the phase; the monitor only reads it and reacts to
// the three terminal values.
type Phase string

const (
	PhaseUnknown         Phase = "Unknown"
	PhaseNew             Phase = "New"
	PhaseInProgress      Phase = "InProgress"
	PhaseCompleted       Phase = "Completed"
	PhaseFailed          Phase = "Failed"
	PhasePartiallyFailed Phase = "PartiallyFailed"
)

// Terminal reports whether the phase ends a monitoring session.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhasePartiallyFailed:
		return true
	}
	return false
}

// JobHandle identifies the external job under observation. Immutable once
// monitoring starts.
type JobHandle struct {
	Kind      JobKind
	Name      string
	Namespace string
}

func (j JobHandle) String() string {
	return fmt.Sprintf("%s/%s/%s", j.Namespace, j.Kind, j.Name)
}

// JobStatus is one structured answer from a StatusSource.
type JobStatus struct {
	Phase      Phase
	ItemsDone  int64
	ItemsTotal int64
}

// StatusSample is one polling observation of the job.
type StatusSample struct {
	Timestamp  time.Time
	Phase      Phase
	ItemsDone  int64
	ItemsTotal int64
	Elapsed    time.Duration
}

// ResourceSample is a best-effort snapshot of the worker pod's resource
// usage. Fields hold "N/A" when the usage query was unavailable.
type ResourceSample struct {
	CPU      string
	Memory   string
	PodPhase string
}

// UnavailableResources is recorded for ticks where the usage query failed.
func UnavailableResources() ResourceSample {
	return ResourceSample{CPU: "N/A", Memory: "N/A", PodPhase: "N/A"}
}

// SessionSummary is the final record of a monitoring session, produced
// exactly once when the job reaches a terminal phase.
type SessionSummary struct {
	Job                 JobHandle
	SessionID           string
	FinalPhase          Phase
	ItemsDone           int64
	ItemsTotal          int64
	Elapsed             time.Duration
	AverageRate         float64
	DegradationDetected bool
	GeneratedAt         time.Time
}

// ErrJobNotFound is returned (possibly wrapped) by a StatusSource when the
// named job does not exist in the external store.
var ErrJobNotFound = errors.New("job not found")

// StatusSource answers typed status queries for a job. Implementations must
// wrap ErrJobNotFound when the job does not exist so the preflight check can
// distinguish a missing job from a transient query failure.
type StatusSource interface {
	JobStatus(job JobHandle) (JobStatus, error)
}

// ResourceSource answers best-effort resource-usage queries for the pods
// doing the work.
type ResourceSource interface {
	PodUsage(namespace, selector string) (ResourceSample, error)
}

// rateBetween derives items/second from two consecutive samples. A zero or
// negative time delta, or a negative item delta (the external system
// reported a smaller count), yields exactly 0.
func rateBetween(prev, cur StatusSample) float64 {
	dt := cur.Timestamp.Sub(prev.Timestamp).Seconds()
	if dt <= 0 {
		return 0
	}
	di := cur.ItemsDone - prev.ItemsDone
	if di <= 0 {
		return 0
	}
	return float64(di) / dt
}
