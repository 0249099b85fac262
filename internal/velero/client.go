// Package velero answers typed status queries for backup and restore jobs
// by shelling out to the velero CLI with JSON output. The monitor never
// scrapes human-readable columns; everything flows through the object's
// structured status block.
package velero

import (
	"bytes"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/veloscale/velobench/internal/cliutil"
	"github.com/veloscale/velobench/internal/monitor"
)

// DefaultBinary is the velero CLI looked up on PATH when no explicit path
// is configured.
const DefaultBinary = "velero"

// Client runs velero CLI queries and decodes the returned objects.
type Client struct {
	binary string

	// run executes a command and returns stdout/stderr separately.
	// Swapped out in tests.
	run func(name string, args ...string) ([]byte, []byte, error)
}

// NewClient builds a status client for the given velero binary.
func NewClient(binary string) *Client {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Client{binary: binary, run: cliutil.Run}
}

// CheckBinary verifies the velero CLI is present before monitoring starts.
func (c *Client) CheckBinary() error {
	return cliutil.CheckBinary(c.binary)
}

// jobObject is the subset of the Backup/Restore object the monitor reads.
// Backups report itemsBackedUp, restores itemsRestored; both share
// totalItems.
type jobObject struct {
	Metadata struct {
		Name      string `json:"name"`
		Namespace string `json:"namespace"`
		UID       string `json:"uid"`
	} `json:"metadata"`
	Status struct {
		Phase    string `json:"phase"`
		Progress struct {
			TotalItems    int64 `json:"totalItems"`
			ItemsBackedUp int64 `json:"itemsBackedUp"`
			ItemsRestored int64 `json:"itemsRestored"`
		} `json:"progress"`
		Errors   int `json:"errors"`
		Warnings int `json:"warnings"`
	} `json:"status"`
}

// JobStatus implements monitor.StatusSource. A missing job wraps
// monitor.ErrJobNotFound; any other failure (CLI error, undecodable
// payload) is returned as-is and absorbed by the caller as a degraded tick.
func (c *Client) JobStatus(job monitor.JobHandle) (monitor.JobStatus, error) {
	stdout, stderr, err := c.run(c.binary,
		string(job.Kind), "get", job.Name,
		"--namespace", job.Namespace,
		"-o", "json")
	if err != nil {
		if isNotFound(stderr) {
			return monitor.JobStatus{}, fmt.Errorf("%s %q in namespace %s: %w",
				job.Kind, job.Name, job.Namespace, monitor.ErrJobNotFound)
		}
		return monitor.JobStatus{}, fmt.Errorf("velero %s get %s: %v: %s",
			job.Kind, job.Name, err, cliutil.FirstLine(stderr))
	}

	var obj jobObject
	if err := json.Unmarshal(stdout, &obj); err != nil {
		return monitor.JobStatus{}, fmt.Errorf("decode velero %s object: %w", job.Kind, err)
	}

	st := monitor.JobStatus{
		Phase:      MapPhase(obj.Status.Phase),
		ItemsTotal: obj.Status.Progress.TotalItems,
	}
	switch job.Kind {
	case monitor.KindRestore:
		st.ItemsDone = obj.Status.Progress.ItemsRestored
	default:
		st.ItemsDone = obj.Status.Progress.ItemsBackedUp
	}
	return st, nil
}

// MapPhase folds velero's full phase vocabulary onto the monitor's enum.
// Intermediate server-side phases count as InProgress; anything
// unrecognized is Unknown rather than an error.
func MapPhase(phase string) monitor.Phase {
	switch phase {
	case "New":
		return monitor.PhaseNew
	case "InProgress", "WaitingForPluginOperations", "Finalizing", "FinalizingPartiallyFailed":
		return monitor.PhaseInProgress
	case "Completed":
		return monitor.PhaseCompleted
	case "Failed", "FailedValidation":
		return monitor.PhaseFailed
	case "PartiallyFailed":
		return monitor.PhasePartiallyFailed
	default:
		if phase != "" {
			log.WithField("phase", phase).Debug("Unrecognized velero phase")
		}
		return monitor.PhaseUnknown
	}
}

func isNotFound(stderr []byte) bool {
	return bytes.Contains(bytes.ToLower(stderr), []byte("not found"))
}
