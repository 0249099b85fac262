// Package loadgen wraps kube-burner to drive the object churn the monitor
// measures. The tool is opaque: loadgen builds its arguments, streams its
// output through the logger and reports the exit status.
package loadgen

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/veloscale/velobench/internal/cliutil"
)

// DefaultBinary is the kube-burner CLI looked up on PATH when no explicit
// path is configured.
const DefaultBinary = "kube-burner"

// Runner invokes kube-burner for one load-generation run.
type Runner struct {
	Binary     string
	ConfigFile string
	LogLevel   string
	ExtraArgs  []string
}

// NewRunner builds a runner for the given kube-burner binary and workload
// config.
func NewRunner(binary, configFile string) *Runner {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Runner{Binary: binary, ConfigFile: configFile}
}

// CheckBinary verifies kube-burner is present before a run starts.
func (r *Runner) CheckBinary() error {
	return cliutil.CheckBinary(r.Binary)
}

// Run executes one kube-burner init run tagged with a fresh UUID so
// repeated runs never collide in kube-burner's own metrics. Output is
// streamed line by line through the logger.
func (r *Runner) Run(ctx context.Context) (string, error) {
	if r.ConfigFile == "" {
		return "", errors.New("kube-burner config file is required")
	}

	runID := uuid.New().String()
	args := []string{"init", "--config", r.ConfigFile, "--uuid", runID}
	if r.LogLevel != "" {
		args = append(args, "--log-level", r.LogLevel)
	}
	args = append(args, r.ExtraArgs...)

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return runID, err
	}
	cmd.Stderr = cmd.Stdout

	log.WithFields(log.Fields{
		"run_id": runID,
		"config": r.ConfigFile,
	}).Info("🔥 Starting kube-burner run")

	if err := cmd.Start(); err != nil {
		return runID, fmt.Errorf("start kube-burner: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			log.WithField("kube-burner", runID[:8]).Info(line)
		}
	}

	if err := cmd.Wait(); err != nil {
		return runID, fmt.Errorf("kube-burner run %s failed: %w", runID, err)
	}

	log.WithField("run_id", runID).Info("✅ kube-burner run complete")
	return runID, nil
}
