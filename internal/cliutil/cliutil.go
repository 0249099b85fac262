// Package cliutil is the thin boundary to the external CLIs the harness
// orchestrates (velero, kubectl, kube-burner).
package cliutil

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// DependencyMissingError reports a required external CLI absent from PATH.
// Always fatal: monitoring never starts without its query tools.
type DependencyMissingError struct {
	Binary string
	Err    error
}

func (e *DependencyMissingError) Error() string {
	return fmt.Sprintf("required tool %q not found in PATH: %v", e.Binary, e.Err)
}

func (e *DependencyMissingError) Unwrap() error { return e.Err }

// CheckBinary verifies name resolves on PATH.
func CheckBinary(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return &DependencyMissingError{Binary: name, Err: err}
	}
	return nil
}

// Run executes a command and returns stdout and stderr separately.
func Run(name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// FirstLine trims output to its first non-empty line for one-line
// diagnostics.
func FirstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
