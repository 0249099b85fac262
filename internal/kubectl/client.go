// Package kubectl samples resource usage of the pods doing the backup
// work. Everything here is best-effort: a cluster without metrics-server,
// a missing pod or a slow API all degrade to placeholder values instead of
// failing the monitoring tick.
package kubectl

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/veloscale/velobench/internal/cliutil"
	"github.com/veloscale/velobench/internal/monitor"
)

// DefaultBinary is the kubectl CLI looked up on PATH when no explicit path
// is configured.
const DefaultBinary = "kubectl"

// Client queries pod metrics and pod phase through kubectl.
type Client struct {
	binary string

	run func(name string, args ...string) ([]byte, []byte, error)
}

// NewClient builds a resource-usage client for the given kubectl binary.
func NewClient(binary string) *Client {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Client{binary: binary, run: cliutil.Run}
}

// CheckBinary verifies the kubectl CLI is present before monitoring starts.
func (c *Client) CheckBinary() error {
	return cliutil.CheckBinary(c.binary)
}

// podList is the subset of the pod list object the phase lookup reads.
type podList struct {
	Items []struct {
		Status struct {
			Phase string `json:"phase"`
		} `json:"status"`
	} `json:"items"`
}

// PodUsage implements monitor.ResourceSource: cpu/memory from
// `kubectl top pod` plus the pod phase from the structured pod object.
// A failed metrics query still returns the pod phase when that part
// succeeded.
func (c *Client) PodUsage(namespace, selector string) (monitor.ResourceSample, error) {
	res := monitor.UnavailableResources()

	out, stderr, err := c.run(c.binary,
		"top", "pod",
		"--namespace", namespace,
		"--selector", selector,
		"--no-headers")
	if err != nil {
		return res, fmt.Errorf("kubectl top pod: %v: %s", err, cliutil.FirstLine(stderr))
	}

	cpu, mem, perr := ParseTopLine(string(out))
	if perr != nil {
		return res, perr
	}
	res.CPU = cpu
	res.Memory = mem

	if phase, err := c.podPhase(namespace, selector); err == nil && phase != "" {
		res.PodPhase = phase
	}
	return res, nil
}

func (c *Client) podPhase(namespace, selector string) (string, error) {
	out, stderr, err := c.run(c.binary,
		"get", "pod",
		"--namespace", namespace,
		"--selector", selector,
		"-o", "json")
	if err != nil {
		return "", fmt.Errorf("kubectl get pod: %v: %s", err, cliutil.FirstLine(stderr))
	}
	var pods podList
	if err := json.Unmarshal(out, &pods); err != nil {
		return "", fmt.Errorf("decode pod list: %w", err)
	}
	if len(pods.Items) == 0 {
		return "", fmt.Errorf("no pods match selector %q in %s", selector, namespace)
	}
	return pods.Items[0].Status.Phase, nil
}

// ParseTopLine extracts cpu and memory from the first row of
// `kubectl top pod --no-headers` output ("NAME CPU MEMORY").
func ParseTopLine(out string) (cpu, mem string, err error) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 3 {
			return fields[1], fields[2], nil
		}
	}
	return "", "", fmt.Errorf("no usage rows in kubectl top output")
}
