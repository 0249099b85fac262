package kubectl

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const podListJSON = `{
  "items": [
    {"metadata": {"name": "velero-7d9c5bf5d8-x2j4q"}, "status": {"phase": "Running"}}
  ]
}`

func TestParseTopLine(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		cpu     string
		mem     string
		wantErr bool
	}{
		{
			name: "single pod",
			out:  "velero-7d9c5bf5d8-x2j4q   120m   256Mi\n",
			cpu:  "120m", mem: "256Mi",
		},
		{
			name: "multiple pods takes first",
			out:  "velero-a   80m   128Mi\nvelero-b   90m   200Mi\n",
			cpu:  "80m", mem: "128Mi",
		},
		{name: "empty output", out: "", wantErr: true},
		{name: "whitespace only", out: "  \n \n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cpu, mem, err := ParseTopLine(tt.out)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cpu, cpu)
			assert.Equal(t, tt.mem, mem)
		})
	}
}

func TestPodUsage(t *testing.T) {
	c := NewClient("")
	c.run = func(name string, args ...string) ([]byte, []byte, error) {
		if args[0] == "top" {
			return []byte("velero-7d9c5bf5d8-x2j4q   120m   256Mi\n"), nil, nil
		}
		return []byte(podListJSON), nil, nil
	}

	res, err := c.PodUsage("velero", "deploy=velero")
	require.NoError(t, err)
	assert.Equal(t, "120m", res.CPU)
	assert.Equal(t, "256Mi", res.Memory)
	assert.Equal(t, "Running", res.PodPhase)
}

func TestPodUsageMetricsUnavailable(t *testing.T) {
	c := NewClient("")
	c.run = func(name string, args ...string) ([]byte, []byte, error) {
		return nil, []byte("error: Metrics API not available"), errors.New("exit status 1")
	}

	res, err := c.PodUsage("velero", "deploy=velero")
	require.Error(t, err)
	// Callers record the placeholder sample as-is on failure.
	assert.Equal(t, "N/A", res.CPU)
	assert.Equal(t, "N/A", res.Memory)
	assert.Equal(t, "N/A", res.PodPhase)
}

func TestPodUsagePhaseFailureKeepsMetrics(t *testing.T) {
	c := NewClient("")
	c.run = func(name string, args ...string) ([]byte, []byte, error) {
		if args[0] == "top" {
			return []byte("velero-7d9c5bf5d8-x2j4q   120m   256Mi\n"), nil, nil
		}
		return nil, []byte("forbidden"), errors.New("exit status 1")
	}

	res, err := c.PodUsage("velero", "deploy=velero")
	require.NoError(t, err)
	assert.Equal(t, "120m", res.CPU)
	assert.Equal(t, "N/A", res.PodPhase)
}

func TestPodUsageArguments(t *testing.T) {
	var calls [][]string
	c := NewClient("kubectl")
	c.run = func(name string, args ...string) ([]byte, []byte, error) {
		calls = append(calls, args)
		if args[0] == "top" {
			return []byte("velero-x   10m   64Mi\n"), nil, nil
		}
		return []byte(podListJSON), nil, nil
	}

	_, err := c.PodUsage("velero-system", "app=velero")
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "top", calls[0][0])
	assert.True(t, contains(calls[0], "velero-system"))
	assert.True(t, contains(calls[0], "app=velero"))
	assert.Equal(t, "get", calls[1][0])
}

func contains(args []string, want string) bool {
	return strings.Contains(strings.Join(args, " "), want)
}
