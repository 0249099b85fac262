package loadgen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunnerDefaultBinary(t *testing.T) {
	r := NewRunner("", "workload.yml")
	assert.Equal(t, DefaultBinary, r.Binary)

	r = NewRunner("/opt/kube-burner", "workload.yml")
	assert.Equal(t, "/opt/kube-burner", r.Binary)
}

func TestRunRequiresConfig(t *testing.T) {
	r := NewRunner("", "")
	_, err := r.Run(context.Background())
	require.Error(t, err)
}
