package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// readyRun queues a run and drives it to READY.
func readyRun(t *testing.T) *domain.TrainingRun {
	t.Helper()
	queueRun(t)
	run, err := runOrchestrator.ProcessNextQueuedRun(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.RunReady, run.State)
	return run
}

func TestEvalShowCmd(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()
	run := readyRun(t)

	out, err := execute("eval", "show", run.ID)

	require.NoError(t, err)
	assert.Contains(t, out, "(run "+run.ID+")")
	assert.Contains(t, out, "Predictor:   reference")
	assert.Contains(t, out, "Exact match:")
	assert.Contains(t, out, "Report file:")
}

func TestEvalShowCmd_NoReport(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()
	run := queueRun(t)

	_, err := execute("eval", "show", run.ID)

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeployCreateCmd_ArchivesPrevious(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()
	first := readyRun(t)
	second := readyRun(t)

	out, err := execute("deploy", "create", first.ID, "--version", "v1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deployment v1 is active.")

	out, err = execute("deploy", "create", second.ID, "--version", "v2", "--endpoint", "http://serve.local/v2")
	require.NoError(t, err)
	assert.Contains(t, out, "Endpoint: http://serve.local/v2")

	out, err = execute("deploy", "active")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:  v2")
	assert.Contains(t, out, "Run:      "+second.ID)

	out, err = execute("deploy", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "archived")
	assert.Contains(t, out, "Total: 2 deployments")
}

func TestDeployCreateCmd_NotDeployable(t *testing.T) {
	tests := []struct {
		name    string
		version string
		ready   bool
	}{
		{"missing version", "", true},
		{"run not ready", "v1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := setupTestServices(t)
			defer cleanup()

			var runID string
			if tt.ready {
				runID = readyRun(t).ID
			} else {
				runID = queueRun(t).ID
			}

			args := []string{"deploy", "create", runID}
			if tt.version != "" {
				args = append(args, "--version", tt.version)
			}
			_, err := execute(args...)

			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestDeployActiveCmd_None(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()

	out, err := execute("deploy", "active")

	require.NoError(t, err)
	assert.Contains(t, out, "No active deployment.")
}
