package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/custodia-labs/lorastudio/internal/adapters/driving/cli"
)

func tracerRecording(t *testing.T) bool {
	t.Helper()
	_, span := otel.Tracer("wire-test").Start(context.Background(), "bootstrap-check")
	defer span.End()
	return span.IsRecording()
}

func TestBootstrap_Wires(t *testing.T) {
	svc, err := bootstrap(context.Background(), cli.Options{
		ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
		DataDir:    t.TempDir(),
	})
	require.NoError(t, err)
	assert.True(t, tracerRecording(t))

	require.NoError(t, svc.Close())
	assert.False(t, tracerRecording(t), "providers are shut down on Close")
}

func TestBootstrap_StoreErrorShutsDownTelemetry(t *testing.T) {
	dataDir := t.TempDir()
	// A directory where the database file belongs makes the sqlite open fail.
	require.NoError(t, os.Mkdir(filepath.Join(dataDir, "lorastudio.db"), 0o755))

	_, err := bootstrap(context.Background(), cli.Options{
		ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
		DataDir:    dataDir,
	})
	require.Error(t, err)
	assert.False(t, tracerRecording(t), "providers are shut down after a failed bootstrap")
}
