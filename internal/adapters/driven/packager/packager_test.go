package packager

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

func makeAdapter(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "adapter")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "extra"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "adapter_model.safetensors"), []byte("weights"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "adapter_config.json"), []byte(`{"r":16}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra", "notes.txt"), []byte("n"), 0o644))
	return dir
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	files := make(map[string]string)
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		files[f.Name] = string(data)
	}
	return files
}

func TestZip_Package(t *testing.T) {
	target := filepath.Join(t.TempDir(), "package")
	manifest := domain.RunManifest{
		RunID:            "r1",
		DatasetVersionID: "ds1",
		BaseModelID:      "Qwen/Qwen2.5-7B-Instruct",
		EvalReportID:     "e1",
	}

	archive, err := NewZip().Package(context.Background(), target, makeAdapter(t), manifest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(target, ArchiveName), archive)

	files := readZip(t, archive)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"adapter/adapter_config.json",
		"adapter/adapter_model.safetensors",
		"adapter/extra/notes.txt",
		"inference_config.json",
		"run_manifest.json",
	}, names)
	assert.Equal(t, "weights", files["adapter/adapter_model.safetensors"])

	var gotManifest domain.RunManifest
	require.NoError(t, json.Unmarshal([]byte(files["run_manifest.json"]), &gotManifest))
	assert.Equal(t, manifest, gotManifest)

	var policy domain.InferencePolicy
	require.NoError(t, json.Unmarshal([]byte(files["inference_config.json"]), &policy))
	assert.True(t, policy.RuntimePolicy.MustGroundFacts)
	assert.True(t, policy.RuntimePolicy.RefusalOnMissingContext)
	assert.Equal(t, "/api/v1/inference/chat", policy.API.Path)
}

func TestZip_Package_ReplacesExistingBundle(t *testing.T) {
	target := t.TempDir()
	stale := filepath.Join(target, BundleDirName, "stale.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	archive, err := NewZip().Package(context.Background(), target, makeAdapter(t), domain.RunManifest{RunID: "r1"})
	require.NoError(t, err)

	assert.NoFileExists(t, stale)
	assert.NotContains(t, readZip(t, archive), "stale.txt")
}

func TestZip_Package_MissingAdapter(t *testing.T) {
	_, err := NewZip().Package(context.Background(), t.TempDir(), "/does/not/exist", domain.RunManifest{})
	assert.Error(t, err)
}

func TestZip_Package_AdapterIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "weights.bin")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := NewZip().Package(context.Background(), t.TempDir(), file, domain.RunManifest{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
