// Package packager builds deployment bundles from trained adapters.
package packager

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// Ensure Zip implements the interface.
var _ driven.Packager = (*Zip)(nil)

// Bundle layout.
const (
	BundleDirName     = "bundle"
	ArchiveName       = "deployment_bundle.zip"
	ManifestFile      = "run_manifest.json"
	InferenceFile     = "inference_config.json"
	bundleAdapterName = "adapter"
)

// Zip writes the bundle directory and a zip archive of it.
type Zip struct{}

// NewZip creates a zip packager.
func NewZip() *Zip {
	return &Zip{}
}

// Package copies adapterDir into <targetDir>/bundle/adapter, writes the
// manifest and inference policy, and zips the bundle to
// <targetDir>/deployment_bundle.zip. An existing bundle is replaced.
func (z *Zip) Package(ctx context.Context, targetDir, adapterDir string, manifest domain.RunManifest) (string, error) {
	bundleRoot := filepath.Join(targetDir, BundleDirName)
	if err := os.RemoveAll(bundleRoot); err != nil {
		return "", fmt.Errorf("clearing bundle: %w", err)
	}
	if err := os.MkdirAll(bundleRoot, 0o755); err != nil {
		return "", fmt.Errorf("creating bundle: %w", err)
	}

	if err := copyTree(ctx, adapterDir, filepath.Join(bundleRoot, bundleAdapterName)); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(bundleRoot, ManifestFile), manifest); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(bundleRoot, InferenceFile), domain.DefaultInferencePolicy()); err != nil {
		return "", err
	}

	archivePath := filepath.Join(targetDir, ArchiveName)
	if err := zipDir(ctx, bundleRoot, archivePath); err != nil {
		return "", err
	}
	return archivePath, nil
}

// copyTree copies regular files and directories from src into dst.
func copyTree(ctx context.Context, src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("reading adapter directory: %w", err)
	}
	if !info.IsDir() {
		return domain.NewValidationError("adapter_path", src+" is not a directory")
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}

// zipDir archives the contents of root with paths relative to root.
func zipDir(ctx context.Context, root, archivePath string) error {
	f, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}

	zw := zip.NewWriter(f)
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if d.IsDir() {
			_, err := zw.Create(name + "/")
			return err
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(w, in)
		return err
	})

	closeErr := zw.Close()
	fileErr := f.Close()
	switch {
	case walkErr != nil:
		return fmt.Errorf("archiving bundle: %w", walkErr)
	case closeErr != nil:
		return fmt.Errorf("finalising archive: %w", closeErr)
	case fileErr != nil:
		return fmt.Errorf("closing archive: %w", fileErr)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
