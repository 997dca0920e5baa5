// Package archive turns a transfer's file set into the single artifact that
// gets uploaded: one file passes through under a derived name, several files
// are packed into a zip preserving their layout relative to the job's work
// dir.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Build returns the local path to upload and its remote name. A single file
// keeps its own path and gets baseName plus the original extension when the
// base does not already carry it; multiple files become <baseName>.zip.
func Build(workDir string, files []string, baseName string) (string, string, error) {
	if len(files) == 0 {
		return "", "", fmt.Errorf("no files to package")
	}

	if len(files) == 1 {
		return files[0], singleFileName(baseName, files[0]), nil
	}

	zipName := baseName + ".zip"
	zipPath := filepath.Join(workDir, zipName)

	if err := writeZip(zipPath, workDir, files); err != nil {
		return "", "", err
	}

	return zipPath, zipName, nil
}

func singleFileName(baseName, file string) string {
	ext := filepath.Ext(file)
	if ext != "" && !strings.EqualFold(filepath.Ext(baseName), ext) {
		return baseName + ext
	}

	return baseName
}

func writeZip(zipPath, workDir string, files []string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	for _, file := range files {
		if err := addEntry(zw, workDir, file); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}

	return nil
}

func addEntry(zw *zip.Writer, workDir, file string) error {
	rel, err := filepath.Rel(workDir, file)
	if err != nil {
		rel = filepath.Base(file)
	}

	// Entries are stored deflate-compressed with forward-slash paths.
	w, err := zw.Create(filepath.ToSlash(rel))
	if err != nil {
		return fmt.Errorf("failed to create archive entry: %w", err)
	}

	in, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer in.Close()

	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("failed to write archive entry: %w", err)
	}

	return nil
}
