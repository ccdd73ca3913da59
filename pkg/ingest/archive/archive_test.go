package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating zip: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range files {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("adding %s: %v", name, err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
}

func writeTarGz(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating tar.gz: %v", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	for name, content := range files {
		header := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(header); err != nil {
			t.Fatalf("tar header %s: %v", name, err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("tar body %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("closing gzip: %v", err)
	}
}

func TestIsArchive(t *testing.T) {
	dir := t.TempDir()

	zipPath := filepath.Join(dir, "export.zip")
	writeZip(t, zipPath, map[string]string{"a.txt": "hello"})
	if !IsArchive(zipPath) {
		t.Fatal("expected zip to be recognised")
	}

	plain := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(plain, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if IsArchive(plain) {
		t.Fatal("expected plain file to be rejected")
	}
	if IsArchive(dir) {
		t.Fatal("expected directory to be rejected")
	}
	if IsArchive(filepath.Join(dir, "missing.zip")) {
		t.Fatal("expected missing file to be rejected")
	}
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "export.zip")
	writeZip(t, zipPath, map[string]string{
		"readme.txt":      "top",
		"photos/pic.jpg":  "bytes",
		"photos/meta.txt": "meta",
	})

	extracted, err := Extract(zipPath, "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer extracted.Cleanup()

	if !extracted.IsTemporary {
		t.Fatal("expected a temp extraction dir")
	}
	content, err := os.ReadFile(filepath.Join(extracted.ExtractPath, "photos", "pic.jpg"))
	if err != nil {
		t.Fatalf("expected extracted file: %v", err)
	}
	if string(content) != "bytes" {
		t.Fatalf("unexpected content %q", content)
	}

	extracted.Cleanup()
	if _, err := os.Stat(extracted.ExtractPath); !os.IsNotExist(err) {
		t.Fatal("expected cleanup to remove the temp dir")
	}
	// second call must not panic
	extracted.Cleanup()
}

func TestExtractTarGz(t *testing.T) {
	dir := t.TempDir()
	tarPath := filepath.Join(dir, "export.tar.gz")
	writeTarGz(t, tarPath, map[string]string{"data/notes.md": "note body"})

	extracted, err := Extract(tarPath, "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer extracted.Cleanup()

	content, err := os.ReadFile(filepath.Join(extracted.ExtractPath, "data", "notes.md"))
	if err != nil {
		t.Fatalf("expected extracted file: %v", err)
	}
	if string(content) != "note body" {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "evil.zip")
	writeZip(t, zipPath, map[string]string{
		"ok.txt":        "fine",
		"../escape.txt": "evil",
	})

	before := countTempDirs(t)
	_, err := Extract(zipPath, "", false)
	if err == nil {
		t.Fatal("expected extraction to fail")
	}
	if !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("expected ErrUnsafePath, got %v", err)
	}
	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected ExtractionError, got %T", err)
	}
	if after := countTempDirs(t); after != before {
		t.Fatalf("expected failed extraction to remove its temp dir, had %d now %d", before, after)
	}
}

func countTempDirs(t *testing.T) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "mosaic_extract_*"))
	if err != nil {
		t.Fatal(err)
	}
	return len(matches)
}

func TestExtractUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.rar")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Extract(path, "", false); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExtractNestedArchives(t *testing.T) {
	dir := t.TempDir()

	innerPath := filepath.Join(dir, "inner.zip")
	writeZip(t, innerPath, map[string]string{"deep.txt": "nested content"})
	innerBytes, err := os.ReadFile(innerPath)
	if err != nil {
		t.Fatal(err)
	}

	outerPath := filepath.Join(dir, "outer.zip")
	writeZip(t, outerPath, map[string]string{
		"top.txt":   "top content",
		"inner.zip": string(innerBytes),
	})

	extracted, err := Extract(outerPath, "", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer extracted.Cleanup()

	content, err := os.ReadFile(filepath.Join(extracted.ExtractPath, "inner", "deep.txt"))
	if err != nil {
		t.Fatalf("expected nested archive contents: %v", err)
	}
	if string(content) != "nested content" {
		t.Fatalf("unexpected content %q", content)
	}

	if _, err := os.Stat(filepath.Join(extracted.ExtractPath, "inner.zip")); !os.IsNotExist(err) {
		t.Fatal("expected nested archive to be deleted after extraction")
	}
}

func TestExtractedPassesThroughDirectoriesAndFiles(t *testing.T) {
	dir := t.TempDir()

	path, cleanup, err := Extracted(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cleanup()
	if path != dir {
		t.Fatalf("expected directory passthrough, got %q", path)
	}

	plain := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(plain, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	path, cleanup, err = Extracted(plain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cleanup()
	if path != plain {
		t.Fatalf("expected file passthrough, got %q", path)
	}

	if _, err := os.Stat(dir); err != nil {
		t.Fatal("passthrough cleanup must not remove the source")
	}
}

func TestExtractedArchiveCleanup(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "export.zip")
	writeZip(t, zipPath, map[string]string{"a.txt": "hello"})

	path, cleanup, err := Extracted(zipPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path == zipPath {
		t.Fatal("expected extraction into a separate directory")
	}
	if _, err := os.Stat(filepath.Join(path, "a.txt")); err != nil {
		t.Fatalf("expected extracted file: %v", err)
	}

	cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected cleanup to remove the extraction dir")
	}

	if _, err := os.Stat(zipPath); err != nil {
		t.Fatal("cleanup must not touch the source archive")
	}
}

func TestExtractedCleanupRunsOnPanic(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "export.zip")
	writeZip(t, zipPath, map[string]string{"a.txt": "hello"})

	var extractPath string
	func() {
		defer func() { recover() }()

		path, cleanup, err := Extracted(zipPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer cleanup()
		extractPath = path
		panic("caller blew up")
	}()

	if _, err := os.Stat(extractPath); !os.IsNotExist(err) {
		t.Fatal("expected deferred cleanup to run on panic")
	}
}

func TestExtractedMissingPath(t *testing.T) {
	_, cleanup, err := Extracted(filepath.Join(t.TempDir(), "missing.zip"))
	if err == nil {
		t.Fatal("expected error for missing path")
	}
	if cleanup == nil {
		t.Fatal("cleanup must never be nil")
	}
	cleanup()
}
