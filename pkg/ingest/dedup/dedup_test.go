package dedup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mosaic-archive/mosaic/pkg/timeline"
)

type stubRunFinder struct {
	run *timeline.ImportRun
}

func (s stubRunFinder) FindCompletedRunByFileHash(ctx context.Context, fileHash string) (*timeline.ImportRun, error) {
	return s.run, nil
}

func TestComputeFileHashDeterministic(t *testing.T) {
	dir := t.TempDir()

	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")
	if err := os.WriteFile(a, []byte("identical payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("identical payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	hashA, err := ComputeFileHash(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hashB, err := ComputeFileHash(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hashA != hashB {
		t.Fatal("identical content must hash identically")
	}
	if len(hashA) != 64 {
		t.Fatalf("expected hex SHA-256, got %q", hashA)
	}

	c := filepath.Join(dir, "c.bin")
	if err := os.WriteFile(c, []byte("different payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	hashC, err := ComputeFileHash(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hashC == hashA {
		t.Fatal("different content must hash differently")
	}
}

func TestComputeFileHashRejectsDirectories(t *testing.T) {
	if _, err := ComputeFileHash(t.TempDir()); err == nil {
		t.Fatal("expected error for directory")
	}
	if _, err := ComputeFileHash(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestComputeContentHash(t *testing.T) {
	if ComputeContentHash([]byte("x")) != ComputeContentHashString("x") {
		t.Fatal("byte and string hashing must agree")
	}
	if ComputeContentHashString("x") == ComputeContentHashString("y") {
		t.Fatal("different content must hash differently")
	}
}

func TestCheckDuplicateNoMatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.zip")
	if err := os.WriteFile(path, []byte("archive bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := CheckDuplicate(context.Background(), path, stubRunFinder{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.IsDuplicate {
		t.Fatal("expected no duplicate")
	}
	if info.FileHash == "" {
		t.Fatal("expected the file hash to be reported")
	}
}

func TestCheckDuplicateMatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.zip")
	if err := os.WriteFile(path, []byte("archive bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	run := timeline.NewImportRun(timeline.NewImportSource(timeline.SourceGeneric, "export.zip", "").ID, "")
	info, err := CheckDuplicate(context.Background(), path, stubRunFinder{run: run})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !info.IsDuplicate {
		t.Fatal("expected a duplicate")
	}
	if info.ExistingRunID != run.ID {
		t.Fatal("expected the existing run id to be reported")
	}
	if info.Message == "" {
		t.Fatal("expected an advisory message")
	}
}
