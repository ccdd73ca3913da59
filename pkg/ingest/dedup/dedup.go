package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mosaic-archive/mosaic/pkg/timeline"
)

// hashBufferSize is the chunk size for streaming file hashes (1 MiB).
const hashBufferSize = 1024 * 1024

// DuplicateInfo reports whether a file was previously imported. This is an
// advisory file-level check; callers decide whether to proceed.
type DuplicateInfo struct {
	IsDuplicate     bool       `json:"is_duplicate"`
	FileHash        string     `json:"file_hash"`
	ExistingRunID   uuid.UUID  `json:"existing_import_run_id,omitempty"`
	ExistingRunDate *time.Time `json:"existing_import_date,omitempty"`
	Message         string     `json:"message,omitempty"`
}

// RunFinder is the narrow persistence port the duplicate check needs.
type RunFinder interface {
	// FindCompletedRunByFileHash returns the most recent completed import
	// run with the given file hash, or nil when none exists.
	FindCompletedRunByFileHash(ctx context.Context, fileHash string) (*timeline.ImportRun, error)
}

// ComputeFileHash streams a file through SHA-256 in fixed-size chunks so
// large exports are never loaded into memory.
func ComputeFileHash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("file not found: %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("path is not a file: %s", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	buf := make([]byte, hashBufferSize)
	if _, err := io.CopyBuffer(hasher, file, buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// ComputeContentHash hashes entity content so semantically identical
// entities from different sources collide.
func ComputeContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ComputeContentHashString is ComputeContentHash over a UTF-8 string.
func ComputeContentHashString(content string) string {
	return ComputeContentHash([]byte(content))
}

// CheckDuplicate hashes the file at path and looks up the most recent
// completed import run with the same hash.
func CheckDuplicate(ctx context.Context, path string, finder RunFinder) (*DuplicateInfo, error) {
	fileHash, err := ComputeFileHash(path)
	if err != nil {
		return nil, err
	}

	existing, err := finder.FindCompletedRunByFileHash(ctx, fileHash)
	if err != nil {
		return nil, fmt.Errorf("duplicate lookup failed: %w", err)
	}

	if existing == nil {
		return &DuplicateInfo{IsDuplicate: false, FileHash: fileHash}, nil
	}

	started := existing.StartedAt
	return &DuplicateInfo{
		IsDuplicate:     true,
		FileHash:        fileHash,
		ExistingRunID:   existing.ID,
		ExistingRunDate: &started,
		Message: fmt.Sprintf(
			"This file was previously imported on %s. Re-importing will create duplicate entities unless they have matching content hashes.",
			started.Format("2006-01-02 15:04"),
		),
	}, nil
}
