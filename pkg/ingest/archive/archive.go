package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mosaic-archive/mosaic/pkg/common/logger"
)

// MaxNestedDepth bounds recursive extraction of archives inside archives.
const MaxNestedDepth = 2

var (
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	ErrUnsafePath        = errors.New("unsafe path in archive")
)

// ExtractionError wraps any fault that occurs while extracting an archive.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ExtractedArchive owns the directory an archive was extracted into.
type ExtractedArchive struct {
	SourcePath  string
	ExtractPath string
	IsTemporary bool
}

// Cleanup removes the extraction directory if it was a generated temp dir.
// Safe to call more than once.
func (a *ExtractedArchive) Cleanup() {
	if !a.IsTemporary {
		return
	}
	if _, err := os.Stat(a.ExtractPath); err == nil {
		logger.Log.WithField("path", a.ExtractPath).Debug("cleaning up extraction directory")
		os.RemoveAll(a.ExtractPath)
	}
}

// IsArchive reports whether the path looks like a supported archive file.
// Recognised: zip, tar, tar.gz/tgz, tar.bz2/tbz2.
func IsArchive(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return archiveType(path) != ""
}

// archiveType classifies a path by suffix: "zip", "tar", "tgz", "tbz2",
// or "" when it is not a recognised archive.
func archiveType(path string) string {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".zip"):
		return "zip"
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return "tgz"
	case strings.HasSuffix(name, ".tar.bz2"), strings.HasSuffix(name, ".tbz2"):
		return "tbz2"
	case strings.HasSuffix(name, ".tar"):
		return "tar"
	case strings.Contains(name, ".tar."):
		return "tar"
	}
	return ""
}

// Extract extracts an archive into destPath, or into a fresh temp directory
// when destPath is empty. With extractNested, archives found inside the
// output are expanded in place up to MaxNestedDepth levels. On failure a
// generated temp directory is removed before the error is returned.
func Extract(archivePath, destPath string, extractNested bool) (*ExtractedArchive, error) {
	format := archiveType(archivePath)
	if format == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, archivePath)
	}

	isTemporary := destPath == ""
	if isTemporary {
		dir, err := os.MkdirTemp("", "mosaic_extract_")
		if err != nil {
			return nil, &ExtractionError{Path: archivePath, Err: err}
		}
		destPath = dir
	}

	logger.Log.WithFields(map[string]interface{}{
		"archive": archivePath,
		"dest":    destPath,
	}).Info("Extracting archive")

	if err := extractOne(archivePath, destPath, format); err != nil {
		if isTemporary {
			os.RemoveAll(destPath)
		}
		return nil, &ExtractionError{Path: archivePath, Err: err}
	}

	if extractNested {
		extractNestedArchives(destPath, MaxNestedDepth)
	}

	return &ExtractedArchive{
		SourcePath:  archivePath,
		ExtractPath: destPath,
		IsTemporary: isTemporary,
	}, nil
}

func extractOne(archivePath, destPath, format string) error {
	if format == "zip" {
		return extractZip(archivePath, destPath)
	}
	return extractTar(archivePath, destPath, format)
}

// unsafeEntry flags archive member names that would escape the
// destination directory.
func unsafeEntry(name string) bool {
	return strings.HasPrefix(name, "/") || strings.Contains(name, "..")
}

func extractZip(archivePath, destPath string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer reader.Close()

	// Reject traversal attempts before writing anything.
	for _, f := range reader.File {
		if unsafeEntry(f.Name) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, f.Name)
		}
	}

	for _, f := range reader.File {
		target := filepath.Join(destPath, f.Name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := writeZipEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func writeZipEntry(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode().Perm()|0o200)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

func extractTar(archivePath, destPath, format string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	var stream io.Reader = file
	switch format {
	case "tgz":
		gz, err := gzip.NewReader(file)
		if err != nil {
			return err
		}
		defer gz.Close()
		stream = gz
	case "tbz2":
		stream = bzip2.NewReader(file)
	}

	tr := tar.NewReader(stream)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if unsafeEntry(header.Name) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, header.Name)
		}

		target := filepath.Join(destPath, header.Name)
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := writeTarEntry(tr, target, header); err != nil {
				return err
			}
		default:
			// symlinks, devices etc. are skipped
		}
	}
}

func writeTarEntry(tr *tar.Reader, target string, header *tar.Header) error {
	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(header.Mode).Perm()|0o200)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, tr)
	return err
}

// extractNestedArchives expands archive files found under basePath in place.
// Each nested archive is extracted into a directory named after it (minus the
// archive suffix) and deleted afterwards; failures are logged and skipped.
func extractNestedArchives(basePath string, depth int) {
	if depth <= 0 {
		return
	}

	var nested []string
	filepath.WalkDir(basePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && IsArchive(path) {
			nested = append(nested, path)
		}
		return nil
	})

	for _, archivePath := range nested {
		dest := nestedDestination(archivePath)
		if err := os.MkdirAll(dest, 0o755); err != nil {
			logger.Log.WithError(err).WithField("archive", archivePath).Warn("failed to prepare nested extraction dir")
			continue
		}

		logger.Log.WithField("archive", archivePath).Debug("extracting nested archive")
		if err := extractOne(archivePath, dest, archiveType(archivePath)); err != nil {
			logger.Log.WithError(err).WithField("archive", archivePath).Warn("failed to extract nested archive")
			continue
		}

		os.Remove(archivePath)
		extractNestedArchives(dest, depth-1)
	}
}

// nestedDestination derives the extraction directory for a nested archive:
// the archive path with its archive suffix stripped.
func nestedDestination(archivePath string) string {
	name := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(name, ".tar.gz"):
		return archivePath[:len(archivePath)-len(".tar.gz")]
	case strings.HasSuffix(name, ".tar.bz2"):
		return archivePath[:len(archivePath)-len(".tar.bz2")]
	}
	ext := filepath.Ext(archivePath)
	return strings.TrimSuffix(archivePath, ext)
}

// Extracted is the scoped-acquisition entry point used by discovery and the
// coordinator. Directories and plain files are passed through unchanged with
// a no-op cleanup; archives are extracted to a temp directory whose removal
// is the caller's responsibility via the returned cleanup func. cleanup is
// never nil.
func Extracted(path string) (contentPath string, cleanup func(), err error) {
	noop := func() {}

	info, err := os.Stat(path)
	if err != nil {
		return "", noop, fmt.Errorf("path does not exist: %s: %w", path, err)
	}

	if info.IsDir() || !IsArchive(path) {
		return path, noop, nil
	}

	extracted, err := Extract(path, "", true)
	if err != nil {
		return "", noop, err
	}
	return extracted.ExtractPath, extracted.Cleanup, nil
}
