package jobs

import (
	"context"
	"database/sql/driver"
	"errors"
	"io/fs"
	"net"
	"syscall"
)

// ErrorClass is the retry decision for a failed import job.
type ErrorClass int

const (
	// ClassFatal rejects the job without retry (missing file, permission).
	ClassFatal ErrorClass = iota
	// ClassTransient retries with backoff (DB connectivity, disk I/O).
	ClassTransient
	// ClassUnknown is treated as fatal: anything outside the known shapes
	// must not retry silently forever.
	ClassUnknown
)

// Classify maps an error to its retry class. The transient set is a closed
// list; expanding it risks infinite retries on genuinely broken inputs.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}

	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return ClassFatal
	}

	if isTransient(err) {
		return ClassTransient
	}

	return ClassUnknown
}

func isTransient(err error) bool {
	// Database connectivity
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Disk I/O: EIO, ENOSPC, EROFS
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EIO, syscall.ENOSPC, syscall.EROFS:
			return true
		}
	}

	return false
}
