//go:build !windows

package integration

import (
	"errors"
	"io/fs"
	"syscall"
)

// mountLostReason reports why err means the mount itself went away, or ""
// when err is an ordinary filesystem error.
func mountLostReason(err error) string {
	var pathErr *fs.PathError
	if !errors.As(err, &pathErr) {
		return ""
	}

	errno, ok := pathErr.Err.(syscall.Errno)
	if !ok {
		return ""
	}

	switch errno {
	case syscall.ESTALE:
		return "stale NFS file handle"
	case syscall.ETIMEDOUT:
		return "filesystem operation timed out"
	case syscall.ENODEV, syscall.ENXIO:
		return "device not available (mount offline)"
	case syscall.EHOSTDOWN, syscall.EHOSTUNREACH, syscall.ENETDOWN, syscall.ENETUNREACH:
		return "network/host unreachable"
	}

	return ""
}
