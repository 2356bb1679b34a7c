//go:build windows

package integration

import (
	"errors"
	"io/fs"
	"syscall"
)

// Windows error codes
const (
	errorRemNotList     syscall.Errno = 51
	errorBadNetpath     syscall.Errno = 53
	errorDevNotExist    syscall.Errno = 55
	errorUnexpNetErr    syscall.Errno = 59
	errorNetnameDeleted syscall.Errno = 64
	errorBadNetName     syscall.Errno = 67
	errorSemTimeout     syscall.Errno = 121
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
	case errorBadNetpath, errorBadNetName, errorNetnameDeleted:
		return "network path not found"
	case errorSemTimeout:
		return "network operation timed out"
	case errorDevNotExist, errorRemNotList:
		return "remote device not available"
	case errorUnexpNetErr:
		return "network error"
	}

	return ""
}
