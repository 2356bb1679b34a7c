package integration

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/mescon/Archivarr/internal/logger"
)

// MountFS implements FileSystem on an afero filesystem: the OS in production,
// an in-memory one in tests.
type MountFS struct {
	fs afero.Fs
}

// NewMountFS wraps fs. A nil fs uses the operating system.
func NewMountFS(fs afero.Fs) *MountFS {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &MountFS{fs: fs}
}

// Fs returns the underlying filesystem.
func (m *MountFS) Fs() afero.Fs {
	return m.fs
}

// MountPath composes mountRoot + directory + name. The record-supplied part is
// cleaned as an absolute path first, so ".." cannot climb out of the mount.
func MountPath(mountRoot, directory, name string) string {
	rel := filepath.Clean(string(filepath.Separator) + filepath.Join(directory, name))
	return filepath.Join(mountRoot, rel)
}

// Stat reports whether a regular file exists at path and its size.
// A missing file is not an error.
func (m *MountFS) Stat(path string) (FileInfo, error) {
	info, err := m.fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return FileInfo{}, nil
		}
		return FileInfo{}, wrapMountErr("stat", path, err)
	}
	if info.IsDir() {
		return FileInfo{}, fmt.Errorf("stat %s: is a directory", path)
	}
	return FileInfo{Exists: true, Size: info.Size()}, nil
}

// partialSuffix marks a copy in progress. Copy writes here and renames into
// place, so dst only ever holds a complete file.
const partialSuffix = ".partial"

// Copy copies src to dst, creating dst's parent directories. The bytes go to
// dst+".partial" first, and a failed copy removes it. A stale partial left by
// a killed run is overwritten.
func (m *MountFS) Copy(src, dst string) (int64, error) {
	in, err := m.fs.Open(src)
	if err != nil {
		return 0, wrapMountErr("open source", src, err)
	}
	defer in.Close()

	if err := m.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("create destination directory for %s: %w", dst, err)
	}

	partial := dst + partialSuffix
	out, err := m.fs.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, wrapMountErr("create destination", partial, err)
	}

	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = m.fs.Rename(partial, dst)
	}
	if err != nil {
		if rmErr := m.fs.Remove(partial); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logger.Warnf("Failed to remove partial copy %s: %v", partial, rmErr)
		}
		return n, wrapMountErr("copy "+src+" to", dst, err)
	}
	return n, nil
}

// Remove deletes the file at path. Removing a missing file succeeds.
func (m *MountFS) Remove(path string) error {
	if err := m.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return wrapMountErr("remove", path, err)
	}
	return nil
}

// CheckMount verifies that root is an existing, non-empty directory. An empty
// mount point usually means the share is not mounted.
func (m *MountFS) CheckMount(root string) error {
	if root == "" {
		return fmt.Errorf("%w: no mount path given", ErrMountUnavailable)
	}
	info, err := m.fs.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMountUnavailable, root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrMountUnavailable, root)
	}
	empty, err := afero.IsEmpty(m.fs, root)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMountUnavailable, root, err)
	}
	if empty {
		return fmt.Errorf("%w: %s is empty", ErrMountUnavailable, root)
	}
	return nil
}

// wrapMountErr annotates a filesystem error. Errors that mean the mount went
// away wrap ErrMountUnavailable.
func wrapMountErr(op, path string, err error) error {
	if reason := mountLostReason(err); reason != "" {
		return fmt.Errorf("%w: %s %s: %s", ErrMountUnavailable, op, path, reason)
	}
	return fmt.Errorf("%s %s: %w", op, path, err)
}
