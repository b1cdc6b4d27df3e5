// Package fileutil provides the directory-level operations the bag
// building pipeline is built on: filtered listings, deep copies,
// recursive removal, and same-volume atomic renames.
package fileutil

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
)

// ErrCrossDevice is returned by Rename when the source and target are on
// different volumes. A cross-volume move cannot be atomic, so we refuse to
// fall back to a copy.
var ErrCrossDevice = errors.New("rename crosses filesystem boundary")

// ListDirectory returns the names of the entries of dir for which keep
// returns true. The names are bare entry names, not joined with dir, and
// are returned in the (sorted) order the directory listing provides.
func ListDirectory(dir string, keep func(name string) bool) ([]string, error) {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", dir)
	}
	var result []string
	for _, fi := range entries {
		if keep == nil || keep(fi.Name()) {
			result = append(result, fi.Name())
		}
	}
	return result, nil
}

// CopyTree deep copies the directory tree rooted at src to dst, creating
// dst if needed. File contents are copied byte for byte and file modes are
// preserved. Anything that is neither a directory nor a regular file is an
// error; bags hold only regular files.
func CopyTree(src, dst string) error {
	fi, err := os.Stat(src)
	if err != nil {
		return errors.Wrapf(err, "copy %s", src)
	}
	if !fi.IsDir() {
		return errors.Errorf("copy %s: not a directory", src)
	}
	if err := os.MkdirAll(dst, fi.Mode().Perm()|0700); err != nil {
		return errors.Wrapf(err, "copy %s", dst)
	}
	entries, err := ioutil.ReadDir(src)
	if err != nil {
		return errors.Wrapf(err, "copy %s", src)
	}
	for _, entry := range entries {
		s := filepath.Join(src, entry.Name())
		d := filepath.Join(dst, entry.Name())
		switch {
		case entry.IsDir():
			if err := CopyTree(s, d); err != nil {
				return err
			}
		case entry.Mode().IsRegular():
			if err := copyFile(s, d, entry.Mode().Perm()); err != nil {
				return err
			}
		default:
			return errors.Errorf("copy %s: unsupported file type", s)
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "copy %s", src)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrapf(err, "copy %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "copy %s", dst)
	}
	return errors.Wrapf(out.Close(), "copy %s", dst)
}

// RemoveTree removes path and everything under it.
func RemoveTree(path string) error {
	return errors.Wrapf(os.RemoveAll(path), "remove %s", path)
}

// Rename atomically moves oldpath to newpath. Both paths must be on the
// same volume; if the underlying rename fails with EXDEV the error wraps
// ErrCrossDevice and nothing has been moved.
func Rename(oldpath, newpath string) error {
	err := os.Rename(oldpath, newpath)
	if err == nil {
		return nil
	}
	if le, ok := err.(*os.LinkError); ok && le.Err == syscall.EXDEV {
		return errors.Wrapf(ErrCrossDevice, "rename %s to %s", oldpath, newpath)
	}
	return errors.Wrapf(err, "rename %s to %s", oldpath, newpath)
}

// IsCrossDevice reports whether err came from a cross-volume Rename.
func IsCrossDevice(err error) bool {
	return errors.Cause(err) == ErrCrossDevice
}
