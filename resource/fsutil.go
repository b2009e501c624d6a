package resource

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/mirrorworlds/worldmesh/engine/wmlog"
)

// CopyTree recursively copies the directory tree at src to dst, preserving
// directory structure and file modes. A failed copy removes the partial
// destination and returns the error, so the caller never observes a half
// copied tree as success.
func CopyTree(src string, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return errors.Wrapf(err, "cannot stat %s", src)
	}
	if !srcInfo.IsDir() {
		return errors.Errorf("%s is not a directory", src)
	}

	if err := copyTree(src, dst, srcInfo); err != nil {
		if rmErr := os.RemoveAll(dst); rmErr != nil {
			wmlog.Errorf("CopyTree: cannot clean up partial copy %s: %v", dst, rmErr)
		}
		return err
	}
	return nil
}

func copyTree(src string, dst string, srcInfo os.FileInfo) error {
	if err := os.MkdirAll(dst, srcInfo.Mode()); err != nil {
		return errors.Wrapf(err, "cannot create %s", dst)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return errors.Wrapf(err, "cannot read %s", src)
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		info, err := entry.Info()
		if err != nil {
			return errors.Wrapf(err, "cannot stat %s", srcPath)
		}

		if entry.IsDir() {
			if err := copyTree(srcPath, dstPath, info); err != nil {
				return err
			}
		} else if info.Mode().IsRegular() {
			if err := copyFile(srcPath, dstPath, info); err != nil {
				return err
			}
		} else {
			// sockets, symlinks and the like do not belong to world data
			wmlog.Warnf("CopyTree: skipping irregular file %s", srcPath)
		}
	}
	return nil
}

func copyFile(src string, dst string, info os.FileInfo) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "cannot open %s", src)
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return errors.Wrapf(err, "cannot create %s", dst)
	}

	_, err = io.Copy(dstFile, srcFile)
	if closeErr := dstFile.Close(); err == nil {
		err = closeErr
	}
	return errors.Wrapf(err, "cannot copy %s", src)
}

// RemoveTree recursively deletes the directory tree at path. It reports an
// error whenever anything is left behind, never treating a partial delete as
// success.
func RemoveTree(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return errors.Wrapf(err, "cannot remove %s", path)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return errors.Errorf("%s still exists after removal", path)
	}
	return nil
}
