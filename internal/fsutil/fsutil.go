// Package fsutil is the raw byte I/O leaf utility behind the supersede
// engine: atomic file replacement and a single-file copy-with-checksum
// primitive that creates missing parent directories. It carries no
// PDS4-specific knowledge.
package fsutil

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// AtomicPrefix names the temporary file AtomicWrite stages its content in
// before the final rename.
const AtomicPrefix = ".pds4delta.atomic."

// ManagedWrite encapsulates a write that can be rolled back if the caller
// fails before committing.
type ManagedWrite struct {
	io.WriteCloser
	closeFunc    func() error
	rollbackFunc func() error
	closed       bool
}

// Close commits the write (renaming any temporary file into place).
func (w *ManagedWrite) Close() error {
	return w.closeWith(w.closeFunc)
}

// Rollback discards the write's tangible effects.
func (w *ManagedWrite) Rollback() error {
	return w.closeWith(w.rollbackFunc)
}

func (w *ManagedWrite) closeWith(f func() error) error {
	if w.closed {
		return nil
	}
	if err := w.WriteCloser.Close(); err != nil {
		return err
	}
	w.closed = true
	if f != nil {
		return f()
	}
	return nil
}

// AtomicWrite opens a temporary file alongside path, to be renamed onto
// path once the caller closes it successfully.
func AtomicWrite(path string) (*ManagedWrite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "could not create parent directory of %s", path)
	}

	tname := filepath.Join(filepath.Dir(path), AtomicPrefix+filepath.Base(path))
	tfile, err := os.OpenFile(tname, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0664)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create temporary file %s", tname)
	}

	return &ManagedWrite{
		WriteCloser: tfile,
		closeFunc: func() error {
			return errors.Wrapf(os.Rename(tname, path), "could not rename %s to %s", tname, path)
		},
		rollbackFunc: func() error {
			return os.Remove(tname)
		},
	}, nil
}

// TeeWriter copies every byte written to Writer onward to Tee as well,
// used to compute a running checksum while a file is written.
type TeeWriter struct {
	io.Writer
	Tee io.Writer
}

func (t *TeeWriter) Write(b []byte) (int, error) {
	n, err := t.Writer.Write(b)
	if err != nil {
		return n, err
	}
	if _, terr := t.Tee.Write(b[:n]); terr != nil {
		return n, errors.Wrap(terr, "could not tee write")
	}
	return n, nil
}

// CopyFile copies src to dest, creating dest's parent directories on
// demand, and returns the MD5 hex digest of the bytes copied.
func CopyFile(src, dest string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", errors.Wrapf(err, "could not open source file %s", src)
	}
	defer in.Close()

	out, err := AtomicWrite(dest)
	if err != nil {
		return "", errors.Wrapf(err, "could not open destination file %s", dest)
	}
	defer func() {
		_ = out.Rollback()
	}()

	hash := md5.New()
	if _, err := io.Copy(&TeeWriter{Writer: out, Tee: hash}, in); err != nil {
		return "", errors.Wrapf(err, "could not copy %s to %s", src, dest)
	}

	if err := out.Close(); err != nil {
		return "", errors.Wrapf(err, "could not finalize %s", dest)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// WriteString atomically writes text to path, computing its MD5 hex
// digest as a side effect so callers never have to re-read the file they
// just wrote to compute a checksum.
func WriteString(path, text string) (string, error) {
	w, err := AtomicWrite(path)
	if err != nil {
		return "", errors.Wrapf(err, "could not open %s for writing", path)
	}
	defer func() {
		_ = w.Rollback()
	}()

	hash := md5.New()
	if _, err := io.WriteString(&TeeWriter{Writer: w, Tee: hash}, text); err != nil {
		return "", errors.Wrapf(err, "could not write %s", path)
	}

	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "could not finalize %s", path)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
