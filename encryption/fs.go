// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/snapfile/internal/base"
)

// NewFS returns a vfs.FS that encrypts files created through it and decrypts
// files opened through it, keeping km in sync with links, renames and
// removals. Files unknown to km are read as plaintext.
//
// The storage engine reads its files at random offsets, so km must mint a
// seekable method. Key managers that expose their method (like Registry) are
// checked up front; others fail on the first Create of an AEAD file.
func NewFS(inner vfs.FS, km KeyManager) (vfs.FS, error) {
	if m, ok := km.(interface{ Method() Method }); ok && !m.Method().Seekable() {
		return nil, base.InvalidInputf("encryption: %s cannot back an engine filesystem", m.Method())
	}
	return &encryptedFS{FS: inner, km: km}, nil
}

// Unwrap returns the filesystem underneath fs if fs was returned by NewFS,
// and fs itself otherwise. ok reports whether fs was encrypting.
func Unwrap(fs vfs.FS) (inner vfs.FS, ok bool) {
	if efs, ok := fs.(*encryptedFS); ok {
		return efs.FS, true
	}
	return fs, false
}

type encryptedFS struct {
	vfs.FS
	km KeyManager
}

// Create implements vfs.FS.
func (fs *encryptedFS) Create(name string) (vfs.File, error) {
	f, err := fs.FS.Create(name)
	if err != nil {
		return nil, err
	}
	info, err := fs.km.NewFile(name)
	if err == nil && !info.Method.Seekable() {
		err = base.InvalidInputf("encryption: %s cannot back an engine filesystem", info.Method)
	}
	if err != nil {
		_ = f.Close()
		_ = fs.FS.Remove(name)
		return nil, errors.Mark(err, base.ErrKeyManager)
	}
	return wrapFile(f, info)
}

// Open implements vfs.FS.
func (fs *encryptedFS) Open(name string, opts ...vfs.OpenOption) (vfs.File, error) {
	f, err := fs.FS.Open(name, opts...)
	if err != nil {
		return nil, err
	}
	info, err := fs.km.GetFile(name)
	if err != nil {
		_ = f.Close()
		return nil, errors.Mark(err, base.ErrKeyManager)
	}
	if !info.Method.Seekable() {
		_ = f.Close()
		return nil, base.InvalidInputf("encryption: %s is encrypted with %s and cannot be opened for random access",
			name, info.Method)
	}
	return wrapFile(f, info)
}

// Link implements vfs.FS.
func (fs *encryptedFS) Link(oldname, newname string) error {
	if err := fs.FS.Link(oldname, newname); err != nil {
		return err
	}
	if err := fs.km.LinkFile(oldname, newname); err != nil {
		_ = fs.FS.Remove(newname)
		return errors.Mark(err, base.ErrKeyManager)
	}
	return nil
}

// Rename implements vfs.FS.
func (fs *encryptedFS) Rename(oldname, newname string) error {
	if err := fs.FS.Rename(oldname, newname); err != nil {
		return err
	}
	if err := fs.km.RenameFile(oldname, newname); err != nil {
		return errors.Mark(err, base.ErrKeyManager)
	}
	return nil
}

// ReuseForWrite implements vfs.FS. The old file is removed and the new one is
// created with fresh key material.
func (fs *encryptedFS) ReuseForWrite(oldname, newname string) (vfs.File, error) {
	if err := fs.Remove(oldname); err != nil && !oserror.IsNotExist(err) {
		return nil, err
	}
	return fs.Create(newname)
}

// Remove implements vfs.FS.
func (fs *encryptedFS) Remove(name string) error {
	if err := fs.FS.Remove(name); err != nil {
		return err
	}
	if err := fs.km.DeleteFile(name); err != nil {
		return errors.Mark(err, base.ErrKeyManager)
	}
	return nil
}

func wrapFile(f vfs.File, info FileInfo) (vfs.File, error) {
	if info.IsPlaintext() {
		return f, nil
	}
	if err := info.validate(); err != nil {
		_ = f.Close()
		return nil, err
	}
	block, err := aes.NewCipher(info.Key)
	if err != nil {
		_ = f.Close()
		return nil, base.InvalidInputf("encryption: %v", err)
	}
	return &encryptedFile{File: f, block: block, iv: info.IV}, nil
}

// encryptedFile is a CTR-encrypted vfs.File. Sequential reads and writes
// track their own offsets; ReadAt is stateless and safe for concurrent use.
type encryptedFile struct {
	vfs.File
	block cipher.Block
	iv    []byte

	readOff  int64
	writeOff int64
	buf      []byte
}

// Read implements io.Reader.
func (f *encryptedFile) Read(p []byte) (int, error) {
	n, err := f.File.Read(p)
	xorAt(f.block, f.iv, p[:n], p[:n], f.readOff)
	f.readOff += int64(n)
	return n, err
}

// WriteAt implements io.WriterAt when the underlying file does.
func (f *encryptedFile) WriteAt(p []byte, off int64) (int, error) {
	wa, ok := f.File.(io.WriterAt)
	if !ok {
		return 0, errors.New("encryption: WriteAt is not supported by the underlying file")
	}
	buf := make([]byte, len(p))
	xorAt(f.block, f.iv, buf, p, off)
	return wa.WriteAt(buf, off)
}

// ReadAt implements io.ReaderAt.
func (f *encryptedFile) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.File.ReadAt(p, off)
	xorAt(f.block, f.iv, p[:n], p[:n], off)
	return n, err
}

// Write implements io.Writer.
func (f *encryptedFile) Write(p []byte) (int, error) {
	if cap(f.buf) < len(p) {
		f.buf = make([]byte, len(p))
	}
	buf := f.buf[:len(p)]
	xorAt(f.block, f.iv, buf, p, f.writeOff)
	n, err := f.File.Write(buf)
	f.writeOff += int64(n)
	return n, err
}
