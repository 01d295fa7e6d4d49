// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package encryption implements encryption at rest for snapshot files: a per
// file key manager, a streaming encrypting writer / decrypting reader, and an
// encrypted vfs.FS that lets the storage engine read and write encrypted
// files transparently.
//
// Encryption is all-or-nothing per file: a file is either plaintext or
// encrypted in full with a single (key, iv) pair.
package encryption

import (
	"strings"

	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/snapfile/internal/base"
)

// Method is a file encryption method.
type Method uint8

const (
	// Plaintext files are stored unmodified.
	Plaintext Method = iota
	// Aes128Ctr is AES-128 in counter mode. Seekable, unauthenticated.
	Aes128Ctr
	// Aes256Ctr is AES-256 in counter mode. Seekable, unauthenticated.
	Aes256Ctr
	// Aes256Gcm is chunked AES-256-GCM. Authenticated, sequential only.
	Aes256Gcm
)

// IVSize is the size of the per-file initialization vector.
const IVSize = 16

var methodNames = [...]string{
	Plaintext: "plaintext",
	Aes128Ctr: "aes128-ctr",
	Aes256Ctr: "aes256-ctr",
	Aes256Gcm: "aes256-gcm",
}

// String implements fmt.Stringer.
func (m Method) String() string {
	if int(m) < len(methodNames) {
		return methodNames[m]
	}
	return "unknown"
}

// SafeFormat implements redact.SafeFormatter.
func (m Method) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString(redact.SafeString(m.String()))
}

// ParseMethod parses the name of an encryption method.
func ParseMethod(s string) (Method, error) {
	for m, name := range methodNames {
		if strings.EqualFold(s, name) {
			return Method(m), nil
		}
	}
	return 0, base.InvalidInputf("encryption: unknown method %q", s)
}

// KeySize returns the data key size in bytes required by the method.
func (m Method) KeySize() int {
	switch m {
	case Aes128Ctr:
		return 16
	case Aes256Ctr, Aes256Gcm:
		return 32
	}
	return 0
}

// IsPlaintext reports whether the method stores data unencrypted.
func (m Method) IsPlaintext() bool {
	return m == Plaintext
}

// IsAEAD reports whether the method authenticates the ciphertext.
func (m Method) IsAEAD() bool {
	return m == Aes256Gcm
}

// Seekable reports whether files encrypted with the method support random
// access reads and are the same size as their plaintext.
func (m Method) Seekable() bool {
	return m != Aes256Gcm
}

func (m Method) valid() bool {
	return int(m) < len(methodNames)
}

// FileInfo is the encryption info of a single file.
type FileInfo struct {
	Method Method
	Key    []byte
	IV     []byte
}

// IsPlaintext reports whether the file is stored unencrypted.
func (i FileInfo) IsPlaintext() bool {
	return i.Method == Plaintext
}

func (i FileInfo) validate() error {
	if !i.Method.valid() {
		return base.InvalidInputf("encryption: unknown method %d", i.Method)
	}
	if i.Method == Plaintext {
		return nil
	}
	if len(i.Key) != i.Method.KeySize() {
		return base.InvalidInputf("encryption: %s requires a %d byte key, got %d",
			i.Method, i.Method.KeySize(), len(i.Key))
	}
	if len(i.IV) != IVSize {
		return base.InvalidInputf("encryption: iv must be %d bytes, got %d", IVSize, len(i.IV))
	}
	return nil
}

// KeyManager owns the encryption info of files, keyed by path. It must be
// safe for concurrent use.
type KeyManager interface {
	// GetFile returns the encryption info recorded for path. Paths that were
	// never registered are reported as Plaintext.
	GetFile(path string) (FileInfo, error)
	// NewFile mints and records encryption info for a file about to be
	// created at path, replacing any previous entry.
	NewFile(path string) (FileInfo, error)
	// LinkFile records that dst shares src's key material. It fails if dst
	// is already registered.
	LinkFile(src, dst string) error
	// RenameFile moves src's entry to dst.
	RenameFile(src, dst string) error
	// DeleteFile forgets path. Deleting an unknown path is not an error.
	DeleteFile(path string) error
}

// FileImporter is implemented by key managers that can adopt encryption info
// produced elsewhere (e.g. for a file downloaded from another node that
// shares the data key).
type FileImporter interface {
	ImportFile(path string, method Method, iv []byte) error
}
