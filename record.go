// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package snapfile

import (
	"crypto/sha256"
	"fmt"
	"hash/crc64"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/snapfile/encryption"
	"github.com/cockroachdb/snapfile/engine"
	"github.com/cockroachdb/snapfile/internal/base"
)

// Format is the on-disk format of the files of a snapshot.
type Format uint8

const (
	// FormatPlain files are streams of compact-encoded pairs.
	FormatPlain Format = iota + 1
	// FormatSST files are sorted string tables, applied by ingestion.
	FormatSST
)

// String implements fmt.Stringer.
func (f Format) String() string {
	switch f {
	case FormatPlain:
		return "plain"
	case FormatSST:
		return "sst"
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// SafeFormat implements redact.SafeFormatter.
func (f Format) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString(redact.SafeString(f.String()))
}

// ParseFormat parses "plain" or "sst".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "plain":
		return FormatPlain, nil
	case "sst":
		return FormatSST, nil
	}
	return 0, base.InvalidInputf("unknown snapshot format %q", s)
}

func (f Format) valid() bool {
	return f == FormatPlain || f == FormatSST
}

func (f Format) ext() string {
	return f.String()
}

// FileRecord describes one file of a snapshot. It is immutable once built.
type FileRecord struct {
	Name         string
	ColumnFamily engine.ColumnFamily
	// Size is the size of the file as stored, which for GCM encrypted plain
	// files exceeds the plaintext size.
	Size       uint64
	KeyCount   uint64
	TotalBytes uint64
	// CRC64Xor is the XOR of the CRC-64 (ECMA) of key||value over every pair.
	// Only plain files carry it.
	CRC64Xor uint64
	// SHA256 is the digest of the stored bytes.
	SHA256 [sha256.Size]byte
	// Encryption and IV describe how the stored bytes are encrypted. The data
	// key is never recorded: sender and receiver share it out of band.
	Encryption encryption.Method
	IV         []byte
}

// SafeFormat implements redact.SafeFormatter.
func (r FileRecord) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%s cf=%s size=%d keys=%d bytes=%d enc=%s",
		redact.Safe(r.Name), r.ColumnFamily, redact.Safe(r.Size), redact.Safe(r.KeyCount),
		redact.Safe(r.TotalBytes), r.Encryption)
}

// String implements fmt.Stringer.
func (r FileRecord) String() string {
	return redact.StringWithoutMarkers(r)
}

var crc64Table = crc64.MakeTable(crc64.ECMA)

// pairChecksum returns the CRC-64 of key||value.
func pairChecksum(key, value []byte) uint64 {
	return crc64.Update(crc64.Update(0, crc64Table, key), crc64Table, value)
}

// checksummingReader accumulates CRC64Xor over the pairs it scans.
type checksummingReader struct {
	engine.Reader
	sum uint64
}

func (r *checksummingReader) Scan(
	cf engine.ColumnFamily, kr engine.KeyRange, fn func(key, value []byte) error,
) error {
	return r.Reader.Scan(cf, kr, func(key, value []byte) error {
		if err := fn(key, value); err != nil {
			return err
		}
		r.sum ^= pairChecksum(key, value)
		return nil
	})
}

// digestFile returns the size and SHA-256 of the stored bytes of path.
func digestFile(fs vfs.FS, path string) (uint64, [sha256.Size]byte, error) {
	var sum [sha256.Size]byte
	f, err := fs.Open(path)
	if err != nil {
		return 0, sum, base.MarkIO(errors.Wrapf(err, "opening %s", path))
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, sum, base.MarkIO(errors.Wrapf(err, "reading %s", path))
	}
	copy(sum[:], h.Sum(nil))
	return uint64(n), sum, nil
}
