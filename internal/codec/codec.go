// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package codec implements the compact byte encoding used by plain snapshot
// files: a uvarint length prefix followed by exactly that many raw bytes.
// The empty byte string encodes as the single byte 0x00 and is used as an
// end-of-stream sentinel by callers.
package codec

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/snapfile/internal/base"
)

// MaxLength bounds the length prefix accepted by the decoder. Anything larger
// is treated as corruption rather than allocated.
const MaxLength = 1 << 30

// EncodedLen returns the number of bytes EncodeBytes writes for a byte string
// of length n.
func EncodedLen(n int) int {
	return uvarintLen(uint64(n)) + n
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// AppendBytes appends the encoding of b to dst and returns the extended
// buffer.
func AppendBytes(dst, b []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

// EncodeBytes writes the encoding of b to w.
func EncodeBytes(w io.Writer, b []byte) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(b)))
	if _, err := w.Write(buf[:n]); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := w.Write(b)
	return err
}

// Reader is the input required by DecodeBytes.
type Reader interface {
	io.Reader
	io.ByteReader
}

// DecodeBytes reads one encoded byte string from r. It returns io.EOF,
// unwrapped, only when r is exhausted before the first byte of the length
// prefix. A truncated prefix or payload, or an oversized length, returns an
// error marked base.ErrIO.
func DecodeBytes(r Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, base.MarkIO(errors.Wrap(err, "codec: decoding length prefix"))
	}
	if n > MaxLength {
		return nil, base.MarkIO(errors.Newf("codec: length prefix %d exceeds maximum %d", n, MaxLength))
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, base.MarkIO(errors.Wrapf(err, "codec: decoding %d byte payload", n))
	}
	return b, nil
}

// Decoder decodes a stream of encoded byte strings.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a Decoder reading from r. The decoder buffers, so it
// may read past the last string it returns.
func NewDecoder(r io.Reader) *Decoder {
	if br, ok := r.(*bufio.Reader); ok {
		return &Decoder{r: br}
	}
	return &Decoder{r: bufio.NewReaderSize(r, 64<<10)}
}

// Decode returns the next byte string. See DecodeBytes.
func (d *Decoder) Decode() ([]byte, error) {
	return DecodeBytes(d.r)
}
