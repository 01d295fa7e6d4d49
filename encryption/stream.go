// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/snapfile/internal/base"
)

const (
	nonceSize = 12 // GCM standard nonce
	tagSize   = 16 // GCM standard tag
)

var encryptionChunkSize = 64 << 10 // 64kb

// Writer is an io.Writer that must be finished once all data is written and
// before the underlying file is synced.
type Writer interface {
	io.Writer
	// Finish flushes any buffered ciphertext to the underlying writer. The
	// Writer may not be used afterwards.
	Finish() error
}

// NewEncryptingWriter returns a Writer that encrypts everything written to it
// with info and forwards the ciphertext to w. For Plaintext the returned
// Writer forwards writes unchanged.
func NewEncryptingWriter(w io.Writer, info FileInfo) (Writer, error) {
	if err := info.validate(); err != nil {
		return nil, err
	}
	switch info.Method {
	case Plaintext:
		return plainWriter{w}, nil
	case Aes128Ctr, Aes256Ctr:
		block, err := aes.NewCipher(info.Key)
		if err != nil {
			return nil, base.InvalidInputf("encryption: %v", err)
		}
		return &ctrWriter{w: w, stream: newCTRAt(block, info.IV, 0)}, nil
	case Aes256Gcm:
		return newGCMWriter(w, info)
	}
	return nil, base.InvalidInputf("encryption: unsupported method %s", info.Method)
}

// NewDecryptingReader returns a reader that decrypts the ciphertext read from
// r with info. For Plaintext r is returned unchanged.
func NewDecryptingReader(r io.Reader, info FileInfo) (io.Reader, error) {
	if err := info.validate(); err != nil {
		return nil, err
	}
	switch info.Method {
	case Plaintext:
		return r, nil
	case Aes128Ctr, Aes256Ctr:
		block, err := aes.NewCipher(info.Key)
		if err != nil {
			return nil, base.InvalidInputf("encryption: %v", err)
		}
		return &ctrReader{r: r, stream: newCTRAt(block, info.IV, 0)}, nil
	case Aes256Gcm:
		return newGCMReader(r, info)
	}
	return nil, base.InvalidInputf("encryption: unsupported method %s", info.Method)
}

// OpenDecrypting opens path on fs and returns a reader of its plaintext,
// resolving the file's encryption info through km. A nil km means the file is
// plaintext.
func OpenDecrypting(fs vfs.FS, path string, km KeyManager) (io.ReadCloser, error) {
	var info FileInfo
	if km != nil {
		var err error
		if info, err = km.GetFile(path); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "encryption: looking up %s", path), base.ErrKeyManager)
		}
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, base.MarkIO(err)
	}
	r, err := NewDecryptingReader(f, info)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return readCloser{Reader: r, Closer: f}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

type plainWriter struct {
	io.Writer
}

func (plainWriter) Finish() error { return nil }

type ctrWriter struct {
	w      io.Writer
	stream cipher.Stream
	buf    []byte
}

func (cw *ctrWriter) Write(p []byte) (int, error) {
	if cap(cw.buf) < len(p) {
		cw.buf = make([]byte, len(p))
	}
	buf := cw.buf[:len(p)]
	cw.stream.XORKeyStream(buf, p)
	return cw.w.Write(buf)
}

func (cw *ctrWriter) Finish() error { return nil }

type ctrReader struct {
	r      io.Reader
	stream cipher.Stream
}

func (cr *ctrReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.stream.XORKeyStream(p[:n], p[:n])
	return n, err
}

// gcmWriter seals plaintext in chunks of encryptionChunkSize. The stream
// always ends with a chunk shorter than encryptionChunkSize (possibly empty),
// which makes truncation along a chunk boundary detectable.
type gcmWriter struct {
	w     io.Writer
	gcm   cipher.AEAD
	iv    []byte
	nonce []byte
	chunk uint64

	buf      []byte
	bufPos   int
	finished bool
}

func newGCMWriter(w io.Writer, info FileInfo) (*gcmWriter, error) {
	gcm, err := aesgcm(info.Key)
	if err != nil {
		return nil, err
	}
	return &gcmWriter{
		w:     w,
		gcm:   gcm,
		iv:    append([]byte(nil), info.IV[:nonceSize]...),
		nonce: make([]byte, nonceSize),
		buf:   make([]byte, encryptionChunkSize+tagSize),
	}, nil
}

func (ew *gcmWriter) Write(p []byte) (int, error) {
	if ew.finished {
		return 0, errors.AssertionFailedf("encryption: write after finish")
	}
	var wrote int
	for wrote < len(p) {
		copied := copy(ew.buf[ew.bufPos:encryptionChunkSize], p[wrote:])
		ew.bufPos += copied
		if ew.bufPos == encryptionChunkSize {
			if err := ew.flush(); err != nil {
				return wrote, err
			}
		}
		wrote += copied
	}
	return wrote, nil
}

func (ew *gcmWriter) Finish() error {
	if ew.finished {
		return nil
	}
	ew.finished = true
	return ew.flush()
}

func (ew *gcmWriter) flush() error {
	sealed := ew.gcm.Seal(ew.buf[:0], chunkNonce(ew.nonce, ew.iv, ew.chunk), ew.buf[:ew.bufPos], nil)
	if _, err := ew.w.Write(sealed); err != nil {
		return err
	}
	ew.chunk++
	ew.bufPos = 0
	return nil
}

// gcmReader is the sequential inverse of gcmWriter.
type gcmReader struct {
	r     io.Reader
	gcm   cipher.AEAD
	iv    []byte
	nonce []byte
	chunk uint64

	ciphertext []byte
	plaintext  []byte
	eof        bool
}

func newGCMReader(r io.Reader, info FileInfo) (*gcmReader, error) {
	gcm, err := aesgcm(info.Key)
	if err != nil {
		return nil, err
	}
	return &gcmReader{
		r:          r,
		gcm:        gcm,
		iv:         info.IV[:nonceSize],
		nonce:      make([]byte, nonceSize),
		ciphertext: make([]byte, encryptionChunkSize+tagSize),
	}, nil
}

func (er *gcmReader) Read(p []byte) (int, error) {
	for len(er.plaintext) == 0 {
		if er.eof {
			return 0, io.EOF
		}
		if err := er.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, er.plaintext)
	er.plaintext = er.plaintext[n:]
	return n, nil
}

func (er *gcmReader) fill() error {
	n, err := io.ReadFull(er.r, er.ciphertext[:cap(er.ciphertext)])
	switch {
	case err == nil:
	case err == io.ErrUnexpectedEOF:
		er.eof = true
	case err == io.EOF:
		return base.MarkIO(errors.New("encryption: ciphertext truncated at chunk boundary"))
	default:
		return base.MarkIO(err)
	}
	if n < tagSize {
		return base.MarkIO(errors.Newf("encryption: ciphertext chunk of %d bytes is too short", n))
	}
	// Open decrypts in place; plaintext aliases the ciphertext buffer.
	buf, err := er.gcm.Open(er.ciphertext[:0], chunkNonce(er.nonce, er.iv, er.chunk), er.ciphertext[:n], nil)
	if err != nil {
		return base.MarkIO(errors.Wrap(err, "encryption: failed to decrypt, maybe incorrect key"))
	}
	er.chunk++
	er.plaintext = buf
	return nil
}

// chunkNonce derives the nonce of chunk num from the file's base nonce by
// adding num to the big-endian integer in bytes [4:12).
func chunkNonce(dst, iv []byte, num uint64) []byte {
	dst = append(dst[:0], iv...)
	binary.BigEndian.PutUint64(dst[4:], binary.BigEndian.Uint64(dst[4:])+num)
	return dst
}

func aesgcm(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, base.InvalidInputf("encryption: %v", err)
	}
	return cipher.NewGCM(block)
}
