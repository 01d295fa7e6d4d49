// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package encryption

import (
	"bytes"
	"crypto/aes"
	"fmt"
	"io"
	"math/rand"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/snapfile/internal/base"
	"github.com/stretchr/testify/require"
)

func randBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

func testInfo(rng *rand.Rand, m Method) FileInfo {
	info := FileInfo{Method: m}
	if m != Plaintext {
		info.Key = randBytes(rng, m.KeySize())
		info.IV = randBytes(rng, IVSize)
	}
	return info
}

func encrypt(t *testing.T, plaintext []byte, info FileInfo, writeSize int) []byte {
	var out bytes.Buffer
	w, err := NewEncryptingWriter(&out, info)
	require.NoError(t, err)
	for p := plaintext; len(p) > 0; {
		n := min(writeSize, len(p))
		_, err := w.Write(p[:n])
		require.NoError(t, err)
		p = p[n:]
	}
	require.NoError(t, w.Finish())
	return out.Bytes()
}

func decrypt(ciphertext []byte, info FileInfo) ([]byte, error) {
	r, err := NewDecryptingReader(bytes.NewReader(ciphertext), info)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func TestEncryptDecrypt(t *testing.T) {
	defer func(orig int) { encryptionChunkSize = orig }(encryptionChunkSize)
	rng := rand.New(rand.NewSource(1))

	for _, m := range []Method{Plaintext, Aes128Ctr, Aes256Ctr, Aes256Gcm} {
		t.Run(m.String(), func(t *testing.T) {
			info := testInfo(rng, m)
			for _, textCopies := range []int{0, 1, 3, 10, 100, 10000} {
				plaintext := bytes.Repeat([]byte("hello world\n"), textCopies)
				for _, chunkSize := range []int{1, 7, 64, 1 << 10} {
					encryptionChunkSize = chunkSize
					t.Run(fmt.Sprintf("copies=%d/chunk=%d", textCopies, chunkSize), func(t *testing.T) {
						ciphertext := encrypt(t, plaintext, info, 13)
						if m == Plaintext {
							require.True(t, bytes.Equal(plaintext, ciphertext))
						} else if len(plaintext) > 0 {
							require.False(t, bytes.Equal(plaintext, ciphertext))
						}
						if m.Seekable() {
							require.Len(t, ciphertext, len(plaintext))
						}
						decrypted, err := decrypt(ciphertext, info)
						require.NoError(t, err)
						require.Equal(t, len(plaintext), len(decrypted))
						require.True(t, bytes.Equal(plaintext, decrypted))
					})
				}
			}
		})
	}
}

func TestGCMDetectsTampering(t *testing.T) {
	defer func(orig int) { encryptionChunkSize = orig }(encryptionChunkSize)
	encryptionChunkSize = 32
	rng := rand.New(rand.NewSource(2))
	info := testInfo(rng, Aes256Gcm)
	plaintext := randBytes(rng, 100)
	ciphertext := encrypt(t, plaintext, info, 100)

	t.Run("wrong key", func(t *testing.T) {
		other := info
		other.Key = randBytes(rng, 32)
		_, err := decrypt(ciphertext, other)
		require.Error(t, err)
		require.True(t, errors.Is(err, base.ErrIO))
	})

	t.Run("flipped bit", func(t *testing.T) {
		c := append([]byte(nil), ciphertext...)
		c[40] ^= 1
		_, err := decrypt(c, info)
		require.Error(t, err)
	})

	t.Run("truncated at chunk boundary", func(t *testing.T) {
		// Three full chunks of 32+16 bytes precede the final short chunk.
		_, err := decrypt(ciphertext[:3*(32+tagSize)], info)
		require.Error(t, err)
		require.True(t, errors.Is(err, base.ErrIO))
	})

	t.Run("truncated mid chunk", func(t *testing.T) {
		_, err := decrypt(ciphertext[:len(ciphertext)-1], info)
		require.Error(t, err)
	})
}

func TestCTRAtOffset(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	info := testInfo(rng, Aes256Ctr)
	plaintext := randBytes(rng, 1000)
	ciphertext := encrypt(t, plaintext, info, 1000)

	block, err := aes.NewCipher(info.Key)
	require.NoError(t, err)
	for _, off := range []int64{0, 1, 15, 16, 17, 511, 999} {
		got := make([]byte, len(plaintext)-int(off))
		xorAt(block, info.IV, got, ciphertext[off:], off)
		require.Equal(t, plaintext[off:], got, "offset %d", off)
	}
}

func TestAddCounterCarry(t *testing.T) {
	counter := bytes.Repeat([]byte{0xff}, 16)
	counter[0] = 0
	addCounter(counter, 1)
	require.Equal(t, append([]byte{0x01}, make([]byte, 15)...), counter)
}

func TestParseMethod(t *testing.T) {
	for _, m := range []Method{Plaintext, Aes128Ctr, Aes256Ctr, Aes256Gcm} {
		got, err := ParseMethod(m.String())
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
	_, err := ParseMethod("rot13")
	require.True(t, errors.Is(err, base.ErrInvalidInput))
}

func TestInvalidFileInfo(t *testing.T) {
	_, err := NewEncryptingWriter(io.Discard, FileInfo{Method: Aes256Ctr, Key: make([]byte, 16), IV: make([]byte, IVSize)})
	require.True(t, errors.Is(err, base.ErrInvalidInput))
	_, err = NewDecryptingReader(nil, FileInfo{Method: Aes128Ctr, Key: make([]byte, 16)})
	require.True(t, errors.Is(err, base.ErrInvalidInput))
}
