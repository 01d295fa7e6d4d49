// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
)

// newCTRAt returns a CTR keystream positioned at byte offset off of a file
// whose initial counter block is iv.
func newCTRAt(block cipher.Block, iv []byte, off int64) cipher.Stream {
	counter := make([]byte, aes.BlockSize)
	copy(counter, iv)
	addCounter(counter, uint64(off)/aes.BlockSize)
	stream := cipher.NewCTR(block, counter)
	if skip := int(off % aes.BlockSize); skip > 0 {
		var discard [aes.BlockSize]byte
		stream.XORKeyStream(discard[:skip], discard[:skip])
	}
	return stream
}

// addCounter adds n to the 128-bit big-endian integer in counter.
func addCounter(counter []byte, n uint64) {
	lo := binary.BigEndian.Uint64(counter[8:])
	hi := binary.BigEndian.Uint64(counter[:8])
	sum := lo + n
	if sum < lo {
		hi++
	}
	binary.BigEndian.PutUint64(counter[8:], sum)
	binary.BigEndian.PutUint64(counter[:8], hi)
}

// xorAt encrypts or decrypts src into dst as if src were located at byte
// offset off of the file.
func xorAt(block cipher.Block, iv []byte, dst, src []byte, off int64) {
	newCTRAt(block, iv, off).XORKeyStream(dst, src)
}
