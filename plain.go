// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package snapfile

import (
	"bufio"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/snapfile/encryption"
	"github.com/cockroachdb/snapfile/engine"
	"github.com/cockroachdb/snapfile/internal/base"
	"github.com/cockroachdb/snapfile/internal/codec"
)

const plainWriteBufferSize = 64 << 10

// BuildPlainFile writes the pairs of cf within kr, read from snap, to a new
// plain file at path. When km is non-nil the file is encrypted with info
// minted by km.NewFile.
//
// The file is created exclusively: BuildPlainFile fails if path exists. If
// the range holds no keys the file is removed and the returned statistics
// have a zero KeyCount. On error the partial file is removed. Empty keys
// cannot be represented and fail the build with ErrInvalidInput.
func BuildPlainFile(
	fs vfs.FS,
	path string,
	km encryption.KeyManager,
	snap engine.Reader,
	cf engine.ColumnFamily,
	kr engine.KeyRange,
) (BuildStatistics, error) {
	var stats BuildStatistics
	if err := cf.Validate(); err != nil {
		return stats, err
	}
	if err := kr.Validate(); err != nil {
		return stats, err
	}
	f, err := createExclusive(fs, path)
	if err != nil {
		return stats, err
	}
	b := &plainFileBuilder{fs: fs, path: path, km: km, f: f}
	if err := b.init(); err != nil {
		b.discard()
		return stats, errors.Wrapf(err, "building plain file %s for %s", path, cf)
	}
	err = snap.Scan(cf, kr, func(key, value []byte) error {
		// A zero-length key encodes as the terminator.
		if len(key) == 0 {
			return base.InvalidInputf("empty key cannot be stored in a plain file")
		}
		if err := codec.EncodeBytes(b.bw, key); err != nil {
			return base.MarkIO(err)
		}
		if err := codec.EncodeBytes(b.bw, value); err != nil {
			return base.MarkIO(err)
		}
		stats.add(key, value)
		return nil
	})
	if err == nil && stats.Empty() {
		b.discard()
		return stats, nil
	}
	if err == nil {
		err = b.finish()
	}
	if err != nil {
		b.discard()
		return stats, errors.Wrapf(err, "building plain file %s for %s after %d keys", path, cf, stats.KeyCount)
	}
	return stats, nil
}

// createExclusive creates path, failing if it already exists.
func createExclusive(fs vfs.FS, path string) (vfs.File, error) {
	if _, err := fs.Stat(path); err == nil {
		return nil, base.MarkIO(errors.Wrapf(oserror.ErrExist, "creating %s", path))
	} else if !oserror.IsNotExist(err) {
		return nil, base.MarkIO(errors.Wrapf(err, "creating %s", path))
	}
	f, err := fs.Create(path)
	if err != nil {
		return nil, base.MarkIO(errors.Wrapf(err, "creating %s", path))
	}
	return f, nil
}

type plainFileBuilder struct {
	fs   vfs.FS
	path string
	km   encryption.KeyManager
	f    vfs.File
	ew   encryption.Writer
	bw   *bufio.Writer
	// registered is set once km holds an entry for path.
	registered bool
}

func (b *plainFileBuilder) init() error {
	var info encryption.FileInfo
	if b.km != nil {
		var err error
		if info, err = b.km.NewFile(b.path); err != nil {
			return errors.Mark(err, ErrKeyManager)
		}
		b.registered = true
	}
	ew, err := encryption.NewEncryptingWriter(b.f, info)
	if err != nil {
		return err
	}
	b.ew = ew
	b.bw = bufio.NewWriterSize(ew, plainWriteBufferSize)
	return nil
}

// finish writes the terminator, then flushes, finalizes and syncs the file.
func (b *plainFileBuilder) finish() error {
	if err := codec.EncodeBytes(b.bw, nil); err != nil {
		return base.MarkIO(err)
	}
	if err := b.bw.Flush(); err != nil {
		return base.MarkIO(err)
	}
	if err := b.ew.Finish(); err != nil {
		return base.MarkIO(err)
	}
	if err := b.f.Sync(); err != nil {
		return base.MarkIO(err)
	}
	err := b.f.Close()
	b.f = nil
	return base.MarkIO(err)
}

// discard closes and removes the file along with its key registration.
func (b *plainFileBuilder) discard() {
	if b.f != nil {
		_ = b.f.Close()
		b.f = nil
	}
	_ = b.fs.Remove(b.path)
	if b.registered {
		_ = b.km.DeleteFile(b.path)
	}
}

// ApplyPlainFile replays the plain file at path into cf of eng.
//
// Pairs are buffered and committed in write batches of roughly batchSize
// bytes, in file order. onBatchApplied, if non-nil, is called with the pairs
// of each batch after it commits; it may retain the slice. The stale detector
// is consulted before every decoded pair: once it reports staleness the
// apply fails with ErrAbort and buffered pairs are dropped. Batches that
// already committed are not rolled back.
func ApplyPlainFile(
	fs vfs.FS,
	path string,
	km encryption.KeyManager,
	stale StaleDetector,
	eng engine.Engine,
	cf engine.ColumnFamily,
	batchSize int,
	onBatchApplied func([]engine.KV),
) error {
	if err := cf.Validate(); err != nil {
		return err
	}
	if batchSize <= 0 {
		return base.InvalidInputf("batch size must be positive, got %d", batchSize)
	}
	rc, err := encryption.OpenDecrypting(fs, path, km)
	if err != nil {
		return errors.Wrapf(err, "applying plain file %s to %s", path, cf)
	}
	defer rc.Close()

	a := plainFileApplier{eng: eng, cf: cf, onBatchApplied: onBatchApplied}
	if err := a.run(codec.NewDecoder(rc), stale, batchSize); err != nil {
		return errors.Wrapf(err, "applying plain file %s to %s after %d keys", path, cf, a.applied)
	}
	return nil
}

type plainFileApplier struct {
	eng            engine.Engine
	cf             engine.ColumnFamily
	onBatchApplied func([]engine.KV)

	pending     []engine.KV
	pendingSize int
	applied     uint64
}

func (a *plainFileApplier) run(d *codec.Decoder, stale StaleDetector, batchSize int) error {
	for {
		if err := checkStale(stale); err != nil {
			return err
		}
		key, err := d.Decode()
		if err == io.EOF {
			return base.MarkIO(errors.Wrap(io.ErrUnexpectedEOF, "missing terminator"))
		} else if err != nil {
			return err
		}
		if len(key) == 0 {
			return a.flush()
		}
		value, err := d.Decode()
		if err == io.EOF {
			return base.MarkIO(errors.Wrap(io.ErrUnexpectedEOF, "missing value"))
		} else if err != nil {
			return err
		}
		a.pending = append(a.pending, engine.KV{Key: key, Value: value})
		a.pendingSize += len(key) + len(value)
		if a.pendingSize >= batchSize {
			if err := a.flush(); err != nil {
				return err
			}
		}
	}
}

func (a *plainFileApplier) flush() error {
	if len(a.pending) == 0 {
		return nil
	}
	b := a.eng.NewWriteBatch()
	defer b.Close()
	for _, kv := range a.pending {
		if err := b.Put(a.cf, kv.Key, kv.Value); err != nil {
			return base.MarkEngine(err)
		}
	}
	if err := b.Commit(); err != nil {
		return base.MarkEngine(err)
	}
	a.applied += uint64(len(a.pending))
	if a.onBatchApplied != nil {
		a.onBatchApplied(a.pending)
	}
	a.pending = nil
	a.pendingSize = 0
	return nil
}
