// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package engine

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/objstorage/objstorageprovider"
	"github.com/cockroachdb/pebble/sstable"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/snapfile/encryption"
	"github.com/cockroachdb/snapfile/internal/base"
)

// Options holds the optional parameters for opening a Pebble engine.
type Options struct {
	// FS is the filesystem the engine lives on. Defaults to vfs.Default.
	FS vfs.FS
	// KeyManager, if set, encrypts every file the engine creates (including
	// tables built through NewSSTWriter) using an encrypted vfs.FS layered
	// over FS. Its method must be seekable.
	KeyManager encryption.KeyManager
	// Logger is handed to Pebble. Defaults to base.DefaultLogger.
	Logger base.Logger
	// DisableSync commits write batches without syncing the WAL.
	DisableSync bool
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified. Returns the new options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.FS == nil {
		o.FS = vfs.Default
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger{}
	}
	return o
}

// Pebble implements Engine.
type Pebble struct {
	db        *pebble.DB
	fs        vfs.FS
	writeOpts *pebble.WriteOptions
}

var _ Engine = (*Pebble)(nil)

// Open opens (creating if necessary) a Pebble engine in dir.
func Open(dir string, opts *Options) (*Pebble, error) {
	opts = opts.EnsureDefaults()
	fs := opts.FS
	if opts.KeyManager != nil {
		var err error
		if fs, err = encryption.NewFS(fs, opts.KeyManager); err != nil {
			return nil, err
		}
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, base.MarkIO(errors.Wrapf(err, "engine: creating %s", dir))
	}
	db, err := pebble.Open(dir, &pebble.Options{
		FS:                 fs,
		Logger:             opts.Logger,
		FormatMajorVersion: pebble.FormatNewest,
	})
	if err != nil {
		return nil, base.MarkEngine(errors.Wrapf(err, "engine: opening %s", dir))
	}
	p := &Pebble{db: db, fs: fs, writeOpts: pebble.Sync}
	if opts.DisableSync {
		p.writeOpts = pebble.NoSync
	}
	return p, nil
}

// Scan implements Reader.
func (p *Pebble) Scan(cf ColumnFamily, kr KeyRange, fn func(key, value []byte) error) error {
	return scan(p.db, cf, kr, fn)
}

// Get implements Reader.
func (p *Pebble) Get(cf ColumnFamily, key []byte) ([]byte, error) {
	return get(p.db, cf, key)
}

// NewSnapshot implements Engine.
func (p *Pebble) NewSnapshot() Snapshot {
	return &pebbleSnapshot{snap: p.db.NewSnapshot()}
}

// NewWriteBatch implements Engine.
func (p *Pebble) NewWriteBatch() WriteBatch {
	return &pebbleBatch{b: p.db.NewBatch(), writeOpts: p.writeOpts}
}

// NewSSTWriter implements Engine.
func (p *Pebble) NewSSTWriter(cf ColumnFamily, path string) (SSTWriter, error) {
	if err := cf.Validate(); err != nil {
		return nil, err
	}
	f, err := p.fs.Create(path)
	if err != nil {
		return nil, base.MarkIO(errors.Wrapf(err, "engine: creating %s", path))
	}
	w := sstable.NewWriter(objstorageprovider.NewFileWritable(f), sstable.WriterOptions{
		TableFormat: p.db.FormatMajorVersion().MaxTableFormat(),
	})
	return &sstWriter{cf: cf, w: w}, nil
}

// Ingest implements Engine.
func (p *Pebble) Ingest(cf ColumnFamily, paths []string) error {
	if err := cf.Validate(); err != nil {
		return err
	}
	if err := p.db.Ingest(paths); err != nil {
		return base.MarkEngine(errors.Wrapf(err, "engine: ingesting %d tables into %s", len(paths), cf))
	}
	// Pebble links the tables into its own directory.
	for _, path := range paths {
		if err := p.fs.Remove(path); err != nil && !oserror.IsNotExist(err) {
			return base.MarkIO(errors.Wrapf(err, "engine: removing ingested %s", path))
		}
	}
	return nil
}

// FS implements Engine.
func (p *Pebble) FS() vfs.FS {
	return p.fs
}

// Close implements Engine.
func (p *Pebble) Close() error {
	return base.MarkEngine(p.db.Close())
}

type pebbleReader interface {
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
	Get(key []byte) ([]byte, io.Closer, error)
}

func scan(r pebbleReader, cf ColumnFamily, kr KeyRange, fn func(key, value []byte) error) error {
	if err := cf.Validate(); err != nil {
		return err
	}
	if err := kr.Validate(); err != nil {
		return err
	}
	if len(kr.End) > 0 && bytes.Equal(kr.Start, kr.End) {
		return nil
	}
	lower, upper := cf.bounds(kr)
	iter, err := r.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return base.MarkEngine(err)
	}
	for valid := iter.First(); valid; valid = iter.Next() {
		if err := fn(cf.decodeKey(iter.Key()), iter.Value()); err != nil {
			_ = iter.Close()
			return err
		}
	}
	return base.MarkEngine(iter.Close())
}

func get(r pebbleReader, cf ColumnFamily, key []byte) ([]byte, error) {
	if err := cf.Validate(); err != nil {
		return nil, err
	}
	v, closer, err := r.Get(cf.encodeKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, base.MarkEngine(err)
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

type pebbleSnapshot struct {
	snap *pebble.Snapshot
}

func (s *pebbleSnapshot) Scan(cf ColumnFamily, kr KeyRange, fn func(key, value []byte) error) error {
	return scan(s.snap, cf, kr, fn)
}

func (s *pebbleSnapshot) Get(cf ColumnFamily, key []byte) ([]byte, error) {
	return get(s.snap, cf, key)
}

func (s *pebbleSnapshot) Close() error {
	return base.MarkEngine(s.snap.Close())
}

type pebbleBatch struct {
	b         *pebble.Batch
	writeOpts *pebble.WriteOptions
	buf       []byte
}

func (b *pebbleBatch) Put(cf ColumnFamily, key, value []byte) error {
	if err := cf.Validate(); err != nil {
		return err
	}
	b.buf = append(append(b.buf[:0], cf.prefix()), key...)
	return base.MarkEngine(b.b.Set(b.buf, value, nil))
}

func (b *pebbleBatch) Count() int {
	return int(b.b.Count())
}

func (b *pebbleBatch) Size() int {
	return b.b.Len()
}

func (b *pebbleBatch) Commit() error {
	return base.MarkEngine(b.b.Commit(b.writeOpts))
}

func (b *pebbleBatch) Close() error {
	return base.MarkEngine(b.b.Close())
}

type sstWriter struct {
	cf  ColumnFamily
	w   *sstable.Writer
	buf []byte
}

func (s *sstWriter) Put(key, value []byte) error {
	s.buf = append(append(s.buf[:0], s.cf.prefix()), key...)
	return s.w.Set(s.buf, value)
}

func (s *sstWriter) Finish() error {
	return s.w.Close()
}

func (s *sstWriter) Abort() {
	_ = s.w.Close()
}
