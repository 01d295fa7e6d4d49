// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package engine defines the storage engine capability consumed by snapshot
// builders and appliers, and implements it on top of Pebble.
//
// Column families are modeled as disjoint key prefixes of a single Pebble
// keyspace. All keys and values exchanged through this package are user keys:
// the prefix is added and stripped internally.
package engine

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("engine: not found")

// KV is a key/value pair of a single column family.
type KV struct {
	Key   []byte
	Value []byte
}

// Reader is the read capability shared by engines and their snapshots.
type Reader interface {
	// Scan calls fn for every pair of cf within kr in ascending key order.
	// The slices passed to fn are only valid until fn returns. Scan stops at
	// and returns the first error returned by fn.
	Scan(cf ColumnFamily, kr KeyRange, fn func(key, value []byte) error) error
	// Get returns a copy of the value of key, or ErrNotFound.
	Get(cf ColumnFamily, key []byte) ([]byte, error)
}

// Snapshot is a consistent point-in-time view of an engine.
type Snapshot interface {
	Reader
	Close() error
}

// WriteBatch accumulates writes that are committed atomically.
type WriteBatch interface {
	Put(cf ColumnFamily, key, value []byte) error
	// Count returns the number of writes in the batch.
	Count() int
	// Size returns the encoded size of the batch in bytes.
	Size() int
	// Commit durably applies the batch. The batch may not be reused.
	Commit() error
	Close() error
}

// SSTWriter writes a sorted string table bound to a single column family.
// Keys must be added in strictly ascending order.
type SSTWriter interface {
	Put(key, value []byte) error
	// Finish finalizes the table and syncs it to stable storage.
	Finish() error
	// Abort closes the writer without producing a usable table. The caller
	// is responsible for removing the file.
	Abort()
}

// Engine is the storage engine capability.
type Engine interface {
	Reader
	NewSnapshot() Snapshot
	NewWriteBatch() WriteBatch
	// NewSSTWriter creates the table at path on FS().
	NewSSTWriter(cf ColumnFamily, path string) (SSTWriter, error)
	// Ingest bulk loads the tables at paths, bypassing the write path. The
	// files are moved into the engine: on success the paths no longer exist.
	Ingest(cf ColumnFamily, paths []string) error
	// FS is the filesystem the engine stores its files on. Files that will be
	// ingested must be created on it.
	FS() vfs.FS
	Close() error
}
