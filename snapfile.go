// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package snapfile builds and applies snapshots of column family data.
//
// A snapshot of a key range is a set of files, one per non-empty column
// family, in one of two formats:
//
//   - Plain files are a stream of compact-encoded key/value pairs terminated
//     by an empty key, optionally encrypted through a key manager. They are
//     applied by replaying batched writes into the engine.
//   - SST files are sorted string tables written by the engine's native
//     writer. They are applied by bulk ingestion.
//
// Builders never persist a file without keys. Appliers consult a
// StaleDetector so that long-running applies can be cancelled cooperatively.
// A Snapshotter ties builders, appliers and remote storage together around a
// Manifest describing the files of one snapshot.
package snapfile // import "github.com/cockroachdb/snapfile"

import "github.com/cockroachdb/snapfile/internal/base"

// Errors returned by this package are marked with exactly one of the
// following. Use errors.Is or KindOf to classify them.
var (
	ErrInvalidInput    = base.ErrInvalidInput
	ErrIO              = base.ErrIO
	ErrEngine          = base.ErrEngine
	ErrRemoteTransient = base.ErrRemoteTransient
	ErrRemoteNotFound  = base.ErrRemoteNotFound
	ErrAbort           = base.ErrAbort
	ErrKeyManager      = base.ErrKeyManager
)

// ErrorKind classifies errors.
type ErrorKind = base.Kind

// The error kinds.
const (
	KindUnknown         = base.KindUnknown
	KindInvalidInput    = base.KindInvalidInput
	KindIO              = base.KindIO
	KindEngine          = base.KindEngine
	KindRemoteTransient = base.KindRemoteTransient
	KindRemoteNotFound  = base.KindRemoteNotFound
	KindAbort           = base.KindAbort
	KindKeyManager      = base.KindKeyManager
)

// KindOf returns the kind of err.
func KindOf(err error) ErrorKind {
	return base.KindOf(err)
}

// Logger defines an interface for writing log messages.
type Logger = base.Logger

// DefaultLogger logs to the Go stdlib logs.
type DefaultLogger = base.DefaultLogger
