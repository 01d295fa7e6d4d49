// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package snapfile

import (
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/snapfile/encryption"
	"github.com/cockroachdb/snapfile/engine"
	"github.com/cockroachdb/snapfile/internal/base"
)

// Default option values.
const (
	DefaultApplyBatchSize      = 4 << 20 // 4 MB
	DefaultTransferConcurrency = 4
)

// Options holds the parameters of a Snapshotter.
type Options struct {
	// Engine is the storage engine snapshots are built from and applied to.
	// Required.
	Engine engine.Engine

	// Dir is the directory snapshot files are staged in. It must be on the
	// same filesystem as the engine. Required.
	Dir string

	// FS is the unencrypted filesystem Dir lives on. When the engine
	// encrypts its files, FS must be the filesystem underneath the engine's
	// encrypted one. Defaults to Engine.FS() with any encryption layer
	// removed.
	FS vfs.FS

	// KeyManager encrypts plain files and records the encryption of SST
	// files. It must be the key manager the engine was opened with, if any.
	KeyManager encryption.KeyManager

	// Logger receives lifecycle events. Defaults to DefaultLogger.
	Logger base.Logger

	// ApplyBatchSize is the size in bytes of the write batches plain files
	// are applied with.
	ApplyBatchSize int

	// Limiter caps the write throughput of SST builds. Nil means unlimited.
	Limiter *IOLimiter

	// TransferConcurrency bounds the number of files uploaded or downloaded
	// at the same time.
	TransferConcurrency int
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified. Returns the new options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.FS == nil && o.Engine != nil {
		o.FS, _ = encryption.Unwrap(o.Engine.FS())
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger{}
	}
	if o.ApplyBatchSize <= 0 {
		o.ApplyBatchSize = DefaultApplyBatchSize
	}
	if o.TransferConcurrency <= 0 {
		o.TransferConcurrency = DefaultTransferConcurrency
	}
	return o
}

// Validate checks that the required options are set.
func (o *Options) Validate() error {
	if o.Engine == nil {
		return base.InvalidInputf("snapfile: Options.Engine is required")
	}
	if o.Dir == "" {
		return base.InvalidInputf("snapfile: Options.Dir is required")
	}
	if _, ok := encryption.Unwrap(o.FS); ok {
		return base.InvalidInputf("snapfile: Options.FS must not be an encrypting filesystem")
	}
	return nil
}
