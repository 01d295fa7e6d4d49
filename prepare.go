// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package snapfile

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/snapfile/encryption"
	"github.com/cockroachdb/snapfile/engine"
	"github.com/cockroachdb/snapfile/internal/base"
)

// PrepareSSTForIngestion creates clone, a private copy of the received table
// src that can be handed to ingestion. Ingestion rewrites a table's global
// sequence number, so src itself must stay untouched in case it has to be
// ingested again.
//
// If src has a single link, clone is a hard link to it. If the engine (or
// anyone else) already links src, clone is a byte copy. When the link count
// cannot be determined (e.g. an in-memory filesystem) clone is a copy.
//
// fs must be the unencrypted filesystem. When km is non-nil the clone is
// registered with src's key material through km.LinkFile; the caller must
// delete that registration once the clone is gone. A stale clone left behind
// by an earlier attempt is replaced.
func PrepareSSTForIngestion(fs vfs.FS, src, clone string, km encryption.KeyManager) error {
	if km != nil {
		info, err := km.GetFile(src)
		if err != nil {
			return errors.Mark(errors.Wrapf(err, "looking up %s", src), ErrKeyManager)
		}
		if !info.Method.Seekable() {
			return base.InvalidInputf("sst file %s is encrypted with %s, which cannot be ingested", src, info.Method)
		}
	}
	if err := removeClone(fs, clone, km); err != nil {
		return err
	}

	n, ok, err := linkCount(fs, src)
	if err != nil {
		return base.MarkIO(errors.Wrapf(err, "stat %s", src))
	}
	if ok && n == 1 {
		err = fs.Link(src, clone)
	} else {
		err = vfs.Copy(fs, src, clone)
	}
	if err != nil {
		_ = fs.Remove(clone)
		return base.MarkIO(errors.Wrapf(err, "cloning %s to %s", src, clone))
	}
	if km != nil {
		if err := km.LinkFile(src, clone); err != nil {
			_ = fs.Remove(clone)
			return errors.Mark(errors.Wrapf(err, "registering %s", clone), ErrKeyManager)
		}
	}
	return nil
}

func removeClone(fs vfs.FS, clone string, km encryption.KeyManager) error {
	if err := fs.Remove(clone); err != nil && !oserror.IsNotExist(err) {
		return base.MarkIO(errors.Wrapf(err, "removing stale clone %s", clone))
	}
	if km != nil {
		if err := km.DeleteFile(clone); err != nil {
			return errors.Mark(err, ErrKeyManager)
		}
	}
	return nil
}

// ApplyPreparedSSTFile prepares a clone of src at clone, ingests the clone
// into cf of eng and drops the clone's key registration. src is left in
// place.
func ApplyPreparedSSTFile(
	fs vfs.FS,
	eng engine.Engine,
	src, clone string,
	cf engine.ColumnFamily,
	km encryption.KeyManager,
) error {
	if err := cf.Validate(); err != nil {
		return err
	}
	if err := PrepareSSTForIngestion(fs, src, clone, km); err != nil {
		return err
	}
	err := ApplySSTFile(eng, clone, cf)
	if err != nil {
		err = errors.CombineErrors(err, removeClone(fs, clone, km))
	} else if km != nil {
		err = errors.Mark(km.DeleteFile(clone), ErrKeyManager)
	}
	return err
}
