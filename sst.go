// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package snapfile

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/snapfile/engine"
	"github.com/cockroachdb/snapfile/internal/base"
)

// BuildSSTFile writes the pairs of cf within kr, read from snap, to a new
// sorted string table at path on eng.FS(). Every pair is admitted by limiter
// before it is written; a nil limiter does not limit.
//
// If the range holds no keys the table is abandoned and removed, and the
// returned statistics have a zero KeyCount. On error the partial table is
// removed.
func BuildSSTFile(
	path string,
	eng engine.Engine,
	snap engine.Reader,
	cf engine.ColumnFamily,
	kr engine.KeyRange,
	limiter *IOLimiter,
) (BuildStatistics, error) {
	var stats BuildStatistics
	if err := cf.Validate(); err != nil {
		return stats, err
	}
	if err := kr.Validate(); err != nil {
		return stats, err
	}
	fs := eng.FS()
	if _, err := fs.Stat(path); err == nil {
		return stats, base.MarkIO(errors.Wrapf(oserror.ErrExist, "creating %s", path))
	} else if !oserror.IsNotExist(err) {
		return stats, base.MarkIO(errors.Wrapf(err, "creating %s", path))
	}
	w, err := eng.NewSSTWriter(cf, path)
	if err != nil {
		return stats, errors.Wrapf(err, "building sst file %s for %s", path, cf)
	}
	err = snap.Scan(cf, kr, func(key, value []byte) error {
		limiter.Request(len(key) + len(value))
		if err := w.Put(key, value); err != nil {
			return base.MarkIO(err)
		}
		stats.add(key, value)
		return nil
	})
	if err == nil && stats.Empty() {
		w.Abort()
		if err := fs.Remove(path); err != nil && !oserror.IsNotExist(err) {
			return stats, base.MarkIO(errors.Wrapf(err, "removing empty sst file %s", path))
		}
		return stats, nil
	}
	if err == nil {
		err = base.MarkIO(w.Finish())
	} else {
		w.Abort()
	}
	if err != nil {
		_ = fs.Remove(path)
		return stats, errors.Wrapf(err, "building sst file %s for %s after %d keys", path, cf, stats.KeyCount)
	}
	return stats, nil
}

// ApplySSTFile bulk ingests the table at path into cf of eng. The file is
// moved into the engine. The caller guarantees that overwriting the table's
// key range is acceptable: no disjointness check is made.
//
// Tables received from a remote node should go through
// PrepareSSTForIngestion first (see ApplyPreparedSSTFile).
func ApplySSTFile(eng engine.Engine, path string, cf engine.ColumnFamily) error {
	if err := cf.Validate(); err != nil {
		return err
	}
	if err := eng.Ingest(cf, []string{path}); err != nil {
		return errors.Wrapf(err, "applying sst file %s to %s", path, cf)
	}
	return nil
}
