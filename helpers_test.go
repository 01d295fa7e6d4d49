// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package snapfile

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/snapfile/encryption"
	"github.com/cockroachdb/snapfile/engine"
	"github.com/cockroachdb/snapfile/internal/base"
	"github.com/stretchr/testify/require"
)

func openEngine(t *testing.T, fs vfs.FS, dir string, km encryption.KeyManager) *engine.Pebble {
	t.Helper()
	e, err := engine.Open(dir, &engine.Options{
		FS:          fs,
		KeyManager:  km,
		Logger:      base.NoopLogger{},
		DisableSync: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	return e
}

func newRegistry(t *testing.T, m encryption.Method) *encryption.Registry {
	t.Helper()
	r, err := encryption.NewRegistry(m, bytes.Repeat([]byte{0x42}, m.KeySize()))
	require.NoError(t, err)
	return r
}

func fill(t *testing.T, e engine.Engine, cf engine.ColumnFamily, kvs ...string) {
	t.Helper()
	b := e.NewWriteBatch()
	defer b.Close()
	for i := 0; i < len(kvs); i += 2 {
		require.NoError(t, b.Put(cf, []byte(kvs[i]), []byte(kvs[i+1])))
	}
	require.NoError(t, b.Commit())
}

// fillN writes n pairs key-%05d -> value-%05d.
func fillN(t *testing.T, e engine.Engine, cf engine.ColumnFamily, n int) {
	t.Helper()
	var kvs []string
	for i := 0; i < n; i++ {
		kvs = append(kvs, fmt.Sprintf("key-%05d", i), fmt.Sprintf("value-%05d", i))
	}
	fill(t, e, cf, kvs...)
}

func dump(t *testing.T, r engine.Reader, cf engine.ColumnFamily) []string {
	t.Helper()
	var out []string
	require.NoError(t, r.Scan(cf, engine.KeyRange{}, func(k, v []byte) error {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
		return nil
	}))
	return out
}

func exists(fs vfs.FS, path string) bool {
	_, err := fs.Stat(path)
	return err == nil
}
