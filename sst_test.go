// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package snapfile

import (
	"os"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/snapfile/encryption"
	"github.com/cockroachdb/snapfile/engine"
	"github.com/stretchr/testify/require"
)

func TestBuildSSTFileEmptyRange(t *testing.T) {
	fs := vfs.NewMem()
	e := openEngine(t, fs, "/db", nil)
	fill(t, e, engine.CFDefault, "a", "1")
	snap := e.NewSnapshot()
	defer snap.Close()

	stats, err := BuildSSTFile("/empty.sst", e, snap, engine.CFDefault,
		engine.KeyRange{Start: []byte("b"), End: []byte("c")}, nil)
	require.NoError(t, err)
	require.Zero(t, stats.KeyCount)
	require.False(t, exists(fs, "/empty.sst"))

	stats, err = BuildSSTFile("/empty.sst", e, snap, engine.CFRaft, engine.KeyRange{}, nil)
	require.NoError(t, err)
	require.True(t, stats.Empty())
	require.False(t, exists(fs, "/empty.sst"))
}

func TestSSTRoundTrip(t *testing.T) {
	for _, m := range []encryption.Method{encryption.Plaintext, encryption.Aes128Ctr} {
		t.Run(m.String(), func(t *testing.T) {
			fs := vfs.NewMem()
			var km encryption.KeyManager
			if m != encryption.Plaintext {
				km = newRegistry(t, m)
			}
			src := openEngine(t, fs, "/src", km)
			fillN(t, src, engine.CFWrite, 500)
			fill(t, src, engine.CFDefault, "key-00001", "other")
			snap := src.NewSnapshot()
			defer snap.Close()

			limiter := NewIOLimiter(1 << 30)
			stats, err := BuildSSTFile("/write.sst", src, snap, engine.CFWrite, engine.KeyRange{}, limiter)
			require.NoError(t, err)
			require.Equal(t, uint64(500), stats.KeyCount)
			require.Equal(t, uint64(500*20), stats.TotalSize)

			// The destination shares the filesystem (and key manager) so the
			// table can be ingested by moving it.
			dst := openEngine(t, fs, "/dst", km)
			require.NoError(t, ApplySSTFile(dst, "/write.sst", engine.CFWrite))
			require.False(t, exists(fs, "/write.sst"))
			require.Equal(t, dump(t, snap, engine.CFWrite), dump(t, dst, engine.CFWrite))
			require.Empty(t, dump(t, dst, engine.CFDefault))
		})
	}
}

func TestBuildSSTFileErrors(t *testing.T) {
	fs := vfs.NewMem()
	e := openEngine(t, fs, "/db", nil)
	fill(t, e, engine.CFDefault, "a", "1")
	snap := e.NewSnapshot()
	defer snap.Close()

	_, err := BuildSSTFile("/x.sst", e, snap, engine.ColumnFamily(7), engine.KeyRange{}, nil)
	require.True(t, errors.Is(err, ErrInvalidInput))

	writeFile(t, fs, "/x.sst", []byte("occupied"))
	_, err = BuildSSTFile("/x.sst", e, snap, engine.CFDefault, engine.KeyRange{}, nil)
	require.True(t, errors.Is(err, ErrIO))
	require.Equal(t, []byte("occupied"), readFile(t, fs, "/x.sst"))

	err = ApplySSTFile(e, "/x.sst", engine.CFDefault)
	require.True(t, errors.Is(err, ErrEngine))
	err = ApplySSTFile(e, "/x.sst", engine.ColumnFamily(0))
	require.True(t, errors.Is(err, ErrInvalidInput))
}

// statErrorFS fails Stat of one path with a permission error.
type statErrorFS struct {
	vfs.FS
	path string
}

func (fs statErrorFS) Stat(name string) (os.FileInfo, error) {
	if name == fs.path {
		return nil, os.ErrPermission
	}
	return fs.FS.Stat(name)
}

func TestBuildSSTFileStatError(t *testing.T) {
	mem := vfs.NewMem()
	e := openEngine(t, statErrorFS{FS: mem, path: "/denied.sst"}, "/db", nil)
	fill(t, e, engine.CFDefault, "a", "1")
	snap := e.NewSnapshot()
	defer snap.Close()

	_, err := BuildSSTFile("/denied.sst", e, snap, engine.CFDefault, engine.KeyRange{}, nil)
	require.True(t, errors.Is(err, ErrIO))
	require.True(t, errors.Is(err, os.ErrPermission))
	require.False(t, exists(mem, "/denied.sst"))
}
