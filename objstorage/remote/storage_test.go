// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package remote

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/snapfile/internal/base"
	"github.com/stretchr/testify/require"
)

func TestStorageDrivers(t *testing.T) {
	drivers := map[string]func() Storage{
		"localfs": func() Storage { return NewLocalFS("/remote", vfs.NewMem()) },
		"mem":     func() Storage { return NewInMem() },
	}
	for name, newStore := range drivers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()
			defer s.Close()

			for _, obj := range []string{"a", "b/4", "b/5", "b/6"} {
				require.NoError(t, s.PutObject(ctx, obj, strings.NewReader(obj), int64(len(obj))))
			}

			list := func(prefix, delimiter string) []string {
				names, err := s.List(ctx, prefix, delimiter)
				require.NoError(t, err)
				return names
			}
			require.Equal(t, []string{"a", "b/4", "b/5", "b/6"}, list("", ""))
			require.Equal(t, []string{"a", "b"}, list("", "/"))
			require.Equal(t, []string{"4", "5", "6"}, list("b/", ""))
			require.Empty(t, list("c", ""))

			rc, size, err := s.ReadObject(ctx, "b/5")
			require.NoError(t, err)
			require.Equal(t, int64(3), size)
			b, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			require.Equal(t, "b/5", string(b))

			// Overwrites replace the object.
			require.NoError(t, s.PutObject(ctx, "a", strings.NewReader("xyz"), 3))
			size, err = s.Size(ctx, "a")
			require.NoError(t, err)
			require.Equal(t, int64(3), size)

			// A short payload fails and leaves the object untouched.
			require.Error(t, s.PutObject(ctx, "a", strings.NewReader("12"), 3))
			size, err = s.Size(ctx, "a")
			require.NoError(t, err)
			require.Equal(t, int64(3), size)

			require.NoError(t, s.Delete(ctx, "b/4"))
			require.Equal(t, []string{"5", "6"}, list("b/", ""))
			_, _, err = s.ReadObject(ctx, "b/4")
			require.True(t, s.IsNotExistError(err), "%v", err)
			_, err = s.Size(ctx, "b/4")
			require.True(t, s.IsNotExistError(err), "%v", err)
		})
	}
}

func TestLocalFSInvalidNames(t *testing.T) {
	ctx := context.Background()
	s := NewLocalFS("/remote", vfs.NewMem())
	for _, name := range []string{"", "/abs", "../escape", "a/../b", "a//b", "a/"} {
		err := s.PutObject(ctx, name, strings.NewReader("x"), 1)
		require.True(t, errors.Is(err, base.ErrInvalidInput), "%q: %v", name, err)
	}
}

func TestInMemMultipart(t *testing.T) {
	ctx := context.Background()
	s := NewInMem()
	id, err := s.CreateMultipartUpload(ctx, "obj")
	require.NoError(t, err)
	p2, err := s.UploadPart(ctx, "obj", id, 2, strings.NewReader("world"), 5)
	require.NoError(t, err)
	p1, err := s.UploadPart(ctx, "obj", id, 1, strings.NewReader("hello "), 6)
	require.NoError(t, err)

	require.Error(t, s.CompleteMultipartUpload(ctx, "obj", id, []Part{p2, p1}))
	require.Error(t, s.CompleteMultipartUpload(ctx, "obj", id, []Part{p1, {Number: 2, ETag: "bogus"}}))
	require.NoError(t, s.CompleteMultipartUpload(ctx, "obj", id, []Part{p1, p2}))

	rc, _, err := s.ReadObject(ctx, "obj")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(b))

	// Completed uploads cannot be aborted or reused.
	require.Error(t, s.AbortMultipartUpload(ctx, "obj", id))
	_, err = s.UploadPart(ctx, "obj", id, 3, strings.NewReader("!"), 1)
	require.Error(t, err)
}

func TestWithLogging(t *testing.T) {
	ctx := context.Background()
	var buf strings.Builder
	s := WithLogging(NewInMem(), func(format string, args ...interface{}) {
		fmt.Fprintf(&buf, format+"\n", args...)
	})
	_, ok := s.(MultipartStorage)
	require.True(t, ok)
	_, ok = WithLogging(NewLocalFS("/", vfs.NewMem()), t.Logf).(MultipartStorage)
	require.False(t, ok)

	opts := testOptions()
	opts.MultipartThreshold = 60
	e := New(s, opts)
	require.NoError(t, e.Write(ctx, "x/small", strings.NewReader("hello"), 5))
	require.NoError(t, e.Write(ctx, "x/large", strings.NewReader(strings.Repeat("z", 70)), 70))
	require.Equal(t, "hello", string(readObject(t, e, "x/small")))
	_, err := e.List(ctx, "x/", "")
	require.NoError(t, err)
	require.NoError(t, e.Delete(ctx, "x/small"))
	_, err = e.Size(ctx, "x/small")
	require.True(t, errors.Is(err, base.ErrRemoteNotFound))

	require.Equal(t, `put object "x/small" (5 bytes): ok
create multipart upload "x/large": upload-1
upload part 1 of "x/large" (30 bytes): ok
upload part 2 of "x/large" (30 bytes): ok
upload part 3 of "x/large" (10 bytes): ok
complete multipart upload "x/large" (3 parts): ok
read object "x/small": 5 bytes
close reader for "x/small" after 5 bytes
list (prefix="x/", delimiter="")
 - large
 - small
delete object "x/small"
size of object "x/small": error: file does not exist
`, buf.String())
}
