// Copyright 2023 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package remote

import (
	"context"
	"fmt"
	"io"
	"sort"
)

// WithLogging wraps the given Storage implementation and emits logs for various
// operations. Multipart operations are logged when the wrapped Storage
// supports them.
func WithLogging(wrapped Storage, logf func(fmt string, args ...interface{})) Storage {
	l := &loggingStore{
		logf:    logf,
		wrapped: wrapped,
	}
	if mp, ok := wrapped.(MultipartStorage); ok {
		return &loggingMultipartStore{loggingStore: l, mp: mp}
	}
	return l
}

// loggingStore wraps a remote.Storage implementation and emits logs of the
// operations.
type loggingStore struct {
	logf    func(fmt string, args ...interface{})
	wrapped Storage
}

var _ Storage = (*loggingStore)(nil)

func (l *loggingStore) Close() error {
	l.logf("close")
	return l.wrapped.Close()
}

func (l *loggingStore) ReadObject(
	ctx context.Context, name string,
) (_ io.ReadCloser, totalSize int64, _ error) {
	r, totalSize, err := l.wrapped.ReadObject(ctx, name)
	l.logf("read object %q: %s", name, errOrPrintf(err, "%d bytes", totalSize))
	if err != nil {
		return nil, 0, err
	}
	return &loggingReader{
		l:          l,
		name:       name,
		ReadCloser: r,
	}, totalSize, nil
}

type loggingReader struct {
	l         *loggingStore
	name      string
	bytesRead int64
	io.ReadCloser
}

func (l *loggingReader) Read(p []byte) (n int, err error) {
	n, err = l.ReadCloser.Read(p)
	l.bytesRead += int64(n)
	return n, err
}

func (l *loggingReader) Close() error {
	l.l.logf("close reader for %q after %d bytes", l.name, l.bytesRead)
	return l.ReadCloser.Close()
}

func (l *loggingStore) PutObject(ctx context.Context, name string, r io.Reader, size int64) error {
	err := l.wrapped.PutObject(ctx, name, r, size)
	l.logf("put object %q (%d bytes): %s", name, size, errOrPrintf(err, "ok"))
	return err
}

func (l *loggingStore) List(ctx context.Context, prefix, delimiter string) ([]string, error) {
	l.logf("list (prefix=%q, delimiter=%q)", prefix, delimiter)
	res, err := l.wrapped.List(ctx, prefix, delimiter)
	if err != nil {
		return nil, err
	}
	sorted := append([]string(nil), res...)
	sort.Strings(sorted)
	for _, s := range sorted {
		l.logf(" - %s", s)
	}
	return res, nil
}

func (l *loggingStore) Delete(ctx context.Context, name string) error {
	l.logf("delete object %q", name)
	return l.wrapped.Delete(ctx, name)
}

func (l *loggingStore) Size(ctx context.Context, name string) (int64, error) {
	size, err := l.wrapped.Size(ctx, name)
	l.logf("size of object %q: %s", name, errOrPrintf(err, "%d", size))
	return size, err
}

func errOrPrintf(err error, format string, args ...interface{}) string {
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return fmt.Sprintf(format, args...)
}

func (l *loggingStore) IsNotExistError(err error) bool {
	return l.wrapped.IsNotExistError(err)
}

// IsRetryable implements RetryClassifier by deferring to the wrapped
// Storage.
func (l *loggingStore) IsRetryable(err error) bool {
	return isRetryable(l.wrapped, err)
}

type loggingMultipartStore struct {
	*loggingStore
	mp MultipartStorage
}

var _ MultipartStorage = (*loggingMultipartStore)(nil)

func (l *loggingMultipartStore) MaxParts() int {
	return l.mp.MaxParts()
}

func (l *loggingMultipartStore) CreateMultipartUpload(ctx context.Context, name string) (string, error) {
	id, err := l.mp.CreateMultipartUpload(ctx, name)
	l.logf("create multipart upload %q: %s", name, errOrPrintf(err, "%s", id))
	return id, err
}

func (l *loggingMultipartStore) UploadPart(
	ctx context.Context, name, uploadID string, partNum int, r io.Reader, size int64,
) (Part, error) {
	p, err := l.mp.UploadPart(ctx, name, uploadID, partNum, r, size)
	l.logf("upload part %d of %q (%d bytes): %s", partNum, name, size, errOrPrintf(err, "ok"))
	return p, err
}

func (l *loggingMultipartStore) CompleteMultipartUpload(
	ctx context.Context, name, uploadID string, parts []Part,
) error {
	err := l.mp.CompleteMultipartUpload(ctx, name, uploadID, parts)
	l.logf("complete multipart upload %q (%d parts): %s", name, len(parts), errOrPrintf(err, "ok"))
	return err
}

func (l *loggingMultipartStore) AbortMultipartUpload(ctx context.Context, name, uploadID string) error {
	err := l.mp.AbortMultipartUpload(ctx, name, uploadID)
	l.logf("abort multipart upload %q: %s", name, errOrPrintf(err, "ok"))
	return err
}
