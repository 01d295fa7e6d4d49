// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package remote

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/snapfile/internal/base"
)

// Default transfer options.
const (
	DefaultMultipartThreshold = 64 << 20 // 64 MB
	DefaultPartSize           = 16 << 20 // 16 MB
)

// Options holds the transfer policy of an ExternalStorage.
type Options struct {
	// MaxRetries bounds the number of retries of a single request. Zero
	// means DefaultMaxRetries; use a negative value to disable retries.
	MaxRetries int
	// InitialBackoff and MaxBackoff configure the exponential backoff between
	// attempts.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MultipartThreshold is the object size at and above which uploads to a
	// MultipartStorage are split into parts.
	MultipartThreshold int64
	// PartSize is the size of every part but the last. It is raised when
	// needed to stay within the driver's MaxParts.
	PartSize int64
	// Logger logs retried attempts and failed aborts.
	Logger base.Logger
	// Metrics, if set, counts requests, retries and bytes.
	Metrics *Metrics
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified. Returns the new options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	switch {
	case o.MaxRetries == 0:
		o.MaxRetries = DefaultMaxRetries
	case o.MaxRetries < 0:
		o.MaxRetries = 0
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = DefaultInitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.MultipartThreshold <= 0 {
		o.MultipartThreshold = DefaultMultipartThreshold
	}
	if o.PartSize <= 0 {
		o.PartSize = DefaultPartSize
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger{}
	}
	return o
}

// ExternalStorage moves objects to and from a Storage driver under a retry
// policy. It is safe for concurrent use if the driver is.
//
// Errors returned by ExternalStorage are marked with ErrRemoteNotFound for
// missing objects, ErrRemoteTransient for retryable failures that outlived
// the retry budget, and ErrIO otherwise (unless the driver already marked
// them, e.g. with ErrInvalidInput).
type ExternalStorage struct {
	s    Storage
	opts *Options
	r    retrier
}

// New returns an ExternalStorage over s.
func New(s Storage, opts *Options) *ExternalStorage {
	opts = opts.EnsureDefaults()
	return &ExternalStorage{
		s:    s,
		opts: opts,
		r:    retrier{s: s, opts: opts, metrics: opts.Metrics},
	}
}

// Storage returns the underlying driver.
func (e *ExternalStorage) Storage() Storage {
	return e.s
}

// Close closes the underlying driver.
func (e *ExternalStorage) Close() error {
	return e.s.Close()
}

// Write uploads size bytes read from r as the named object.
//
// Objects smaller than MultipartThreshold, or any object on a driver without
// multipart support, are sent in a single request. Larger objects are split
// into parts that are uploaded and retried individually, then completed. If
// a part or the completion fails for good, the upload is aborted once, best
// effort.
//
// Retrying requires re-reading the payload: if r implements io.ReaderAt it is
// re-read in place, otherwise single requests and parts are buffered in
// memory. An io.ReaderAt is read from offset 0 regardless of its current
// position; other readers are read from where they are.
func (e *ExternalStorage) Write(ctx context.Context, name string, r io.Reader, size int64) error {
	if size < 0 {
		return base.InvalidInputf("remote: negative size %d for %q", size, name)
	}
	if mp, ok := e.s.(MultipartStorage); ok && size >= e.opts.MultipartThreshold {
		return e.writeMultipart(ctx, mp, name, r, size)
	}
	body, err := newReplayableBody(r, 0, size)
	if err != nil {
		return base.MarkIO(errors.Wrapf(err, "remote: reading payload of %q", name))
	}
	err = e.r.do(ctx, "put", name, func() error {
		return e.s.PutObject(ctx, name, body.reader(), size)
	})
	if err == nil {
		e.opts.Metrics.wrote(size)
	}
	return err
}

// partLayout returns the part size and count for an object of size bytes.
func (e *ExternalStorage) partLayout(size int64, maxParts int) (partSize int64, parts int) {
	partSize = e.opts.PartSize
	if maxParts > 0 && (size+partSize-1)/partSize > int64(maxParts) {
		partSize = (size + int64(maxParts) - 1) / int64(maxParts)
	}
	return partSize, int((size + partSize - 1) / partSize)
}

func (e *ExternalStorage) writeMultipart(
	ctx context.Context, mp MultipartStorage, name string, r io.Reader, size int64,
) error {
	var uploadID string
	err := e.r.do(ctx, "create-multipart", name, func() error {
		var err error
		uploadID, err = mp.CreateMultipartUpload(ctx, name)
		return err
	})
	if err != nil {
		return err
	}

	partSize, n := e.partLayout(size, mp.MaxParts())
	parts := make([]Part, 0, n)
	for i := 0; i < n; i++ {
		off := int64(i) * partSize
		length := min(partSize, size-off)
		body, err := newReplayableBody(r, off, length)
		if err != nil {
			return e.abort(mp, name, uploadID, base.MarkIO(errors.Wrapf(err, "remote: reading part %d of %q", i+1, name)))
		}
		var part Part
		err = e.r.do(ctx, "upload-part", name, func() error {
			var err error
			part, err = mp.UploadPart(ctx, name, uploadID, i+1, body.reader(), length)
			return err
		})
		if err != nil {
			return e.abort(mp, name, uploadID, err)
		}
		e.opts.Metrics.wrote(length)
		parts = append(parts, part)
	}

	err = e.r.do(ctx, "complete-multipart", name, func() error {
		return mp.CompleteMultipartUpload(ctx, name, uploadID, parts)
	})
	if err != nil {
		return e.abort(mp, name, uploadID, err)
	}
	return nil
}

// abort discards a failed multipart upload. The abort is attempted once and
// its failure is only logged: the returned error is always cause.
func (e *ExternalStorage) abort(mp MultipartStorage, name, uploadID string, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.MaxBackoff)
	defer cancel()
	if err := mp.AbortMultipartUpload(ctx, name, uploadID); err != nil {
		e.opts.Logger.Errorf("remote: aborting multipart upload of %q: %v", name, err)
	}
	return cause
}

// Read returns a reader of the named object. Opening the object is retried;
// the returned stream is consumed lazily and its errors are not retried.
func (e *ExternalStorage) Read(ctx context.Context, name string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := e.r.do(ctx, "read", name, func() error {
		var err error
		rc, _, err = e.s.ReadObject(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &objectReader{ReadCloser: rc, name: name, e: e}, nil
}

// Size returns the size of the named object.
func (e *ExternalStorage) Size(ctx context.Context, name string) (int64, error) {
	var size int64
	err := e.r.do(ctx, "size", name, func() error {
		var err error
		size, err = e.s.Size(ctx, name)
		return err
	})
	return size, err
}

// Delete removes the named object. Deleting a missing object is not an
// error.
func (e *ExternalStorage) Delete(ctx context.Context, name string) error {
	err := e.r.do(ctx, "delete", name, func() error {
		return e.s.Delete(ctx, name)
	})
	if errors.Is(err, base.ErrRemoteNotFound) {
		return nil
	}
	return err
}

// List lists the objects under prefix (see Storage.List).
func (e *ExternalStorage) List(ctx context.Context, prefix, delimiter string) ([]string, error) {
	var names []string
	err := e.r.do(ctx, "list", prefix, func() error {
		var err error
		names, err = e.s.List(ctx, prefix, delimiter)
		return err
	})
	return names, err
}

type objectReader struct {
	io.ReadCloser
	name string
	e    *ExternalStorage
}

func (r *objectReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.e.opts.Metrics.read(int64(n))
	if err != nil && err != io.EOF {
		err = errors.Wrapf(r.e.r.classify(err), "remote: reading %q", r.name)
	}
	return n, err
}

// replayableBody provides a fresh reader of the same bytes for every attempt.
type replayableBody struct {
	ra     io.ReaderAt
	off    int64
	length int64
	buf    []byte
}

// newReplayableBody captures bytes [off, off+length) of r. Readers that
// implement io.ReaderAt are read in place; others are read sequentially into
// memory, so consecutive calls must ask for consecutive ranges.
func newReplayableBody(r io.Reader, off, length int64) (*replayableBody, error) {
	if ra, ok := r.(io.ReaderAt); ok {
		return &replayableBody{ra: ra, off: off, length: length}, nil
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return &replayableBody{buf: buf, length: length}, nil
}

func (b *replayableBody) reader() io.ReadSeeker {
	if b.ra != nil {
		return io.NewSectionReader(b.ra, b.off, b.length)
	}
	return bytes.NewReader(b.buf)
}
