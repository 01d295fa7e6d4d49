// Copyright 2023 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package remote moves snapshot files to and from blob stores.
//
// Storage is the narrow driver interface implemented for the local
// filesystem, memory, S3 and GCS. ExternalStorage layers the transfer policy
// on top of a driver: retries of transient failures, multipart uploads of
// large objects and the classification of errors into the module's error
// kinds.
package remote

import (
	"context"
	"io"
)

// Storage is an interface for a blob storage driver. Drivers perform a single
// attempt per call; retrying is left to ExternalStorage.
type Storage interface {
	io.Closer

	// PutObject creates or replaces the named object with the size bytes
	// read from r. The object is not visible until the call succeeds.
	PutObject(ctx context.Context, name string, r io.Reader, size int64) error

	// ReadObject returns a reader of the named object and its size.
	ReadObject(ctx context.Context, name string) (_ io.ReadCloser, size int64, _ error)

	// List enumerates the objects whose names start with prefix. If
	// delimiter is non-empty, names which have the same prefix, prior to the
	// delimiter but after the prefix, are grouped into a single result which
	// is that prefix. The prefix is trimmed from the results, which are not
	// ordered.
	//
	// An example would be, if the storage contains objects a, b/4, b/5 and b/6,
	// these would be the return values:
	//   List("", "") -> ["a", "b/4", "b/5", "b/6"]
	//   List("", "/") -> ["a", "b"]
	//   List("b/", "") -> ["4", "5", "6"]
	List(ctx context.Context, prefix, delimiter string) ([]string, error)

	// Delete removes the named object from the store.
	Delete(ctx context.Context, name string) error

	// Size returns the length of the named object in bytes.
	Size(ctx context.Context, name string) (int64, error)

	// IsNotExistError indicates whether the error is known to report that an
	// object does not exist.
	IsNotExistError(err error) bool
}

// Part identifies an uploaded part of a multipart upload.
type Part struct {
	Number int
	ETag   string
}

// MultipartStorage is implemented by drivers that can assemble an object from
// independently uploaded parts.
type MultipartStorage interface {
	Storage

	// MaxParts is the maximum number of parts of a single upload.
	MaxParts() int

	// CreateMultipartUpload starts an upload and returns its id.
	CreateMultipartUpload(ctx context.Context, name string) (uploadID string, _ error)

	// UploadPart uploads part number partNum (starting at 1) of size bytes.
	UploadPart(
		ctx context.Context, name, uploadID string, partNum int, r io.Reader, size int64,
	) (Part, error)

	// CompleteMultipartUpload assembles the parts, in order, into the object.
	CompleteMultipartUpload(ctx context.Context, name, uploadID string, parts []Part) error

	// AbortMultipartUpload discards an upload and its parts.
	AbortMultipartUpload(ctx context.Context, name, uploadID string) error
}

// RetryClassifier may be implemented by drivers whose errors are not
// recognized by IsRetryable.
type RetryClassifier interface {
	IsRetryable(err error) bool
}
