// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package remote

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/snapfile/internal/base"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// gcsMaxParts is the maximum number of sources of a compose request.
const gcsMaxParts = 32

// GCSOptions configures a Google Cloud Storage driver.
type GCSOptions struct {
	Bucket string
	// Prefix is prepended, followed by a slash, to all object names.
	Prefix string
	// Implicit uses application default credentials. Otherwise
	// CredentialsJSON must hold a service account key.
	Implicit        bool
	CredentialsJSON []byte
	// Anonymous disables authentication altogether, e.g. for emulators.
	Anonymous bool
	Endpoint  string
	// ACL is the predefined ACL applied to uploaded objects.
	ACL        string
	HTTPClient *http.Client
}

// gcsPredefinedACLs are the predefined object ACLs accepted for uploads.
var gcsPredefinedACLs = map[string]struct{}{
	"authenticatedRead":      {},
	"bucketOwnerFullControl": {},
	"bucketOwnerRead":        {},
	"private":                {},
	"projectPrivate":         {},
	"publicRead":             {},
}

func (o *GCSOptions) validate() error {
	if o.Bucket == "" {
		return base.InvalidInputf("remote: gcs bucket is required")
	}
	if !o.Implicit && !o.Anonymous && len(o.CredentialsJSON) == 0 {
		return base.InvalidInputf("remote: gcs credentials are required without implicit auth")
	}
	if o.ACL != "" {
		if _, ok := gcsPredefinedACLs[o.ACL]; !ok {
			return base.InvalidInputf("remote: unknown gcs predefined acl %q", o.ACL)
		}
	}
	return nil
}

// NewGCS returns a driver for the bucket described by opts. The client's own
// retries are disabled; ExternalStorage retries instead.
//
// GCS has no multipart upload API. Parts are uploaded as temporary objects
// and composed into the final object on completion.
func NewGCS(ctx context.Context, opts GCSOptions) (MultipartStorage, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	var clientOpts []option.ClientOption
	switch {
	case opts.Anonymous:
		clientOpts = append(clientOpts, option.WithoutAuthentication())
	case !opts.Implicit:
		clientOpts = append(clientOpts, option.WithCredentialsJSON(opts.CredentialsJSON))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, base.InvalidInputf("remote: creating gcs client: %v", err)
	}
	client.SetRetry(storage.WithPolicy(storage.RetryNever))
	return &gcsStore{
		client: client,
		bucket: client.Bucket(opts.Bucket),
		prefix: opts.Prefix,
		acl:    opts.ACL,
	}, nil
}

type gcsStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
	acl    string
}

var _ MultipartStorage = (*gcsStore)(nil)

func (s *gcsStore) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *gcsStore) Close() error {
	return s.client.Close()
}

func (s *gcsStore) write(ctx context.Context, key string, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := s.bucket.Object(key).NewWriter(ctx)
	w.PredefinedACL = s.acl
	if _, err := io.Copy(w, r); err != nil {
		// Cancelling the context before Close discards the upload.
		cancel()
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (s *gcsStore) PutObject(ctx context.Context, name string, r io.Reader, size int64) error {
	return s.write(ctx, s.key(name), io.LimitReader(r, size))
}

func (s *gcsStore) ReadObject(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	r, err := s.bucket.Object(s.key(name)).NewReader(ctx)
	if err != nil {
		return nil, 0, err
	}
	return r, r.Attrs.Size, nil
}

func (s *gcsStore) List(ctx context.Context, prefix, delimiter string) ([]string, error) {
	full := s.key(prefix)
	if s.prefix != "" && (prefix == "" || strings.HasSuffix(prefix, "/")) {
		full = strings.TrimSuffix(full, "/") + "/"
	}
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: full, Delimiter: delimiter})
	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		if attrs.Prefix != "" {
			names = append(names, strings.TrimSuffix(strings.TrimPrefix(attrs.Prefix, full), delimiter))
			continue
		}
		names = append(names, strings.TrimPrefix(attrs.Name, full))
	}
}

func (s *gcsStore) Delete(ctx context.Context, name string) error {
	return s.bucket.Object(s.key(name)).Delete(ctx)
}

func (s *gcsStore) Size(ctx context.Context, name string) (int64, error) {
	attrs, err := s.bucket.Object(s.key(name)).Attrs(ctx)
	if err != nil {
		return 0, err
	}
	return attrs.Size, nil
}

func (s *gcsStore) IsNotExistError(err error) bool {
	return errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist)
}

func (s *gcsStore) MaxParts() int {
	return gcsMaxParts
}

func (s *gcsStore) partKey(name, uploadID string, partNum int) string {
	return fmt.Sprintf("%s.parts/%s/%03d", s.key(name), uploadID, partNum)
}

func (s *gcsStore) CreateMultipartUpload(ctx context.Context, name string) (string, error) {
	var id [8]byte
	if _, err := rand.Read(id[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(id[:]), nil
}

func (s *gcsStore) UploadPart(
	ctx context.Context, name, uploadID string, partNum int, r io.Reader, size int64,
) (Part, error) {
	if partNum < 1 || partNum > gcsMaxParts {
		return Part{}, base.InvalidInputf("remote: gcs part number %d out of range", partNum)
	}
	key := s.partKey(name, uploadID, partNum)
	if err := s.write(ctx, key, io.LimitReader(r, size)); err != nil {
		return Part{}, err
	}
	return Part{Number: partNum, ETag: key}, nil
}

func (s *gcsStore) CompleteMultipartUpload(
	ctx context.Context, name, uploadID string, parts []Part,
) error {
	srcs := make([]*storage.ObjectHandle, len(parts))
	for i, p := range parts {
		if p.Number != i+1 {
			return base.InvalidInputf("remote: gcs parts out of order at %d", p.Number)
		}
		srcs[i] = s.bucket.Object(s.partKey(name, uploadID, p.Number))
	}
	c := s.bucket.Object(s.key(name)).ComposerFrom(srcs...)
	c.PredefinedACL = s.acl
	if _, err := c.Run(ctx); err != nil {
		return err
	}
	// The object is complete; leftover parts only cost storage.
	_ = s.deleteParts(ctx, name, uploadID)
	return nil
}

func (s *gcsStore) AbortMultipartUpload(ctx context.Context, name, uploadID string) error {
	return s.deleteParts(ctx, name, uploadID)
}

func (s *gcsStore) deleteParts(ctx context.Context, name, uploadID string) error {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: fmt.Sprintf("%s.parts/%s/", s.key(name), uploadID)})
	var firstErr error
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return firstErr
		}
		if err != nil {
			return err
		}
		if err := s.bucket.Object(attrs.Name).Delete(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
}
