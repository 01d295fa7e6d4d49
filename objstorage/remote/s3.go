// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package remote

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/snapfile/internal/base"
)

const s3MaxParts = 10000

// S3Options configures an S3 (or S3 compatible) driver.
type S3Options struct {
	Bucket string
	// Prefix is prepended, followed by a slash, to all object names.
	Prefix string
	Region string
	// Endpoint overrides the service endpoint, e.g. for MinIO or Ceph.
	Endpoint string
	// PathStyle forces path style addressing (endpoint/bucket/key).
	PathStyle bool
	// Implicit uses the SDK's default credential chain (environment, shared
	// config, instance role). Otherwise the static keys below are used.
	Implicit        bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// ACL is the canned ACL applied to uploaded objects.
	ACL string
	// HTTPClient overrides the SDK's HTTP client.
	HTTPClient *http.Client
}

// s3CannedACLs are the canned ACLs accepted for uploads.
var s3CannedACLs = map[string]struct{}{
	"private":                   {},
	"public-read":               {},
	"public-read-write":         {},
	"authenticated-read":        {},
	"aws-exec-read":             {},
	"bucket-owner-read":         {},
	"bucket-owner-full-control": {},
}

func (o *S3Options) validate() error {
	if o.Bucket == "" {
		return base.InvalidInputf("remote: s3 bucket is required")
	}
	if !o.Implicit && (o.AccessKeyID == "" || o.SecretAccessKey == "") {
		return base.InvalidInputf("remote: s3 access key id and secret access key are required without implicit auth")
	}
	if o.ACL != "" {
		if _, ok := s3CannedACLs[o.ACL]; !ok {
			return base.InvalidInputf("remote: unknown s3 canned acl %q", o.ACL)
		}
	}
	return nil
}

// NewS3 returns a driver for the bucket described by opts. The SDK's own
// retries are disabled; ExternalStorage retries instead.
func NewS3(ctx context.Context, opts S3Options) (MultipartStorage, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if !opts.Implicit {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken)))
	}
	if opts.HTTPClient != nil {
		loadOpts = append(loadOpts, config.WithHTTPClient(opts.HTTPClient))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, base.InvalidInputf("remote: loading s3 config: %v", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return &s3Store{client: client, bucket: opts.Bucket, prefix: opts.Prefix, acl: types.ObjectCannedACL(opts.ACL)}, nil
}

type s3Store struct {
	client *s3.Client
	bucket string
	prefix string
	acl    types.ObjectCannedACL
}

var _ MultipartStorage = (*s3Store)(nil)

func (s *s3Store) key(name string) *string {
	if s.prefix == "" {
		return aws.String(name)
	}
	return aws.String(path.Join(s.prefix, name))
}

func (s *s3Store) Close() error {
	return nil
}

func (s *s3Store) PutObject(ctx context.Context, name string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           s.key(name),
		Body:          r,
		ContentLength: aws.Int64(size),
		ACL:           s.acl,
	})
	return err
}

func (s *s3Store) ReadObject(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(name),
	})
	if err != nil {
		return nil, 0, err
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}

func (s *s3Store) List(ctx context.Context, prefix, delimiter string) ([]string, error) {
	full := *s.key(prefix)
	if s.prefix != "" && (prefix == "" || strings.HasSuffix(prefix, "/")) {
		full = strings.TrimSuffix(full, "/") + "/"
	}
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(full),
	}
	if delimiter != "" {
		in.Delimiter = aws.String(delimiter)
	}
	var names []string
	p := s3.NewListObjectsV2Paginator(s.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, o := range page.Contents {
			names = append(names, strings.TrimPrefix(aws.ToString(o.Key), full))
		}
		for _, cp := range page.CommonPrefixes {
			names = append(names, strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), full), delimiter))
		}
	}
	return names, nil
}

func (s *s3Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(name),
	})
	return err
}

func (s *s3Store) Size(ctx context.Context, name string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(name),
	})
	if err != nil {
		return 0, err
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (s *s3Store) IsNotExistError(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchUpload" {
		return true
	}
	var statusErr interface{ HTTPStatusCode() int }
	return errors.As(err, &statusErr) && statusErr.HTTPStatusCode() == http.StatusNotFound
}

func (s *s3Store) MaxParts() int {
	return s3MaxParts
}

func (s *s3Store) CreateMultipartUpload(ctx context.Context, name string) (string, error) {
	out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(name),
		ACL:    s.acl,
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.UploadId), nil
}

func (s *s3Store) UploadPart(
	ctx context.Context, name, uploadID string, partNum int, r io.Reader, size int64,
) (Part, error) {
	out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(s.bucket),
		Key:           s.key(name),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(int32(partNum)),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return Part{}, err
	}
	return Part{Number: partNum, ETag: aws.ToString(out.ETag)}, nil
}

func (s *s3Store) CompleteMultipartUpload(
	ctx context.Context, name, uploadID string, parts []Part,
) error {
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(int32(p.Number)),
		}
	}
	_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             s.key(name),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	return err
}

func (s *s3Store) AbortMultipartUpload(ctx context.Context, name, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      s.key(name),
		UploadId: aws.String(uploadID),
	})
	return err
}
