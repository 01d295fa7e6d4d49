// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package remote

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/snapfile/internal/base"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	loc, err := ParseURI("file:///var/snapshots")
	require.NoError(t, err)
	require.Equal(t, Location{Scheme: "file", Dir: "/var/snapshots"}, loc)

	loc, err = ParseURI("mem://test")
	require.NoError(t, err)
	require.Equal(t, Location{Scheme: "mem", Name: "test"}, loc)

	loc, err = ParseURI("s3://bucket/a/b/?region=eu-west-1&AWS_ACCESS_KEY_ID=id&AWS_SECRET_ACCESS_KEY=secret" +
		"&acl=bucket-owner-full-control&path_style=true&endpoint=http://localhost:9000")
	require.NoError(t, err)
	require.Equal(t, &S3Options{
		Bucket:          "bucket",
		Prefix:          "a/b",
		Region:          "eu-west-1",
		Endpoint:        "http://localhost:9000",
		PathStyle:       true,
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
		ACL:             "bucket-owner-full-control",
	}, loc.S3)

	loc, err = ParseURI("s3://bucket?AUTH=implicit")
	require.NoError(t, err)
	require.True(t, loc.S3.Implicit)

	creds := `{"type": "service_account"}`
	loc, err = ParseURI("gs://bucket/prefix?CREDENTIALS=" + base64.URLEncoding.EncodeToString([]byte(creds)) + "&acl=publicRead")
	require.NoError(t, err)
	require.Equal(t, "bucket", loc.GCS.Bucket)
	require.Equal(t, "prefix", loc.GCS.Prefix)
	require.Equal(t, creds, string(loc.GCS.CredentialsJSON))
	require.Equal(t, "publicRead", loc.GCS.ACL)

	loc, err = ParseURI("gs://bucket?AUTH=none&endpoint=http://localhost:4443")
	require.NoError(t, err)
	require.True(t, loc.GCS.Anonymous)
}

func TestParseURIErrors(t *testing.T) {
	for _, uri := range []string{
		"",
		"/no/scheme",
		"ftp://host/dir",
		"file://host/dir",
		"file://",
		"mem://x?region=us",
		"s3://?AUTH=implicit",
		"s3://bucket",
		"s3://bucket?AWS_ACCESS_KEY_ID=id",
		"s3://bucket?AUTH=magic",
		"s3://bucket?AUTH=implicit&acl=everyone",
		"s3://bucket?AUTH=implicit&path_style=maybe",
		"s3://bucket?AUTH=implicit&bogus=1",
		"gs://bucket",
		"gs://bucket?CREDENTIALS=%%%",
		"gs://bucket?CREDENTIALS=not-base64!",
		"gs://bucket?AUTH=implicit&acl=public-read",
		"gs://?AUTH=implicit",
	} {
		t.Run(uri, func(t *testing.T) {
			_, err := ParseURI(uri)
			require.Error(t, err)
			require.True(t, errors.Is(err, base.ErrInvalidInput), "%v", err)
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	fs := vfs.NewMem()
	s, err := Open(ctx, "file:///objects", fs)
	require.NoError(t, err)
	e := New(s, testOptions())
	require.NoError(t, e.Write(ctx, "a/b", strings.NewReader("hello"), 5))
	require.Equal(t, []byte("hello"), readObject(t, e, "a/b"))
	require.NoError(t, e.Close())

	// Every mem:// store starts out empty.
	s1, err := Open(ctx, "mem://x", nil)
	require.NoError(t, err)
	require.NoError(t, s1.PutObject(ctx, "k", strings.NewReader("v"), 1))
	s2, err := Open(ctx, "mem://x", nil)
	require.NoError(t, err)
	names, err := s2.List(ctx, "", "")
	require.NoError(t, err)
	require.Empty(t, names)

	_, err = Open(ctx, "s3://bucket", nil)
	require.True(t, errors.Is(err, base.ErrInvalidInput))
}
