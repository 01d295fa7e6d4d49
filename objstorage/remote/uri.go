// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package remote

import (
	"context"
	"encoding/base64"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/snapfile/internal/base"
)

// URI query parameters.
const (
	paramAuth         = "AUTH"
	paramAccessKeyID  = "AWS_ACCESS_KEY_ID"
	paramSecretKey    = "AWS_SECRET_ACCESS_KEY"
	paramSessionToken = "AWS_SESSION_TOKEN"
	paramRegion       = "region"
	paramEndpoint     = "endpoint"
	paramPathStyle    = "path_style"
	paramACL          = "acl"
	paramCredentials  = "CREDENTIALS"

	authSpecified = "specified"
	authImplicit  = "implicit"
	authNone      = "none"
)

// Location is a parsed storage URI. Exactly one of the scheme specific fields
// is set.
type Location struct {
	Scheme string
	// Dir is the root directory of a file:// location.
	Dir string
	// Name is the name of a mem:// location.
	Name string
	S3   *S3Options
	GCS  *GCSOptions
}

// ParseURI parses a storage URI:
//
//	file:///path/to/dir
//	mem://name
//	s3://bucket/prefix?region=&endpoint=&AUTH=&AWS_ACCESS_KEY_ID=&AWS_SECRET_ACCESS_KEY=&AWS_SESSION_TOKEN=&acl=&path_style=
//	gs://bucket/prefix?AUTH=&CREDENTIALS=&endpoint=&acl=
//
// AUTH is "specified" (the default; keys or credentials must be given),
// "implicit" (the environment's default credentials) or, for gs, "none".
// CREDENTIALS is a base64 encoded service account JSON key. Unknown schemes,
// unknown parameters and incomplete configurations are ErrInvalidInput.
func ParseURI(uri string) (Location, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, base.InvalidInputf("remote: malformed storage uri: %v", err)
	}
	q := u.Query()
	loc := Location{Scheme: u.Scheme}
	prefix := strings.Trim(u.Path, "/")
	switch u.Scheme {
	case "file":
		if err := checkParams(q); err != nil {
			return Location{}, err
		}
		if u.Host != "" && u.Host != "localhost" {
			return Location{}, base.InvalidInputf("remote: file uri must not name a host: %q", u.Host)
		}
		if u.Path == "" {
			return Location{}, base.InvalidInputf("remote: file uri needs a directory")
		}
		loc.Dir = u.Path
	case "mem":
		if err := checkParams(q); err != nil {
			return Location{}, err
		}
		loc.Name = u.Host
	case "s3":
		if err := checkParams(q, paramAuth, paramAccessKeyID, paramSecretKey, paramSessionToken,
			paramRegion, paramEndpoint, paramPathStyle, paramACL); err != nil {
			return Location{}, err
		}
		implicit, err := parseAuth(q.Get(paramAuth), authSpecified, authImplicit)
		if err != nil {
			return Location{}, err
		}
		opts := &S3Options{
			Bucket:          u.Host,
			Prefix:          prefix,
			Region:          q.Get(paramRegion),
			Endpoint:        q.Get(paramEndpoint),
			Implicit:        implicit == authImplicit,
			AccessKeyID:     q.Get(paramAccessKeyID),
			SecretAccessKey: q.Get(paramSecretKey),
			SessionToken:    q.Get(paramSessionToken),
			ACL:             q.Get(paramACL),
		}
		if v := q.Get(paramPathStyle); v != "" {
			if opts.PathStyle, err = strconv.ParseBool(v); err != nil {
				return Location{}, base.InvalidInputf("remote: invalid %s %q", paramPathStyle, v)
			}
		}
		if err := opts.validate(); err != nil {
			return Location{}, err
		}
		loc.S3 = opts
	case "gs":
		if err := checkParams(q, paramAuth, paramCredentials, paramEndpoint, paramACL); err != nil {
			return Location{}, err
		}
		auth, err := parseAuth(q.Get(paramAuth), authSpecified, authImplicit, authNone)
		if err != nil {
			return Location{}, err
		}
		opts := &GCSOptions{
			Bucket:    u.Host,
			Prefix:    prefix,
			Implicit:  auth == authImplicit,
			Anonymous: auth == authNone,
			Endpoint:  q.Get(paramEndpoint),
			ACL:       q.Get(paramACL),
		}
		if v := q.Get(paramCredentials); v != "" {
			if opts.CredentialsJSON, err = decodeBase64(v); err != nil {
				return Location{}, base.InvalidInputf("remote: %s is not valid base64: %v", paramCredentials, err)
			}
		}
		if err := opts.validate(); err != nil {
			return Location{}, err
		}
		loc.GCS = opts
	case "":
		return Location{}, base.InvalidInputf("remote: storage uri %q has no scheme", uri)
	default:
		return Location{}, base.InvalidInputf("remote: unsupported storage scheme %q", u.Scheme)
	}
	return loc, nil
}

func checkParams(q url.Values, allowed ...string) error {
	var unknown []string
	for k := range q {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return base.InvalidInputf("remote: unknown storage uri parameters %s", strings.Join(unknown, ", "))
	}
	return nil
}

// decodeBase64 accepts the standard and URL alphabets, padded or not.
func decodeBase64(s string) ([]byte, error) {
	var err error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding,
	} {
		var b []byte
		if b, err = enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, err
}

func parseAuth(v string, allowed ...string) (string, error) {
	if v == "" {
		return authSpecified, nil
	}
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", base.InvalidInputf("remote: unsupported %s %q", paramAuth, v)
}

// Open returns the driver for the location. Local directories are accessed
// through fs; a nil fs means vfs.Default. Every mem:// location opens a fresh,
// empty store.
func (l Location) Open(ctx context.Context, fs vfs.FS) (Storage, error) {
	switch {
	case l.S3 != nil:
		return NewS3(ctx, *l.S3)
	case l.GCS != nil:
		return NewGCS(ctx, *l.GCS)
	case l.Scheme == "mem":
		return NewInMem(), nil
	case l.Scheme == "file":
		if fs == nil {
			fs = vfs.Default
		}
		return NewLocalFS(l.Dir, fs), nil
	}
	return nil, base.InvalidInputf("remote: unsupported storage scheme %q", l.Scheme)
}

// Open parses uri and returns its driver (see ParseURI and Location.Open).
func Open(ctx context.Context, uri string, fs vfs.FS) (Storage, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return loc.Open(ctx, fs)
}
