// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/snapfile/internal/base"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves the subset of the S3 API used by the driver, with path style
// addressing, and fails requests with injected status codes.
type fakeS3 struct {
	bucket string

	mu       sync.Mutex
	objects  map[string][]byte
	failures []int
	requests map[string]int
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{bucket: bucket, objects: make(map[string][]byte), requests: make(map[string]int)}
}

var s3ErrorCodes = map[int]string{
	http.StatusBadRequest:          "InvalidArgument",
	http.StatusForbidden:           "AccessDenied",
	http.StatusInternalServerError: "InternalError",
	http.StatusServiceUnavailable:  "ServiceUnavailable",
}

func (s *fakeS3) fail(codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, codes...)
}

func (s *fakeS3) numRequests(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method]
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>`+
		`<Error><Code>%s</Code><Message>injected</Message><RequestId>1</RequestId></Error>`, code)
}

func (s *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.Method]++
	if len(s.failures) > 0 {
		status := s.failures[0]
		s.failures = s.failures[1:]
		_, _ = io.Copy(io.Discard, r.Body)
		writeS3Error(w, status, s3ErrorCodes[status])
		return
	}
	key, ok := strings.CutPrefix(r.URL.Path, "/"+s.bucket)
	if !ok {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket")
		return
	}
	key = strings.TrimPrefix(key, "/")

	switch {
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		s.list(w, r.URL.Query().Get("prefix"))
	case r.Method == http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeS3Error(w, http.StatusBadRequest, "IncompleteBody")
			return
		}
		s.objects[key] = body
		w.Header().Set("ETag", `"0"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet, r.Method == http.MethodHead:
		data, ok := s.objects[key]
		if !ok {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(data)
		}
	case r.Method == http.MethodDelete:
		delete(s.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeS3Error(w, http.StatusNotImplemented, "NotImplemented")
	}
}

func (s *fakeS3) list(w http.ResponseWriter, prefix string) {
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<?xml version="1.0" encoding="UTF-8"?><ListBucketResult>`+
		`<Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><IsTruncated>false</IsTruncated>`,
		s.bucket, prefix, len(keys))
	for _, k := range keys {
		fmt.Fprintf(&buf, `<Contents><Key>%s</Key><Size>%d</Size></Contents>`, k, len(s.objects[k]))
	}
	buf.WriteString(`</ListBucketResult>`)
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(buf.Bytes())
}

func newTestS3(t *testing.T) (*fakeS3, *ExternalStorage) {
	fake := newFakeS3("bucket")
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	s, err := NewS3(context.Background(), S3Options{
		Bucket:          "bucket",
		Prefix:          "snaps",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		PathStyle:       true,
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
		HTTPClient:      srv.Client(),
	})
	require.NoError(t, err)
	return fake, New(s, testOptions())
}

func TestS3(t *testing.T) {
	ctx := context.Background()
	fake, e := newTestS3(t)
	data := []byte("snapshot file contents")

	t.Run("put retried", func(t *testing.T) {
		fake.fail(http.StatusInternalServerError, http.StatusServiceUnavailable)
		require.NoError(t, e.Write(ctx, "1/a.sst", bytes.NewReader(data), int64(len(data))))
		require.Equal(t, 3, fake.numRequests(http.MethodPut))
		fake.mu.Lock()
		require.Equal(t, data, fake.objects["snaps/1/a.sst"])
		fake.mu.Unlock()
	})

	t.Run("put not retried", func(t *testing.T) {
		before := fake.numRequests(http.MethodPut)
		fake.fail(http.StatusBadRequest)
		err := e.Write(ctx, "1/b.sst", bytes.NewReader(data), int64(len(data)))
		require.Error(t, err)
		require.Equal(t, base.KindIO, base.KindOf(err))
		require.Equal(t, before+1, fake.numRequests(http.MethodPut))
	})

	t.Run("read", func(t *testing.T) {
		require.Equal(t, data, readObject(t, e, "1/a.sst"))
		size, err := e.Size(ctx, "1/a.sst")
		require.NoError(t, err)
		require.Equal(t, int64(len(data)), size)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := e.Read(ctx, "1/missing")
		require.True(t, errors.Is(err, base.ErrRemoteNotFound))
		_, err = e.Size(ctx, "1/missing")
		require.True(t, errors.Is(err, base.ErrRemoteNotFound))
	})

	t.Run("list", func(t *testing.T) {
		require.NoError(t, e.Write(ctx, "1/c.sst", bytes.NewReader(data), int64(len(data))))
		names, err := e.List(ctx, "1/", "")
		require.NoError(t, err)
		require.Equal(t, []string{"a.sst", "c.sst"}, names)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, e.Delete(ctx, "1/c.sst"))
		_, err := e.Read(ctx, "1/c.sst")
		require.True(t, errors.Is(err, base.ErrRemoteNotFound))
	})
}
