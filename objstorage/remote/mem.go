// Copyright 2023 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package remote

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
)

// NewInMem returns an in-memory implementation of the remote.Storage
// interface, with multipart upload support (for testing).
func NewInMem() MultipartStorage {
	store := &inMemStore{}
	store.mu.objects = make(map[string]*inMemObj)
	store.mu.uploads = make(map[string]*inMemUpload)
	return store
}

// inMemStore is an in-memory implementation of the remote.Storage interface
// (for testing).
type inMemStore struct {
	mu struct {
		sync.Mutex
		objects  map[string]*inMemObj
		uploads  map[string]*inMemUpload
		uploadID int
	}
}

var _ MultipartStorage = (*inMemStore)(nil)

type inMemObj struct {
	name string
	data []byte
}

type inMemUpload struct {
	name  string
	parts map[int][]byte
}

const inMemMaxParts = 10000

func (s *inMemStore) Close() error {
	return nil
}

func (s *inMemStore) ReadObject(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	obj, err := s.getObj(name)
	if err != nil {
		return nil, 0, err
	}
	return io.NopCloser(bytes.NewReader(obj.data)), int64(len(obj.data)), nil
}

func readExactly(r io.Reader, size int64) ([]byte, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return data, nil
}

func (s *inMemStore) PutObject(ctx context.Context, name string, r io.Reader, size int64) error {
	data, err := readExactly(r, size)
	if err != nil {
		return err
	}
	s.addObj(&inMemObj{name: name, data: data})
	return nil
}

func (s *inMemStore) List(ctx context.Context, prefix, delimiter string) ([]string, error) {
	s.mu.Lock()
	names := make([]string, 0, len(s.mu.objects))
	for name := range s.mu.objects {
		names = append(names, name)
	}
	s.mu.Unlock()
	return filterNames(names, prefix, delimiter), nil
}

func (s *inMemStore) Delete(ctx context.Context, name string) error {
	s.rmObj(name)
	return nil
}

// Size returns the length of the named object in bytes.
func (s *inMemStore) Size(ctx context.Context, name string) (int64, error) {
	obj, err := s.getObj(name)
	if err != nil {
		return 0, err
	}
	return int64(len(obj.data)), nil
}

func (s *inMemStore) IsNotExistError(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

func (s *inMemStore) MaxParts() int {
	return inMemMaxParts
}

func (s *inMemStore) CreateMultipartUpload(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.uploadID++
	id := fmt.Sprintf("upload-%d", s.mu.uploadID)
	s.mu.uploads[id] = &inMemUpload{name: name, parts: make(map[int][]byte)}
	return id, nil
}

func (s *inMemStore) getUpload(name, uploadID string) (*inMemUpload, error) {
	u, ok := s.mu.uploads[uploadID]
	if !ok || u.name != name {
		return nil, errors.Newf("no such upload %q for %q", uploadID, name)
	}
	return u, nil
}

func etag(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func (s *inMemStore) UploadPart(
	ctx context.Context, name, uploadID string, partNum int, r io.Reader, size int64,
) (Part, error) {
	if partNum < 1 || partNum > inMemMaxParts {
		return Part{}, errors.Newf("invalid part number %d", partNum)
	}
	data, err := readExactly(r, size)
	if err != nil {
		return Part{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.getUpload(name, uploadID)
	if err != nil {
		return Part{}, err
	}
	u.parts[partNum] = data
	return Part{Number: partNum, ETag: etag(data)}, nil
}

func (s *inMemStore) CompleteMultipartUpload(
	ctx context.Context, name, uploadID string, parts []Part,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.getUpload(name, uploadID)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 && p.Number <= parts[i-1].Number {
			return errors.Newf("parts out of order at %d", p.Number)
		}
		data, ok := u.parts[p.Number]
		if !ok || etag(data) != p.ETag {
			return errors.Newf("part %d does not match", p.Number)
		}
		buf.Write(data)
	}
	delete(s.mu.uploads, uploadID)
	s.mu.objects[name] = &inMemObj{name: name, data: buf.Bytes()}
	return nil
}

func (s *inMemStore) AbortMultipartUpload(ctx context.Context, name, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getUpload(name, uploadID); err != nil {
		return err
	}
	delete(s.mu.uploads, uploadID)
	return nil
}

// pendingUploads returns the number of uploads neither completed nor
// aborted.
func (s *inMemStore) pendingUploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mu.uploads)
}

func (s *inMemStore) getObj(name string) (*inMemObj, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.mu.objects[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return obj, nil
}

func (s *inMemStore) addObj(o *inMemObj) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.objects[o.name] = o
}

func (s *inMemStore) rmObj(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mu.objects, name)
}
