// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package encryption

import (
	"bytes"
	crypto_rand "crypto/rand"
	"encoding/binary"
	"io"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/snapfile/internal/base"
	"github.com/cockroachdb/snapfile/internal/codec"
)

const registryMagic = "snapreg\x01"

// Registry is an in-process KeyManager. All files encrypted through a
// Registry share its data key; each file gets a random IV. The registry
// records only (method, iv) per path, so it can be persisted without
// exposing the key.
type Registry struct {
	method Method
	key    []byte

	mu struct {
		sync.RWMutex
		files map[string]registryEntry
	}
}

type registryEntry struct {
	method Method
	iv     []byte
}

var _ KeyManager = (*Registry)(nil)
var _ FileImporter = (*Registry)(nil)

// NewRegistry returns an empty registry that encrypts new files with method
// and key. The key is ignored for Plaintext.
func NewRegistry(method Method, key []byte) (*Registry, error) {
	if err := (FileInfo{Method: method, Key: key, IV: make([]byte, IVSize)}).validate(); err != nil {
		return nil, err
	}
	r := &Registry{method: method}
	if method != Plaintext {
		r.key = append([]byte(nil), key...)
	}
	r.mu.files = make(map[string]registryEntry)
	return r, nil
}

// Method returns the method used for new files.
func (r *Registry) Method() Method {
	return r.method
}

// Len returns the number of registered files.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mu.files)
}

func (r *Registry) info(e registryEntry) FileInfo {
	if e.method == Plaintext {
		return FileInfo{Method: Plaintext}
	}
	return FileInfo{Method: e.method, Key: r.key, IV: e.iv}
}

// GetFile implements KeyManager.
func (r *Registry) GetFile(path string) (FileInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.mu.files[filepath.Clean(path)]
	if !ok {
		return FileInfo{Method: Plaintext}, nil
	}
	return r.info(e), nil
}

// NewFile implements KeyManager.
func (r *Registry) NewFile(path string) (FileInfo, error) {
	e := registryEntry{method: r.method}
	if r.method != Plaintext {
		e.iv = make([]byte, IVSize)
		if _, err := io.ReadFull(crypto_rand.Reader, e.iv); err != nil {
			return FileInfo{}, errors.Mark(errors.Wrap(err, "encryption: generating iv"), base.ErrKeyManager)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mu.files[filepath.Clean(path)] = e
	return r.info(e), nil
}

// LinkFile implements KeyManager.
func (r *Registry) LinkFile(src, dst string) error {
	src, dst = filepath.Clean(src), filepath.Clean(dst)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mu.files[dst]; ok {
		return errors.Mark(errors.Newf("encryption: %s is already registered", dst), base.ErrKeyManager)
	}
	e, ok := r.mu.files[src]
	if !ok {
		// Unregistered files are plaintext; there is nothing to share.
		return nil
	}
	r.mu.files[dst] = e
	return nil
}

// RenameFile implements KeyManager.
func (r *Registry) RenameFile(src, dst string) error {
	src, dst = filepath.Clean(src), filepath.Clean(dst)
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.mu.files[src]
	if !ok {
		delete(r.mu.files, dst)
		return nil
	}
	delete(r.mu.files, src)
	r.mu.files[dst] = e
	return nil
}

// DeleteFile implements KeyManager.
func (r *Registry) DeleteFile(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.mu.files, filepath.Clean(path))
	return nil
}

// ImportFile implements FileImporter. The method must be Plaintext or use a
// key of the registry's key size.
func (r *Registry) ImportFile(path string, method Method, iv []byte) error {
	if method != Plaintext {
		if err := (FileInfo{Method: method, Key: r.key, IV: iv}).validate(); err != nil {
			return errors.Mark(err, base.ErrKeyManager)
		}
	}
	e := registryEntry{method: method, iv: append([]byte(nil), iv...)}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mu.files[filepath.Clean(path)] = e
	return nil
}

// Save persists the registry's entries to path on fs. The file is written
// to a temporary name, synced and renamed into place.
func (r *Registry) Save(fs vfs.FS, path string) error {
	var buf bytes.Buffer
	buf.WriteString(registryMagic)

	r.mu.RLock()
	paths := make([]string, 0, len(r.mu.files))
	for p := range r.mu.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	tmp := binary.AppendUvarint(nil, uint64(len(paths)))
	buf.Write(tmp)
	for _, p := range paths {
		e := r.mu.files[p]
		tmp = codec.AppendBytes(tmp[:0], []byte(p))
		tmp = append(tmp, byte(e.method))
		tmp = codec.AppendBytes(tmp, e.iv)
		buf.Write(tmp)
	}
	r.mu.RUnlock()

	tmpPath := path + ".tmp"
	f, err := fs.Create(tmpPath)
	if err != nil {
		return base.MarkIO(err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return base.MarkIO(err)
	}
	if err := errors.CombineErrors(f.Sync(), f.Close()); err != nil {
		return base.MarkIO(err)
	}
	if err := fs.Rename(tmpPath, path); err != nil {
		return base.MarkIO(err)
	}
	dir, err := fs.OpenDir(filepath.Dir(path))
	if err != nil {
		return base.MarkIO(err)
	}
	return base.MarkIO(errors.CombineErrors(dir.Sync(), dir.Close()))
}

// LoadRegistry returns a registry for method and key populated from the file
// at path. A missing file yields an empty registry.
func LoadRegistry(fs vfs.FS, path string, method Method, key []byte) (*Registry, error) {
	r, err := NewRegistry(method, key)
	if err != nil {
		return nil, err
	}
	f, err := fs.Open(path)
	if oserror.IsNotExist(err) {
		return r, nil
	} else if err != nil {
		return nil, base.MarkIO(err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, base.MarkIO(err)
	}
	if !bytes.HasPrefix(data, []byte(registryMagic)) {
		return nil, errors.Mark(errors.Newf("encryption: %s is not a key registry", path), base.ErrKeyManager)
	}
	br := bytes.NewReader(data[len(registryMagic):])
	n, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "encryption: reading %s", path), base.ErrKeyManager)
	}
	for i := uint64(0); i < n; i++ {
		p, err := codec.DecodeBytes(br)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "encryption: reading %s", path), base.ErrKeyManager)
		}
		m, err := br.ReadByte()
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "encryption: reading %s", path), base.ErrKeyManager)
		}
		iv, err := codec.DecodeBytes(br)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "encryption: reading %s", path), base.ErrKeyManager)
		}
		if err := r.ImportFile(string(p), Method(m), iv); err != nil {
			return nil, err
		}
	}
	return r, nil
}
