// Copyright 2023 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package remote

import (
	"context"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/snapfile/internal/base"
)

// NewLocalFS returns a vfs-backed implementation of the remote.Storage
// interface. All objects will be stored under the directory dirname; object
// names containing slashes are stored in subdirectories.
func NewLocalFS(dirname string, fs vfs.FS) Storage {
	store := &localFSStore{
		dirname: dirname,
		vfs:     fs,
	}
	return store
}

// localFSStore is a vfs-backed implementation of the remote.Storage
// interface.
type localFSStore struct {
	dirname string
	vfs     vfs.FS
}

var _ Storage = (*localFSStore)(nil)

// Close is part of the remote.Storage interface.
func (s *localFSStore) Close() error {
	*s = localFSStore{}
	return nil
}

func (s *localFSStore) path(objName string) (string, error) {
	clean := path.Clean("/" + objName)
	if objName == "" || clean == "/" || clean[1:] != objName {
		return "", base.InvalidInputf("invalid object name %q", objName)
	}
	return s.vfs.PathJoin(s.dirname, objName), nil
}

// ReadObject is part of the remote.Storage interface.
func (s *localFSStore) ReadObject(
	ctx context.Context, objName string,
) (_ io.ReadCloser, objSize int64, _ error) {
	p, err := s.path(objName)
	if err != nil {
		return nil, 0, err
	}
	f, err := s.vfs.Open(p)
	if err != nil {
		return nil, 0, err
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, stat.Size(), nil
}

func (s *localFSStore) syncDir(dir string) error {
	file, err := s.vfs.OpenDir(dir)
	if err != nil {
		return err
	}
	return errors.CombineErrors(file.Sync(), file.Close())
}

// PutObject is part of the remote.Storage interface. The object is written to
// a temporary file which is renamed into place once synced.
func (s *localFSStore) PutObject(ctx context.Context, objName string, r io.Reader, size int64) error {
	p, err := s.path(objName)
	if err != nil {
		return err
	}
	dir := s.vfs.PathDir(p)
	if err := s.vfs.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp := p + ".tmp"
	file, err := s.vfs.Create(tmp)
	if err != nil {
		return err
	}
	n, err := io.Copy(file, io.LimitReader(r, size))
	if err == nil && n != size {
		err = errors.Wrapf(io.ErrUnexpectedEOF, "object %q: read %d of %d bytes", objName, n, size)
	}
	if err == nil {
		err = file.Sync()
	}
	err = errors.CombineErrors(err, file.Close())
	if err == nil {
		err = s.vfs.Rename(tmp, p)
	}
	if err != nil {
		_ = s.vfs.Remove(tmp)
		return err
	}
	return s.syncDir(dir)
}

// List is part of the remote.Storage interface.
func (s *localFSStore) List(ctx context.Context, prefix, delimiter string) ([]string, error) {
	var names []string
	if err := s.walk(s.dirname, "", &names); err != nil {
		return nil, err
	}
	return filterNames(names, prefix, delimiter), nil
}

func (s *localFSStore) walk(dir, rel string, names *[]string) error {
	entries, err := s.vfs.List(dir)
	if err != nil {
		if oserror.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if strings.HasSuffix(e, ".tmp") {
			continue
		}
		p := s.vfs.PathJoin(dir, e)
		fi, err := s.vfs.Stat(p)
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if err := s.walk(p, rel+e+"/", names); err != nil {
				return err
			}
			continue
		}
		*names = append(*names, rel+e)
	}
	return nil
}

// filterNames implements the prefix and delimiter semantics of List over a
// complete set of object names.
func filterNames(names []string, prefix, delimiter string) []string {
	seen := make(map[string]struct{})
	res := make([]string, 0, len(names))
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		name = name[len(prefix):]
		if delimiter != "" {
			if i := strings.Index(name, delimiter); i >= 0 {
				name = name[:i]
			}
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// Delete is part of the remote.Storage interface.
func (s *localFSStore) Delete(ctx context.Context, objName string) error {
	p, err := s.path(objName)
	if err != nil {
		return err
	}
	if err := s.vfs.Remove(p); err != nil {
		return err
	}
	return s.syncDir(s.vfs.PathDir(p))
}

// Size is part of the remote.Storage interface.
func (s *localFSStore) Size(ctx context.Context, objName string) (int64, error) {
	p, err := s.path(objName)
	if err != nil {
		return 0, err
	}
	stat, err := s.vfs.Stat(p)
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}

// IsNotExistError is part of the remote.Storage interface.
func (s *localFSStore) IsNotExistError(err error) bool {
	return oserror.IsNotExist(err)
}
