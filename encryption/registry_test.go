// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package encryption

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/snapfile/internal/base"
	"github.com/stretchr/testify/require"
)

func mustRegistry(t *testing.T, m Method) *Registry {
	r, err := NewRegistry(m, bytes.Repeat([]byte{0x5a}, m.KeySize()))
	require.NoError(t, err)
	return r
}

func TestRegistry(t *testing.T) {
	r := mustRegistry(t, Aes256Ctr)

	info, err := r.GetFile("/snap/unknown")
	require.NoError(t, err)
	require.True(t, info.IsPlaintext())

	a, err := r.NewFile("/snap/a")
	require.NoError(t, err)
	require.Equal(t, Aes256Ctr, a.Method)
	require.Len(t, a.IV, IVSize)

	b, err := r.NewFile("/snap/b")
	require.NoError(t, err)
	require.NotEqual(t, a.IV, b.IV)

	// Links share key material.
	require.NoError(t, r.LinkFile("/snap/a", "/snap/a.clone"))
	clone, err := r.GetFile("/snap/./a.clone")
	require.NoError(t, err)
	require.Equal(t, a, clone)
	err = r.LinkFile("/snap/b", "/snap/a.clone")
	require.True(t, errors.Is(err, base.ErrKeyManager))

	// Linking an unregistered file is a no-op.
	require.NoError(t, r.LinkFile("/snap/plain", "/snap/plain.clone"))
	require.Equal(t, 3, r.Len())

	require.NoError(t, r.RenameFile("/snap/b", "/snap/c"))
	c, err := r.GetFile("/snap/c")
	require.NoError(t, err)
	require.Equal(t, b, c)
	gone, err := r.GetFile("/snap/b")
	require.NoError(t, err)
	require.True(t, gone.IsPlaintext())

	require.NoError(t, r.DeleteFile("/snap/a.clone"))
	require.NoError(t, r.DeleteFile("/snap/never"))
	require.Equal(t, 2, r.Len())
}

func TestRegistryValidation(t *testing.T) {
	_, err := NewRegistry(Aes128Ctr, make([]byte, 32))
	require.True(t, errors.Is(err, base.ErrInvalidInput))

	r, err := NewRegistry(Plaintext, nil)
	require.NoError(t, err)
	info, err := r.NewFile("/x")
	require.NoError(t, err)
	require.True(t, info.IsPlaintext())

	r = mustRegistry(t, Aes256Ctr)
	err = r.ImportFile("/y", Aes128Ctr, make([]byte, IVSize))
	require.True(t, errors.Is(err, base.ErrKeyManager))
	require.NoError(t, r.ImportFile("/y", Aes256Gcm, make([]byte, IVSize)))
}

func TestRegistryConcurrent(t *testing.T) {
	r := mustRegistry(t, Aes128Ctr)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				name := fmt.Sprintf("/f-%d-%d", i, j)
				_, err := r.NewFile(name)
				require.NoError(t, err)
				info, err := r.GetFile(name)
				require.NoError(t, err)
				require.Equal(t, Aes128Ctr, info.Method)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 800, r.Len())
}

func TestRegistrySaveLoad(t *testing.T) {
	fs := vfs.NewMem()
	key := bytes.Repeat([]byte{7}, 32)
	r, err := NewRegistry(Aes256Gcm, key)
	require.NoError(t, err)

	want := map[string]FileInfo{}
	for _, name := range []string{"/a", "/b", "/c"} {
		info, err := r.NewFile(name)
		require.NoError(t, err)
		want[name] = info
	}
	require.NoError(t, r.ImportFile("/p", Plaintext, nil))
	require.NoError(t, r.Save(fs, "/registry"))

	loaded, err := LoadRegistry(fs, "/registry", Aes256Gcm, key)
	require.NoError(t, err)
	require.Equal(t, 4, loaded.Len())
	for name, info := range want {
		got, err := loaded.GetFile(name)
		require.NoError(t, err)
		require.Equal(t, info, got)
	}

	empty, err := LoadRegistry(fs, "/missing", Aes256Gcm, key)
	require.NoError(t, err)
	require.Equal(t, 0, empty.Len())

	f, err := fs.Create("/garbage")
	require.NoError(t, err)
	_, err = f.Write([]byte("not a registry"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	_, err = LoadRegistry(fs, "/garbage", Aes256Gcm, key)
	require.True(t, errors.Is(err, base.ErrKeyManager))
}

func TestOpenDecrypting(t *testing.T) {
	fs := vfs.NewMem()
	r := mustRegistry(t, Aes256Gcm)
	info, err := r.NewFile("/f")
	require.NoError(t, err)

	f, err := fs.Create("/f")
	require.NoError(t, err)
	w, err := NewEncryptingWriter(f, info)
	require.NoError(t, err)
	_, err = w.Write([]byte("secret payload"))
	require.NoError(t, err)
	require.NoError(t, w.Finish())
	require.NoError(t, f.Close())

	rc, err := OpenDecrypting(fs, "/f", r)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "secret payload", string(got))

	// Without the key manager the ciphertext is returned as is.
	rc, err = OpenDecrypting(fs, "/f", nil)
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.NotContains(t, string(raw), "secret")

	_, err = OpenDecrypting(fs, "/missing", r)
	require.True(t, errors.Is(err, base.ErrIO))

	_, err = OpenDecrypting(fs, "/f", failingKeyManager{})
	require.True(t, errors.Is(err, base.ErrKeyManager))
}

type failingKeyManager struct{}

func (failingKeyManager) GetFile(string) (FileInfo, error) { return FileInfo{}, errors.New("unavailable") }
func (failingKeyManager) NewFile(string) (FileInfo, error) { return FileInfo{}, errors.New("unavailable") }
func (failingKeyManager) LinkFile(string, string) error    { return errors.New("unavailable") }
func (failingKeyManager) RenameFile(string, string) error  { return errors.New("unavailable") }
func (failingKeyManager) DeleteFile(string) error          { return errors.New("unavailable") }
