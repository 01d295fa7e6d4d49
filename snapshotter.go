// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package snapfile

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/snapfile/encryption"
	"github.com/cockroachdb/snapfile/engine"
	"github.com/cockroachdb/snapfile/internal/base"
	"golang.org/x/sync/errgroup"
)

// BlobStore is the remote storage a snapshot is transferred through.
// remote.ExternalStorage implements it.
type BlobStore interface {
	Write(ctx context.Context, name string, r io.Reader, size int64) error
	Read(ctx context.Context, name string) (io.ReadCloser, error)
}

// Snapshotter builds, transfers and applies snapshots staged in a local
// directory.
type Snapshotter struct {
	opts *Options
}

// New returns a Snapshotter.
func New(opts *Options) (*Snapshotter, error) {
	opts = opts.EnsureDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Snapshotter{opts: opts}, nil
}

// FilePath returns the local path of a snapshot file.
func (s *Snapshotter) FilePath(name string) string {
	return s.opts.FS.PathJoin(s.opts.Dir, name)
}

func (s *Snapshotter) manifestPath(id string) string {
	return s.FilePath(id + ".manifest")
}

// ObjectName returns the name of a snapshot file in remote storage.
func ObjectName(id, name string) string {
	return id + "/" + name
}

// ManifestObjectName returns the name of a snapshot's manifest in remote
// storage.
func ManifestObjectName(id string) string {
	return ObjectName(id, "MANIFEST")
}

func fileName(id string, cf engine.ColumnFamily, format Format) string {
	return fmt.Sprintf("%s_%s.%s", id, cf, format.ext())
}

// Build builds one file per column family in cfs over kr, read from snap,
// and writes the manifest next to them. Column families without keys in kr
// are left out of the manifest. On error every file built so far is removed.
func (s *Snapshotter) Build(
	snap engine.Reader, id string, kr engine.KeyRange, format Format, cfs []engine.ColumnFamily,
) (*Manifest, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if !format.valid() {
		return nil, base.InvalidInputf("unknown snapshot format %d", uint8(format))
	}
	if err := kr.Validate(); err != nil {
		return nil, err
	}
	for _, cf := range cfs {
		if err := cf.Validate(); err != nil {
			return nil, err
		}
	}
	if err := s.opts.FS.MkdirAll(s.opts.Dir, 0755); err != nil {
		return nil, base.MarkIO(errors.Wrapf(err, "creating %s", s.opts.Dir))
	}

	m := &Manifest{ID: id, Format: format, Range: kr}
	for _, cf := range cfs {
		rec, err := s.buildFile(snap, id, kr, format, cf)
		if err != nil {
			_ = s.Cleanup(m)
			return nil, err
		}
		if rec == nil {
			s.opts.Logger.Infof("snapshot %s: %s is empty, skipped", id, cf)
			continue
		}
		s.opts.Logger.Infof("snapshot %s: built %s", id, rec)
		m.Files = append(m.Files, *rec)
	}
	if err := s.writeManifest(m); err != nil {
		_ = s.Cleanup(m)
		return nil, err
	}
	return m, nil
}

func (s *Snapshotter) buildFile(
	snap engine.Reader, id string, kr engine.KeyRange, format Format, cf engine.ColumnFamily,
) (*FileRecord, error) {
	name := fileName(id, cf, format)
	path := s.FilePath(name)
	rec := &FileRecord{Name: name, ColumnFamily: cf}

	var stats BuildStatistics
	var err error
	switch format {
	case FormatPlain:
		cr := &checksummingReader{Reader: snap}
		stats, err = BuildPlainFile(s.opts.FS, path, s.opts.KeyManager, cr, cf, kr)
		rec.CRC64Xor = cr.sum
	case FormatSST:
		stats, err = BuildSSTFile(path, s.opts.Engine, snap, cf, kr, s.opts.Limiter)
	}
	if err != nil || stats.Empty() {
		return nil, err
	}
	rec.KeyCount, rec.TotalBytes = stats.KeyCount, stats.TotalSize

	if rec.Size, rec.SHA256, err = digestFile(s.opts.FS, path); err != nil {
		return nil, err
	}
	if km := s.opts.KeyManager; km != nil {
		info, err := km.GetFile(path)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "looking up %s", path), ErrKeyManager)
		}
		rec.Encryption = info.Method
		if !info.IsPlaintext() {
			rec.IV = append([]byte(nil), info.IV...)
		}
	}
	return rec, nil
}

func (s *Snapshotter) writeManifest(m *Manifest) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	path := s.manifestPath(m.ID)
	f, err := s.opts.FS.Create(path)
	if err != nil {
		return base.MarkIO(errors.Wrapf(err, "creating %s", path))
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	err = errors.CombineErrors(err, f.Close())
	return base.MarkIO(errors.Wrapf(err, "writing %s", path))
}

// LoadManifest reads the manifest of snapshot id from the staging directory.
func (s *Snapshotter) LoadManifest(id string) (*Manifest, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	path := s.manifestPath(id)
	f, err := s.opts.FS.Open(path)
	if err != nil {
		return nil, base.MarkIO(errors.Wrapf(err, "opening %s", path))
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, base.MarkIO(errors.Wrapf(err, "reading %s", path))
	}
	return DecodeManifest(data)
}

// Upload writes the files of m, followed by the manifest, to store. Files are
// shipped as stored: encrypted files stay encrypted in transit and at rest.
func (s *Snapshotter) Upload(ctx context.Context, store BlobStore, m *Manifest) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.TransferConcurrency)
	for i := range m.Files {
		rec := &m.Files[i]
		g.Go(func() error {
			return s.uploadFile(gctx, store, m.ID, rec)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := store.Write(ctx, ManifestObjectName(m.ID), bytes.NewReader(data), int64(len(data))); err != nil {
		return errors.Wrapf(err, "uploading manifest of %s", m.ID)
	}
	s.opts.Logger.Infof("snapshot %s: uploaded %d files", m.ID, len(m.Files))
	return nil
}

func (s *Snapshotter) uploadFile(ctx context.Context, store BlobStore, id string, rec *FileRecord) error {
	path := s.FilePath(rec.Name)
	f, err := s.opts.FS.Open(path)
	if err != nil {
		return base.MarkIO(errors.Wrapf(err, "opening %s", path))
	}
	defer f.Close()
	if err := store.Write(ctx, ObjectName(id, rec.Name), f, int64(rec.Size)); err != nil {
		return errors.Wrapf(err, "uploading %s", rec.Name)
	}
	return nil
}

// Download fetches the manifest and files of snapshot id from store into the
// staging directory, verifying each file's size and digest. The encryption
// info of encrypted files is imported into the key manager, which must share
// the sender's data key and implement encryption.FileImporter.
func (s *Snapshotter) Download(ctx context.Context, store BlobStore, id string) (*Manifest, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	rc, err := store.Read(ctx, ManifestObjectName(id))
	if err != nil {
		return nil, errors.Wrapf(err, "downloading manifest of %s", id)
	}
	data, err := io.ReadAll(rc)
	err = errors.CombineErrors(err, rc.Close())
	if err != nil {
		return nil, errors.Wrapf(err, "downloading manifest of %s", id)
	}
	m, err := DecodeManifest(data)
	if err != nil {
		return nil, err
	}
	if m.ID != id {
		return nil, base.MarkIO(errors.Newf("manifest of %s names snapshot %s", id, m.ID))
	}
	if err := s.opts.FS.MkdirAll(s.opts.Dir, 0755); err != nil {
		return nil, base.MarkIO(errors.Wrapf(err, "creating %s", s.opts.Dir))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.TransferConcurrency)
	for i := range m.Files {
		rec := &m.Files[i]
		g.Go(func() error {
			return s.downloadFile(gctx, store, id, rec)
		})
	}
	if err := g.Wait(); err != nil {
		_ = s.Cleanup(m)
		return nil, err
	}
	if err := s.writeManifest(m); err != nil {
		_ = s.Cleanup(m)
		return nil, err
	}
	s.opts.Logger.Infof("snapshot %s: downloaded %d files", id, len(m.Files))
	return m, nil
}

func (s *Snapshotter) downloadFile(ctx context.Context, store BlobStore, id string, rec *FileRecord) error {
	path := s.FilePath(rec.Name)
	var importer encryption.FileImporter
	if !rec.Encryption.IsPlaintext() {
		var ok bool
		if importer, ok = s.opts.KeyManager.(encryption.FileImporter); !ok {
			return errors.Mark(
				errors.Newf("%s is encrypted with %s but no importing key manager is configured", rec.Name, rec.Encryption),
				ErrKeyManager)
		}
	}

	rc, err := store.Read(ctx, ObjectName(id, rec.Name))
	if err != nil {
		return errors.Wrapf(err, "downloading %s", rec.Name)
	}
	defer rc.Close()
	if err := s.opts.FS.Remove(path); err != nil && !oserror.IsNotExist(err) {
		return base.MarkIO(errors.Wrapf(err, "removing %s", path))
	}
	f, err := s.opts.FS.Create(path)
	if err != nil {
		return base.MarkIO(errors.Wrapf(err, "creating %s", path))
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), rc)
	if err == nil {
		err = f.Sync()
	}
	err = errors.CombineErrors(err, f.Close())
	if err != nil {
		return base.MarkIO(errors.Wrapf(err, "downloading %s", rec.Name))
	}
	if uint64(n) != rec.Size {
		return base.MarkIO(errors.Newf("%s: downloaded %d bytes, expected %d", rec.Name, n, rec.Size))
	}
	if !bytes.Equal(h.Sum(nil), rec.SHA256[:]) {
		return base.MarkIO(errors.Newf("%s: sha256 mismatch", rec.Name))
	}
	if importer != nil {
		if err := importer.ImportFile(path, rec.Encryption, rec.IV); err != nil {
			return errors.Mark(err, ErrKeyManager)
		}
	}
	return nil
}

// Apply applies every file of m to the engine, in manifest order. Plain files
// are verified against their CRC64Xor once applied. SST files are ingested
// through a clone, leaving the staged file in place. The stale detector is
// consulted between files and while applying plain files.
//
// A failed apply is not rolled back.
func (s *Snapshotter) Apply(m *Manifest, stale StaleDetector) error {
	if err := m.Validate(); err != nil {
		return err
	}
	for i := range m.Files {
		if err := checkStale(stale); err != nil {
			return err
		}
		rec := &m.Files[i]
		path := s.FilePath(rec.Name)
		switch m.Format {
		case FormatPlain:
			var sum, keys uint64
			err := ApplyPlainFile(s.opts.FS, path, s.opts.KeyManager, stale, s.opts.Engine,
				rec.ColumnFamily, s.opts.ApplyBatchSize, func(kvs []engine.KV) {
					for _, kv := range kvs {
						sum ^= pairChecksum(kv.Key, kv.Value)
					}
					keys += uint64(len(kvs))
				})
			if err != nil {
				return err
			}
			if keys != rec.KeyCount || sum != rec.CRC64Xor {
				return base.MarkIO(errors.Newf("%s: applied %d keys with checksum %016x, expected %d keys with checksum %016x",
					rec.Name, keys, sum, rec.KeyCount, rec.CRC64Xor))
			}
		case FormatSST:
			clone := path + ".clone"
			if err := ApplyPreparedSSTFile(s.opts.FS, s.opts.Engine, path, clone, rec.ColumnFamily, s.opts.KeyManager); err != nil {
				return err
			}
		}
		s.opts.Logger.Infof("snapshot %s: applied %s", m.ID, rec)
	}
	return nil
}

// Cleanup removes the staged files and manifest of m, along with their key
// registrations. Missing files are ignored.
func (s *Snapshotter) Cleanup(m *Manifest) error {
	var err error
	remove := func(path string) {
		if rerr := s.opts.FS.Remove(path); rerr != nil && !oserror.IsNotExist(rerr) {
			err = errors.CombineErrors(err, base.MarkIO(rerr))
		}
		if km := s.opts.KeyManager; km != nil {
			if kerr := km.DeleteFile(path); kerr != nil {
				err = errors.CombineErrors(err, errors.Mark(kerr, ErrKeyManager))
			}
		}
	}
	for i := range m.Files {
		remove(s.FilePath(m.Files[i].Name))
	}
	remove(s.manifestPath(m.ID))
	return err
}
