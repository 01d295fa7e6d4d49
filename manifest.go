// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package snapfile

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/snapfile/encryption"
	"github.com/cockroachdb/snapfile/engine"
	"github.com/cockroachdb/snapfile/internal/base"
)

// Manifest lists the files of one snapshot. It accompanies the snapshot to
// the receiver and is consumed once by Apply.
type Manifest struct {
	ID     string
	Format Format
	Range  engine.KeyRange
	Files  []FileRecord
}

// TotalKeys returns the number of keys over all files.
func (m *Manifest) TotalKeys() uint64 {
	var n uint64
	for i := range m.Files {
		n += m.Files[i].KeyCount
	}
	return n
}

// TotalSize returns the stored size of all files.
func (m *Manifest) TotalSize() uint64 {
	var n uint64
	for i := range m.Files {
		n += m.Files[i].Size
	}
	return n
}

// Validate checks the manifest's invariants.
func (m *Manifest) Validate() error {
	if err := validateID(m.ID); err != nil {
		return err
	}
	if !m.Format.valid() {
		return base.InvalidInputf("manifest %s: unknown format %d", m.ID, uint8(m.Format))
	}
	if err := m.Range.Validate(); err != nil {
		return err
	}
	names := make(map[string]struct{}, len(m.Files))
	for i := range m.Files {
		f := &m.Files[i]
		if f.Name == "" || strings.ContainsAny(f.Name, `/\`) {
			return base.InvalidInputf("manifest %s: invalid file name %q", m.ID, f.Name)
		}
		if _, ok := names[f.Name]; ok {
			return base.InvalidInputf("manifest %s: duplicate file %s", m.ID, f.Name)
		}
		names[f.Name] = struct{}{}
		if err := f.ColumnFamily.Validate(); err != nil {
			return err
		}
		if f.KeyCount == 0 {
			return base.InvalidInputf("manifest %s: file %s has no keys", m.ID, f.Name)
		}
		if !f.Encryption.IsPlaintext() && len(f.IV) != encryption.IVSize {
			return base.InvalidInputf("manifest %s: file %s has a %d byte iv", m.ID, f.Name, len(f.IV))
		}
	}
	return nil
}

func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return base.InvalidInputf("invalid snapshot id %q", id)
	}
	return nil
}

const manifestMagic = "snapmf\x01"

// Tags for the manifest encoding. File tags apply to the file most recently
// started by tagFileName.
const (
	tagID         = 1
	tagFormat     = 2
	tagRangeStart = 3
	tagRangeEnd   = 4

	tagFileName       = 10
	tagFileCF         = 11
	tagFileSize       = 12
	tagFileKeyCount   = 13
	tagFileTotalBytes = 14
	tagFileCRC64Xor   = 15
	tagFileSHA256     = 16
	tagFileEncryption = 17
	tagFileIV         = 18
)

var errCorruptManifest = base.MarkIO(errors.New("snapfile: corrupt manifest"))

var crc32Table = crc32.MakeTable(crc32.Castagnoli)

// Encode serializes the manifest. The encoding is a magic string, a sequence
// of (tag, value) pairs and a trailing CRC-32C of everything before it.
func (m *Manifest) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	e := manifestEncoder{new(bytes.Buffer)}
	e.WriteString(manifestMagic)
	e.writeUvarint(tagID)
	e.writeString(m.ID)
	e.writeUvarint(tagFormat)
	e.writeUvarint(uint64(m.Format))
	e.writeUvarint(tagRangeStart)
	e.writeBytes(m.Range.Start)
	e.writeUvarint(tagRangeEnd)
	e.writeBytes(m.Range.End)
	for i := range m.Files {
		f := &m.Files[i]
		e.writeUvarint(tagFileName)
		e.writeString(f.Name)
		e.writeUvarint(tagFileCF)
		e.writeUvarint(uint64(f.ColumnFamily))
		e.writeUvarint(tagFileSize)
		e.writeUvarint(f.Size)
		e.writeUvarint(tagFileKeyCount)
		e.writeUvarint(f.KeyCount)
		e.writeUvarint(tagFileTotalBytes)
		e.writeUvarint(f.TotalBytes)
		if f.CRC64Xor != 0 {
			e.writeUvarint(tagFileCRC64Xor)
			e.writeUvarint(f.CRC64Xor)
		}
		e.writeUvarint(tagFileSHA256)
		e.writeBytes(f.SHA256[:])
		if !f.Encryption.IsPlaintext() {
			e.writeUvarint(tagFileEncryption)
			e.writeUvarint(uint64(f.Encryption))
			e.writeUvarint(tagFileIV)
			e.writeBytes(f.IV)
		}
	}
	e.Write(binary.LittleEndian.AppendUint32(nil, crc32.Checksum(e.Bytes(), crc32Table)))
	return e.Bytes(), nil
}

// DecodeManifest parses a manifest produced by Encode. Corruption is
// reported as ErrIO.
func DecodeManifest(data []byte) (*Manifest, error) {
	if len(data) < len(manifestMagic)+4 || string(data[:len(manifestMagic)]) != manifestMagic {
		return nil, errors.Wrap(errCorruptManifest, "bad magic")
	}
	body, trailer := data[:len(data)-4], data[len(data)-4:]
	if crc32.Checksum(body, crc32Table) != binary.LittleEndian.Uint32(trailer) {
		return nil, errors.Wrap(errCorruptManifest, "checksum mismatch")
	}
	m := &Manifest{}
	d := manifestDecoder{bytes.NewReader(body[len(manifestMagic):])}
	var cur *FileRecord
	for {
		tag, err := binary.ReadUvarint(d)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errCorruptManifest
		}
		if tag >= tagFileCF && cur == nil {
			return nil, errors.Wrapf(errCorruptManifest, "tag %d outside of a file", tag)
		}
		switch tag {
		case tagID:
			s, err := d.readBytes()
			if err != nil {
				return nil, err
			}
			m.ID = string(s)

		case tagFormat:
			n, err := d.readUvarint()
			if err != nil {
				return nil, err
			}
			m.Format = Format(n)

		case tagRangeStart:
			if m.Range.Start, err = d.readBytes(); err != nil {
				return nil, err
			}

		case tagRangeEnd:
			if m.Range.End, err = d.readBytes(); err != nil {
				return nil, err
			}

		case tagFileName:
			s, err := d.readBytes()
			if err != nil {
				return nil, err
			}
			m.Files = append(m.Files, FileRecord{Name: string(s)})
			cur = &m.Files[len(m.Files)-1]

		case tagFileCF:
			n, err := d.readUvarint()
			if err != nil {
				return nil, err
			}
			cur.ColumnFamily = engine.ColumnFamily(n)

		case tagFileSize:
			if cur.Size, err = d.readUvarint(); err != nil {
				return nil, err
			}

		case tagFileKeyCount:
			if cur.KeyCount, err = d.readUvarint(); err != nil {
				return nil, err
			}

		case tagFileTotalBytes:
			if cur.TotalBytes, err = d.readUvarint(); err != nil {
				return nil, err
			}

		case tagFileCRC64Xor:
			if cur.CRC64Xor, err = d.readUvarint(); err != nil {
				return nil, err
			}

		case tagFileSHA256:
			s, err := d.readBytes()
			if err != nil {
				return nil, err
			}
			if len(s) != len(cur.SHA256) {
				return nil, errors.Wrap(errCorruptManifest, "bad digest length")
			}
			copy(cur.SHA256[:], s)

		case tagFileEncryption:
			n, err := d.readUvarint()
			if err != nil {
				return nil, err
			}
			cur.Encryption = encryption.Method(n)

		case tagFileIV:
			if cur.IV, err = d.readBytes(); err != nil {
				return nil, err
			}

		default:
			return nil, errors.Wrapf(errCorruptManifest, "unknown tag %d", tag)
		}
	}
	if len(m.Range.End) == 0 {
		m.Range.End = nil
	}
	if len(m.Range.Start) == 0 {
		m.Range.Start = nil
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Wrapf(errCorruptManifest, "%v", err)
	}
	return m, nil
}

type manifestDecoder struct {
	*bytes.Reader
}

func (d manifestDecoder) readBytes() ([]byte, error) {
	n, err := d.readUvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(d.Len()) {
		return nil, errCorruptManifest
	}
	s := make([]byte, n)
	if _, err := io.ReadFull(d, s); err != nil {
		return nil, errCorruptManifest
	}
	return s, nil
}

func (d manifestDecoder) readUvarint() (uint64, error) {
	u, err := binary.ReadUvarint(d)
	if err != nil {
		return 0, errCorruptManifest
	}
	return u, nil
}

type manifestEncoder struct {
	*bytes.Buffer
}

func (e manifestEncoder) writeBytes(p []byte) {
	e.writeUvarint(uint64(len(p)))
	e.Write(p)
}

func (e manifestEncoder) writeString(s string) {
	e.writeUvarint(uint64(len(s)))
	e.WriteString(s)
}

func (e manifestEncoder) writeUvarint(u uint64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], u)
	e.Write(buf[:n])
}
