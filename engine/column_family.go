// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package engine

import (
	"bytes"

	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/snapfile/internal/base"
)

// ColumnFamily identifies one of the fixed set of named partitions of the
// engine's key space.
type ColumnFamily uint8

// The column families known to the engine. The zero value is invalid.
const (
	CFDefault ColumnFamily = iota + 1
	CFLock
	CFWrite
	CFRaft
)

var cfNames = [...]string{
	CFDefault: "default",
	CFLock:    "lock",
	CFWrite:   "write",
	CFRaft:    "raft",
}

// ColumnFamilies lists every column family in prefix order.
var ColumnFamilies = []ColumnFamily{CFDefault, CFLock, CFWrite, CFRaft}

// DataColumnFamilies are the families that make up a snapshot of a range.
var DataColumnFamilies = []ColumnFamily{CFDefault, CFLock, CFWrite}

// ParseColumnFamily returns the column family with the given name.
func ParseColumnFamily(name string) (ColumnFamily, error) {
	for _, cf := range ColumnFamilies {
		if cfNames[cf] == name {
			return cf, nil
		}
	}
	return 0, base.InvalidInputf("engine: unknown column family %q", redact.Safe(name))
}

// Valid reports whether cf is a column family the engine recognizes.
func (cf ColumnFamily) Valid() bool {
	return cf >= CFDefault && cf <= CFRaft
}

// Validate returns an ErrInvalidInput error if cf is not recognized.
func (cf ColumnFamily) Validate() error {
	if !cf.Valid() {
		return base.InvalidInputf("engine: unknown column family %d", uint8(cf))
	}
	return nil
}

// String implements fmt.Stringer.
func (cf ColumnFamily) String() string {
	if cf.Valid() {
		return cfNames[cf]
	}
	return "unknown"
}

// SafeFormat implements redact.SafeFormatter.
func (cf ColumnFamily) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString(redact.SafeString(cf.String()))
}

// prefix is the byte every key of the family starts with inside the shared
// Pebble keyspace.
func (cf ColumnFamily) prefix() byte {
	return byte(cf)
}

// encodeKey returns the engine key of userKey within cf.
func (cf ColumnFamily) encodeKey(userKey []byte) []byte {
	k := make([]byte, 0, len(userKey)+1)
	k = append(k, cf.prefix())
	return append(k, userKey...)
}

// decodeKey strips the family prefix from an engine key.
func (cf ColumnFamily) decodeKey(key []byte) []byte {
	return key[1:]
}

// bounds returns the engine key bounds of kr within cf.
func (cf ColumnFamily) bounds(kr KeyRange) (lower, upper []byte) {
	lower = cf.encodeKey(kr.Start)
	if len(kr.End) == 0 {
		upper = []byte{cf.prefix() + 1}
	} else {
		upper = cf.encodeKey(kr.End)
	}
	return lower, upper
}

// KeyRange is the half-open interval [Start, End) of user keys. An empty End
// extends the range to the end of the column family.
type KeyRange struct {
	Start []byte
	End   []byte
}

// Validate returns an ErrInvalidInput error if Start sorts after a non-empty
// End.
func (kr KeyRange) Validate() error {
	if len(kr.End) > 0 && bytes.Compare(kr.Start, kr.End) > 0 {
		return base.InvalidInputf("engine: invalid key range %s", kr)
	}
	return nil
}

// Contains reports whether key falls within the range.
func (kr KeyRange) Contains(key []byte) bool {
	return bytes.Compare(key, kr.Start) >= 0 && (len(kr.End) == 0 || bytes.Compare(key, kr.End) < 0)
}

// String implements fmt.Stringer.
func (kr KeyRange) String() string {
	return redact.StringWithoutMarkers(kr)
}

// SafeFormat implements redact.SafeFormatter. Keys are user data and are
// redactable.
func (kr KeyRange) SafeFormat(w redact.SafePrinter, _ rune) {
	if len(kr.End) == 0 {
		w.Printf("[%q, +inf)", kr.Start)
		return
	}
	w.Printf("[%q, %q)", kr.Start, kr.End)
}
