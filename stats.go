// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package snapfile

import "github.com/cockroachdb/redact"

// BuildStatistics describes the contents of a single built file.
//
// A file with a zero KeyCount is never persisted: builders remove it before
// returning, and callers must not record it in a manifest.
type BuildStatistics struct {
	KeyCount uint64
	// TotalSize is the sum of the lengths of all keys and values.
	TotalSize uint64
}

func (s *BuildStatistics) add(key, value []byte) {
	s.KeyCount++
	s.TotalSize += uint64(len(key) + len(value))
}

// Empty reports whether no keys were written.
func (s BuildStatistics) Empty() bool {
	return s.KeyCount == 0
}

// String implements fmt.Stringer.
func (s BuildStatistics) String() string {
	return redact.StringWithoutMarkers(s)
}

// SafeFormat implements redact.SafeFormatter.
func (s BuildStatistics) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("keys=%d size=%d", redact.Safe(s.KeyCount), redact.Safe(s.TotalSize))
}
