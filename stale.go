// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package snapfile

import (
	"context"

	"github.com/cockroachdb/errors"
)

// StaleDetector reports whether the snapshot being processed is no longer
// needed. IsStale must be side-effect free and cheap: it is consulted before
// every decoded pair.
type StaleDetector interface {
	IsStale() bool
}

// StaleDetectorFunc adapts a function to a StaleDetector.
type StaleDetectorFunc func() bool

// IsStale implements StaleDetector.
func (f StaleDetectorFunc) IsStale() bool {
	return f()
}

// NeverStale is a StaleDetector that never reports staleness.
var NeverStale StaleDetector = StaleDetectorFunc(func() bool { return false })

// ContextStaleDetector returns a StaleDetector that reports staleness once
// ctx is done.
func ContextStaleDetector(ctx context.Context) StaleDetector {
	return StaleDetectorFunc(func() bool { return ctx.Err() != nil })
}

func checkStale(s StaleDetector) error {
	if s != nil && s.IsStale() {
		return errors.Mark(errors.New("snapshot is stale"), ErrAbort)
	}
	return nil
}
