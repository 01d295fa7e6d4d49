// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package snapfile

import (
	"sync"
	"time"

	"github.com/cockroachdb/tokenbucket"
)

// IOLimiter caps the throughput of SST builds. A single limiter is shared by
// every build running concurrently; a nil *IOLimiter does not limit.
type IOLimiter struct {
	bytesPerSecond int64

	mu struct {
		sync.Mutex
		tb tokenbucket.TokenBucket
	}
}

// NewIOLimiter returns a limiter admitting bytesPerSecond bytes per second,
// with a burst of a tenth of a second worth of bytes. A non-positive rate
// returns a nil (unlimited) limiter.
func NewIOLimiter(bytesPerSecond int64) *IOLimiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	l := &IOLimiter{bytesPerSecond: bytesPerSecond}
	burst := max(bytesPerSecond/10, 1)
	l.mu.tb.Init(tokenbucket.TokensPerSecond(bytesPerSecond), tokenbucket.Tokens(burst))
	return l
}

// BytesPerSecond returns the configured rate, or 0 if unlimited.
func (l *IOLimiter) BytesPerSecond() int64 {
	if l == nil {
		return 0
	}
	return l.bytesPerSecond
}

// Request blocks until n bytes may be written.
func (l *IOLimiter) Request(n int) {
	if l == nil || n <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		ok, d := l.mu.tb.TryToFulfill(tokenbucket.Tokens(n))
		if ok {
			return
		}
		time.Sleep(d)
	}
}
