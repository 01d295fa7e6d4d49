// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Marker errors. Errors returned by this module are marked with exactly one
// of them (see errors.Mark) so that callers can dispatch on errors.Is without
// knowing which library produced the underlying cause.
var (
	// ErrInvalidInput marks malformed configuration or arguments. It is
	// always detected before any I/O and is never retried.
	ErrInvalidInput = errors.New("snapfile: invalid input")
	// ErrIO marks local filesystem failures and codec decode failures.
	ErrIO = errors.New("snapfile: io error")
	// ErrEngine marks failures of the storage engine's write or ingest
	// primitives.
	ErrEngine = errors.New("snapfile: engine error")
	// ErrRemoteTransient marks blob store errors that were classified as
	// retryable but did not succeed within the configured retry budget.
	ErrRemoteTransient = errors.New("snapfile: transient remote storage error")
	// ErrRemoteNotFound marks a blob store read of an object that does not
	// exist.
	ErrRemoteNotFound = errors.New("snapfile: remote object not found")
	// ErrAbort marks cooperative cancellation through a stale detector.
	ErrAbort = errors.New("snapfile: aborted")
	// ErrKeyManager marks failures to look up or register encryption info.
	ErrKeyManager = errors.New("snapfile: key manager error")
)

// Kind is the classification of an error returned by this module.
type Kind int8

// The error kinds, one per marker error.
const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindIO
	KindEngine
	KindRemoteTransient
	KindRemoteNotFound
	KindAbort
	KindKeyManager
)

var kindNames = [...]string{
	KindUnknown:         "unknown",
	KindInvalidInput:    "invalid-input",
	KindIO:              "io",
	KindEngine:          "engine",
	KindRemoteTransient: "remote-transient",
	KindRemoteNotFound:  "remote-not-found",
	KindAbort:           "abort",
	KindKeyManager:      "key-manager",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// KindOf classifies err. Abort is checked first: an aborted operation may
// wrap an I/O error produced while unwinding.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrAbort):
		return KindAbort
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrRemoteNotFound):
		return KindRemoteNotFound
	case errors.Is(err, ErrRemoteTransient):
		return KindRemoteTransient
	case errors.Is(err, ErrKeyManager):
		return KindKeyManager
	case errors.Is(err, ErrEngine):
		return KindEngine
	case errors.Is(err, ErrIO):
		return KindIO
	}
	return KindUnknown
}

// InvalidInputf returns a new error marked with ErrInvalidInput.
func InvalidInputf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidInput)
}

// MarkIO marks err as an I/O error unless it already carries a kind.
func MarkIO(err error) error {
	return markUnlessClassified(err, ErrIO)
}

// MarkEngine marks err as an engine error unless it already carries a kind.
func MarkEngine(err error) error {
	return markUnlessClassified(err, ErrEngine)
}

func markUnlessClassified(err error, mark error) error {
	if err == nil || KindOf(err) != KindUnknown {
		return err
	}
	return errors.Mark(err, mark)
}

// IsContextError reports whether err is a context cancellation or deadline.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
