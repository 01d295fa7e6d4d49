// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package remote

import (
	"context"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/snapfile/internal/base"
	"google.golang.org/api/googleapi"
)

// s3RetryableCodes are the S3 error codes reporting throttling or a transient
// server-side condition.
var s3RetryableCodes = map[string]struct{}{
	"SlowDown":                {},
	"Throttling":              {},
	"ThrottlingException":     {},
	"RequestLimitExceeded":    {},
	"RequestTimeout":          {},
	"RequestTimeoutException": {},
	"InternalError":           {},
	"ServiceUnavailable":      {},
}

// IsRetryable reports whether err is a transient failure worth retrying:
// connection resets and refusals, timeouts, truncated responses, HTTP 429 and
// 5xx statuses and the S3 throttling codes. Everything else, including
// context cancellation, fails immediately.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case base.IsContextError(err):
		return false
	case errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE):
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := s3RetryableCodes[apiErr.ErrorCode()]; ok {
			return true
		}
	}
	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.HTTPStatusCode())
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return retryableStatus(gerr.Code)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func isRetryable(s Storage, err error) bool {
	if rc, ok := s.(RetryClassifier); ok {
		return rc.IsRetryable(err)
	}
	return IsRetryable(err)
}

// retrier runs single requests under the retry policy of an ExternalStorage.
type retrier struct {
	s       Storage
	opts    *Options
	metrics *Metrics
}

func (r *retrier) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialBackoff
	b.MaxInterval = r.opts.MaxBackoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.opts.MaxRetries)), ctx)
}

// do runs fn until it succeeds, fails with a non-retryable error or the retry
// budget is exhausted, and classifies the final error.
func (r *retrier) do(ctx context.Context, op, name string, fn func() error) error {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !isRetryable(r.s, err) {
			return backoff.Permanent(err)
		}
		if attempt <= r.opts.MaxRetries {
			r.metrics.retried(op)
			r.opts.Logger.Infof("remote: %s %q failed (attempt %d), retrying: %v", op, name, attempt, err)
		}
		return err
	}, r.newBackOff(ctx))
	if err != nil {
		err = r.classify(err)
	}
	r.metrics.request(op, err)
	return errors.Wrapf(err, "remote: %s %q after %d attempts", op, name, attempt)
}

// classify marks err with the module error kind it maps to.
func (r *retrier) classify(err error) error {
	switch {
	case base.KindOf(err) != base.KindUnknown:
		return err
	case base.IsContextError(err):
		return err
	case r.s.IsNotExistError(err):
		return errors.Mark(err, base.ErrRemoteNotFound)
	case isRetryable(r.s, err):
		return errors.Mark(err, base.ErrRemoteTransient)
	}
	return errors.Mark(err, base.ErrIO)
}

// Default retry options.
const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
)
