// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package gcsclient

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy configures the exponential backoff applied to every store
// call. The zero value is not usable; start from DefaultRetryPolicy or set
// every field.
type RetryPolicy struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryPolicy matches the policy documented for the GCS client
// library: initial 1s, multiplier 1.2, capped at 45s between attempts,
// 300s overall deadline.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: time.Second,
		Multiplier:      1.2,
		MaxInterval:     45 * time.Second,
		MaxElapsedTime:  300 * time.Second,
	}
}

// defaultMaxElapsedTime bounds retries for a RetryPolicy that leaves
// MaxElapsedTime unset; cenkalti/backoff treats a zero MaxElapsedTime as
// "retry forever", which is never what an unconfigured policy wants.
const defaultMaxElapsedTime = 300 * time.Second

// newBackOff builds a fresh stateful backoff.BackOff for a single call;
// cenkalti/backoff instances track elapsed attempts so each retried
// operation needs its own.
func (p RetryPolicy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = p.MaxElapsedTime
	if b.MaxElapsedTime == 0 {
		b.MaxElapsedTime = defaultMaxElapsedTime
	}
	b.Reset()
	return b
}

// Do runs fn under the retry policy, invoking onRetry (if non-nil) before
// every retried attempt -- internal/listing uses this hook to emit a
// heartbeat so the controller's crash detector doesn't fire during
// legitimate backoff.
func (p RetryPolicy) Do(onRetry func(error), fn func() error) error {
	return backoff.RetryNotify(fn, p.newBackOff(), func(err error, _ time.Duration) {
		if onRetry != nil {
			onRetry(err)
		}
	})
}
