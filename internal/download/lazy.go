// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package download

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// NextFunc pulls the next downloaded object's content. ok is false once
// every item has been produced; a non-nil error aborts the sequence.
type NextFunc func() ([]byte, bool, error)

// Lazy returns a pull iterator that downloads one batch ahead of the
// caller. A weighted semaphore of 1 bounds how many batches are ever
// in flight at once -- the caller's memory footprint never exceeds one
// composite's worth of decomposed content plus whatever it hasn't yet
// consumed, instead of Download's materialize-everything behavior.
func (e *Engine) Lazy(ctx context.Context, items []Item) NextFunc {
	type batchResult struct {
		slices [][]byte
		err    error
	}

	sem := semaphore.NewWeighted(1)
	out := make(chan batchResult, 1)
	done := make(chan struct{})
	var closeOnce sync.Once

	go func() {
		defer close(out)
		i := 0
		for i < len(items) {
			if err := sem.Acquire(ctx, 1); err != nil {
				out <- batchResult{err: err}
				return
			}
			batch, next := e.nextBatch(items, i)
			i = next
			slices, err := e.downloadBatch(ctx, batch)
			select {
			case out <- batchResult{slices: slices, err: err}:
				if err != nil {
					return
				}
			case <-done:
				sem.Release(1)
				return
			}
		}
	}()

	var pending [][]byte
	return func() ([]byte, bool, error) {
		for len(pending) == 0 {
			res, open := <-out
			if !open {
				return nil, false, nil
			}
			sem.Release(1)
			if res.err != nil {
				closeOnce.Do(func() { close(done) })
				return nil, false, res.err
			}
			pending = res.slices
		}
		content := pending[0]
		pending = pending[1:]
		return content, true, nil
	}
}
