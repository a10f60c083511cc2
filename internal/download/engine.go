// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package download implements the composed download engine: it groups an
// ordered list of small objects into size- and count-bounded batches,
// compose/download/decomposes each batch through a single temporary
// composite object, and guarantees that composite is deleted on every
// exit path.
package download

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"go.chromium.org/dataflux/internal/gcsclient"
)

// Item is one object to download, the unit the engine batches on. It
// mirrors the root dataflux.Object shape without importing that package,
// which would create an import cycle.
type Item struct {
	Name string
	Size int64
}

// MaxComposeMembers is GCS's server-side limit on the number of source
// objects a single compose call may accept.
const MaxComposeMembers = gcsclient.MaxComposeMembers

// DefaultMaxCompositeSize bounds a single compose batch's cumulative size
// when the caller does not override it.
const DefaultMaxCompositeSize = 100 << 20 // 100 MiB

// ReservedPrefix is the key prefix under which the engine creates
// transient composite objects; internal/listing filters it out by default.
const ReservedPrefix = "composed-objects/"

// Options configures one Engine.
type Options struct {
	// MaxCompositeSize caps a compose batch's cumulative size; zero means
	// DefaultMaxCompositeSize.
	MaxCompositeSize int64
	// Retry is the backoff policy applied to every store call.
	Retry gcsclient.RetryPolicy
}

func (o Options) maxCompositeSize() int64 {
	if o.MaxCompositeSize > 0 {
		return o.MaxCompositeSize
	}
	return DefaultMaxCompositeSize
}

// Engine runs the single-threaded batching algorithm against one bucket.
// It exclusively owns a single transient-composite register for the
// duration of one batch, which an installed signal handler (see signal.go)
// can use to clean up on interrupt.
type Engine struct {
	client gcsclient.Client
	bucket string
	opts   Options

	mu      sync.Mutex
	current *gcsclient.Handle
}

// New constructs an Engine bound to one bucket.
func New(client gcsclient.Client, bucket string, opts Options) *Engine {
	return &Engine{client: client, bucket: bucket, opts: opts}
}

// Download runs the compose/download/decompose/delete loop over items in
// order and returns their contents, one slice per item, in input order.
func (e *Engine) Download(ctx context.Context, items []Item) ([][]byte, error) {
	var out [][]byte
	i := 0
	for i < len(items) {
		batch, next := e.nextBatch(items, i)
		i = next
		slices, err := e.downloadBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, slices...)
	}
	return out, nil
}

// nextBatch returns the next compose-eligible batch starting at i (which
// may be a single object, including an oversized one flagged for direct
// download) and the index to resume at.
func (e *Engine) nextBatch(items []Item, i int) ([]Item, int) {
	if items[i].Size > e.opts.maxCompositeSize() {
		return items[i : i+1], i + 1
	}
	var cumSize int64
	j := i
	for j < len(items) && cumSize <= e.opts.maxCompositeSize() && j-i < MaxComposeMembers {
		cumSize += items[j].Size
		j++
	}
	return items[i:j], j
}

// downloadBatch downloads a single item directly, or composes, downloads,
// slices, and deletes a composite for a batch of two or more.
func (e *Engine) downloadBatch(ctx context.Context, batch []Item) ([][]byte, error) {
	if len(batch) == 1 {
		content, err := e.downloadSingle(ctx, batch[0].Name)
		if err != nil {
			return nil, err
		}
		return [][]byte{content}, nil
	}
	return e.composeDownloadDecompose(ctx, batch)
}

func (e *Engine) downloadSingle(ctx context.Context, name string) ([]byte, error) {
	var content []byte
	err := e.opts.Retry.Do(nil, func() error {
		var err error
		content, err = e.client.Download(ctx, e.bucket, name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("download: downloading %s/%s: %w", e.bucket, name, err)
	}
	return content, nil
}

func (e *Engine) composeDownloadDecompose(ctx context.Context, batch []Item) ([][]byte, error) {
	sources := make([]string, len(batch))
	for i, item := range batch {
		sources[i] = item.Name
	}
	destination := ReservedPrefix + uuid.New().String()

	var handle gcsclient.Handle
	err := e.opts.Retry.Do(nil, func() error {
		var err error
		handle, err = e.client.Compose(ctx, e.bucket, destination, sources)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("download: composing %d objects into %s/%s: %w", len(batch), e.bucket, destination, err)
	}
	e.setCurrent(&handle)
	defer e.clearCurrent()

	content, err := e.downloadSingle(ctx, destination)
	if err != nil {
		e.deleteComposite(ctx, handle)
		return nil, err
	}

	slices := decompose(content, batch)

	e.deleteComposite(ctx, handle)
	return slices, nil
}

// decompose slices composite content by batch's sizes, in order. A
// size/length mismatch (server-side or metadata skew) is logged, not
// raised -- the caller already has the bytes that were produced.
func decompose(content []byte, batch []Item) [][]byte {
	slices := make([][]byte, len(batch))
	start := int64(0)
	for i, item := range batch {
		end := start + item.Size
		if end > int64(len(content)) {
			end = int64(len(content))
		}
		if start > int64(len(content)) {
			start = int64(len(content))
		}
		slices[i] = content[start:end]
		start += item.Size
	}
	if start != int64(len(content)) {
		glog.Errorf("download: decomposed object length = %d bytes, wanted = %d bytes", len(content), start)
	}
	return slices
}

func (e *Engine) deleteComposite(ctx context.Context, handle gcsclient.Handle) {
	if err := e.opts.Retry.Do(nil, func() error {
		return e.client.Delete(ctx, handle)
	}); err != nil {
		glog.Errorf("download: exception while deleting the composite object %s/%s: %v", handle.Bucket, handle.Name, err)
	}
}

func (e *Engine) setCurrent(h *gcsclient.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = h
}

func (e *Engine) clearCurrent() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = nil
}

// cleanupCurrent deletes whatever composite is currently registered, best
// effort. It is the hook InstallSignalCleanup uses.
func (e *Engine) cleanupCurrent(ctx context.Context) {
	e.mu.Lock()
	handle := e.current
	e.mu.Unlock()
	if handle == nil {
		return
	}
	e.deleteComposite(ctx, *handle)
}
