// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package dataflux is a client-side acceleration layer for reading many
// small objects out of Google Cloud Storage: a parallel work-stealing
// listing engine and a composed download engine that batches small
// objects through temporary server-side composites to cut request count.
package dataflux

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"go.chromium.org/dataflux/internal/download"
	"go.chromium.org/dataflux/internal/gcsclient"
	"go.chromium.org/dataflux/internal/listing"
)

// Object is one GCS object as produced by ListBucket and consumed by
// Download. Equality is by (Name, Size); a listing result set never
// contains duplicates.
type Object struct {
	Name string
	Size int64
}

// ListOption configures a ListBucket call.
type ListOption func(*listing.Config)

// WithPrefix restricts listing to keys with this prefix.
func WithPrefix(prefix string) ListOption {
	return func(c *listing.Config) { c.Prefix = prefix }
}

// WithSort requests a lexicographically sorted result slice.
func WithSort(sorted bool) ListOption {
	return func(c *listing.Config) { c.SortResults = sorted }
}

// WithSkipComposites excludes dataflux's own reserved composite objects
// from listing results. Defaults to true.
func WithSkipComposites(skip bool) ListOption {
	return func(c *listing.Config) { c.SkipComposites = skip }
}

// WithIncludeDirectories includes keys ending in "/" in listing results.
func WithIncludeDirectories(include bool) ListOption {
	return func(c *listing.Config) { c.IncludeDirectories = include }
}

// WithAllowedStorageClasses restricts listing results to the given
// storage classes. Defaults to {"STANDARD"}.
func WithAllowedStorageClasses(classes []string) ListOption {
	return func(c *listing.Config) { c.AllowedStorageClasses = classes }
}

// WithPageCap overrides the per-request page size cap.
func WithPageCap(cap int) ListOption {
	return func(c *listing.Config) { c.PageCap = cap }
}

// WithMaxRetries overrides the per-worker list retry budget.
func WithMaxRetries(n int) ListOption {
	return func(c *listing.Config) { c.MaxRetries = n }
}

// ListBucket enumerates bucket (optionally restricted to a prefix) using
// workers concurrent work-stealing goroutines and returns the discovered
// objects. See internal/listing for the distributed algorithm.
func ListBucket(ctx context.Context, project, bucket string, workers int, opts ...ListOption) ([]Object, error) {
	client, err := newRealClient(ctx, project)
	if err != nil {
		return nil, err
	}
	cfg := listing.Config{
		Bucket:         bucket,
		Workers:        workers,
		SkipComposites: true,
		Retry:          gcsclient.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	results, err := listing.Run(ctx, client, cfg)
	if err != nil {
		return nil, fmt.Errorf("dataflux: listing %s/%s: %w", bucket, cfg.Prefix, err)
	}
	objects := make([]Object, len(results))
	for i, r := range results {
		objects[i] = Object{Name: r.Name, Size: r.Size}
	}
	return objects, nil
}

// ThreadingMode selects how Download fans work out across objects.
type ThreadingMode struct {
	mode    download.FanOutMode
	workers int
	single  bool
}

// Single runs the download engine sequentially in this goroutine. This is
// the only mode under which interrupt-driven composite cleanup can be
// installed (see InstallSignalCleanup).
func Single() ThreadingMode { return ThreadingMode{single: true} }

// Threads fans the download out across n goroutines sharing one GCS
// client.
func Threads(n int) ThreadingMode {
	return ThreadingMode{mode: download.Goroutines, workers: n}
}

// Processes fans the download out across n child processes, each with
// its own GCS client; this is the closest Go analogue to the upstream
// project's multiprocessing.Pool fan-out.
func Processes(n int) ThreadingMode {
	return ThreadingMode{mode: download.Processes, workers: n}
}

// DownloadOption configures a Download or DownloadLazy call.
type DownloadOption func(*downloadConfig)

type downloadConfig struct {
	opts     download.Options
	mode     ThreadingMode
	workerCmd func() (string, []string)
}

// WithMaxCompositeSize bounds a single compose batch's cumulative size.
func WithMaxCompositeSize(bytes int64) DownloadOption {
	return func(c *downloadConfig) { c.opts.MaxCompositeSize = bytes }
}

// WithRetryPolicy overrides the default retry policy applied to every
// store call.
func WithRetryPolicy(policy gcsclient.RetryPolicy) DownloadOption {
	return func(c *downloadConfig) { c.opts.Retry = policy }
}

// WithThreadingMode selects Single (default), Threads(n), or Processes(n).
func WithThreadingMode(mode ThreadingMode) DownloadOption {
	return func(c *downloadConfig) { c.mode = mode }
}

// WithWorkerCommand sets the argv builder Processes mode uses to launch
// its child workers; see cmd/dataflux-workerproc for the expected
// request/response protocol. Required when using Processes(n).
func WithWorkerCommand(command func() (name string, args []string)) DownloadOption {
	return func(c *downloadConfig) { c.workerCmd = command }
}

func resolveDownloadConfig(opts []DownloadOption) downloadConfig {
	cfg := downloadConfig{
		opts: download.Options{Retry: gcsclient.DefaultRetryPolicy()},
		mode: Single(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func toItems(objects []Object) []download.Item {
	items := make([]download.Item, len(objects))
	for i, o := range objects {
		items[i] = download.Item{Name: o.Name, Size: o.Size}
	}
	return items
}

// Download fetches every object in objects, in order, using composed
// batching to minimize request count. The returned slice has the same
// length and order as objects.
func Download(ctx context.Context, project, bucket string, objects []Object, opts ...DownloadOption) ([][]byte, error) {
	cfg := resolveDownloadConfig(opts)
	items := toItems(objects)

	if cfg.mode.single {
		client, err := newRealClient(ctx, project)
		if err != nil {
			return nil, err
		}
		engine := download.New(client, bucket, cfg.opts)
		uninstall := download.InstallSignalCleanup(engine)
		defer uninstall()
		contents, err := engine.Download(ctx, items)
		if err != nil {
			return nil, fmt.Errorf("dataflux: downloading from %s/%s: %w", project, bucket, err)
		}
		return contents, nil
	}

	if cfg.mode.mode == download.Processes {
		if cfg.workerCmd == nil {
			return nil, fmt.Errorf("dataflux: Processes mode requires WithWorkerCommand")
		}
		contents, err := download.MultiplexProcesses(ctx, project, bucket, items, cfg.mode.workers, cfg.opts, download.ProcessWorker{Command: cfg.workerCmd})
		if err != nil {
			return nil, fmt.Errorf("dataflux: process-multiplexed download from %s/%s: %w", project, bucket, err)
		}
		return contents, nil
	}

	client, err := newRealClient(ctx, project)
	if err != nil {
		return nil, err
	}
	engine := download.New(client, bucket, cfg.opts)
	contents, err := download.MultiplexGoroutines(ctx, engine, items, cfg.mode.workers)
	if err != nil {
		return nil, fmt.Errorf("dataflux: thread-multiplexed download from %s/%s: %w", project, bucket, err)
	}
	return contents, nil
}

// DownloadLazy is Download's pull-iterator variant: it returns a function
// that yields one object's content per call instead of materializing the
// full result set up front. It only supports Single mode; Threads/Processes
// options are ignored.
func DownloadLazy(ctx context.Context, project, bucket string, objects []Object, opts ...DownloadOption) (func() ([]byte, bool, error), error) {
	cfg := resolveDownloadConfig(opts)
	client, err := newRealClient(ctx, project)
	if err != nil {
		return nil, err
	}
	engine := download.New(client, bucket, cfg.opts)
	uninstall := download.InstallSignalCleanup(engine)
	next := engine.Lazy(ctx, toItems(objects))
	return func() ([]byte, bool, error) {
		content, ok, err := next()
		if !ok || err != nil {
			uninstall()
		}
		return content, ok, err
	}, nil
}

func newRealClient(ctx context.Context, project string) (*gcsclient.Real, error) {
	opts := []option.ClientOption{}
	if project != "" {
		opts = append(opts, option.WithQuotaProject(project))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("dataflux: constructing storage client: %w", err)
	}
	return gcsclient.NewReal(client), nil
}
