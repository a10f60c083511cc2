// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package listing implements the distributed work-stealing bucket listing
// engine: a controller that spawns ListWorker goroutines over a shared set
// of coordination channels, routes donated key ranges between them, and
// aggregates their results into the final object set.
package listing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.chromium.org/dataflux/internal/gcsclient"
)

// Result is one listed object, the unit the controller aggregates and
// returns. It intentionally mirrors the root dataflux.Object shape without
// importing that package, which would create an import cycle.
type Result struct {
	Name string
	Size int64
}

// DefaultPageCap is the maximum number of keys requested per list call,
// GCS's own page-size ceiling.
const DefaultPageCap = 5000

// DefaultMaxRetries is the per-worker retry budget for a single list call.
const DefaultMaxRetries = 5

var (
	// DefaultAllowedStorageClasses is the storage-class allow-list applied
	// when the caller does not override it.
	DefaultAllowedStorageClasses = []string{"STANDARD"}

	// ReservedCompositePrefix is the key prefix dataflux's own download
	// engine reserves for transient composite objects; listing filters
	// these out by default (see Config.SkipComposites).
	ReservedCompositePrefix = "composed-objects/"
)

// heartbeatFloor is the shortest time a worker may go quiet before the
// controller considers it crashed; crashThreshold raises it to twice the
// retry policy's MaxInterval when that is longer.
const heartbeatFloor = 60 * time.Second

// Config parameterizes one listing run.
type Config struct {
	// Bucket is the GCS bucket to list.
	Bucket string
	// Workers is the number of ListWorker goroutines to spawn (P in the
	// design doc).
	Workers int
	// Prefix restricts listing to keys with this prefix. Range arithmetic
	// is always computed with the prefix stripped.
	Prefix string
	// SortResults requests a lexicographically sorted slice from Run
	// instead of map iteration order.
	SortResults bool
	// SkipComposites excludes objects under ReservedCompositePrefix.
	SkipComposites bool
	// IncludeDirectories includes keys ending in "/".
	IncludeDirectories bool
	// AllowedStorageClasses restricts results to these storage classes.
	AllowedStorageClasses []string
	// PageCap overrides DefaultPageCap; zero means use the default.
	PageCap int
	// MaxRetries overrides DefaultMaxRetries; zero means use the default.
	MaxRetries int
	// Retry is the backoff policy applied to each list call.
	Retry gcsclient.RetryPolicy
}

func (c Config) pageCap() int {
	if c.PageCap > 0 {
		return c.PageCap
	}
	return DefaultPageCap
}

func (c Config) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return DefaultMaxRetries
}

func (c Config) crashThreshold() time.Duration {
	threshold := 2 * c.Retry.MaxInterval
	if threshold < heartbeatFloor {
		return heartbeatFloor
	}
	return threshold
}

// rangeMsg is carried on the direct-work channel: either a donated range
// or, when shutdown is true, the shutdown sentinel (the Go analogue of the
// Python implementation's (None, None) pair).
type rangeMsg struct {
	start, end string
	shutdown   bool
}

// workerMetadata is published once by a worker as it shuts down.
type workerMetadata struct {
	name     string
	apiCalls int
}

// channels bundles the five coordination channels plus the results,
// metadata and error channels; a reimplementation may coalesce these, per the design notes,
// provided idle/need-work/unidle remain race-free around termination.
type channels struct {
	needWork chan string
	idle     chan string
	unidle   chan string
	heartbeat chan string
	directWork chan rangeMsg
	results  chan map[Result]struct{}
	metadata chan workerMetadata
	errs     chan error
}

func newChannels(workers int) *channels {
	return &channels{
		needWork:   make(chan string, workers),
		idle:       make(chan string, workers),
		unidle:     make(chan string, workers),
		heartbeat:  make(chan string, workers*4),
		directWork: make(chan rangeMsg, workers*4),
		results:    make(chan map[Result]struct{}, workers),
		metadata:   make(chan workerMetadata, workers),
		errs:       make(chan error, workers),
	}
}

// Run spawns Config.Workers goroutines, lets them cooperatively list and
// work-steal across [prefix, prefix-end), and returns the aggregated
// result set. It blocks until every worker has reached an exhausted,
// idle state, or until a worker errors or is detected crashed.
func Run(ctx context.Context, client gcsclient.Client, cfg Config) ([]Result, error) {
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("listing: workers must be >= 1, got %d", cfg.Workers)
	}
	allowed := cfg.AllowedStorageClasses
	if allowed == nil {
		allowed = DefaultAllowedStorageClasses
	}

	ch := newChannels(cfg.Workers)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		w := &Worker{
			name:               fmt.Sprintf("dataflux-list-%d", i),
			client:             client,
			bucket:             cfg.Bucket,
			prefix:             cfg.Prefix,
			skipComposites:     cfg.SkipComposites,
			includeDirectories: cfg.IncludeDirectories,
			allowedClasses:     allowed,
			pageCap:            cfg.pageCap(),
			maxRetries:         cfg.maxRetries(),
			retry:              cfg.Retry,
			channels:           ch,
		}
		if i == 0 {
			w.start = ""
			w.end = ""
			w.seeded = true
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(runCtx)
		}()
		if i != cfg.Workers-1 {
			// Give this worker time to finish its startup registration
			// before the next one races on the same channels.
			time.Sleep(10 * time.Millisecond)
		}
	}

	return supervise(runCtx, cancel, &wg, ch, cfg)
}
