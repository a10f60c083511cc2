// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package listing

import (
	"context"
	"strings"
	"time"

	"github.com/golang/glog"

	"go.chromium.org/dataflux/internal/gcsclient"
	"go.chromium.org/dataflux/internal/rangesplitter"
)

// workerPollInterval is how long a worker sleeps between non-blocking
// polls of the direct-work channel while idle.
const workerPollInterval = 100 * time.Millisecond

// defaultAlphabetSeed is the splitter alphabet a worker starts with; it
// grows on demand as SplitRange sees characters outside it.
const defaultAlphabetSeed = "ab"

// Worker lists one sub-range of the bucket's key namespace, donating the
// un-scanned tail of its range to an idle peer when one is waiting and a
// full page was just returned.
type Worker struct {
	name   string
	client gcsclient.Client
	bucket string
	prefix string

	skipComposites     bool
	includeDirectories bool
	allowedClasses     []string
	pageCap            int
	maxRetries         int
	retry              gcsclient.RetryPolicy

	channels *channels

	start, end string
	seeded     bool

	results  map[Result]struct{}
	splitter *rangesplitter.RangeSplitter
	apiCalls int
}

// Run executes the worker's full lifecycle: announce readiness, page
// through its range (splitting off work for idle peers as it goes), and
// exit once a shutdown sentinel is received.
func (w *Worker) Run(ctx context.Context) {
	w.results = make(map[Result]struct{})
	splitter, err := rangesplitter.New(defaultAlphabetSeed)
	if err != nil {
		// defaultAlphabetSeed is a non-empty constant; this cannot happen.
		panic(err)
	}
	w.splitter = splitter

	// Announce readiness. The idle/unidle pair leaves the controller's
	// waiting count unchanged and the first heartbeat marks this worker
	// initialized. These are blocking sends on buffered channels, so none
	// of them is dropped.
	w.channels.idle <- w.name
	w.channels.unidle <- w.name
	w.channels.heartbeat <- w.name

	if !w.seeded {
		if !w.waitForWork(ctx) {
			return
		}
	}

	retriesRemaining := w.maxRetries
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		infos, pageFull, err := w.listPage(ctx)
		if err != nil {
			retriesRemaining--
			glog.Errorf("listing: worker %s list error (%d retries left): %v", w.name, retriesRemaining, err)
			if retriesRemaining <= 0 {
				glog.Errorf("listing: worker %s out of retries, exiting", w.name)
				select {
				case w.channels.errs <- err:
				case <-ctx.Done():
				}
				return
			}
			continue
		}
		retriesRemaining = w.maxRetries

		for _, info := range infos {
			if w.passesFilters(info) {
				w.results[Result{Name: info.Name, Size: info.Size}] = struct{}{}
			}
			w.start = strings.TrimPrefix(info.Name, w.prefix)
		}

		if pageFull {
			w.maybeDonate(ctx)
			continue
		}

		if len(w.results) > 0 {
			select {
			case w.channels.results <- w.results:
			case <-ctx.Done():
				return
			}
			w.results = make(map[Result]struct{})
		}
		if !w.waitForWork(ctx) {
			return
		}
		retriesRemaining = w.maxRetries
	}
}

func (w *Worker) passesFilters(info gcsclient.ObjectInfo) bool {
	if w.skipComposites && strings.HasPrefix(info.Name, ReservedCompositePrefix) {
		return false
	}
	if !w.includeDirectories && strings.HasSuffix(info.Name, "/") {
		return false
	}
	if !storageClassAllowed(info.StorageClass, w.allowedClasses) {
		return false
	}
	return true
}

func storageClassAllowed(class string, allowed []string) bool {
	for _, a := range allowed {
		if a == class {
			return true
		}
	}
	return false
}

// listPage requests a single page of up to pageCap keys and reports
// whether the page came back full (meaning the range is not yet
// exhausted).
func (w *Worker) listPage(ctx context.Context) (infos []gcsclient.ObjectInfo, pageFull bool, err error) {
	err = w.retry.Do(func(retryErr error) {
		select {
		case w.channels.heartbeat <- w.name:
		default:
		}
	}, func() error {
		infos = nil
		it, listErr := w.client.List(ctx, w.bucket, w.start, w.end, w.prefix, w.pageCap)
		if listErr != nil {
			return listErr
		}
		for {
			info, ok, nextErr := it.Next()
			if nextErr != nil {
				return nextErr
			}
			if !ok {
				break
			}
			infos = append(infos, info)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	w.apiCalls++
	select {
	case w.channels.heartbeat <- w.name:
	default:
	}
	pageFull = len(infos) == w.pageCap
	return infos, pageFull, nil
}

// maybeDonate checks, without blocking, whether a peer is waiting for
// work; if so it splits the worker's remaining range in half and hands
// the upper half off via the direct-work channel.
func (w *Worker) maybeDonate(ctx context.Context) {
	select {
	case <-w.channels.needWork:
	default:
		return
	}
	points, err := w.splitter.SplitRange(w.start, w.end, 1)
	if err != nil || len(points) == 0 {
		return
	}
	split := points[0]
	select {
	case w.channels.directWork <- rangeMsg{start: split, end: w.end}:
		w.end = split
	case <-ctx.Done():
	}
}

// waitForWork announces idleness and need for work, then polls
// direct-work non-blockingly until either a donated range or the shutdown
// sentinel arrives.
func (w *Worker) waitForWork(ctx context.Context) bool {
	select {
	case w.channels.needWork <- w.name:
	case <-ctx.Done():
		return false
	}
	select {
	case w.channels.idle <- w.name:
	case <-ctx.Done():
		return false
	}

	ticker := time.NewTicker(workerPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case msg := <-w.channels.directWork:
			if msg.shutdown {
				select {
				case w.channels.metadata <- workerMetadata{name: w.name, apiCalls: w.apiCalls}:
				case <-ctx.Done():
				}
				return false
			}
			w.start = msg.start
			w.end = msg.end
			select {
			case w.channels.unidle <- w.name:
			case <-ctx.Done():
			}
			return true
		case <-ticker.C:
			select {
			case w.channels.heartbeat <- w.name:
			default:
			}
		}
	}
}
