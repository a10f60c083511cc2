// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package listing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// supervisionInterval is how often the controller polls its coordination
// channels and re-evaluates liveness/termination.
const supervisionInterval = 200 * time.Millisecond

// joinTimeout bounds how long supervise waits for workers to exit cleanly
// after publishing shutdown sentinels before giving up on joining them;
// the context is already cancelled by then so leaked goroutines will see
// it on their next channel op.
const joinTimeout = 5 * time.Second

// supervise runs the controller's main loop: it aggregates results,
// tracks per-worker liveness, detects crashes, and triggers a coordinated
// shutdown once every initialized worker is simultaneously idle.
func supervise(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup, ch *channels, cfg Config) ([]Result, error) {
	results := make(map[Result]struct{})
	initialized := make(map[string]bool)
	lastSeen := make(map[string]time.Time)
	waitingForWork := 0

	ticker := time.NewTicker(supervisionInterval)
	defer ticker.Stop()

	crashThreshold := cfg.crashThreshold()

loop:
	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "listing: cancelled")

		case <-ticker.C:
			// 1. Drain the error channel.
			select {
			case err := <-ch.errs:
				cancel()
				return nil, errors.Wrap(err, "listing: worker reported an error")
			default:
			}

			// 2. Drain results.
			drainResults(ch, results)

			// 3-4. Drain idle/unidle/heartbeat and track liveness.
			for drained := true; drained; {
				select {
				case <-ch.idle:
					waitingForWork++
				default:
					drained = false
				}
			}
			for drained := true; drained; {
				select {
				case <-ch.unidle:
					waitingForWork--
				default:
					drained = false
				}
			}
			now := time.Now()
			for drained := true; drained; {
				select {
				case name := <-ch.heartbeat:
					initialized[name] = true
					lastSeen[name] = now
				default:
					drained = false
				}
			}

			// 5. Crash detection.
			for name := range initialized {
				if now.Sub(lastSeen[name]) > crashThreshold {
					glog.Errorf("listing: worker %s crash detected (no heartbeat for %v)", name, now.Sub(lastSeen[name]))
					cancel()
					return nil, errors.New("listing: worker crash detected; aborting")
				}
			}

			// 6. Termination.
			if len(initialized) == waitingForWork && waitingForWork > 0 {
				glog.V(1).Infof("listing: all %d workers idle, shutting down", len(initialized))
				for i := 0; i < cfg.Workers*2; i++ {
					select {
					case ch.directWork <- rangeMsg{shutdown: true}:
					default:
						// Channel is sized generously; if it's somehow full
						// a worker will drain it and we retry next tick.
					}
				}
				break loop
			}
		}
	}

	drainResults(ch, results)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(joinTimeout):
		glog.Errorf("listing: workers did not exit within %v; cancelling", joinTimeout)
		cancel()
	}

	return finalize(results, cfg.SortResults), nil
}

func drainResults(ch *channels, results map[Result]struct{}) {
	for {
		select {
		case partial := <-ch.results:
			for r := range partial {
				results[r] = struct{}{}
			}
		default:
			return
		}
	}
}

func finalize(results map[Result]struct{}, sorted bool) []Result {
	out := make([]Result, 0, len(results))
	for r := range results {
		out = append(out, r)
	}
	if sorted {
		sort.Slice(out, func(i, j int) bool {
			if out[i].Name != out[j].Name {
				return out[i].Name < out[j].Name
			}
			return out[i].Size < out[j].Size
		})
	}
	return out
}
