// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package download

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
)

// InstallSignalCleanup registers a SIGINT/SIGTERM handler that deletes
// whatever composite object e currently has in flight before re-raising
// the signal to the default handler, so an interrupted run doesn't leave
// an orphaned composite behind. It is only meaningful for a single,
// non-multiplexed Engine: under goroutine fan-out every shard shares one
// Engine and overwrites its single composite register, and under process
// fan-out each child is a separate process, so neither MultiplexGoroutines
// nor MultiplexProcesses installs one.
//
// The returned func removes the handler; callers should defer it.
func InstallSignalCleanup(e *Engine) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			glog.Errorf("download: received %v, deleting in-flight composite before exit", sig)
			e.cleanupCurrent(context.Background())
			signal.Stop(sigCh)
			p, err := os.FindProcess(os.Getpid())
			if err == nil {
				p.Signal(sig)
			}
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
