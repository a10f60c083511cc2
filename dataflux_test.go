// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package dataflux

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/dataflux/internal/download"
)

func TestToItemsPreservesOrder(t *testing.T) {
	objects := []Object{{Name: "a", Size: 1}, {Name: "b", Size: 2}}
	got := toItems(objects)
	want := []download.Item{{Name: "a", Size: 1}, {Name: "b", Size: 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("toItems mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveDownloadConfigDefaults(t *testing.T) {
	cfg := resolveDownloadConfig(nil)
	if !cfg.mode.single {
		t.Error("default ThreadingMode is not Single")
	}
	if cfg.opts.Retry.MaxInterval == 0 {
		t.Error("default retry policy was not applied")
	}
}

func TestWithThreadingModeOverridesDefault(t *testing.T) {
	cfg := resolveDownloadConfig([]DownloadOption{WithThreadingMode(Threads(4))})
	if cfg.mode.single {
		t.Error("WithThreadingMode(Threads(4)) left mode as Single")
	}
	if cfg.mode.workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.mode.workers)
	}
}

func TestWithMaxCompositeSizeOption(t *testing.T) {
	cfg := resolveDownloadConfig([]DownloadOption{WithMaxCompositeSize(1234)})
	if cfg.opts.MaxCompositeSize != 1234 {
		t.Errorf("MaxCompositeSize = %d, want 1234", cfg.opts.MaxCompositeSize)
	}
}

func TestProcessesModeWithoutWorkerCommandErrors(t *testing.T) {
	cfg := resolveDownloadConfig([]DownloadOption{WithThreadingMode(Processes(2))})
	if cfg.workerCmd != nil {
		t.Error("workerCmd should be nil when WithWorkerCommand is never called")
	}
	objects := []Object{{Name: "a", Size: 1}}
	if _, err := Download(context.Background(), "", "bkt", objects, WithThreadingMode(Processes(2))); err == nil {
		t.Error("Download in Processes mode without WithWorkerCommand succeeded, want error")
	}
}
