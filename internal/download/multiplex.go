// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package download

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"golang.org/x/sync/errgroup"
)

// FanOutMode selects how Multiplex parallelizes a download across shards
// of the input, mirroring the upstream project's choice between Python
// threads and a multiprocessing.Pool.
type FanOutMode int

const (
	// Goroutines runs one Engine per shard concurrently in this process.
	Goroutines FanOutMode = iota
	// Processes re-invokes a worker binary per shard and collects its
	// stdout, trading IPC overhead for true OS-level parallelism.
	Processes
)

// ProcessWorker describes how to shell out to a child process for one
// shard of Processes-mode work.
type ProcessWorker struct {
	// Command builds the argv for one child invocation. The child is
	// expected to read a JSON-encoded WorkerRequest on stdin and write a
	// JSON-encoded WorkerResponse to stdout; see cmd/dataflux-workerproc.
	Command func() (name string, args []string)
}

// WorkerRequest is the JSON payload sent to a dataflux-workerproc child on
// stdin.
type WorkerRequest struct {
	Project          string `json:"project"`
	Bucket           string `json:"bucket"`
	Items            []Item `json:"items"`
	MaxCompositeSize int64  `json:"max_composite_size"`
}

// WorkerResponse is the JSON payload a dataflux-workerproc child writes to
// stdout: one byte slice per item (encoding/json carries each as a base64
// string), or an error.
type WorkerResponse struct {
	Contents [][]byte `json:"contents"`
	Error    string   `json:"error"`
}

// shard splits items into up to n contiguous, order-preserving groups.
func shard(items []Item, n int) [][]Item {
	if n < 1 {
		n = 1
	}
	if len(items) == 0 {
		return nil
	}
	size := (len(items) + n - 1) / n
	var shards [][]Item
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		shards = append(shards, items[i:end])
	}
	return shards
}

// MultiplexGoroutines splits items into up to workers shards and runs
// engine.Download on each shard in its own goroutine, reassembling results
// in input order. Every shard shares the one engine and its client;
// gcsclient.Real wraps a *storage.Client, which is safe for concurrent use.
func MultiplexGoroutines(ctx context.Context, engine *Engine, items []Item, workers int) ([][]byte, error) {
	shards := shard(items, workers)
	out := make([][][]byte, len(shards))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range shards {
		i, s := i, s
		g.Go(func() error {
			slices, err := engine.Download(gctx, s)
			if err != nil {
				return err
			}
			out[i] = slices
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var flat [][]byte
	for _, s := range out {
		flat = append(flat, s...)
	}
	return flat, nil
}

// MultiplexProcesses downloads items by sharding them across worker
// child processes, each built and launched via worker.Command, feeding
// it a WorkerRequest on stdin and reading a WorkerResponse from stdout.
// This is the Go analogue of the upstream project's
// multiprocessing.Pool-based download fan-out: each child gets its own
// storage client, fully isolated from its siblings, and installs no
// composite-cleanup signal handler.
func MultiplexProcesses(ctx context.Context, project, bucket string, items []Item, workers int, opts Options, worker ProcessWorker) ([][]byte, error) {
	shards := shard(items, workers)
	out := make([][][]byte, len(shards))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range shards {
		i, s := i, s
		g.Go(func() error {
			req := WorkerRequest{
				Project:          project,
				Bucket:           bucket,
				Items:            s,
				MaxCompositeSize: opts.MaxCompositeSize,
			}
			payload, err := json.Marshal(req)
			if err != nil {
				return fmt.Errorf("download: encoding worker request: %w", err)
			}

			name, args := worker.Command()
			cmd := exec.CommandContext(gctx, name, args...)
			cmd.Stdin = bytes.NewReader(payload)
			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			if err := cmd.Run(); err != nil {
				return fmt.Errorf("download: worker process failed: %w (stderr: %s)", err, stderr.String())
			}

			var resp WorkerResponse
			if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
				return fmt.Errorf("download: decoding worker response: %w", err)
			}
			if resp.Error != "" {
				return fmt.Errorf("download: worker process: %s", resp.Error)
			}
			out[i] = resp.Contents
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var flat [][]byte
	for _, s := range out {
		flat = append(flat, s...)
	}
	return flat, nil
}
