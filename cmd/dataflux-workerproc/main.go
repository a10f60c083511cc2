// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// dataflux-workerproc is the child process
// internal/download.MultiplexProcesses shells out to in Processes mode: it
// reads a download.WorkerRequest as
// JSON on stdin, downloads its shard with its own storage client, and
// writes a download.WorkerResponse as JSON to stdout. It is the closest
// idiomatic Go analogue of the upstream project's
// multiprocessing.Pool-based worker function.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"go.chromium.org/dataflux/internal/download"
	"go.chromium.org/dataflux/internal/gcsclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		json.NewEncoder(os.Stdout).Encode(download.WorkerResponse{Error: err.Error()})
		os.Exit(1)
	}
}

func run() error {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("dataflux-workerproc: reading request: %w", err)
	}
	var req download.WorkerRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("dataflux-workerproc: decoding request: %w", err)
	}

	ctx := context.Background()
	var opts []option.ClientOption
	if req.Project != "" {
		opts = append(opts, option.WithQuotaProject(req.Project))
	}
	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return fmt.Errorf("dataflux-workerproc: constructing storage client: %w", err)
	}
	client := gcsclient.NewReal(storageClient)

	engineOpts := download.Options{
		MaxCompositeSize: req.MaxCompositeSize,
		Retry:            gcsclient.DefaultRetryPolicy(),
	}
	engine := download.New(client, req.Bucket, engineOpts)

	contents, err := engine.Download(ctx, req.Items)
	if err != nil {
		return fmt.Errorf("dataflux-workerproc: downloading shard of %d items: %w", len(req.Items), err)
	}

	return json.NewEncoder(os.Stdout).Encode(download.WorkerResponse{Contents: contents})
}
