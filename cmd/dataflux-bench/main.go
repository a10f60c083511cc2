// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"

	"go.chromium.org/dataflux"
)

// USAGE is printed by flags on --help.
const USAGE = `
dataflux-bench exercises the listing and download engines end to end
against a real bucket and reports their wall-clock time, mirroring the
upstream project's dataflux_client_bench.py.

Example:
  dataflux-bench -project=test-project -bucket=test-bucket \
    -bucket-file-count=5 -bucket-file-size=172635220 -num-workers=5
`

func main() {
	flag.Usage = func() {
		fmt.Printf("%v\n", USAGE)
		flag.PrintDefaults()
		os.Exit(2)
	}

	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "0")

	project := flag.String("project", "", "GCS project to bill listing and download requests to.")
	bucket := flag.String("bucket", "", "bucket to list and download.")
	prefix := flag.String("prefix", "", "restrict listing to this key prefix.")
	numWorkers := flag.Int("num-workers", 10, "number of concurrent listing workers.")
	downloadThreads := flag.Int("download-threads", 0, "if > 0, fan the download out across this many goroutines instead of running single-threaded.")
	maxCompositeBytes := flag.Int64("max-composite-bytes", 100_000_000, "upper bound on one compose batch's cumulative size, in bytes.")
	expectFileCount := flag.Int("bucket-file-count", 0, "if > 0, assert the listed object count equals this.")
	expectByteCount := flag.Int64("bucket-file-size", 0, "if > 0, assert the total downloaded byte count equals this.")

	flag.Parse()

	if *project == "" || *bucket == "" {
		fmt.Fprintf(os.Stderr, "Error: -project and -bucket are required.\n")
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()

	listStart := time.Now()
	glog.V(1).Infof("listing operation started at %v", listStart)
	objects, err := dataflux.ListBucket(ctx, *project, *bucket, *numWorkers, dataflux.WithPrefix(*prefix))
	if err != nil {
		glog.Exitf("listing %s/%s: %v", *bucket, *prefix, err)
	}
	listElapsed := time.Since(listStart)
	if *expectFileCount > 0 && len(objects) != *expectFileCount {
		glog.Exitf("expected %d files, but got %d", *expectFileCount, len(objects))
	}
	fmt.Printf("%d objects listed in %v\n", len(objects), listElapsed)

	downloadOpts := []dataflux.DownloadOption{dataflux.WithMaxCompositeSize(*maxCompositeBytes)}
	if *downloadThreads > 0 {
		downloadOpts = append(downloadOpts, dataflux.WithThreadingMode(dataflux.Threads(*downloadThreads)))
	}

	downloadStart := time.Now()
	glog.V(1).Infof("download operation started at %v", downloadStart)
	contents, err := dataflux.Download(ctx, *project, *bucket, objects, downloadOpts...)
	if err != nil {
		glog.Exitf("downloading from %s: %v", *bucket, err)
	}
	downloadElapsed := time.Since(downloadStart)

	var totalSize int64
	for _, c := range contents {
		totalSize += int64(len(c))
	}
	if *expectByteCount > 0 && totalSize != *expectByteCount {
		glog.Exitf("expected %d bytes but got %d bytes", *expectByteCount, totalSize)
	}
	fmt.Printf("%d bytes across %d objects downloaded in %v\n", totalSize, len(objects), downloadElapsed)
}
