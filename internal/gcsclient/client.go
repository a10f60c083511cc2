// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package gcsclient wraps the subset of the Google Cloud Storage API that
// the listing and download engines need behind a small interface, so that
// both can be exercised against an in-memory fake (fake.go) in tests.
package gcsclient

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// ObjectInfo describes one object returned by a List call.
type ObjectInfo struct {
	Name         string
	Size         int64
	StorageClass string
}

// ObjectIterator yields ObjectInfo values in lexicographic key order.
// Next returns (ObjectInfo{}, false, nil) once exhausted.
type ObjectIterator interface {
	Next() (ObjectInfo, bool, error)
}

// Handle identifies a composite object created by Compose.
type Handle struct {
	Bucket string
	Name   string
}

// Client is the GCS surface dataflux depends on. The production
// implementation (Real) wraps *storage.Client; tests use the in-memory
// fake in fake.go.
type Client interface {
	// List returns objects in [prefix+start, prefix+end) in lexicographic
	// order, capped at maxResults.
	List(ctx context.Context, bucket, start, end, prefix string, maxResults int) (ObjectIterator, error)
	// Download returns the full contents of the named object.
	Download(ctx context.Context, bucket, name string) ([]byte, error)
	// Compose concatenates sources (at most 32) into destination and
	// returns a handle to the new composite object.
	Compose(ctx context.Context, bucket, destination string, sources []string) (Handle, error)
	// Delete removes the object identified by handle.
	Delete(ctx context.Context, handle Handle) error
}

// MaxComposeMembers is GCS's server-side limit on the number of source
// objects a single compose call may accept.
const MaxComposeMembers = 32

// Real is the production Client backed by cloud.google.com/go/storage.
type Real struct {
	client *storage.Client
}

// NewReal wraps an already-constructed storage client. Callers typically
// build it once with storage.NewClient(ctx) and share it across workers.
func NewReal(client *storage.Client) *Real {
	return &Real{client: client}
}

func (r *Real) List(ctx context.Context, bucket, start, end, prefix string, maxResults int) (ObjectIterator, error) {
	query := &storage.Query{
		StartOffset: prefix + start,
	}
	if end != "" {
		query.EndOffset = prefix + end
	}
	if prefix != "" {
		query.Prefix = prefix
	}
	it := r.client.Bucket(bucket).Objects(ctx, query)
	return &realIterator{it: it, max: maxResults}, nil
}

type realIterator struct {
	it    *storage.ObjectIterator
	max   int
	count int
}

func (i *realIterator) Next() (ObjectInfo, bool, error) {
	if i.max > 0 && i.count >= i.max {
		return ObjectInfo{}, false, nil
	}
	attrs, err := i.it.Next()
	if err == iterator.Done {
		return ObjectInfo{}, false, nil
	}
	if err != nil {
		return ObjectInfo{}, false, err
	}
	i.count++
	return ObjectInfo{Name: attrs.Name, Size: attrs.Size, StorageClass: attrs.StorageClass}, true, nil
}

func (r *Real) Download(ctx context.Context, bucket, name string) ([]byte, error) {
	reader, err := r.client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcsclient: open reader for %s/%s: %w", bucket, name, err)
	}
	defer reader.Close()
	buf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gcsclient: read %s/%s: %w", bucket, name, err)
	}
	return buf, nil
}

func (r *Real) Compose(ctx context.Context, bucket, destination string, sources []string) (Handle, error) {
	if len(sources) > MaxComposeMembers {
		return Handle{}, fmt.Errorf("gcsclient: %d objects allowed to compose, got %d", MaxComposeMembers, len(sources))
	}
	bkt := r.client.Bucket(bucket)
	srcHandles := make([]*storage.ObjectHandle, len(sources))
	for i, name := range sources {
		srcHandles[i] = bkt.Object(name)
	}
	dst := bkt.Object(destination)
	if _, err := dst.ComposerFrom(srcHandles...).Run(ctx); err != nil {
		return Handle{}, fmt.Errorf("gcsclient: compose into %s/%s: %w", bucket, destination, err)
	}
	return Handle{Bucket: bucket, Name: destination}, nil
}

func (r *Real) Delete(ctx context.Context, handle Handle) error {
	if err := r.client.Bucket(handle.Bucket).Object(handle.Name).Delete(ctx); err != nil {
		return fmt.Errorf("gcsclient: delete %s/%s: %w", handle.Bucket, handle.Name, err)
	}
	return nil
}
