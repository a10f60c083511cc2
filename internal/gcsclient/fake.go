// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package gcsclient

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Fake is an in-memory Client implementation, grounded on the dataflux
// project's fake_gcs.py test double: a map of buckets, each a map of named
// blobs carrying bytes and a storage class. It is safe for concurrent use,
// which the listing controller's goroutine workers rely on.
type Fake struct {
	mu      sync.Mutex
	buckets map[string]map[string]*fakeBlob
}

type fakeBlob struct {
	content      []byte
	storageClass string
}

// NewFake returns an empty in-memory store.
func NewFake() *Fake {
	return &Fake{buckets: make(map[string]map[string]*fakeBlob)}
}

// PutObject seeds bucket with an object's content and storage class
// (default "STANDARD" if storageClass is empty). Intended for test setup.
func (f *Fake) PutObject(bucket, name string, content []byte, storageClass string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if storageClass == "" {
		storageClass = "STANDARD"
	}
	blobs, ok := f.buckets[bucket]
	if !ok {
		blobs = make(map[string]*fakeBlob)
		f.buckets[bucket] = blobs
	}
	blobs[name] = &fakeBlob{content: append([]byte(nil), content...), storageClass: storageClass}
}

// Objects returns the current set of object names in bucket, for
// assertions about composite-object leakage.
func (f *Fake) Objects(bucket string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.buckets[bucket]))
	for name := range f.buckets[bucket] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *Fake) List(ctx context.Context, bucket, start, end, prefix string, maxResults int) (ObjectIterator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.buckets[bucket]))
	for name := range f.buckets[bucket] {
		names = append(names, name)
	}
	sort.Strings(names)

	startKey := prefix + start
	endKey := ""
	if end != "" {
		endKey = prefix + end
	}

	results := make([]ObjectInfo, 0, len(names))
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if name < startKey {
			continue
		}
		if endKey != "" && name >= endKey {
			continue
		}
		blob := f.buckets[bucket][name]
		results = append(results, ObjectInfo{Name: name, Size: int64(len(blob.content)), StorageClass: blob.storageClass})
		if maxResults > 0 && len(results) == maxResults {
			break
		}
	}
	return &fakeIterator{items: results}, nil
}

type fakeIterator struct {
	items []ObjectInfo
	pos   int
}

func (it *fakeIterator) Next() (ObjectInfo, bool, error) {
	if it.pos >= len(it.items) {
		return ObjectInfo{}, false, nil
	}
	item := it.items[it.pos]
	it.pos++
	return item, true, nil
}

func (f *Fake) Download(ctx context.Context, bucket, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	blob, ok := f.buckets[bucket][name]
	if !ok {
		return nil, fmt.Errorf("gcsclient fake: object %s/%s not found", bucket, name)
	}
	return append([]byte(nil), blob.content...), nil
}

func (f *Fake) Compose(ctx context.Context, bucket, destination string, sources []string) (Handle, error) {
	if len(sources) > MaxComposeMembers {
		return Handle{}, fmt.Errorf("gcsclient fake: %d objects allowed to compose, got %d", MaxComposeMembers, len(sources))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	blobs, ok := f.buckets[bucket]
	if !ok {
		blobs = make(map[string]*fakeBlob)
		f.buckets[bucket] = blobs
	}
	var content []byte
	for _, src := range sources {
		blob, ok := blobs[src]
		if !ok {
			return Handle{}, fmt.Errorf("gcsclient fake: compose source %s/%s not found", bucket, src)
		}
		content = append(content, blob.content...)
	}
	blobs[destination] = &fakeBlob{content: content, storageClass: "STANDARD"}
	return Handle{Bucket: bucket, Name: destination}, nil
}

func (f *Fake) Delete(ctx context.Context, handle Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	blobs, ok := f.buckets[handle.Bucket]
	if !ok {
		return fmt.Errorf("gcsclient fake: bucket %s not found", handle.Bucket)
	}
	if _, ok := blobs[handle.Name]; !ok {
		return fmt.Errorf("gcsclient fake: object %s/%s not found", handle.Bucket, handle.Name)
	}
	delete(blobs, handle.Name)
	return nil
}

var _ Client = (*Fake)(nil)
var _ Client = (*Real)(nil)
