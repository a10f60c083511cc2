// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package download

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/dataflux/internal/gcsclient"
)

func newTestEngine(t *testing.T, client *gcsclient.Fake, maxCompositeSize int64) *Engine {
	t.Helper()
	return New(client, "bkt", Options{
		MaxCompositeSize: maxCompositeSize,
		Retry: gcsclient.RetryPolicy{
			InitialInterval: time.Millisecond,
			Multiplier:      1,
			MaxInterval:     5 * time.Millisecond,
			MaxElapsedTime:  50 * time.Millisecond,
		},
	})
}

func TestDownloadSingleObject(t *testing.T) {
	client := gcsclient.NewFake()
	client.PutObject("bkt", "only", []byte("hello"), "")

	e := newTestEngine(t, client, DefaultMaxCompositeSize)
	got, err := e.Download(context.Background(), []Item{{Name: "only", Size: 5}})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	want := [][]byte{[]byte("hello")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Download mismatch (-want +got):\n%s", diff)
	}
	if names := client.Objects("bkt"); len(names) != 1 {
		t.Errorf("Objects after single download = %v, want only the original object left", names)
	}
}

func TestDownloadComposesBatchAndCleansUpComposite(t *testing.T) {
	client := gcsclient.NewFake()
	client.PutObject("bkt", "a", []byte("aaa"), "")
	client.PutObject("bkt", "b", []byte("bb"), "")
	client.PutObject("bkt", "c", []byte("c"), "")

	e := newTestEngine(t, client, 1<<20)
	got, err := e.Download(context.Background(), []Item{
		{Name: "a", Size: 3},
		{Name: "b", Size: 2},
		{Name: "c", Size: 1},
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	want := [][]byte{[]byte("aaa"), []byte("bb"), []byte("c")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Download mismatch (-want +got):\n%s", diff)
	}

	for _, name := range client.Objects("bkt") {
		if strings.HasPrefix(name, ReservedPrefix) {
			t.Errorf("composite object %q leaked after Download", name)
		}
	}
}

func TestDownloadOversizedObjectSkipsCompose(t *testing.T) {
	client := gcsclient.NewFake()
	client.PutObject("bkt", "big", []byte("0123456789"), "")
	client.PutObject("bkt", "small", []byte("x"), "")

	e := newTestEngine(t, client, 5)
	got, err := e.Download(context.Background(), []Item{
		{Name: "big", Size: 10},
		{Name: "small", Size: 1},
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	want := [][]byte{[]byte("0123456789"), []byte("x")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Download mismatch (-want +got):\n%s", diff)
	}
}

func TestDownloadRespectsMaxComposeMembers(t *testing.T) {
	client := gcsclient.NewFake()
	items := make([]Item, MaxComposeMembers+1)
	for i := range items {
		name := string(rune('a' + i))
		client.PutObject("bkt", name, []byte{byte(i)}, "")
		items[i] = Item{Name: name, Size: 1}
	}

	e := newTestEngine(t, client, 1<<20)
	batch, next := e.nextBatch(items, 0)
	if len(batch) != MaxComposeMembers {
		t.Errorf("first batch size = %d, want %d", len(batch), MaxComposeMembers)
	}
	if next != MaxComposeMembers {
		t.Errorf("next index = %d, want %d", next, MaxComposeMembers)
	}
}

func TestDownloadPreservesOrderAcrossBatches(t *testing.T) {
	client := gcsclient.NewFake()
	items := make([]Item, 5)
	for i := range items {
		name := string(rune('a' + i))
		content := []byte{byte('A' + i)}
		client.PutObject("bkt", name, content, "")
		items[i] = Item{Name: name, Size: 1}
	}

	e := newTestEngine(t, client, 2) // admission is inclusive: a 3-object batch, then a 2-object one
	got, err := e.Download(context.Background(), items)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(got) != len(items) {
		t.Fatalf("got %d results, want %d", len(got), len(items))
	}
	for i, b := range got {
		want := byte('A' + i)
		if len(b) != 1 || b[0] != want {
			t.Errorf("result[%d] = %v, want [%c]", i, b, want)
		}
	}
}

func TestDecomposeLogsButReturnsOnMismatch(t *testing.T) {
	batch := []Item{{Name: "a", Size: 3}, {Name: "b", Size: 3}}
	slices := decompose([]byte("abcde"), batch) // only 5 bytes, wanted 6
	if len(slices) != 2 {
		t.Fatalf("decompose returned %d slices, want 2", len(slices))
	}
	if string(slices[0]) != "abc" {
		t.Errorf("slices[0] = %q, want %q", slices[0], "abc")
	}
	if string(slices[1]) != "de" {
		t.Errorf("slices[1] = %q, want %q", slices[1], "de")
	}
}
