// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package download

import (
	"context"
	"testing"

	"go.chromium.org/dataflux/internal/gcsclient"
)

func TestLazyYieldsEveryItemInOrder(t *testing.T) {
	client := gcsclient.NewFake()
	items := make([]Item, 6)
	for i := range items {
		name := string(rune('a' + i))
		client.PutObject("bkt", name, []byte{byte('A' + i)}, "")
		items[i] = Item{Name: name, Size: 1}
	}

	e := newTestEngine(t, client, 2)
	next := e.Lazy(context.Background(), items)

	var got []byte
	for {
		content, ok, err := next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, content...)
	}
	want := "ABCDEF"
	if string(got) != want {
		t.Errorf("Lazy produced %q, want %q", got, want)
	}
}

func TestLazyPropagatesDownloadError(t *testing.T) {
	client := gcsclient.NewFake()
	// Object "missing" was never put, so its download fails.
	e := newTestEngine(t, client, DefaultMaxCompositeSize)
	next := e.Lazy(context.Background(), []Item{{Name: "missing", Size: 1}})

	_, _, err := next()
	if err == nil {
		t.Fatal("next() succeeded for a missing object, want error")
	}
	_, ok, err := next()
	if ok || err != nil {
		t.Errorf("next() after error = (ok=%v, err=%v), want ok=false, err=nil (sequence already terminated)", ok, err)
	}
}
