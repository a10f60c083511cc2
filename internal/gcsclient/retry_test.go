// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package gcsclient

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultRetryPolicyValues(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.InitialInterval != time.Second {
		t.Errorf("InitialInterval = %v, want 1s", p.InitialInterval)
	}
	if p.Multiplier != 1.2 {
		t.Errorf("Multiplier = %v, want 1.2", p.Multiplier)
	}
	if p.MaxInterval != 45*time.Second {
		t.Errorf("MaxInterval = %v, want 45s", p.MaxInterval)
	}
	if p.MaxElapsedTime != 300*time.Second {
		t.Errorf("MaxElapsedTime = %v, want 300s", p.MaxElapsedTime)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	p := RetryPolicy{
		InitialInterval: time.Millisecond,
		Multiplier:      1.0,
		MaxInterval:     time.Millisecond,
		MaxElapsedTime:  time.Second,
	}
	attempts := 0
	var retried int
	err := p.Do(func(error) { retried++ }, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if retried != 2 {
		t.Errorf("onRetry called %d times, want 2", retried)
	}
}

func TestDoGivesUpAfterDeadline(t *testing.T) {
	p := RetryPolicy{
		InitialInterval: time.Millisecond,
		Multiplier:      1.0,
		MaxInterval:     time.Millisecond,
		MaxElapsedTime:  5 * time.Millisecond,
	}
	wantErr := errors.New("always fails")
	err := p.Do(nil, func() error { return wantErr })
	if err == nil {
		t.Fatal("Do succeeded, want error after exhausting MaxElapsedTime")
	}
}
