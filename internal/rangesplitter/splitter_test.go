// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package rangesplitter

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustSplitter(t *testing.T, seed string) *RangeSplitter {
	t.Helper()
	s, err := New(seed)
	if err != nil {
		t.Fatalf("New(%q) failed: %v", seed, err)
	}
	return s
}

func TestNewEmptyAlphabet(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") succeeded, want error")
	}
}

func TestSplitRangeRejectsTooFewSplits(t *testing.T) {
	s := mustSplitter(t, "ab")
	if _, err := s.SplitRange("a", "b", 0); err == nil {
		t.Fatal("SplitRange with n=0 succeeded, want error")
	}
}

func TestSplitRangeStartAfterEnd(t *testing.T) {
	s := mustSplitter(t, "ab")
	got, err := s.SplitRange("b", "a", 3)
	if err != nil {
		t.Fatalf("SplitRange: %v", err)
	}
	if got != nil {
		t.Errorf("SplitRange(start>=end) = %v, want nil", got)
	}
}

func TestSplitRangeEqualAfterPadding(t *testing.T) {
	s := mustSplitter(t, "0123456789")
	got, err := s.SplitRange("9", "90", 1)
	if err != nil {
		t.Fatalf("SplitRange: %v", err)
	}
	if got != nil {
		t.Errorf("SplitRange(%q, %q, 1) = %v, want nil", "9", "90", got)
	}
}

// TestSplitRangeFullNamespace matches the literal scenario from the
// project's listing design doc: splitting the entire namespace into 25
// even buckets under a decimal alphabet.
func TestSplitRangeFullNamespace(t *testing.T) {
	s := mustSplitter(t, "0123456789")
	got, err := s.SplitRange("", "", 24)
	if err != nil {
		t.Fatalf("SplitRange: %v", err)
	}
	want := []string{
		"03", "07", "11", "15", "19", "23", "27", "31", "35", "39",
		"43", "47", "51", "55", "59", "63", "67", "71", "75", "79",
		"83", "87", "91", "95",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SplitRange(\"\", \"\", 24) mismatch (-want +got):\n%s", diff)
	}
}

// TestSplitRangeWidensDigitLength matches the literal scenario where the
// minimal common length must widen beyond the operands' own lengths to
// find a value strictly between them.
func TestSplitRangeWidensDigitLength(t *testing.T) {
	s := mustSplitter(t, "0123456789")
	got, err := s.SplitRange("199999", "2", 1)
	if err != nil {
		t.Fatalf("SplitRange: %v", err)
	}
	want := []string{"1999995"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SplitRange(\"199999\", \"2\", 1) mismatch (-want +got):\n%s", diff)
	}
}

// TestSplitRangeProperties checks P2/P3 from the design doc: results are
// strictly increasing, strictly within (start, end), at most n long, and
// the alphabet only grows.
func TestSplitRangeProperties(t *testing.T) {
	cases := []struct {
		start, end string
		n          int
	}{
		{"", "", 10},
		{"a", "z", 5},
		{"aaa", "aab", 3},
		{"m", "", 7},
		{"100", "999", 9},
	}
	for _, c := range cases {
		s := mustSplitter(t, "ab")
		before := append([]rune(nil), s.alpha.sorted...)

		got, err := s.SplitRange(c.start, c.end, c.n)
		if err != nil {
			t.Fatalf("SplitRange(%q, %q, %d): %v", c.start, c.end, c.n, err)
		}
		if len(got) > c.n {
			t.Errorf("SplitRange(%q, %q, %d) returned %d points, want <= %d", c.start, c.end, c.n, len(got), c.n)
		}
		for i, p := range got {
			if p <= c.start {
				t.Errorf("split point %q is not strictly greater than start %q", p, c.start)
			}
			if c.end != "" && p >= c.end {
				t.Errorf("split point %q is not strictly less than end %q", p, c.end)
			}
			if i > 0 && got[i-1] >= p {
				t.Errorf("split points not strictly increasing: %v", got)
			}
		}

		after := append([]rune(nil), s.alpha.sorted...)
		beforeSet := make(map[rune]bool, len(before))
		for _, r := range before {
			beforeSet[r] = true
		}
		for r := range beforeSet {
			found := false
			for _, r2 := range after {
				if r2 == r {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("alphabet shrank: %q was present before, missing after", r)
			}
		}
		if !sort.SliceIsSorted(after, func(i, j int) bool { return after[i] < after[j] }) {
			t.Errorf("alphabet not sorted: %v", after)
		}
	}
}

func TestSplitRangeGrowsAlphabetFromOperands(t *testing.T) {
	s := mustSplitter(t, "ab")
	if _, err := s.SplitRange("x", "z", 1); err != nil {
		t.Fatalf("SplitRange: %v", err)
	}
	for _, r := range []rune{'x', 'z'} {
		if _, ok := s.alpha.index[r]; !ok {
			t.Errorf("alphabet did not grow to include %q", r)
		}
	}
}
