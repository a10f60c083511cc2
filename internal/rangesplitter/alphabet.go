// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package rangesplitter implements the key-range splitting algorithm that
// divides an arbitrary lexicographic string interval into N balanced
// sub-intervals. It backs the work-stealing listing controller in
// internal/listing.
package rangesplitter

import "sort"

// alphabet is an ordered set of runes seen so far by a splitter, together
// with a lookup from rune to ordinal position. It grows monotonically as
// SplitRange encounters runes it has not seen before; it never shrinks.
type alphabet struct {
	sorted []rune
	index  map[rune]int
}

func newAlphabet(seed string) (*alphabet, error) {
	if len(seed) == 0 {
		return nil, errEmptyAlphabet
	}
	a := &alphabet{}
	a.grow(seed)
	return a, nil
}

// grow adds every rune in s not already present, then re-sorts and
// re-indexes the alphabet. It is a no-op if s contributes nothing new.
func (a *alphabet) grow(s string) {
	seen := make(map[rune]bool, len(a.sorted))
	for _, r := range a.sorted {
		seen[r] = true
	}
	added := false
	for _, r := range s {
		if !seen[r] {
			seen[r] = true
			added = true
		}
	}
	if !added {
		return
	}
	sorted := make([]rune, 0, len(seen))
	for r := range seen {
		sorted = append(sorted, r)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	a.sorted = sorted
	a.index = make(map[rune]int, len(sorted))
	for i, r := range sorted {
		a.index[r] = i
	}
}

func (a *alphabet) len() int { return len(a.sorted) }

func (a *alphabet) smallest() rune { return a.sorted[0] }

func (a *alphabet) largest() rune { return a.sorted[len(a.sorted)-1] }

// ordinal returns the base-len(alphabet) digit value for r. r must already
// be a member of the alphabet.
func (a *alphabet) ordinal(r rune) int { return a.index[r] }

// runeAt returns the rune at digit index i.
func (a *alphabet) runeAt(i int) rune { return a.sorted[i] }

// charOrDefault returns the rune at position i in s, or def if i is out of
// range. Used to treat short strings as if right-padded for comparison and
// base-conversion purposes.
func charOrDefault(s []rune, i int, def rune) rune {
	if i < 0 || i >= len(s) {
		return def
	}
	return s[i]
}
