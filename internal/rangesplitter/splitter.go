// Copyright 2019 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package rangesplitter

import (
	"errors"
	"fmt"
	"math/big"
)

// MinSplits is the minimum number of split points SplitRange accepts a
// request for.
const MinSplits = 1

var errEmptyAlphabet = errors.New("rangesplitter: cannot split with an empty alphabet")

// RangeSplitter divides a half-open lexicographic interval [start, end)
// into a requested number of balanced sub-intervals. It is not safe for
// concurrent use; callers that split from multiple goroutines should use
// one splitter per goroutine, as internal/listing's workers do.
type RangeSplitter struct {
	alpha *alphabet
}

// New constructs a RangeSplitter seeded with the given alphabet (e.g.
// "ab"). The alphabet grows on demand as SplitRange sees runes outside it;
// two splitters given different call histories are not interchangeable.
func New(seed string) (*RangeSplitter, error) {
	a, err := newAlphabet(seed)
	if err != nil {
		return nil, err
	}
	return &RangeSplitter{alpha: a}, nil
}

// SplitRange returns up to n split points strictly between start and end,
// lexicographically increasing, dividing [start, end) into n+1
// approximately equal sub-intervals. end == "" means "to the end of the
// namespace". It returns an error only for a malformed request (n < 1);
// a range that cannot be split (e.g. start >= end) yields a nil slice.
func (s *RangeSplitter) SplitRange(start, end string, n int) ([]string, error) {
	if n < MinSplits {
		return nil, fmt.Errorf("rangesplitter: got n=%d, need at least %d", n, MinSplits)
	}
	if end != "" && start >= end {
		return nil, nil
	}
	s.alpha.grow(start + end)
	if s.isEqualWithPadding(start, end) {
		return nil, nil
	}

	startInt, endInt, minLen := s.minimalIntRange(start, end, n)

	return s.generateSplits(startInt, endInt, minLen, n, start, end), nil
}

// isEqualWithPadding reports whether start and end denote the same string
// once both are conceptually right-padded with the alphabet's smallest
// rune out to the longer of the two lengths (e.g. "9" and "90" with a
// decimal alphabet).
func (s *RangeSplitter) isEqualWithPadding(start, end string) bool {
	if end == "" {
		return false
	}
	sr := []rune(start)
	er := []rune(end)
	longest := len(sr)
	if len(er) > longest {
		longest = len(er)
	}
	small := s.alpha.smallest()
	for i := 0; i < longest; i++ {
		if charOrDefault(sr, i, small) != charOrDefault(er, i, small) {
			return false
		}
	}
	return true
}

// minimalIntRange finds the shortest common digit-length L such that
// reading start and end as L-digit base-len(alphabet) numerals (start
// padded on the right with the smallest rune, end padded with the largest
// rune if end == "" else the smallest rune) yields integers differing by
// more than n. That guarantees at least n+1 distinct L-length strings fit
// strictly between them.
func (s *RangeSplitter) minimalIntRange(start, end string, n int) (startInt, endInt *big.Int, minLen int) {
	sr := []rune(start)
	er := []rune(end)

	base := big.NewInt(int64(s.alpha.len()))
	startSmall := s.alpha.smallest()
	endDefault := s.alpha.smallest()
	if end == "" {
		endDefault = s.alpha.largest()
	}

	startInt = big.NewInt(0)
	endInt = big.NewInt(0)
	nBig := big.NewInt(int64(n))

	for i := 0; ; i++ {
		startPos := s.alpha.ordinal(charOrDefault(sr, i, startSmall))
		startInt.Mul(startInt, base)
		startInt.Add(startInt, big.NewInt(int64(startPos)))

		endPos := s.alpha.ordinal(charOrDefault(er, i, endDefault))
		endInt.Mul(endInt, base)
		endInt.Add(endInt, big.NewInt(int64(endPos)))

		diff := new(big.Int).Sub(endInt, startInt)
		if diff.Cmp(nBig) > 0 {
			return startInt, endInt, i + 1
		}
	}
}

// generateSplits computes n candidate split points over [startInt, endInt)
// at digit-width minLen, using exact rational arithmetic for the
// multiplication start + (end-start)*i/(n+1) so that small deltas don't
// suffer integer-division bias, then keeps only those that land strictly
// inside (start, end).
func (s *RangeSplitter) generateSplits(startInt, endInt *big.Int, minLen, n int, start, end string) []string {
	rangeDiff := new(big.Int).Sub(endInt, startInt)
	interval := big.NewInt(int64(n + 1))

	splitPoints := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		// adjustment = rangeDiff * i / (n+1), computed exactly then truncated.
		num := new(big.Int).Mul(rangeDiff, big.NewInt(int64(i)))
		adjustment := new(big.Rat).SetFrac(num, interval)

		splitPointRat := new(big.Rat).SetInt(startInt)
		splitPointRat.Add(splitPointRat, adjustment)
		splitPointInt := truncRat(splitPointRat)

		splitString := s.intToString(splitPointInt, minLen)

		isGreaterThanStart := splitString != "" && splitString > start
		isLessThanEnd := end == "" || (splitString != "" && splitString < end)

		if isGreaterThanStart && isLessThanEnd {
			splitPoints = append(splitPoints, splitString)
		}
	}
	return splitPoints
}

// truncRat truncates a rational toward zero, matching Python's int()
// applied to the original splitter's floating-point split_point.
func truncRat(r *big.Rat) *big.Int {
	return new(big.Int).Quo(r.Num(), r.Denom())
}

// intToString converts split into a string of exactly length runes over
// the splitter's alphabet, MSD-first.
func (s *RangeSplitter) intToString(split *big.Int, length int) string {
	alphaLen := big.NewInt(int64(s.alpha.len()))
	out := make([]rune, length)
	v := new(big.Int).Set(split)
	rem := new(big.Int)
	for i := length - 1; i >= 0; i-- {
		v.QuoRem(v, alphaLen, rem)
		out[i] = s.alpha.runeAt(int(rem.Int64()))
	}
	return string(out)
}
