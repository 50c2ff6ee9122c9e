// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package interval provides the disjoint, offset-sorted byte-range lists
// used by the diagnostic allocator's heap sub-allocator.
package interval

import "sort"

// Span is a half-open interval: it includes Start but not End.
type Span struct {
	Start uint64
	End uint64
}

// Range is an interval specified by a beginning and a size.
type Range struct {
	First uint64
	Count uint64
}

func (s Span) Range() Range { return Range{First: s.Start, Count: s.End - s.Start} }
func (r Range) Span() Span { return Span{Start: r.First, End: r.First + r.Count} }

// RangeList is a sorted, disjoint list of byte ranges.
type RangeList []Range

func (l RangeList) Clone() RangeList {
	out := make(RangeList, len(l))
	copy(out, l)
	return out
}

// indexAtOrAfter returns the index of the first range whose Start is >= v.
func (l RangeList) indexAtOrAfter(v uint64) int {
	return sort.Search(len(l), func(i int) bool { return l[i].First >= v })
}

// Merge inserts span into the list, coalescing with any overlapping or
// (if joinAdjacent) directly-adjacent existing ranges.
func Merge(l *RangeList, span Span, joinAdjacent bool) {
	overlaps := func(s Span) bool {
		if joinAdjacent {
			return s.Start <= span.End && span.Start <= s.End
		}
		return s.Start < span.End && span.Start < s.End
	}

	start, end := span.Start, span.End
	lo, hi := len(*l), 0
	for i, r := range *l {
		s := r.Span()
		if overlaps(s) {
			if i < lo {
				lo = i
			}
			hi = i + 1
			if s.Start < start {
				start = s.Start
			}
			if s.End > end {
				end = s.End
			}
		}
	}
	if lo > hi {
		lo, hi = 0, 0
		for i, r := range *l {
			if r.Span().Start >= start {
				lo, hi = i, i
				break
			}
			lo, hi = i+1, i+1
		}
	}

	merged := Span{Start: start, End: end}.Range()
	out := make(RangeList, 0, len(*l)-(hi-lo)+1)
	out = append(out, (*l)[:lo]...)
	out = append(out, merged)
	out = append(out, (*l)[hi:]...)
	*l = out
}

// Remove deletes span from the list, splitting any range that only
// partially overlaps it.
func Remove(l *RangeList, span Span) {
	out := make(RangeList, 0, len(*l)+1)
	for _, r := range *l {
		s := r.Span()
		if s.End <= span.Start || s.Start >= span.End {
			out = append(out, r)
			continue
		}
		if s.Start < span.Start {
			out = append(out, Span{Start: s.Start, End: span.Start}.Range())
		}
		if s.End > span.End {
			out = append(out, Span{Start: span.End, End: s.End}.Range())
		}
	}
	*l = out
}

// Disjoint reports whether every pair of ranges in the list is
// non-overlapping. Used by tests asserting the allocator's core invariant.
func Disjoint(l RangeList) bool {
	sorted := l.Clone()
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].First < sorted[j].First })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].First < sorted[i-1].First+sorted[i-1].Count {
			return false
		}
	}
	return true
}

// Overlaps reports whether span overlaps any range already in the list.
func Overlaps(l RangeList, span Span) bool {
	for _, r := range l {
		s := r.Span()
		if s.Start < span.End && span.Start < s.End {
			return true
		}
	}
	return false
}
