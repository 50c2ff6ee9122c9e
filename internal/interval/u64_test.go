package interval

import (
	"reflect"
	"testing"
)

func TestMergeJoinsAdjacent(t *testing.T) {
	l := RangeList{{First: 0, Count: 10}, {First: 20, Count: 10}}
	Merge(&l, Span{Start: 10, End: 20}, true)
	want := RangeList{{First: 0, Count: 30}}
	if !reflect.DeepEqual(l, want) {
		t.Fatalf("got %+v, want %+v", l, want)
	}
}

func TestMergeDisjoint(t *testing.T) {
	l := RangeList{{First: 0, Count: 10}}
	Merge(&l, Span{Start: 20, End: 30}, true)
	want := RangeList{{First: 0, Count: 10}, {First: 20, Count: 10}}
	if !reflect.DeepEqual(l, want) {
		t.Fatalf("got %+v, want %+v", l, want)
	}
	if !Disjoint(l) {
		t.Fatalf("expected disjoint ranges")
	}
}

func TestRemoveSplits(t *testing.T) {
	l := RangeList{{First: 0, Count: 30}}
	Remove(&l, Span{Start: 10, End: 20})
	want := RangeList{{First: 0, Count: 10}, {First: 20, Count: 10}}
	if !reflect.DeepEqual(l, want) {
		t.Fatalf("got %+v, want %+v", l, want)
	}
}

func TestOverlaps(t *testing.T) {
	l := RangeList{{First: 0, Count: 10}}
	if !Overlaps(l, Span{Start: 5, End: 15}) {
		t.Fatalf("expected overlap")
	}
	if Overlaps(l, Span{Start: 10, End: 15}) {
		t.Fatalf("expected no overlap at touching boundary")
	}
}
