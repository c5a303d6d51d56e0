package interval

import (
	"math"
	"sort"
)

// This file includes the coordinate type shared by the segment index and the
// region set, plus the sorted-endpoint search helpers both are built on.
//
// A region set is stored as an interval-union: a []PosType containing a
// sorted sequence of interval endpoints.  For example, given the intervals
//   [5, 15)
//   [7, 17)
//   [20, 25)
// the interval-union would be
//   [5, 17) U [20, 25)
// so the sorted sequence of endpoints would be
//   {5, 17, 20, 25}.
// A position is inside the union iff SearchPosTypes(endpoints, pos+1) is odd.

// PosType is the type used to represent genomic coordinates.
type PosType int64

// PosTypeMax is the maximum value that can be represented by a PosType.
const PosTypeMax = math.MaxInt64

// SearchPosTypes returns the index of x in a[], or the position where x would
// be inserted if x isn't in a (this could be len(a)).  It's exactly the same
// as sort.SearchInts(), except for PosType.
func SearchPosTypes(a []PosType, x PosType) EndpointIndex {
	return EndpointIndex(sort.Search(len(a), func(i int) bool { return a[i] >= x }))
}

// UpperBoundPosTypes returns the number of elements of the sorted slice a[]
// that are <= x.
func UpperBoundPosTypes(a []PosType, x PosType) int {
	return sort.Search(len(a), func(i int) bool { return a[i] > x })
}

// EndpointIndex is intended to represent the result of
// SearchPosTypes(endpoints, pos+1).
// NOTE THE "+1"!  This is necessary to get SearchPosTypes to line up with our
// usual left-closed right-open intervals.
type EndpointIndex uint32

// NewEndpointIndex returns an EndpointIndex initialized to
// SearchPosTypes(endpoints, pos+1).
func NewEndpointIndex(pos PosType, endpoints []PosType) EndpointIndex {
	return SearchPosTypes(endpoints, pos+1)
}

// Contained returns whether we're inside an interval.
func (ei EndpointIndex) Contained() bool {
	return ei&1 != 0
}
