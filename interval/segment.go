package interval

import (
	"math"
	"runtime"
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/pkg/errors"
)

// NoSegment is returned for a point that no segment covers.
const NoSegment = -1

// ErrDuplicateSegmentBoundary is returned when two segments in the same
// (group, chromosome) partition share both start and end.
var ErrDuplicateSegmentBoundary = errors.New("duplicate segment boundary")

// Point is a position to be assigned to a segment.  Points are only ever
// matched against segments with the same Group and Chrom.
type Point struct {
	Group string
	Chrom string
	Pos   PosType
}

// Segment is a left-closed, right-open interval [Start, End) belonging to a
// group (e.g. a cluster id).
type Segment struct {
	Group string
	Chrom string
	Start PosType
	End   PosType
}

type partitionKey struct {
	group string
	chrom string
}

// noEnd is below every segment end.
const noEnd = PosType(math.MinInt64)

// segmentPartition holds the segments of one (group, chrom) pair, sorted by
// (start, end).  starts[i], ends[i] belong to the segment with original index
// segIDs[i].
//
// maxEnd[i] is the largest end among segments [0, i), maxEndIdx[i] the
// position of that segment, and secondEnd[i] the second largest end.  They
// are noEnd (and -1) when fewer segments precede i.
type segmentPartition struct {
	starts    []PosType
	ends      []PosType
	segIDs    []int
	maxEnd    []PosType
	maxEndIdx []int
	secondEnd []PosType
}

// lookup returns the original index of the segment containing pos, or
// NoSegment if no segment or more than one segment contains it.
//
// With startIdx the last segment whose start is <= pos, the segments
// containing pos are those in [0, startIdx] whose end is > pos.  For a tiling
// only startIdx can qualify; earlier segments are checked through the prefix
// maxima of their ends.
func (p *segmentPartition) lookup(pos PosType) int {
	startIdx := UpperBoundPosTypes(p.starts, pos) - 1
	if startIdx < 0 {
		return NoSegment
	}
	found, n := NoSegment, 0
	if p.ends[startIdx] > pos {
		found = p.segIDs[startIdx]
		n++
	}
	if p.maxEnd[startIdx] > pos {
		found = p.segIDs[p.maxEndIdx[startIdx]]
		n++
		if p.secondEnd[startIdx] > pos {
			n++
		}
	}
	if n != 1 {
		return NoSegment
	}
	return found
}

// SegmentIndex supports repeated point-in-segment queries.  It is immutable
// once built, and safe for concurrent use.
type SegmentIndex struct {
	partitions map[partitionKey]*segmentPartition
}

// NewSegmentIndex builds a SegmentIndex over segs.  It returns an error
// wrapping ErrDuplicateSegmentBoundary if any partition contains two segments
// with identical (start, end).
func NewSegmentIndex(segs []Segment) (*SegmentIndex, error) {
	return newSegmentIndex(segs, 0)
}

func newSegmentIndex(segs []Segment, parallelism int) (*SegmentIndex, error) {
	members := make(map[partitionKey][]int)
	var keys []partitionKey
	for i, s := range segs {
		k := partitionKey{group: s.Group, chrom: s.Chrom}
		if _, ok := members[k]; !ok {
			keys = append(keys, k)
		}
		members[k] = append(members[k], i)
	}
	// Iterate in a fixed order so that the reported error doesn't depend on map
	// iteration order when parallelism is 1.
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].group != keys[j].group {
			return keys[i].group < keys[j].group
		}
		return keys[i].chrom < keys[j].chrom
	})

	idx := &SegmentIndex{partitions: make(map[partitionKey]*segmentPartition, len(keys))}
	if len(keys) == 0 {
		return idx, nil
	}
	parts := make([]*segmentPartition, len(keys))
	nJob := parallelismOrCPU(parallelism)
	if nJob > len(keys) {
		nJob = len(keys)
	}
	err := traverse.Each(nJob, func(jobIdx int) error {
		startIdx := (jobIdx * len(keys)) / nJob
		endIdx := ((jobIdx + 1) * len(keys)) / nJob
		for i := startIdx; i < endIdx; i++ {
			p, err := buildPartition(keys[i], segs, members[keys[i]])
			if err != nil {
				return err
			}
			parts[i] = p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		idx.partitions[k] = parts[i]
	}
	return idx, nil
}

func buildPartition(key partitionKey, segs []Segment, ids []int) (*segmentPartition, error) {
	sorted := append([]int(nil), ids...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := segs[sorted[i]], segs[sorted[j]]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End < b.End
	})
	n := len(sorted)
	p := &segmentPartition{
		starts:    make([]PosType, n),
		ends:      make([]PosType, n),
		segIDs:    sorted,
		maxEnd:    make([]PosType, n),
		maxEndIdx: make([]int, n),
		secondEnd: make([]PosType, n),
	}
	nOverlap := 0
	maxEnd, maxEndIdx, secondEnd := noEnd, -1, noEnd
	for i, id := range sorted {
		s := segs[id]
		p.starts[i] = s.Start
		p.ends[i] = s.End
		p.maxEnd[i], p.maxEndIdx[i], p.secondEnd[i] = maxEnd, maxEndIdx, secondEnd
		if i > 0 && p.starts[i] == p.starts[i-1] && p.ends[i] == p.ends[i-1] {
			return nil, errors.Wrapf(ErrDuplicateSegmentBoundary,
				"group %q chromosome %q: segment [%d, %d) appears more than once",
				key.group, key.chrom, s.Start, s.End)
		}
		if s.Start < maxEnd {
			nOverlap++
		}
		switch {
		case s.End > maxEnd:
			secondEnd = maxEnd
			maxEnd, maxEndIdx = s.End, i
		case s.End > secondEnd:
			secondEnd = s.End
		}
	}
	if nOverlap > 0 {
		log.Printf("interval: group %q chromosome %q has %d overlapping segment(s); positions covered by more than one segment will be unassigned",
			key.group, key.chrom, nOverlap)
	}
	return p, nil
}

// Lookup returns the index (into the slice passed to NewSegmentIndex) of the
// segment covering pos in the given group and chromosome, or NoSegment.
func (idx *SegmentIndex) Lookup(group, chrom string, pos PosType) int {
	p, ok := idx.partitions[partitionKey{group: group, chrom: chrom}]
	if !ok {
		return NoSegment
	}
	return p.lookup(pos)
}

// AssignSegments returns, for each point, the index into segs of the segment
// covering it, or NoSegment.  The result has the same length and order as
// points.  A point on the boundary shared by two adjacent segments belongs to
// the right-hand one.
//
// parallelism <= 0 means runtime.NumCPU().
func AssignSegments(points []Point, segs []Segment, parallelism int) ([]int, error) {
	idx, err := newSegmentIndex(segs, parallelism)
	if err != nil {
		return nil, err
	}
	assigned := make([]int, len(points))
	if len(points) == 0 {
		return assigned, nil
	}
	nJob := parallelismOrCPU(parallelism)
	if nJob > len(points) {
		nJob = len(points)
	}
	err = traverse.Each(nJob, func(jobIdx int) error {
		startIdx := (jobIdx * len(points)) / nJob
		endIdx := ((jobIdx + 1) * len(points)) / nJob
		for i := startIdx; i < endIdx; i++ {
			pt := points[i]
			assigned[i] = idx.Lookup(pt.Group, pt.Chrom, pt.Pos)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assigned, nil
}

func parallelismOrCPU(parallelism int) int {
	if parallelism <= 0 {
		return runtime.NumCPU()
	}
	return parallelism
}
