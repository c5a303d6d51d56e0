package interval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
)

// RegionOpts defines behavior of the BED-loading functions.
type RegionOpts struct {
	// OneBasedInput interprets the BED interval boundaries as one-based [start,
	// end] instead of the usual zero-based [start, end).
	OneBasedInput bool
}

// Entry represents a single interval, with 0-based coordinates.
type Entry struct {
	RefName string
	Start0  PosType
	End     PosType
}

// RegionSet is an interval-union per chromosome.  For each chromosome name,
// the (0-based) start position of interval #k is in element [2k] of the
// endpoint slice and the end position is in element [2k+1]; intervals are
// disjoint, non-touching and stored in increasing order.
//
// The zero value is an empty set.  A RegionSet is immutable once built.
type RegionSet struct {
	nameMap map[string][]PosType
}

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

func isBEDHeader(line []byte) bool {
	s := gunsafe.BytesToString(line)
	return strings.HasPrefix(s, "#") || strings.HasPrefix(s, "track") || strings.HasPrefix(s, "browser")
}

// NewRegionSet loads the intervals from an interval-BED, merging
// touching/overlapping intervals and eliminating empty ones in the process.
// Input need not be sorted.
func NewRegionSet(reader io.Reader, opts RegionOpts) (RegionSet, error) {
	var startSubtract int64
	if opts.OneBasedInput {
		startSubtract++
	}
	var (
		tokens  [3][]byte
		entries []Entry
		lineIdx int
	)
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		if isBEDHeader(curLine) {
			continue
		}
		nToken := getTokens(tokens[:], curLine)
		if nToken != 3 {
			if nToken == 0 {
				continue
			}
			return RegionSet{}, fmt.Errorf("interval.NewRegionSet: line %d has fewer tokens than expected", lineIdx)
		}
		parsedStart, err := strconv.ParseInt(gunsafe.BytesToString(tokens[1]), 10, 64)
		if err != nil {
			return RegionSet{}, fmt.Errorf("interval.NewRegionSet: line %d: %v", lineIdx, err)
		}
		parsedStart -= startSubtract
		if parsedStart < 0 {
			return RegionSet{}, fmt.Errorf("interval.NewRegionSet: negative start coordinate %s on line %d", tokens[1], lineIdx)
		}
		parsedEnd, err := strconv.ParseInt(gunsafe.BytesToString(tokens[2]), 10, 64)
		if err != nil {
			return RegionSet{}, fmt.Errorf("interval.NewRegionSet: line %d: %v", lineIdx, err)
		}
		if parsedEnd < parsedStart || parsedEnd >= PosTypeMax {
			return RegionSet{}, fmt.Errorf("interval.NewRegionSet: invalid coordinate pair on line %d", lineIdx)
		}
		// tokens[0] refers to scanner-owned bytes, so it must be copied.
		entries = append(entries, Entry{
			RefName: string(tokens[0]),
			Start0:  PosType(parsedStart),
			End:     PosType(parsedEnd),
		})
	}
	if err := scanner.Err(); err != nil {
		return RegionSet{}, err
	}
	set := NewRegionSetFromEntries(entries)
	log.Printf("BED loaded, %d base(s) covered.", set.NumBases())
	return set, nil
}

// NewRegionSetFromPath is a wrapper for NewRegionSet that takes a path instead
// of an io.Reader.  Compressed files are decompressed transparently.
func NewRegionSetFromPath(ctx context.Context, path string, opts RegionOpts) (set RegionSet, err error) {
	infile, err := file.Open(ctx, path)
	if err != nil {
		return RegionSet{}, errors.E(err, "open", path)
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader, _ := compress.NewReader(infile.Reader(ctx))
	defer func() {
		if cerr := reader.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if set, err = NewRegionSet(reader, opts); err != nil {
		err = errors.E(err, path)
	}
	return
}

// NewRegionSetFromEntries builds a RegionSet from an arbitrary collection of
// entries.  Empty entries are ignored.
func NewRegionSetFromEntries(entries []Entry) RegionSet {
	byName := make(map[string][]Entry)
	for _, e := range entries {
		if e.End <= e.Start0 {
			continue
		}
		byName[e.RefName] = append(byName[e.RefName], e)
	}
	set := RegionSet{nameMap: make(map[string][]PosType, len(byName))}
	for name, chrEntries := range byName {
		sort.Slice(chrEntries, func(i, j int) bool {
			return chrEntries[i].Start0 < chrEntries[j].Start0
		})
		endpoints := make([]PosType, 0, 2*len(chrEntries))
		prevStart := chrEntries[0].Start0
		prevEnd := chrEntries[0].End
		for _, e := range chrEntries[1:] {
			if e.Start0 > prevEnd {
				endpoints = append(endpoints, prevStart, prevEnd)
				prevStart = e.Start0
				prevEnd = e.End
				continue
			}
			// Intervals overlap or touch, merge them.
			if e.End > prevEnd {
				prevEnd = e.End
			}
		}
		set.nameMap[name] = append(endpoints, prevStart, prevEnd)
	}
	return set
}

// Empty returns true if the set contains no positions.
func (s RegionSet) Empty() bool {
	return len(s.nameMap) == 0
}

// NumBases returns the number of positions covered by the set.
func (s RegionSet) NumBases() int64 {
	var n int64
	for _, endpoints := range s.nameMap {
		for i := 0; i < len(endpoints); i += 2 {
			n += int64(endpoints[i+1] - endpoints[i])
		}
	}
	return n
}

// ContainsByName checks whether the (0-based) interval [pos, pos+1) is
// contained within the set, where chromosome is specified by name.
func (s RegionSet) ContainsByName(chrName string, pos PosType) bool {
	endpoints, ok := s.nameMap[chrName]
	if !ok {
		return false
	}
	return NewEndpointIndex(pos, endpoints).Contained()
}

// ParseRegionString parses a region string of one of the forms
//   [contig ID]:[1-based first pos]-[last pos]
//   [contig ID]:[1-based pos]
//   [contig ID]
// returning a contig ID and 0-based interval boundaries.  The interval
// [0, PosTypeMax - 1] is returned if there is no positional restriction.
func ParseRegionString(region string) (result Entry, err error) {
	if len(region) == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty region string")
		return
	}
	colonPos := strings.LastIndexByte(region, ':')
	if colonPos == -1 {
		result.RefName = region
		result.Start0 = 0
		result.End = PosTypeMax - 1
		return
	}
	if colonPos == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty contig ID")
		return
	}
	result.RefName = region[0:colonPos]
	rangeStr := region[colonPos+1:]
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		var pos1 int64
		if pos1, err = strconv.ParseInt(rangeStr, 10, 64); err != nil {
			return
		}
		if pos1 <= 0 {
			err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", rangeStr)
			return
		}
		result.Start0 = PosType(pos1 - 1)
		result.End = PosType(pos1)
		return
	}
	start1Str := rangeStr[:dashPos]
	endStr := rangeStr[dashPos+1:]
	var start1, end int64
	if start1, err = strconv.ParseInt(start1Str, 10, 64); err != nil {
		return
	}
	if start1 <= 0 {
		err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", start1Str)
		return
	}
	if end, err = strconv.ParseInt(endStr, 10, 64); err != nil {
		return
	}
	if end < start1 || end >= PosTypeMax {
		err = fmt.Errorf("interval.ParseRegionString: invalid range string %v", rangeStr)
		return
	}
	result.Start0 = PosType(start1 - 1)
	result.End = PosType(end)
	return
}

// ParseRegionStrings parses a comma-separated list of region strings into a
// RegionSet.
func ParseRegionStrings(regions string) (RegionSet, error) {
	var entries []Entry
	for _, region := range strings.Split(regions, ",") {
		region = strings.TrimSpace(region)
		if region == "" {
			continue
		}
		e, err := ParseRegionString(region)
		if err != nil {
			return RegionSet{}, err
		}
		entries = append(entries, e)
	}
	return NewRegionSetFromEntries(entries), nil
}
