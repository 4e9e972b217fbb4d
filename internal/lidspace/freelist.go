package lidspace

import "errors"

// ErrExhausted is returned by FreeList.Take when no free range can satisfy a
// request for n contiguous, aligned LIDs. Per the design this is a
// design-time impossibility on a correctly sized subnet; callers are
// expected to treat it as fatal.
var ErrExhausted = errors.New("lidspace: no free range large enough for requested LID count")

// FreeList is the ordered, disjoint list of free_ranges from the design:
// ascending, non-overlapping, non-adjacent (adjacent ranges are merged on
// insertion). A slice backs the list; the design notes a singly-linked list
// also suffices and an interval tree is an option at scale, but the
// invariants are what matter, not the representation.
type FreeList struct {
	ranges []Range
}

// Reset clears the list back to empty, as done at the start of every sweep.
func (f *FreeList) Reset() {
	f.ranges = f.ranges[:0]
}

// Ranges returns the current ordered, disjoint ranges. The returned slice
// must not be mutated by the caller.
func (f *FreeList) Ranges() []Range {
	return f.ranges
}

// Append adds a range at the tail, merging with the previous tail range if
// adjacent. Sweep Initializer builds the list by walking LIDs in ascending
// order, so Append is the only insertion path it needs.
func (f *FreeList) Append(r Range) {
	if r.Min > r.Max {
		return
	}

	n := len(f.ranges)
	if n > 0 && f.ranges[n-1].Max+1 == r.Min {
		f.ranges[n-1].Max = r.Max
		return
	}

	f.ranges = append(f.ranges, r)
}

// Take performs the Free-Range Search from the design: walk the ranges in
// order, and within the first range that can hold n aligned LIDs, carve out
// [start, start+n-1]. The source range is shrunk (or removed, if exhausted)
// in place. Returns ErrExhausted if no range fits.
func (f *FreeList) Take(n uint16) (Range, error) {
	m := AlignMask(n)

	for i, r := range f.ranges {
		start := r.Min
		if n != 1 {
			start = AlignUp(r.Min, m)
		}

		end := start + LID(n) - 1
		if start < r.Min || end > r.Max {
			continue
		}

		taken := Range{Min: start, Max: end}

		remainder := Range{Min: end + 1, Max: r.Max}
		if remainder.Min > remainder.Max {
			f.ranges = append(f.ranges[:i], f.ranges[i+1:]...)
		} else {
			f.ranges[i] = remainder
		}

		return taken, nil
	}

	return Range{}, ErrExhausted
}
