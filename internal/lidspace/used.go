package lidspace

// UsedLIDs is the sparse used_lids vector from the design: a mapping from LID to
// whether the LID is reserved. It grows monotonically during a sweep and is
// only ever zeroed wholesale at sweep start, never shrunk.
type UsedLIDs struct {
	used []bool
}

// NewUsedLIDs returns a vector sized to hold LIDs [0, maxUnicast] (index 0 is
// a sentinel and is never marked used by this package).
func NewUsedLIDs(maxUnicast LID) *UsedLIDs {
	return &UsedLIDs{used: make([]bool, int(maxUnicast)+1)}
}

// Len returns the number of slots backing the vector, including the sentinel.
func (u *UsedLIDs) Len() int {
	return len(u.used)
}

// IsUsed reports whether l is marked reserved. A LID past the end of the
// vector counts as free, per the Step B bookkeeping note.
func (u *UsedLIDs) IsUsed(l LID) bool {
	if int(l) >= len(u.used) {
		return false
	}

	return u.used[l]
}

// Mark reserves every LID in [lo, lo+n-1], growing the vector if necessary.
func (u *UsedLIDs) Mark(lo LID, n uint16) {
	u.grow(lo + LID(n) - 1)
	for l := lo; l < lo+LID(n); l++ {
		u.used[l] = true
	}
}

// Clear frees every LID in [lo, lo+n-1] that is within the current vector.
func (u *UsedLIDs) Clear(lo LID, n uint16) {
	hi := lo + LID(n) - 1
	for l := lo; l <= hi; l++ {
		if int(l) < len(u.used) {
			u.used[l] = false
		}
	}
}

// Reset zeroes every slot without changing the vector's length.
func (u *UsedLIDs) Reset() {
	for i := range u.used {
		u.used[i] = false
	}
}

func (u *UsedLIDs) grow(to LID) {
	if int(to) < len(u.used) {
		return
	}

	grown := make([]bool, int(to)+1)
	copy(grown, u.used)
	u.used = grown
}
