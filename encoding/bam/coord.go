package bam

import (
	"fmt"
	"math"

	"github.com/grailbio/hts/sam"
)

const (
	// InfinityPos is 1+ the largest possible alignment position.
	InfinityPos = math.MaxInt32

	// UnmappedRefID is the reference ID of records without a reference. Such
	// records are stored after all the mapped records.
	UnmappedRefID = int32(-1)

	// InvalidRefID is used as a sentinel. We use -2 because -1 is is taken
	// by UnmappedRefID.
	InvalidRefID = int32(-2)
)

// Coord is a <refid, position> pair. The zero value is the first position of
// the first reference.
type Coord struct {
	RefID int32
	Pos   int32
}

// SortableRefID maps a reference ID to a value that sorts in file order.
// Unmapped reads are sorted the last, so they get a large value.
func SortableRefID(id int32) int32 {
	if id == UnmappedRefID {
		return math.MaxInt32
	}
	return id
}

// Compare returns (negative int, 0, positive int) if (c<c1, c=c1, c>c1)
// respectively.
func (c Coord) Compare(c1 Coord) int {
	refid0 := SortableRefID(c.RefID)
	refid1 := SortableRefID(c1.RefID)
	if refid0 != refid1 {
		if refid0 < refid1 {
			return -1
		}
		return 1
	}
	if c.Pos != c1.Pos {
		if c.Pos < c1.Pos {
			return -1
		}
		return 1
	}
	return 0
}

// LT returns true iff c < c1.
func (c Coord) LT(c1 Coord) bool { return c.Compare(c1) < 0 }

// GE returns true iff c >= c1.
func (c Coord) GE(c1 Coord) bool { return c.Compare(c1) >= 0 }

// String returns a debug string.
func (c Coord) String() string { return fmt.Sprintf("%d:%d", c.RefID, c.Pos) }

// NewCoord generates a Coord from the given parameters.
func NewCoord(ref *sam.Reference, pos int) Coord {
	a := Coord{RefID: int32(ref.ID()), Pos: int32(pos)}
	if a.RefID == UnmappedRefID && pos < 0 {
		// Pos for unmapped reads are meaningless.  The convention is to
		// store -1 as Pos, but we don't use negative positions
		// elsewhere, so we just use 0 as a placeholder.
		a.Pos = 0
	}
	return a
}

// CoordFromSAMRecord computes the Coord of the given record.
func CoordFromSAMRecord(rec *sam.Record) Coord {
	return NewCoord(rec.Ref, rec.Pos)
}

// RefIsBefore reports whether reference a is stored before reference b in a
// coordinate-sorted file.
func RefIsBefore(a, b int) bool {
	return SortableRefID(int32(a)) < SortableRefID(int32(b))
}
