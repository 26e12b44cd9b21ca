package matepair

import (
	"github.com/grailbio/hts/sam"
)

// maxCigarOps is the largest number of CIGAR operations of a record that is
// considered cleanly aligned.
const maxCigarOps = 5

// Alignment is a record annotated with the result of the special reference
// search. The annotation is set once, before the Alignment is handed to a
// Buffer.
type Alignment struct {
	R *sam.Record
	// HitInsertion is true if R's sequence matched the special reference.
	HitInsertion bool
	// InsPrefix is the two-letter code of the matching special reference
	// entry, or "" if !HitInsertion.
	InsPrefix string
}

// NewAlignment wraps r without annotation.
func NewAlignment(r *sam.Record) *Alignment {
	return &Alignment{R: r}
}

// SetInsertion records a match against the special reference entry with the
// given code.
func (a *Alignment) SetInsertion(prefix string) {
	a.HitInsertion = true
	a.InsPrefix = prefix
}

// IsProblematic reports whether r should be searched for in the special
// reference: r is unmapped, its mate is on another reference, its alignment
// is fragmented, or it is clipped too much.
func IsProblematic(r *sam.Record, softClipRate float64) bool {
	if r.Flags&sam.Unmapped != 0 {
		return true
	}
	if r.Ref.ID() != r.MateRef.ID() {
		return true
	}
	if len(r.Cigar) > maxCigarOps {
		return true
	}
	return ClipUnmapped(r, softClipRate)
}

func isMapped(r *sam.Record) bool {
	return r.Flags&sam.Unmapped == 0
}
