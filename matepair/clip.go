package matepair

import (
	"math"

	"github.com/grailbio/hts/sam"
)

// DefaultSoftClipRate is the fraction of a read that may be soft clipped
// before the read is treated as unmapped.
const DefaultSoftClipRate = 0.15

// SoftClipLength returns the total length of the leading and trailing soft
// clips of r. Hard clips outside the soft clips are skipped.
func SoftClipLength(r *sam.Record) int {
	begin, end := 0, len(r.Cigar)
	for begin < end && r.Cigar[begin].Type() == sam.CigarHardClipped {
		begin++
	}
	for end > begin && r.Cigar[end-1].Type() == sam.CigarHardClipped {
		end--
	}
	if begin == end {
		return 0
	}
	clip := 0
	if op := r.Cigar[begin]; op.Type() == sam.CigarSoftClipped {
		clip += op.Len()
	}
	if end-1 > begin {
		if op := r.Cigar[end-1]; op.Type() == sam.CigarSoftClipped {
			clip += op.Len()
		}
	}
	return clip
}

// queryLength is the length of r's sequence, or of the query covered by its
// CIGAR when the sequence is absent.
func queryLength(r *sam.Record) int {
	if r.Seq.Length > 0 {
		return r.Seq.Length
	}
	_, qlen := r.Cigar.Lengths()
	return qlen
}

// ClipUnmapped reports whether more than rate*length bases of r are soft
// clipped. A record without a CIGAR is always clip-unmapped.
func ClipUnmapped(r *sam.Record, rate float64) bool {
	if len(r.Cigar) == 0 {
		return true
	}
	// Fixed point, so that clip == rate*length is not caught by float rounding.
	const scale = 1000000
	limit := int64(math.Round(rate*scale)) * int64(queryLength(r))
	return int64(SoftClipLength(r))*scale > limit
}

func setMapped(r *sam.Record, mapped, mateMapped bool) {
	if mapped {
		r.Flags &^= sam.Unmapped
	} else {
		r.Flags |= sam.Unmapped
	}
	if mateMapped {
		r.Flags &^= sam.MateUnmapped
	} else {
		r.Flags |= sam.MateUnmapped
	}
}

// ReclassifyByClip revises the mapped flags of mates a and b when either is
// clip-unmapped. If only one of them is, that one becomes unmapped and the
// other mapped. If both are, the one with the shorter clip stays mapped; on a
// tie, b does. Mate-unmapped flags are set to match. Only the flags change.
//
// The pair is left alone unless both mates are mapped. It returns true if the
// flags were rewritten.
func ReclassifyByClip(a, b *sam.Record, rate float64) bool {
	if !isMapped(a) || !isMapped(b) {
		return false
	}
	aClipped, bClipped := ClipUnmapped(a, rate), ClipUnmapped(b, rate)
	var aMapped, bMapped bool
	switch {
	case !aClipped && !bClipped:
		return false
	case aClipped && bClipped:
		if SoftClipLength(a) < SoftClipLength(b) {
			aMapped = true
		} else {
			bMapped = true
		}
	case aClipped:
		bMapped = true
	default:
		aMapped = true
	}
	setMapped(a, aMapped, bMapped)
	setMapped(b, bMapped, aMapped)
	return true
}
