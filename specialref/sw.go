package specialref

import (
	"github.com/biogo/biogo/align"
	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/feat"
	"github.com/grailbio/base/log"
)

// Alignment is the result of a local alignment. Begin/End pairs are
// half-open ranges of the query and of the reference window.
type Alignment struct {
	Score      int
	QueryBegin int
	QueryEnd   int
	RefBegin   int
	RefEnd     int
}

// Aligner computes the best local alignment of a query against a reference
// window.
type Aligner interface {
	Align(query, window []byte) Alignment
}

// Scoring defines the substitution and gap weights of SmithWaterman. All
// values are positive; Mismatch, GapOpen and GapExtend are subtracted. A gap
// of length L costs GapOpen + (L-1)*GapExtend.
type Scoring struct {
	Match     int
	Mismatch  int
	GapOpen   int
	GapExtend int
}

// DefaultScoring is the scoring filter used to verify special reference hits.
// A match is worth 2, so a score of 2*N corresponds to N matching bases.
var DefaultScoring = Scoring{Match: 2, Mismatch: 2, GapOpen: 3, GapExtend: 1}

// swAlphabet is gapped DNA plus N. The gap must be at index 0.
var swAlphabet = func() alphabet.Alphabet {
	a, err := alphabet.NewAlphabet("-acgtn", feat.DNA, '-', 'n', !alphabet.CaseSensitive)
	if err != nil {
		panic(err)
	}
	return a
}()

// swLetter maps a base to a letter of swAlphabet. Anything but ACGT is N.
var swLetter [256]alphabet.Letter

func init() {
	for i := range swLetter {
		swLetter[i] = 'N'
	}
	for _, ch := range []byte("ACGT") {
		swLetter[ch] = alphabet.Letter(ch)
		swLetter[ch+'a'-'A'] = alphabet.Letter(ch)
	}
}

// swSeq adapts a sequence to align.AlphabetSlicer.
type swSeq alphabet.Letters

func newSWSeq(seq []byte) swSeq {
	s := make(swSeq, len(seq))
	for i, b := range seq {
		s[i] = swLetter[b]
	}
	return s
}

func (s swSeq) Alphabet() alphabet.Alphabet { return swAlphabet }
func (s swSeq) Slice() alphabet.Slice       { return alphabet.Letters(s) }

// scorer is implemented by the pairs returned by biogo aligners.
type scorer interface {
	Score() int
}

// SmithWaterman is an Aligner running biogo's affine-gap Smith-Waterman. N
// never matches. Thread safe.
type SmithWaterman struct {
	sw align.SWAffine
}

// NewSmithWaterman creates an aligner with the given weights.
func NewSmithWaterman(scoring Scoring) *SmithWaterman {
	n := swAlphabet.Len()
	matrix := make(align.Linear, n)
	for i := range matrix {
		matrix[i] = make([]int, n)
		for j := range matrix[i] {
			switch {
			case i == 0 && j == 0:
			case i == 0 || j == 0:
				matrix[i][j] = -scoring.GapExtend
			case i == j && swAlphabet.Letter(i) != 'n':
				matrix[i][j] = scoring.Match
			default:
				matrix[i][j] = -scoring.Mismatch
			}
		}
	}
	// biogo charges GapOpen on top of the first gap base.
	return &SmithWaterman{sw: align.SWAffine{Matrix: matrix, GapOpen: scoring.GapExtend - scoring.GapOpen}}
}

// Align implements Aligner.
func (sw *SmithWaterman) Align(query, window []byte) Alignment {
	if len(query) == 0 || len(window) == 0 {
		return Alignment{}
	}
	pairs, err := sw.sw.Align(newSWSeq(window), newSWSeq(query))
	if err != nil {
		log.Error.Printf("specialref: smith-waterman: %v", err)
		return Alignment{}
	}
	var aln Alignment
	for _, p := range pairs {
		if sp, ok := p.(scorer); ok {
			aln.Score += sp.Score()
		}
	}
	if aln.Score <= 0 || len(pairs) == 0 {
		return Alignment{}
	}
	first, last := pairs[0].Features(), pairs[len(pairs)-1].Features()
	aln.RefBegin, aln.RefEnd = first[0].Start(), last[0].End()
	aln.QueryBegin, aln.QueryEnd = first[1].Start(), last[1].End()
	return aln
}
