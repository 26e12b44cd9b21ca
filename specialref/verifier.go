package specialref

import (
	"github.com/grailbio/tangram/biosimd"
)

// DefaultMinSeedLength is the shortest seed hit that is worth verifying.
const DefaultMinSeedLength = 20

// VerifierOpts configures a Verifier.
type VerifierOpts struct {
	// RequiredMatch is the minimum number of matching bases. A verified
	// alignment must score at least 2*RequiredMatch. Must be > 0.
	RequiredMatch int
	// MinSeedLength; zero means DefaultMinSeedLength.
	MinSeedLength int
}

// Verifier decides whether a read sequence comes from a panel entry. Thread
// safe if the index and the aligner are.
type Verifier struct {
	panel   *Panel
	index   SeedIndex
	aligner Aligner
	opts    VerifierOpts
}

// NewVerifier creates a verifier over the panel.
func NewVerifier(panel *Panel, index SeedIndex, aligner Aligner, opts VerifierOpts) *Verifier {
	if opts.MinSeedLength == 0 {
		opts.MinSeedLength = DefaultMinSeedLength
	}
	return &Verifier{panel: panel, index: index, aligner: aligner, opts: opts}
}

// Match tries seq as given, then its reverse complement. It returns the id of
// the matching panel entry, or false if neither orientation matches.
func (v *Verifier) Match(seq []byte) (id int, ok bool) {
	if id, ok = v.verify(seq); ok {
		return id, true
	}
	rc := make([]byte, len(seq))
	biosimd.ReverseCompStrict(rc, seq)
	return v.verify(rc)
}

// Prefix returns the insertion code of entry id.
func (v *Verifier) Prefix(id int) string { return v.panel.Prefix(id) }

func (v *Verifier) verify(query []byte) (int, bool) {
	if len(query) == 0 {
		return -1, false
	}
	hits := v.index.Query(query)
	if len(hits) == 0 || len(hits[0].RefBegins) == 0 {
		return -1, false
	}
	best := hits[0]
	if best.Length < v.opts.MinSeedLength {
		return -1, false
	}
	id, local, err := v.panel.Locate(best.RefBegins[0])
	if err != nil {
		return -1, false
	}
	qlen, entryLen := len(query), v.panel.Len(id)
	forward := local
	if qlen < forward {
		forward = qlen
	}
	backward := entryLen - local - 1
	if qlen < backward {
		backward = qlen
	}
	window := v.panel.Entry(id)[local-forward : local+backward+1]
	if aln := v.aligner.Align(query, window); aln.Score < 2*v.opts.RequiredMatch {
		return -1, false
	}
	return id, true
}
