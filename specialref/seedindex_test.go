package specialref_test

import (
	"math/rand"
	"testing"

	"github.com/grailbio/tangram/specialref"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSeq(r *rand.Rand, n int) []byte {
	const bases = "ACGT"
	seq := make([]byte, n)
	for i := range seq {
		seq[i] = bases[r.Intn(len(bases))]
	}
	return seq
}

func newRandomPanel(t *testing.T, names ...string) *specialref.Panel {
	r := rand.New(rand.NewSource(1))
	seqs := make([][]byte, len(names))
	for i := range names {
		seqs[i] = randomSeq(r, 300)
	}
	p, err := specialref.NewPanel(names, seqs)
	require.NoError(t, err)
	return p
}

func TestKmerIndexQuery(t *testing.T) {
	p := newRandomPanel(t, "special_L1HS", "special_AluY")
	idx, err := specialref.NewKmerIndex(p, specialref.KmerIndexOpts{})
	require.NoError(t, err)

	query := p.Entry(1)[50:130]
	hits := idx.Query(query)
	require.NotEmpty(t, hits)
	assert.Equal(t, 80, hits[0].Length)
	assert.Equal(t, []int{p.Offset(1) + 50}, hits[0].RefBegins)
	for i := 1; i < len(hits); i++ {
		assert.True(t, hits[i-1].Length > hits[i].Length)
	}

	// A single mismatch splits the exact match in two.
	mutated := append([]byte{}, query...)
	if mutated[40] == 'A' {
		mutated[40] = 'C'
	} else {
		mutated[40] = 'A'
	}
	hits = idx.Query(mutated)
	require.NotEmpty(t, hits)
	assert.Equal(t, 40, hits[0].Length)
	assert.Equal(t, []int{p.Offset(1) + 50}, hits[0].RefBegins)

	assert.Nil(t, idx.Query([]byte("NNNNNNNNNNNNNNNNNNNNNNNNN")))
	assert.Nil(t, idx.Query([]byte("ACGT")))
}

func TestKmerIndexEntryBoundary(t *testing.T) {
	p := newRandomPanel(t, "e0", "e1")
	idx, err := specialref.NewKmerIndex(p, specialref.KmerIndexOpts{KmerLength: 12})
	require.NoError(t, err)
	// The query spans the junction of the two entries in the concatenated
	// sequence. Matches must not extend across it.
	query := p.Seq()[p.Offset(1)-20 : p.Offset(1)+20]
	hits := idx.Query(query)
	require.NotEmpty(t, hits)
	assert.Equal(t, 20, hits[0].Length)
	assert.Equal(t, []int{p.Offset(1) - 20, p.Offset(1)}, hits[0].RefBegins)
}

func TestKmerIndexOpts(t *testing.T) {
	p := newRandomPanel(t, "e0")
	_, err := specialref.NewKmerIndex(p, specialref.KmerIndexOpts{KmerLength: 33})
	assert.Error(t, err)
	_, err = specialref.NewKmerIndex(p, specialref.KmerIndexOpts{KmerLength: 32})
	assert.NoError(t, err)
}
