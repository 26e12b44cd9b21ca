package specialref

import (
	"fmt"
	"sort"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/log"
)

// SeedHit is a candidate match for a query. RefBegins lists positions in
// Panel.Seq() where a stretch of Length bases shared with the query starts.
// All the positions in one SeedHit share the same Length.
type SeedHit struct {
	RefBegins []int
	Length    int
}

// SeedIndex proposes panel positions for a query sequence.
type SeedIndex interface {
	// Query returns the candidate matches for seq, sorted by descending
	// Length. It returns nil if seq shares no seed with the panel.
	Query(seq []byte) []SeedHit
}

const (
	// DefaultKmerLength is the default seed length of KmerIndex.
	DefaultKmerLength = 16
	// DefaultMaxKmerOccurrences is the default cap on the number of panel
	// positions of one kmer. More repetitive kmers are ignored during queries.
	DefaultMaxKmerOccurrences = 256

	nKmerIndexShard = 64 // # of shards in the hash table.
	invalidBaseBits = uint8(255)
)

var asciiToBaseBits [256]uint8

func init() {
	for i := range asciiToBaseBits {
		asciiToBaseBits[i] = invalidBaseBits
	}
	for i, ch := range []byte("ACGT") {
		asciiToBaseBits[ch] = uint8(i)
		asciiToBaseBits[ch+'a'-'A'] = uint8(i)
	}
}

// KmerIndexOpts configures NewKmerIndex.
type KmerIndexOpts struct {
	// KmerLength is the seed length, in [1,32]. Zero means DefaultKmerLength.
	KmerLength int
	// MaxKmerOccurrences; zero means DefaultMaxKmerOccurrences.
	MaxKmerOccurrences int
}

// KmerIndex is a SeedIndex that maps every kmer of the panel to its
// positions. Kmers spanning two entries are not indexed. A query hit is
// extended base by base to the maximal exact match around it, and the length
// of that match is the hit's Length. Thread safe after construction.
type KmerIndex struct {
	panel  *Panel
	opts   KmerIndexOpts
	mask   uint64
	shards [nKmerIndexShard]map[uint64][]int32
}

func hashKmer(k uint64) uint64 {
	return farm.Hash64WithSeed(nil, k)
}

// kmerScanner yields the 2-bit encoded kmers of a sequence. Kmers containing
// a non-ACGT base are skipped.
type kmerScanner struct {
	k     int
	mask  uint64
	seq   []byte
	next  int // index of the next base to consume
	valid int // # of consecutive ACGT bases ending at next-1, capped at k
	cur   uint64
}

func newKmerScanner(k int, mask uint64, seq []byte) *kmerScanner {
	return &kmerScanner{k: k, mask: mask, seq: seq}
}

// Scan advances to the next valid kmer. Pos and Kmer return it.
func (s *kmerScanner) Scan() bool {
	for s.next < len(s.seq) {
		bits := asciiToBaseBits[s.seq[s.next]]
		s.next++
		if bits == invalidBaseBits {
			s.valid = 0
			s.cur = 0
			continue
		}
		s.cur = ((s.cur << 2) | uint64(bits)) & s.mask
		if s.valid < s.k {
			s.valid++
		}
		if s.valid == s.k {
			return true
		}
	}
	return false
}

// Pos is the start position of the current kmer.
func (s *kmerScanner) Pos() int { return s.next - s.k }

// Kmer is the 2-bit encoding of the current kmer.
func (s *kmerScanner) Kmer() uint64 { return s.cur }

// NewKmerIndex indexes every entry of the panel.
func NewKmerIndex(panel *Panel, opts KmerIndexOpts) (*KmerIndex, error) {
	if opts.KmerLength == 0 {
		opts.KmerLength = DefaultKmerLength
	}
	if opts.MaxKmerOccurrences == 0 {
		opts.MaxKmerOccurrences = DefaultMaxKmerOccurrences
	}
	if opts.KmerLength < 1 || opts.KmerLength > 32 {
		return nil, fmt.Errorf("specialref.NewKmerIndex: kmer length %d not in [1,32]", opts.KmerLength)
	}
	idx := &KmerIndex{panel: panel, opts: opts}
	if opts.KmerLength == 32 {
		idx.mask = ^uint64(0)
	} else {
		idx.mask = ^(^uint64(0) << uint(2*opts.KmerLength))
	}
	for i := range idx.shards {
		idx.shards[i] = map[uint64][]int32{}
	}
	nKmers := 0
	for id := 0; id < panel.NumEntries(); id++ {
		offset := panel.Offset(id)
		s := newKmerScanner(opts.KmerLength, idx.mask, panel.Entry(id))
		for s.Scan() {
			shard := idx.shards[hashKmer(s.Kmer())%nKmerIndexShard]
			shard[s.Kmer()] = append(shard[s.Kmer()], int32(offset+s.Pos()))
			nKmers++
		}
	}
	log.Debug.Printf("specialref: indexed %d %d-mers of %d entries", nKmers, opts.KmerLength, panel.NumEntries())
	return idx, nil
}

func (idx *KmerIndex) lookup(kmer uint64) []int32 {
	return idx.shards[hashKmer(kmer)%nKmerIndexShard][kmer]
}

func baseEqual(a, b byte) bool {
	return a == b && asciiToBaseBits[a] != invalidBaseBits
}

// Query implements SeedIndex.
func (idx *KmerIndex) Query(seq []byte) []SeedHit {
	k := idx.opts.KmerLength
	ref := idx.panel.Seq()
	// diagonal (refpos-querypos) -> query end of the last match extended on it.
	covered := map[int]int{}
	byLength := map[int]map[int]bool{}
	s := newKmerScanner(k, idx.mask, seq)
	for s.Scan() {
		positions := idx.lookup(s.Kmer())
		if len(positions) > idx.opts.MaxKmerOccurrences {
			continue
		}
		qi := s.Pos()
		for _, p32 := range positions {
			p := int(p32)
			diag := p - qi
			if end, ok := covered[diag]; ok && qi < end {
				continue
			}
			id, _, err := idx.panel.Locate(p)
			if err != nil {
				continue
			}
			entryBegin, entryEnd := idx.panel.Offset(id), idx.panel.Offset(id)+idx.panel.Len(id)
			qb, rb := qi, p
			for qb > 0 && rb > entryBegin && baseEqual(seq[qb-1], ref[rb-1]) {
				qb--
				rb--
			}
			qe, re := qi+k, p+k
			for qe < len(seq) && re < entryEnd && baseEqual(seq[qe], ref[re]) {
				qe++
				re++
			}
			covered[diag] = qe
			length := qe - qb
			if byLength[length] == nil {
				byLength[length] = map[int]bool{}
			}
			byLength[length][rb] = true
		}
	}
	if len(byLength) == 0 {
		return nil
	}
	hits := make([]SeedHit, 0, len(byLength))
	for length, begins := range byLength {
		hit := SeedHit{Length: length}
		for b := range begins {
			hit.RefBegins = append(hit.RefBegins, b)
		}
		sort.Ints(hit.RefBegins)
		hits = append(hits, hit)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Length > hits[j].Length })
	return hits
}
