package specialref

import (
	"fmt"
	"sort"

	"github.com/grailbio/tangram/encoding/fasta"
)

// Panel is the special reference: a set of named entries whose sequences are
// stored back to back in one buffer. Entry i occupies
// Seq()[Offset(i):Offset(i)+Len(i)]. A Panel is read-only after construction
// and can be shared by many goroutines.
type Panel struct {
	seq     []byte
	names   []string
	offsets []int // len(offsets) == len(names)+1; offsets[i+1]-offsets[i] is the length of entry i.
}

// NewPanel creates a panel from parallel lists of entry names and sequences.
func NewPanel(names []string, seqs [][]byte) (*Panel, error) {
	if len(names) != len(seqs) {
		return nil, fmt.Errorf("specialref.NewPanel: %d names, %d sequences", len(names), len(seqs))
	}
	p := &Panel{
		names:   make([]string, len(names)),
		offsets: make([]int, len(names)+1),
	}
	seen := make(map[string]bool, len(names))
	total := 0
	for i, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("specialref.NewPanel: duplicate entry %s", name)
		}
		seen[name] = true
		p.names[i] = name
		p.offsets[i] = total
		total += len(seqs[i])
	}
	p.offsets[len(names)] = total
	p.seq = make([]byte, 0, total)
	for _, s := range seqs {
		p.seq = append(p.seq, s...)
	}
	return p, nil
}

// LoadPanel creates a panel from every sequence of fa, in file order.
func LoadPanel(fa fasta.Fasta) (*Panel, error) {
	names := fa.SeqNames()
	seqs := make([][]byte, len(names))
	for i, name := range names {
		n, err := fa.Len(name)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		s, err := fa.Get(name, 0, n)
		if err != nil {
			return nil, err
		}
		seqs[i] = []byte(s)
	}
	return NewPanel(names, seqs)
}

// NumEntries returns the number of entries in the panel.
func (p *Panel) NumEntries() int { return len(p.names) }

// Name returns the name of entry id.
func (p *Panel) Name(id int) string { return p.names[id] }

// Len returns the length of entry id.
func (p *Panel) Len(id int) int { return p.offsets[id+1] - p.offsets[id] }

// Offset returns the position of the first base of entry id in Seq().
func (p *Panel) Offset(id int) int { return p.offsets[id] }

// Seq returns the concatenated sequence of all entries. The caller must not
// modify it.
func (p *Panel) Seq() []byte { return p.seq }

// Entry returns the sequence of entry id. The caller must not modify it.
func (p *Panel) Entry(id int) []byte { return p.seq[p.offsets[id]:p.offsets[id+1]] }

// Locate translates a position in Seq() into an entry id and an offset within
// that entry.
func (p *Panel) Locate(pos int) (id, local int, err error) {
	if pos < 0 || pos >= len(p.seq) {
		return -1, -1, fmt.Errorf("specialref: position %d outside panel [0,%d)", pos, len(p.seq))
	}
	// First entry whose end is past pos. Empty entries are skipped naturally.
	id = sort.Search(len(p.names), func(i int) bool { return p.offsets[i+1] > pos })
	return id, pos - p.offsets[id], nil
}

// Prefix returns the two-character insertion code of entry id. The code is
// taken from characters [8,10) of the entry name, as in names of the form
// "special_L1HS". Shorter names use their first two characters.
func (p *Panel) Prefix(id int) string {
	name := p.names[id]
	switch {
	case len(name) >= 10:
		return name[8:10]
	case len(name) >= 2:
		return name[:2]
	default:
		return name
	}
}
