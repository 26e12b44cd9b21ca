package matepair

import (
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/tangram/encoding/bam"
)

// DefaultCapacity is the default size of one Buffer generation.
const DefaultCapacity = 10000

// Writer receives annotated records. *bam.Writer implements it.
type Writer interface {
	Write(r *sam.Record) error
}

// BufferOpts configures a Buffer.
type BufferOpts struct {
	// Capacity is the max number of same-chromosome reads in one
	// generation. Zero means DefaultCapacity.
	Capacity int
	// SoftClipRate is passed to ReclassifyByClip. Zero means
	// DefaultSoftClipRate.
	SoftClipRate float64
	// Preloaded is set when the overflow maps have been filled with Preload
	// before the stream starts. Reads whose mate is on another chromosome are
	// then looked up, never stored. Preloaded reads are never written: they
	// only annotate their mate.
	Preloaded bool
}

// Stats counts what a Buffer has written.
type Stats struct {
	// Pairs is the number of pairs written with both mates.
	Pairs int
	// Singletons is the number of paired reads written without their mate.
	Singletons int
	// Unpaired is the number of reads without a mate.
	Unpaired int
	// Rotations is the number of generation rotations.
	Rotations int
	// Reclassified is the number of pairs whose flags ReclassifyByClip
	// rewrote.
	Reclassified int
	// PreloadMatched is the number of reads written with the annotation of a
	// preloaded mate. The mate itself is not written.
	PreloadMatched int
	// PreloadDropped is the number of preloaded reads whose mate never
	// showed up. They are discarded by Close.
	PreloadDropped int
}

// Buffer matches mates in a coordinate-sorted stream. Add must be called in
// stream order. Every Alignment passed to Add is written to the Writer exactly
// once, with its ZA tag set, by the time Close returns. Alignments passed to
// Preload are never written.
//
// A name is stored in at most one of current, previous and the overflow maps.
// Thread compatible.
type Buffer struct {
	w    Writer
	opts BufferOpts

	// chrom is the reference ID of the reads in current and previous.
	chrom    int
	current  map[string]*Alignment
	previous map[string]*Alignment
	// overflow[c] holds reads on chromosome c whose mate is on another
	// chromosome.
	overflow map[int]map[string]*Alignment
	stats    Stats
}

// NewBuffer creates an empty buffer that writes to w.
func NewBuffer(w Writer, opts BufferOpts) *Buffer {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.SoftClipRate == 0 {
		opts.SoftClipRate = DefaultSoftClipRate
	}
	return &Buffer{
		w:        w,
		opts:     opts,
		chrom:    int(gbam.InvalidRefID),
		current:  make(map[string]*Alignment),
		previous: make(map[string]*Alignment),
		overflow: make(map[int]map[string]*Alignment),
	}
}

// Stats returns the counters accumulated so far.
func (b *Buffer) Stats() Stats { return b.stats }

// Len returns the number of reads waiting in current, previous and all the
// overflow maps.
func (b *Buffer) Len() (current, previous, overflow int) {
	for _, bucket := range b.overflow {
		overflow += len(bucket)
	}
	return len(b.current), len(b.previous), overflow
}

// Preload stores a read whose mate is expected on another chromosome, keyed
// by its own chromosome. It is used before the stream starts. A later read
// with the same name and chromosome replaces it.
func (b *Buffer) Preload(a *Alignment) {
	c := a.R.Ref.ID()
	bucket := b.overflow[c]
	if bucket == nil {
		bucket = make(map[string]*Alignment)
		b.overflow[c] = bucket
	}
	bucket[a.R.Name] = a
}

// Add consumes the next read of the stream. It writes the read and its mate
// when the mate is found, and stores the read otherwise.
func (b *Buffer) Add(a *Alignment) error {
	r := a.R
	if r.Flags&sam.Paired == 0 {
		b.stats.Unpaired++
		return b.emit(a, EncodeUnpaired(a))
	}
	c, m := r.Ref.ID(), r.MateRef.ID()
	if c != b.chrom {
		if err := b.NextChromosome(c); err != nil {
			return err
		}
	}
	if m != c {
		if b.opts.Preloaded {
			if mate, ok := b.overflow[m][r.Name]; ok {
				delete(b.overflow[m], r.Name)
				b.stats.PreloadMatched++
				return b.emit(a, EncodeTag(a, mate))
			}
			return b.emitSingleton(a)
		}
		if gbam.RefIsBefore(m, c) {
			// Every read of m that waits for a mate on c is already in
			// overflow[m].
			if mate, ok := b.overflow[m][r.Name]; ok {
				delete(b.overflow[m], r.Name)
				return b.emitPair(mate, a)
			}
			return b.emitSingleton(a)
		}
		return b.storeOverflow(c, a)
	}
	if mate, ok := b.current[r.Name]; ok {
		delete(b.current, r.Name)
		return b.emitPair(mate, a)
	}
	if mate, ok := b.previous[r.Name]; ok {
		delete(b.previous, r.Name)
		return b.emitPair(mate, a)
	}
	return b.insertPending(a)
}

func (b *Buffer) insertPending(a *Alignment) error {
	if len(b.current) >= b.opts.Capacity {
		if err := b.Rotate(); err != nil {
			return err
		}
	}
	b.current[a.R.Name] = a
	return nil
}

func (b *Buffer) storeOverflow(c int, a *Alignment) error {
	bucket := b.overflow[c]
	if bucket == nil {
		bucket = make(map[string]*Alignment)
		b.overflow[c] = bucket
	}
	if old, ok := bucket[a.R.Name]; ok {
		// Same name twice on one chromosome, e.g. a secondary alignment.
		if err := b.emitSingleton(old); err != nil {
			return err
		}
	}
	bucket[a.R.Name] = a
	return nil
}

// Rotate writes every read in the previous generation as a singleton, then
// makes the current generation the previous one. The new current generation
// is empty.
func (b *Buffer) Rotate() error {
	if err := b.flush(b.previous); err != nil {
		return err
	}
	b.previous, b.current = b.current, make(map[string]*Alignment, len(b.current))
	b.stats.Rotations++
	log.Debug.Printf("matepair: rotated at chromosome %d, %d reads pending", b.chrom, len(b.previous))
	return nil
}

// NextChromosome writes every same-chromosome read still waiting for its
// mate as a singleton and starts buffering reads of chromosome c.
func (b *Buffer) NextChromosome(c int) error {
	if err := b.flush(b.previous); err != nil {
		return err
	}
	if err := b.flush(b.current); err != nil {
		return err
	}
	if b.chrom != int(gbam.InvalidRefID) {
		log.Debug.Printf("matepair: chromosome %d done, moving to %d", b.chrom, c)
	}
	b.chrom = c
	return nil
}

// Close writes every read still waiting for its mate as a singleton. Overflow
// maps are written in chromosome order. Preloaded reads left in the overflow
// maps are dropped.
func (b *Buffer) Close() error {
	if err := b.NextChromosome(int(gbam.InvalidRefID)); err != nil {
		return err
	}
	if b.opts.Preloaded {
		_, _, n := b.Len()
		b.stats.PreloadDropped += n
		b.overflow = make(map[int]map[string]*Alignment)
		log.Debug.Printf("matepair: dropped %d preloaded reads without a mate", n)
		return nil
	}
	chroms := make([]int, 0, len(b.overflow))
	for c := range b.overflow {
		chroms = append(chroms, c)
	}
	sort.Slice(chroms, func(i, j int) bool { return gbam.RefIsBefore(chroms[i], chroms[j]) })
	for _, c := range chroms {
		if err := b.flush(b.overflow[c]); err != nil {
			return err
		}
		delete(b.overflow, c)
	}
	return nil
}

// flush writes the reads in m as singletons, sorted by name, and empties m.
func (b *Buffer) flush(m map[string]*Alignment) error {
	if len(m) == 0 {
		return nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := b.emitSingleton(m[name]); err != nil {
			return err
		}
		delete(m, name)
	}
	return nil
}

func (b *Buffer) emitSingleton(a *Alignment) error {
	b.stats.Singletons++
	return b.emit(a, EncodeSingleton(a))
}

// emitPair writes the stored mate, then the incoming read.
func (b *Buffer) emitPair(stored, incoming *Alignment) error {
	if ReclassifyByClip(incoming.R, stored.R, b.opts.SoftClipRate) {
		b.stats.Reclassified++
	}
	b.stats.Pairs++
	if err := b.emit(stored, EncodeTag(stored, incoming)); err != nil {
		return err
	}
	return b.emit(incoming, EncodeTag(incoming, stored))
}

func (b *Buffer) emit(a *Alignment, tag string) error {
	if err := gbam.SetStringAux(a.R, TagName, tag); err != nil {
		return err
	}
	return b.w.Write(a.R)
}
