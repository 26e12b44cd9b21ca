package bamprovider

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/tangram/encoding/bam"
	"v.io/x/lib/vlog"
)

// StdinPath is the pathname that makes BAMProvider read the standard input.
const StdinPath = "-"

// BAMProvider implements Provider for BAM files.  Both BAM and the index
// filenames are allowed to be S3 URLs, in which case the data will be read from
// S3. Otherwise the data will be read from the local filesystem.
type BAMProvider struct {
	// Path of the *.bam file. Must be nonempty.
	Path string
	// Index is the pathname of *.bam.bai file. If "", Path + ".bai"
	Index string
	// Parallelism is passed to bam.NewReader.
	Parallelism int
	err         errors.Once

	mu        sync.Mutex
	nActive   int
	freeIters []*bamIterator
	header    *sam.Header

	// stdin is the one and only reader when Path == StdinPath.
	stdin     *bam.Reader
	stdinUsed bool
}

type bamIterator struct {
	provider *BAMProvider
	in       file.File
	reader   *bam.Reader
	index    *bam.Index
	// Offset of the first record in the file.
	firstRecord bgzf.Offset
	// Half-open coordinate range to read.
	startAddr, limitAddr gbam.Coord
	// stdin iterators own nothing and are never reused.
	stdin bool

	active bool
	err    error
	next   *sam.Record
}

func (b *BAMProvider) indexPath() string {
	return IndexPath(b.Path, b.Index)
}

func (b *BAMProvider) parallelism() int {
	if b.Parallelism <= 0 {
		return 1
	}
	return b.Parallelism
}

// GetHeader implements the Provider interface.
func (b *BAMProvider) GetHeader() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}
	if b.Path == StdinPath {
		r, err := bam.NewReader(os.Stdin, b.parallelism())
		if err != nil {
			b.err.Set(err)
			return nil, err
		}
		b.stdin = r
		b.header = r.Header()
		return b.header, nil
	}

	ctx := vcontext.Background()
	reader, err := file.Open(ctx, b.Path)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer reader.Close(ctx) // nolint: errcheck
	bamReader, err := bam.NewReader(reader.Reader(ctx), 1)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer bamReader.Close() // nolint: errcheck
	b.header = bamReader.Header()
	return b.header, nil
}

// Close implements the Provider interface.
func (b *BAMProvider) Close() error {
	if b.nActive > 0 {
		vlog.Fatalf("%d iterators still active for %+v", b.nActive, b)
	}
	for _, iter := range b.freeIters {
		iter.internalClose()
	}
	b.freeIters = nil
	if b.stdin != nil {
		b.err.Set(b.stdin.Close())
		b.stdin = nil
	}
	return b.err.Err()
}

func (b *BAMProvider) freeIterator(i *bamIterator) {
	if !i.active {
		vlog.Fatal(i)
	}
	i.active = false
	if i.stdin || i.Err() != nil {
		// The iter may be invalid. Don't reuse it.
		if !i.stdin {
			i.internalClose() // Will set b.err
		} else {
			b.err.Set(i.Err())
		}
		i = nil
	}
	b.mu.Lock()
	if i != nil {
		b.freeIters = append(b.freeIters, i)
	}
	b.nActive--
	if b.nActive < 0 {
		vlog.Fatalf("Negative active count for %+v", b)
	}
	b.mu.Unlock()
}

// Return an unused iterator. If b.freeIters is nonempty, this function returns
// one from freeIters. Else, it opens the BAM file, creates a BAM reader and
// returns an iterator containing them. If needIndex, the iterator's index is
// loaded as well. On error, returns an iterator with non-nil err field.
func (b *BAMProvider) allocateIterator(needIndex bool) *bamIterator {
	ctx := vcontext.Background()
	b.mu.Lock()
	b.nActive++
	var iter *bamIterator
	if len(b.freeIters) > 0 {
		iter = b.freeIters[len(b.freeIters)-1]
		iter.active = true
		iter.err = nil
		iter.next = nil
		b.freeIters = b.freeIters[:len(b.freeIters)-1]
		b.mu.Unlock()
	} else {
		b.mu.Unlock()
		iter = &bamIterator{
			provider: b,
			active:   true,
		}
		if iter.in, iter.err = file.Open(ctx, b.Path); iter.err != nil {
			return iter
		}
		if iter.reader, iter.err = bam.NewReader(iter.in.Reader(ctx), b.parallelism()); iter.err != nil {
			return iter
		}
		iter.firstRecord = iter.reader.LastChunk().End
	}
	if needIndex && iter.index == nil {
		var indexIn file.File
		if indexIn, iter.err = file.Open(ctx, b.indexPath()); iter.err != nil {
			return iter
		}
		defer indexIn.Close(ctx) // nolint: errcheck
		if iter.index, iter.err = bam.ReadIndex(indexIn.Reader(ctx)); iter.err != nil {
			return iter
		}
	}
	return iter
}

// NewIterator implements the Provider interface.
func (b *BAMProvider) NewIterator(shard gbam.Shard) Iterator {
	header, err := b.GetHeader()
	if err != nil {
		return NewErrorIterator(err)
	}
	universal := isUniversal(header, shard)
	if b.Path == StdinPath {
		b.mu.Lock()
		defer b.mu.Unlock()
		if !universal {
			return NewErrorIterator(fmt.Errorf("bamprovider: %v: standard input supports only a full scan", shard.String()))
		}
		if b.stdinUsed {
			return NewErrorIterator(fmt.Errorf("bamprovider: standard input can be scanned only once"))
		}
		b.stdinUsed = true
		b.nActive++
		return &bamIterator{
			provider:  b,
			reader:    b.stdin,
			stdin:     true,
			active:    true,
			startAddr: gbam.NewCoord(shard.StartRef, 0),
			limitAddr: gbam.Coord{RefID: gbam.UnmappedRefID, Pos: gbam.InfinityPos},
		}
	}

	iter := b.allocateIterator(!universal)
	if iter.err != nil {
		return iter
	}
	if universal {
		iter.startAddr = gbam.NewCoord(shard.StartRef, 0)
		iter.limitAddr = gbam.Coord{RefID: gbam.UnmappedRefID, Pos: gbam.InfinityPos}
		iter.err = iter.reader.Seek(iter.firstRecord)
		return iter
	}
	iter.reset(shard.StartRef, shard.Start, shard.EndRef, shard.End)
	return iter
}

// Reset the iterator to read the range [<startRef,startPos>, <endRef, endPos>).
func (i *bamIterator) reset(startRef *sam.Reference, startPos int, endRef *sam.Reference, endPos int) {
	header := i.reader.Header()
	i.startAddr = gbam.NewCoord(startRef, startPos)
	i.limitAddr = gbam.NewCoord(endRef, endPos)
	if i.startAddr.GE(i.limitAddr) {
		i.err = fmt.Errorf("start coord (%v) not before limit coord (%v)", i.startAddr, i.limitAddr)
		return
	}

	// Read the index and find the file offset at which <startRef,startPos> is
	// located.
	var offset bgzf.Offset
	var err error
	ref := startRef
	for {
		if ref == nil {
			offset, err = i.findUnmappedOffset()
			break
		}
		start := 0
		if ref.ID() == startRef.ID() {
			start = startPos
		}
		end := ref.Len()
		if ref.ID() == endRef.ID() {
			end = endPos
		}
		var found bool
		found, offset, err = i.findRecordOffset(ref, start, end)
		if err != nil || found {
			break
		}
		if ref.ID() == endRef.ID() {
			// No refs in range [startRef,endRef] has any index.  There's no record to
			// read.
			i.err = io.EOF
			return
		}
		// No index is found for this ref. Try the next ref.
		if ref.ID()+1 < len(header.Refs()) {
			ref = header.Refs()[ref.ID()+1]
		} else {
			ref = nil
		}
	}
	if err != nil {
		i.err = err
		return
	}
	i.err = i.reader.Seek(offset)
}

// Err implements the Iterator interface.
func (i *bamIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	err := i.Err()
	i.provider.freeIterator(i)
	return err
}

// Find the the file offset at which the first unmapped sequence is
// stored. This function is conservative; it may return an offset that's smaller
// than absolutely necessary.
func (i *bamIterator) findUnmappedOffset() (bgzf.Offset, error) {
	// Iterate through the endpoint of each reference to find the
	// largest offset.
	header := i.reader.Header()
	var lastOffset bgzf.Offset
	foundRefs := false
	for _, r := range header.Refs() {
		chunks, err := i.index.Chunks(r, 0, r.Len())
		if err == index.ErrInvalid {
			// There are no reads on this reference, but don't worry about it.
			continue
		}
		if err != nil {
			return lastOffset, err
		}
		foundRefs = true
		c := chunks[len(chunks)-1]
		if c.End.File > lastOffset.File ||
			(c.End.File == lastOffset.File && c.End.Block > lastOffset.Block) {
			lastOffset = c.End
		}
	}
	if !foundRefs {
		return i.firstRecord, nil
	}
	return lastOffset, nil
}

// Find the the file offset at which the first record at coordinate <ref,pos> is
// stored. This function is conservative; it may return an offset that's smaller
// than absolutely necessary.
func (i *bamIterator) findRecordOffset(ref *sam.Reference, startPos, endPos int) (bool, bgzf.Offset, error) {
	chunks, err := i.index.Chunks(ref, startPos, endPos)
	if err == index.ErrInvalid || len(chunks) == 0 {
		// No reads for this interval.
		return false, bgzf.Offset{}, nil
	}
	if err != nil {
		return false, bgzf.Offset{}, err
	}
	return true, chunks[0].Begin, nil
}

func (i *bamIterator) Scan() bool {
	if !i.active {
		vlog.Fatal("Reusing iterator")
	}
	if i.err != nil {
		return false
	}
	for {
		i.next, i.err = i.reader.Read()
		if i.err != nil {
			return false
		}
		recAddr := gbam.CoordFromSAMRecord(i.next)
		if recAddr.LT(i.startAddr) {
			continue
		}
		if !recAddr.LT(i.limitAddr) {
			i.err = io.EOF
			return false
		}
		return true
	}
}

func (i *bamIterator) Record() *sam.Record {
	return i.next
}

func (i *bamIterator) internalClose() {
	if i.reader != nil {
		if err := i.reader.Close(); err != nil && i.err == nil {
			i.err = err
		}
		i.reader = nil
	}
	if i.in != nil {
		if err := i.in.Close(vcontext.Background()); err != nil && i.err == nil {
			i.err = err
		}
		i.in = nil
	}
	i.provider.err.Set(i.Err())
}
