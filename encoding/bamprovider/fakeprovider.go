package bamprovider

import (
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/tangram/encoding/bam"
)

// fakeProvider is only for unittests. It yields the given records.
type fakeProvider struct {
	header *sam.Header
	recs   []*sam.Record
}

type fakeIterator struct {
	recs []*sam.Record
	rec  *sam.Record

	shard gbam.Shard
}

// NewFakeProvider creates a provider that returns "header" in response to a
// GetHeader() call, and the subset of recs that falls in the shard from
// NewIterator calls. recs must be sorted by coordinate.
func NewFakeProvider(header *sam.Header, recs []*sam.Record) Provider {
	return &fakeProvider{header, recs}
}

// GetHeader implements the Provider interface. It returns the header passed to
// the constructor.
func (b *fakeProvider) GetHeader() (*sam.Header, error) {
	return b.header, nil
}

// Close implements the Provider interface.
func (b *fakeProvider) Close() error {
	return nil
}

// NewIterator implements the Provider interface.
func (b *fakeProvider) NewIterator(shard gbam.Shard) Iterator {
	return &fakeIterator{recs: b.recs, shard: shard}
}

// Err implements the Iterator interface.
func (i *fakeIterator) Err() error {
	return nil
}

// Close implements the Iterator interface.
func (i *fakeIterator) Close() error {
	return nil
}

func (i *fakeIterator) Scan() bool {
	for {
		if len(i.recs) == 0 {
			return false
		}
		i.rec = i.recs[0]
		i.recs = i.recs[1:]
		if i.shard.RecordInShard(i.rec) {
			return true
		}
	}
}

func (i *fakeIterator) Record() *sam.Record {
	// Return a copy so that the code under test cannot alter the
	// original test input data.
	copy := sam.GetFromFreePool()
	*copy = *i.rec
	copy.AuxFields = append(sam.AuxFields(nil), i.rec.AuxFields...)
	return copy
}
