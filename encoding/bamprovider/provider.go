package bamprovider

import (
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/tangram/encoding/bam"
)

// ProviderOpts defines options for NewProvider.
type ProviderOpts struct {
	// Index specifies the name of the BAM index file. If Index=="", it
	// defaults to path + ".bai".
	Index string

	// Parallelism is the number of goroutines hts uses to decompress BGZF
	// blocks. Values <= 0 are treated as 1.
	Parallelism int
}

// Provider allows reading a BAM file. Thread safe.
type Provider interface {
	// GetHeader returns the header for the provided BAM data.  The callee
	// must not modify the returned header object.
	//
	// REQUIRES: Close has not been called.
	GetHeader() (*sam.Header, error)

	// NewIterator returns an iterator over record contained in the shard.
	// A shard that covers the whole file (see gbam.UniversalShard) is read
	// sequentially and does not need an index. Any other shard requires a
	// random-access index.
	//
	// REQUIRES: Close has not been called.
	NewIterator(shard gbam.Shard) Iterator

	// Close must be called exactly once. It returns any error encountered
	// by the provider, or any iterator created by the provider.
	//
	// REQUIRES: All the iterators created by NewIterator have been closed.
	Close() error
}

// Iterator iterates over sam.Records in a particular genomic range, in
// coordinate order. Thread compatible.
type Iterator interface {
	// Scan returns where there are any records remaining in the iterator,
	// and if so, advances the iterator to the next record. If the iterator
	// reaches the end of its range, Scan() returns false.  If an error
	// occurs, Scan() returns false and the error can be retrieved by
	// calling Err().
	//
	// Scan and Record always yield records in the ascending coordinate
	// (refid,position) order.
	//
	// REQUIRES: Close has not been called.
	Scan() bool

	// Record returns the current record in the iterator. This must be
	// called only after a call to Scan() returns true.
	//
	// REQUIRES: Close has not been called.
	Record() *sam.Record

	// Err returns the error encoutered during iteration, or nil if no error
	// occurred.  An io.EOF error will be translated to nil.
	Err() error

	// Close must be called exactly once. It returns the value of Err().
	Close() error
}

func mergeOpts(optList []ProviderOpts) ProviderOpts {
	opts := ProviderOpts{}
	for _, o := range optList {
		if o.Index != "" {
			opts.Index = o.Index
		}
		if o.Parallelism > 0 {
			opts.Parallelism = o.Parallelism
		}
	}
	return opts
}

// NewProvider creates a Provider object that reads the BAM file at "path".
// Path "-" reads the standard input; such a provider supports exactly one
// sequential scan of the whole file.
func NewProvider(path string, optList ...ProviderOpts) Provider {
	opts := mergeOpts(optList)
	return &BAMProvider{Path: path, Index: opts.Index, Parallelism: opts.Parallelism}
}
