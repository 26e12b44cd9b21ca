package bamprovider

import (
	"fmt"

	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/tangram/encoding/bam"
)

// RefByName finds a sam.Reference with the given name. It returns nil if a
// reference is not found.
func RefByName(h *sam.Header, refName string) *sam.Reference {
	for _, ref := range h.Refs() {
		if ref.Name() == refName {
			return ref
		}
	}
	return nil
}

// NewRefIterator creates an iterator for half-open range [refName:start,
// refName:limit). Start and limit are both base zero.  The iterator will yield
// reads whose start positions are in the given range.
func NewRefIterator(p Provider, refName string, start, limit int) Iterator {
	h, err := p.GetHeader()
	if err != nil {
		return NewErrorIterator(err)
	}
	ref := RefByName(h, refName)
	if ref == nil {
		return NewErrorIterator(fmt.Errorf("bamprovider.NewRefIterator: reference '%s' not found", refName))
	}
	shard := gbam.Shard{
		StartRef: ref,
		EndRef:   ref,
		Start:    start,
		End:      limit,
	}
	return p.NewIterator(shard)
}

// isUniversal reports whether the shard covers every record of a file with
// the given header.
func isUniversal(header *sam.Header, shard gbam.Shard) bool {
	u := gbam.UniversalShard(header)
	return shard.StartRef == u.StartRef && shard.Start == 0 && shard.EndRef == nil && shard.End == u.End
}
