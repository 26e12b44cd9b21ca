// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"fmt"
	"math"

	"github.com/grailbio/hts/sam"
)

// Shard represents a genomic interval. The <StartRef,Start> and <EndRef,End>
// coordinates form a half-open, 0-based interval. An iterator for such a range
// will return reads whose start positions fall within that range.
//
// An unmapped sequence has coordinate (nil,0), and it is stored after any
// mapped sequence. Thus, a shard that contains unmapped sequences will have
// EndRef=nil, End>0.
type Shard struct {
	StartRef *sam.Reference
	EndRef   *sam.Reference
	Start    int
	End      int

	ShardIdx int
}

// UniversalShard creates a Shard that covers the entire genome, and unmapped
// reads.
func UniversalShard(header *sam.Header) Shard {
	var startRef *sam.Reference
	if len(header.Refs()) > 0 {
		startRef = header.Refs()[0]
	}
	return Shard{
		StartRef: startRef,
		EndRef:   nil,
		Start:    0,
		End:      math.MaxInt32,
	}
}

// RefRangeShard creates a Shard that covers references [startID, endID]
// (inclusive) in full. It returns false if the range is empty or out of bounds.
func RefRangeShard(header *sam.Header, startID, endID int) (Shard, bool) {
	refs := header.Refs()
	if startID < 0 || endID >= len(refs) || startID > endID {
		return Shard{}, false
	}
	return Shard{
		StartRef: refs[startID],
		Start:    0,
		EndRef:   refs[endID],
		End:      refs[endID].Len(),
	}, true
}

// RecordInShard returns true if r is in s.
func (s *Shard) RecordInShard(r *sam.Record) bool {
	return s.CoordInShard(CoordFromSAMRecord(r))
}

// CoordInShard returns whether coord is within the shard.
func (s *Shard) CoordInShard(coord Coord) bool {
	if coord.LT(s.StartCoord()) {
		return false
	}
	return coord.LT(s.EndCoord())
}

// StartCoord is the (inclusive) start of the shard.
func (s *Shard) StartCoord() Coord { return NewCoord(s.StartRef, s.Start) }

// EndCoord is the (exclusive) end of the shard.
func (s *Shard) EndCoord() Coord { return NewCoord(s.EndRef, s.End) }

// String returns a debug string for s.
func (s *Shard) String() string {
	return fmt.Sprintf("%d:(%s[%d],%d)-(%s[%d],%d)",
		s.ShardIdx, s.StartRef.Name(), s.StartRef.ID(), s.Start,
		s.EndRef.Name(), s.EndRef.ID(), s.End)
}
