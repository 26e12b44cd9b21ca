// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
Package tangram annotates a coordinate-sorted BAM file for mobile element
insertion calling.

Every read that does not align cleanly to the genome (unmapped, mate on
another chromosome, fragmented or heavily soft clipped alignment) is searched
for in a panel of special reference sequences, in both orientations. Reads
are then joined with their mates in one pass, and each output record carries
a ZA:Z tag of the form

  <@;MAPQ;;PREFIX;1;;><&;MAPQ;;PREFIX;1;;>

with one segment for the read itself followed by one for its mate. '@' marks
the first read of a pair and '&' the second. PREFIX is the two-letter code of
the special reference entry matched by the read, if any. A read whose mate was
not found gets the placeholder "<&;0;;;0;;>" (or "<@;0;;;0;;>") as its second
segment; an unpaired read gets a single segment.

When a target chromosome is given, only its reads are written. Reads on the
other chromosomes whose mate is on the target are collected first, using the
BAM index, so that inter-chromosome pairs are still joined.
*/
package tangram
