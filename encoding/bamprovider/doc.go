// Package bamprovider provides utilities for scanning a coordinate-sorted BAM
// file, either in full or restricted to a genomic range.
//
// The Provider is an interface for reading BAM files. BAMProvider reads a real
// file through github.com/grailbio/hts; NewFakeProvider serves records from
// memory for unittests.
package bamprovider
