// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bam contains helpers for working with coordinate-sorted BAM data on
// top of github.com/grailbio/hts: genomic shards, record coordinates and aux
// field updates.
package bam
