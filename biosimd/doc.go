// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package biosimd provides table-driven implementations of common
// .bam/.fa-specific operations on byte arrays. Only the reverse-complement
// kernels needed by the special-reference verifier are kept here.
package biosimd
