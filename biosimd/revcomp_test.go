// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package biosimd_test

import (
	"math/rand"
	"testing"

	"github.com/grailbio/tangram/biosimd"
	"github.com/stretchr/testify/assert"
)

func reverseCompSlow(seq []byte) []byte {
	out := make([]byte, 0, len(seq))
	for i := len(seq) - 1; i >= 0; i-- {
		switch seq[i] {
		case 'A':
			out = append(out, 'T')
		case 'C':
			out = append(out, 'G')
		case 'G':
			out = append(out, 'C')
		case 'T':
			out = append(out, 'A')
		default:
			out = append(out, 'N')
		}
	}
	return out
}

func TestReverseCompStrict(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"A", "T"},
		{"ACGT", "ACGT"},
		{"AACG", "CGTT"},
		{"ACGNT", "ANCGT"},
		{"acgt", "NNNN"},
		{"AXC-G", "CNGNT"},
	}
	for _, tt := range tests {
		dst := make([]byte, len(tt.in))
		biosimd.ReverseCompStrict(dst, []byte(tt.in))
		assert.Equal(t, tt.want, string(dst), "input %q", tt.in)
	}
}

func TestReverseCompStrictInvolution(t *testing.T) {
	alphabet := []byte("ACGTN")
	r := rand.New(rand.NewSource(0))
	for iter := 0; iter < 200; iter++ {
		seq := make([]byte, r.Intn(300))
		for i := range seq {
			seq[i] = alphabet[r.Intn(len(alphabet))]
		}
		dst := make([]byte, len(seq))
		biosimd.ReverseCompStrict(dst, seq)
		assert.Equal(t, reverseCompSlow(seq), dst)

		back := make([]byte, len(dst))
		biosimd.ReverseCompStrict(back, dst)
		assert.Equal(t, seq, back)
	}
}

func TestReverseCompStrictLengthMismatch(t *testing.T) {
	assert.Panics(t, func() { biosimd.ReverseCompStrict(make([]byte, 2), []byte("ACG")) })
}
