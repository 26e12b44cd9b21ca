// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package biosimd

// revCompStrictTable maps 'A'/'C'/'G'/'T' to their complements and every other
// byte, including lowercase bases, to 'N'.
var revCompStrictTable = func() (t [256]byte) {
	for i := range t {
		t[i] = 'N'
	}
	t['A'] = 'T'
	t['C'] = 'G'
	t['G'] = 'C'
	t['T'] = 'A'
	return
}()

// ReverseCompStrict writes the reverse-complement of src[] to dst[]. 'A'<->'T'
// and 'C'<->'G'; everything else becomes 'N'. Applying it twice restores any
// sequence over {A,C,G,T,N}.
//
// It panics if len(dst) != len(src).
func ReverseCompStrict(dst, src []byte) {
	nByte := len(src)
	if len(dst) != nByte {
		panic("ReverseCompStrict requires len(dst) == len(src).")
	}
	for idx, invIdx := 0, nByte-1; idx != nByte; idx, invIdx = idx+1, invIdx-1 {
		dst[idx] = revCompStrictTable[src[invIdx]]
	}
}
