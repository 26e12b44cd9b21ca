// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package specialref decides whether a read originates from a panel of
// special reference sequences, such as mobile elements or insertion
// sequences.
//
// A Panel holds the concatenated panel sequences. A SeedIndex proposes
// candidate panel positions for a query by shared subsequence length, and an
// Aligner scores the query against a window of the panel around the best
// candidate. Verifier combines the three and tries both orientations of the
// query.
package specialref
