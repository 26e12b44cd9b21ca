package matepair

import (
	"strconv"
	"strings"

	"github.com/grailbio/hts/sam"
)

// TagName is the aux tag that carries the pairing annotation.
const TagName = "ZA"

const (
	roleFirst  = '@'
	roleSecond = '&'
)

func role(r *sam.Record) byte {
	if r.Flags&sam.Read2 != 0 {
		return roleSecond
	}
	return roleFirst
}

func opposite(role byte) byte {
	if role == roleFirst {
		return roleSecond
	}
	return roleFirst
}

// writeSegment appends "<role;mapq;;prefix;1;;>".
func writeSegment(b *strings.Builder, role byte, a *Alignment) {
	b.WriteByte('<')
	b.WriteByte(role)
	b.WriteByte(';')
	b.WriteString(strconv.Itoa(int(a.R.MapQ)))
	b.WriteString(";;")
	if a.HitInsertion {
		b.WriteString(a.InsPrefix)
	}
	b.WriteString(";1;;>")
}

// EncodeTag returns the ZA value of a, whose mate is mate: a's segment
// followed by mate's segment.
func EncodeTag(a, mate *Alignment) string {
	var b strings.Builder
	writeSegment(&b, role(a.R), a)
	writeSegment(&b, role(mate.R), mate)
	return b.String()
}

// EncodeSingleton returns the ZA value of a paired read whose mate was not
// found: a's segment followed by an empty segment for the absent mate.
func EncodeSingleton(a *Alignment) string {
	var b strings.Builder
	r := role(a.R)
	writeSegment(&b, r, a)
	b.WriteByte('<')
	b.WriteByte(opposite(r))
	b.WriteString(";0;;;0;;>")
	return b.String()
}

// EncodeUnpaired returns the ZA value of a read without a mate.
func EncodeUnpaired(a *Alignment) string {
	var b strings.Builder
	writeSegment(&b, roleFirst, a)
	return b.String()
}
