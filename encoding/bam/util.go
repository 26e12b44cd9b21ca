package bam

import "github.com/grailbio/hts/sam"

// ReplaceAux removes every aux field of r whose tag equals aux's tag, then
// appends aux.
func ReplaceAux(r *sam.Record, aux sam.Aux) {
	tag := aux.Tag()
	n := 0
	for _, a := range r.AuxFields {
		if a.Tag() != tag {
			r.AuxFields[n] = a
			n++
		}
	}
	r.AuxFields = append(r.AuxFields[:n], aux)
}

// SetStringAux sets the aux field "tag:Z:value" on r, replacing any existing
// field with the same tag.
func SetStringAux(r *sam.Record, tag, value string) error {
	aux, err := sam.NewAux(sam.NewTag(tag), value)
	if err != nil {
		return err
	}
	ReplaceAux(r, aux)
	return nil
}
