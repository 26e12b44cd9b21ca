// Package matepair joins the two ends of read pairs in one pass over a
// coordinate-sorted record stream and annotates every record with a ZA tag
// describing its pair.
//
// Buffer keeps reads waiting for their mates. Same-chromosome reads live in
// two rotating generations of bounded size; reads whose mate is on another
// chromosome wait in per-chromosome overflow maps. A read whose mate never
// shows up is eventually written as a singleton.
package matepair
