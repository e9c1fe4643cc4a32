// Package crdt implements causal delta-state CRDTs: a causal context
// of observed events, a differential dot kernel on top of it, a
// remove-wins observed-remove set and an observed-remove map of
// nested CRDTs. Mutators return small deltas; Join is commutative,
// associative and idempotent, so replicas exchanging deltas converge
// whatever the delivery order or duplication.
package crdt

import (
	"fmt"
	"strconv"

	"golang.org/x/exp/constraints"
)

// Dot is a single causal event: who produced it and at which point of
// that producer's history. Sequence numbers start at 1; zero means
// "no event", which is why a zero Dot is never a valid one.
type Dot[I constraints.Ordered] struct {
	Src I
	Seq uint64
}

func (d Dot[I]) Next() Dot[I] {
	return Dot[I]{Src: d.Src, Seq: d.Seq + 1}
}

func (d Dot[I]) Less(other Dot[I]) bool {
	if d.Src != other.Src {
		return d.Src < other.Src
	}
	return d.Seq < other.Seq
}

func (d Dot[I]) String() string {
	var buf [64]byte
	b := buf[:0]
	b = fmt.Appendf(b, "%v", d.Src)
	b = append(b, '-')
	b = strconv.AppendUint(b, d.Seq, 16)
	return string(b)
}
