package crdt

import (
	"golang.org/x/exp/constraints"
)

// DotKernel is the differential substrate every higher CRDT here is
// built on: a map of dots to values over an owned causal context.
// Every key of the differential is observed in the context, so the
// context alone tells removal ("observed, no entry") apart from
// absence ("never observed").
//
// Mutators return pure deltas and leave the receiver untouched; a new
// dot is minted by peeking the context, so the caller must join the
// delta back into the origin kernel before the next mutation, or two
// deltas will claim the same dot. Mutations and join-backs on one
// replica must be serialized by the caller.
type DotKernel[I constraints.Ordered, V comparable] struct {
	dots map[Dot[I]]V
	ctx  *CausalContext[I]
}

func NewDotKernel[I constraints.Ordered, V comparable]() *DotKernel[I, V] {
	return NewDotKernelWith[I, V](NewCausalContext[I]())
}

// NewDotKernelWith builds a kernel over a caller-supplied context,
// possibly shared with other structures (see ORMap).
func NewDotKernelWith[I constraints.Ordered, V comparable](ctx *CausalContext[I]) *DotKernel[I, V] {
	return &DotKernel[I, V]{
		dots: make(map[Dot[I]]V),
		ctx:  ctx,
	}
}

func (k *DotKernel[I, V]) Context() *CausalContext[I] {
	return k.ctx
}

// Len is the number of live differential entries.
func (k *DotKernel[I, V]) Len() int {
	return len(k.dots)
}

// Range calls f for every differential entry until f returns false.
func (k *DotKernel[I, V]) Range(f func(dot Dot[I], value V) bool) {
	for dot, v := range k.dots {
		if !f(dot, v) {
			return
		}
	}
}

// Add mints the next dot of src and returns a delta holding just the
// new (dot, value) pair. The entry lands in this kernel when the
// caller joins the delta back. Zero identities and zero values are
// caller bugs and panic.
func (k *DotKernel[I, V]) Add(src I, value V) *DotKernel[I, V] {
	var zeroI I
	var zeroV V
	if src == zeroI {
		panic("dotkernel: zero identity")
	}
	if value == zeroV {
		panic("dotkernel: zero value")
	}
	dot := k.ctx.Next(src)
	delta := NewDotKernel[I, V]()
	delta.dots[dot] = value
	delta.ctx.Insert(dot, true)
	return delta
}

// RemoveValue returns a delta whose context has observed every dot
// currently carrying an equal value. A value that never existed
// yields an empty delta.
func (k *DotKernel[I, V]) RemoveValue(value V) *DotKernel[I, V] {
	delta := NewDotKernel[I, V]()
	for dot, v := range k.dots {
		if v == value {
			delta.ctx.Insert(dot, false)
		}
	}
	delta.ctx.Compact()
	return delta
}

// RemoveDot targets one specific dot, so that one of several tokens
// sharing an equal value can be retired on its own.
func (k *DotKernel[I, V]) RemoveDot(dot Dot[I]) *DotKernel[I, V] {
	delta := NewDotKernel[I, V]()
	if _, ok := k.dots[dot]; ok {
		delta.ctx.Insert(dot, true)
	}
	return delta
}

// Clear retires every entry in one pass.
func (k *DotKernel[I, V]) Clear() *DotKernel[I, V] {
	delta := NewDotKernel[I, V]()
	for dot := range k.dots {
		delta.ctx.Insert(dot, false)
	}
	delta.ctx.Compact()
	return delta
}

// Join merges another kernel (usually a delta) into this one. An
// entry survives iff no party has observed its removal: entries of
// ours that the other side has observed but no longer carries were
// removed concurrently and get dropped; entries of theirs we have
// never observed are concurrent additions and get adopted. Contexts
// join last.
func (k *DotKernel[I, V]) Join(other *DotKernel[I, V]) {
	if other == k || other == nil {
		return
	}
	for dot := range k.dots {
		if _, ok := other.dots[dot]; ok {
			continue
		}
		if other.ctx.Contains(dot) {
			delete(k.dots, dot)
		}
	}
	for dot, v := range other.dots {
		if _, ok := k.dots[dot]; ok {
			continue
		}
		if !k.ctx.Contains(dot) {
			k.dots[dot] = v
		}
	}
	k.ctx.Join(other.ctx)
}

// DeepCopy clones the kernel together with its context.
func (k *DotKernel[I, V]) DeepCopy() *DotKernel[I, V] {
	ret := NewDotKernelWith[I, V](k.ctx.DeepCopy())
	for dot, v := range k.dots {
		ret.dots[dot] = v
	}
	return ret
}
