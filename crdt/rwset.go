package crdt

import (
	"golang.org/x/exp/constraints"
)

// Token is one add or remove statement about a set element. The
// element's fate is decided by AND-ing Present over every surviving
// token, which is what makes the set remove-wins: a single surviving
// "removed" token outvotes any number of concurrent additions.
type Token[V comparable] struct {
	Value   V
	Present bool
}

// RWORSet is a remove-wins observed-remove set. Add and Remove return
// pure deltas; Join applies a delta (or a whole remote set) in place.
type RWORSet[I constraints.Ordered, V comparable] struct {
	kernel *DotKernel[I, Token[V]]
	src    I
}

func NewRWORSet[I constraints.Ordered, V comparable](src I) *RWORSet[I, V] {
	return &RWORSet[I, V]{
		kernel: NewDotKernel[I, Token[V]](),
		src:    src,
	}
}

// NewRWORSetWith builds a set over a shared causal context, for use
// as a value nested inside an ORMap.
func NewRWORSetWith[I constraints.Ordered, V comparable](src I, ctx *CausalContext[I]) *RWORSet[I, V] {
	return &RWORSet[I, V]{
		kernel: NewDotKernelWith[I, Token[V]](ctx),
		src:    src,
	}
}

func (s *RWORSet[I, V]) Context() *CausalContext[I] {
	return s.kernel.Context()
}

// Add produces a delta that retires every token this replica knows
// for the value, then states it present. The receiver is unchanged
// until the delta is joined back.
func (s *RWORSet[I, V]) Add(value V) *RWORSet[I, V] {
	return s.put(value, true)
}

// Remove is symmetric to Add with a "removed" statement.
func (s *RWORSet[I, V]) Remove(value V) *RWORSet[I, V] {
	return s.put(value, false)
}

func (s *RWORSet[I, V]) put(value V, present bool) *RWORSet[I, V] {
	var zero V
	if value == zero {
		panic("rworset: zero value")
	}
	delta := s.kernel.RemoveValue(Token[V]{Value: value, Present: true})
	delta.Join(s.kernel.RemoveValue(Token[V]{Value: value, Present: false}))
	delta.Join(s.kernel.Add(s.src, Token[V]{Value: value, Present: present}))
	return &RWORSet[I, V]{kernel: delta, src: s.src}
}

// Clear produces a delta retiring every token.
func (s *RWORSet[I, V]) Clear() *RWORSet[I, V] {
	return &RWORSet[I, V]{kernel: s.kernel.Clear(), src: s.src}
}

// Materialize reduces the differential to the set's visible value.
// Tokens are not ordered before the reduce; any surviving remove
// token hides the element, timestamps notwithstanding.
func (s *RWORSet[I, V]) Materialize() map[V]struct{} {
	votes := make(map[V]bool)
	s.kernel.Range(func(_ Dot[I], tok Token[V]) bool {
		if vote, ok := votes[tok.Value]; ok {
			votes[tok.Value] = vote && tok.Present
		} else {
			votes[tok.Value] = tok.Present
		}
		return true
	})
	ret := make(map[V]struct{}, len(votes))
	for v, present := range votes {
		if present {
			ret[v] = struct{}{}
		}
	}
	return ret
}

func (s *RWORSet[I, V]) Contains(value V) bool {
	_, ok := s.Materialize()[value]
	return ok
}

// Join merges a delta or a remote set into this one, in place.
func (s *RWORSet[I, V]) Join(other *RWORSet[I, V]) {
	if other == s || other == nil {
		return
	}
	s.kernel.Join(other.kernel)
}
