package crdt

import (
	"golang.org/x/exp/constraints"
)

// Bridge is the capability record that lets an ORMap treat arbitrary
// nested CRDTs uniformly. Exactly three operations are needed:
// construct an empty value over a shared context, join one value into
// another in place, and obtain the context that acknowledges a
// value's whole causal history as removed.
type Bridge[I constraints.Ordered, V any] struct {
	Default      func(src I, ctx *CausalContext[I]) V
	Join         func(into V, from V)
	ClearContext func(v V) *CausalContext[I]
}

// RWORSetBridge wires RWORSet values into an ORMap.
func RWORSetBridge[I constraints.Ordered, V comparable]() Bridge[I, *RWORSet[I, V]] {
	return Bridge[I, *RWORSet[I, V]]{
		Default: func(src I, ctx *CausalContext[I]) *RWORSet[I, V] {
			return NewRWORSetWith[I, V](src, ctx)
		},
		Join: func(into, from *RWORSet[I, V]) {
			into.Join(from)
		},
		ClearContext: func(s *RWORSet[I, V]) *CausalContext[I] {
			return s.kernel.Clear().ctx
		},
	}
}

// ORMap is an observed-remove map of nested CRDTs. All values share
// the map's single causal context object, so removal of one key can
// be expressed purely causally: the removal delta's context has
// observed the subtree's dots, and the nested join on the receiving
// side drops them.
type ORMap[I constraints.Ordered, K comparable, V any] struct {
	entries map[K]V
	ctx     *CausalContext[I]
	src     I
	bridge  Bridge[I, V]
}

func NewORMap[I constraints.Ordered, K comparable, V any](src I, bridge Bridge[I, V]) *ORMap[I, K, V] {
	return &ORMap[I, K, V]{
		entries: make(map[K]V),
		ctx:     NewCausalContext[I](),
		src:     src,
		bridge:  bridge,
	}
}

func newORMapWith[I constraints.Ordered, K comparable, V any](src I, bridge Bridge[I, V], ctx *CausalContext[I]) *ORMap[I, K, V] {
	return &ORMap[I, K, V]{
		entries: make(map[K]V),
		ctx:     ctx,
		src:     src,
		bridge:  bridge,
	}
}

func (m *ORMap[I, K, V]) Context() *CausalContext[I] {
	return m.ctx
}

// Get returns the live nested CRDT for the key, lazily creating a
// default over the shared context. Repeated calls return the same
// instance; deltas produced through it are joined back through it.
// There is deliberately no setter: planting a foreign value would
// bypass the context bookkeeping.
func (m *ORMap[I, K, V]) Get(key K) V {
	if v, ok := m.entries[key]; ok {
		return v
	}
	v := m.bridge.Default(m.src, m.ctx)
	m.entries[key] = v
	return v
}

// Remove produces a delta map whose context acknowledges the key's
// entire causal subtree as removed. Removing an absent key yields an
// empty delta.
func (m *ORMap[I, K, V]) Remove(key K) *ORMap[I, K, V] {
	v, ok := m.entries[key]
	if !ok {
		return newORMapWith[I, K](m.src, m.bridge, NewCausalContext[I]())
	}
	return newORMapWith[I, K](m.src, m.bridge, m.bridge.ClearContext(v))
}

// Clear produces a delta removing every key.
func (m *ORMap[I, K, V]) Clear() *ORMap[I, K, V] {
	ctx := NewCausalContext[I]()
	for _, v := range m.entries {
		ctx.Join(m.bridge.ClearContext(v))
	}
	return newORMapWith[I, K](m.src, m.bridge, ctx)
}

// Join merges another map (usually a delta) into this one.
//
// Every nested join mutates the shared context in place, which is the
// aliasing hazard of this design: a later key's join must not see the
// context as already advanced by an earlier key's, or concurrent
// additions get mistaken for removed history. The pre-join context is
// therefore snapshotted first and restored before each nested join;
// the single trailing context join is what actually advances it.
func (m *ORMap[I, K, V]) Join(other *ORMap[I, K, V]) {
	if other == m || other == nil {
		return
	}
	before := m.ctx.DeepCopy()
	otherBefore := other.ctx.DeepCopy()
	for key, v := range m.entries {
		m.ctx.restore(before)
		if ov, ok := other.entries[key]; ok {
			m.bridge.Join(v, ov)
		} else {
			// Synthesize a remote "absent" placeholder over the
			// remote context so removal-vs-never-existed is decided
			// by the nested CRDT's own join.
			m.bridge.Join(v, m.bridge.Default(m.src, otherBefore))
		}
	}
	for key, ov := range other.entries {
		if _, ok := m.entries[key]; ok {
			continue
		}
		m.ctx.restore(before)
		v := m.bridge.Default(m.src, m.ctx)
		m.bridge.Join(v, ov)
		m.entries[key] = v
	}
	m.ctx.restore(before)
	m.ctx.Join(other.ctx)
}

// Materialize returns the live entries. The returned map is a
// read-only view by convention; values are the live nested CRDTs.
func (m *ORMap[I, K, V]) Materialize() map[K]V {
	ret := make(map[K]V, len(m.entries))
	for k, v := range m.entries {
		ret[k] = v
	}
	return ret
}
