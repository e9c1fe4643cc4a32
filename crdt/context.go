package crdt

import (
	"slices"

	"golang.org/x/exp/constraints"
)

// CausalContext is what a replica knows about the history of every
// other replica: a version vector of contiguous prefixes plus a cloud
// of dots received out of causal order. A dot is observed iff it is
// covered by the vector or sits in the cloud.
type CausalContext[I constraints.Ordered] struct {
	vv    map[I]uint64
	cloud map[Dot[I]]struct{}
}

func NewCausalContext[I constraints.Ordered]() *CausalContext[I] {
	return &CausalContext[I]{
		vv:    make(map[I]uint64),
		cloud: make(map[Dot[I]]struct{}),
	}
}

// Contains reports whether the dot has been observed.
func (cc *CausalContext[I]) Contains(dot Dot[I]) bool {
	if dot.Seq <= cc.vv[dot.Src] {
		return true
	}
	_, ok := cc.cloud[dot]
	return ok
}

// Current returns the contiguous progress for the source.
func (cc *CausalContext[I]) Current(src I) uint64 {
	return cc.vv[src]
}

// Next returns the dot the source would mint next, without minting it.
func (cc *CausalContext[I]) Next(src I) Dot[I] {
	return Dot[I]{Src: src, Seq: cc.vv[src]}.Next()
}

// MakeDot advances the source's vector entry and returns the new dot.
func (cc *CausalContext[I]) MakeDot(src I) Dot[I] {
	next := cc.Next(src)
	cc.vv[src] = next.Seq
	return next
}

// Insert adds the dot to the cloud; with compactNow it is folded into
// the vector right away when contiguous. Batch inserters pass false
// and call Compact once at the end.
func (cc *CausalContext[I]) Insert(dot Dot[I], compactNow bool) {
	cc.cloud[dot] = struct{}{}
	if compactNow {
		cc.Compact()
	}
}

// Compact folds cloud dots into the vector until a fixpoint: a dot
// extends the vector when it is exactly one past the current entry
// (or is the first event of an unseen source); dots the vector
// already covers are dropped.
func (cc *CausalContext[I]) Compact() {
	again := true
	for again {
		again = false
		for dot := range cc.cloud {
			pro := cc.vv[dot.Src]
			switch {
			case dot.Seq == pro+1:
				cc.vv[dot.Src] = dot.Seq
				delete(cc.cloud, dot)
				again = true
			case dot.Seq <= pro:
				delete(cc.cloud, dot)
			}
		}
	}
}

// Join is the semilattice merge: per-source max of the vectors, union
// of the clouds, one trailing compaction.
func (cc *CausalContext[I]) Join(other *CausalContext[I]) {
	if other == cc || other == nil {
		return
	}
	for src, pro := range other.vv {
		if pro > cc.vv[src] {
			cc.vv[src] = pro
		}
	}
	for dot := range other.cloud {
		cc.Insert(dot, false)
	}
	cc.Compact()
}

// DeepCopy returns a fully independent copy.
func (cc *CausalContext[I]) DeepCopy() *CausalContext[I] {
	ret := &CausalContext[I]{
		vv:    make(map[I]uint64, len(cc.vv)),
		cloud: make(map[Dot[I]]struct{}, len(cc.cloud)),
	}
	for src, pro := range cc.vv {
		ret.vv[src] = pro
	}
	for dot := range cc.cloud {
		ret.cloud[dot] = struct{}{}
	}
	return ret
}

// restore overwrites this context in place from the snapshot, keeping
// the identity of the object so that every structure aliasing it sees
// the restored state.
func (cc *CausalContext[I]) restore(snapshot *CausalContext[I]) {
	clear(cc.vv)
	clear(cc.cloud)
	for src, pro := range snapshot.vv {
		cc.vv[src] = pro
	}
	for dot := range snapshot.cloud {
		cc.cloud[dot] = struct{}{}
	}
}

// Sources lists vector sources in canonical order.
func (cc *CausalContext[I]) Sources() []I {
	srcs := make([]I, 0, len(cc.vv))
	for src := range cc.vv {
		srcs = append(srcs, src)
	}
	slices.Sort(srcs)
	return srcs
}

// Dots lists cloud dots in canonical order.
func (cc *CausalContext[I]) Dots() []Dot[I] {
	dots := make([]Dot[I], 0, len(cc.cloud))
	for dot := range cc.cloud {
		dots = append(dots, dot)
	}
	slices.SortFunc(dots, func(a, b Dot[I]) int {
		if a.Less(b) {
			return -1
		} else if b.Less(a) {
			return 1
		}
		return 0
	})
	return dots
}

func (cc *CausalContext[I]) String() string {
	ret := make([]byte, 0, len(cc.vv)*16)
	for i, src := range cc.Sources() {
		if i > 0 {
			ret = append(ret, ',')
		}
		ret = append(ret, Dot[I]{Src: src, Seq: cc.vv[src]}.String()...)
	}
	for _, dot := range cc.Dots() {
		if len(ret) > 0 {
			ret = append(ret, ',')
		}
		ret = append(ret, '+')
		ret = append(ret, dot.String()...)
	}
	return string(ret)
}
