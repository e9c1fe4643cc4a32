package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type strmap = ORMap[uint64, string, *RWORSet[uint64, string]]

func newStrMap(src uint64) *strmap {
	return NewORMap[uint64, string](src, RWORSetBridge[uint64, string]())
}

func matKeys(m *strmap) map[string]int {
	ret := make(map[string]int)
	for k, v := range m.Materialize() {
		ret[k] = len(v.Materialize())
	}
	return ret
}

func TestMapGetSharesLiveValue(t *testing.T) {
	m := newStrMap(1)
	paint := m.Get("paint")
	paint.Join(paint.Add("blue"))

	// repeated Get returns the same live instance
	assert.True(t, m.Get("paint").Contains("blue"))
	// nested values share the map's context
	assert.True(t, m.Context().Contains(Dot[uint64]{Src: 1, Seq: 1}))
}

func TestMapKeyLifecycle(t *testing.T) {
	x := newStrMap(1)
	px := x.Get("paint")
	px.Join(px.Add("blue"))
	sx := x.Get("sound")
	sx.Join(sx.Add("loud"))
	sx.Join(sx.Add("quiet"))

	y := newStrMap(2)
	py := y.Get("paint")
	py.Join(py.Add("red"))
	ny := y.Get("number")
	ny.Join(ny.Add("42"))

	x.Join(y)
	mat := x.Materialize()
	assert.Len(t, mat, 3)
	assert.ElementsMatch(t, []string{"blue", "red"}, setSlice(mat["paint"].Materialize()))
	assert.ElementsMatch(t, []string{"loud", "quiet"}, setSlice(mat["sound"].Materialize()))
	assert.ElementsMatch(t, []string{"42"}, setSlice(mat["number"].Materialize()))

	// y drops "42"; after the next join the element is gone from the
	// materialization (keys stay live, their sets turn empty)
	ny.Join(ny.Remove("42"))
	x.Join(y)
	assert.Empty(t, setSlice(x.Get("number").Materialize()))
	assert.ElementsMatch(t, []string{"blue", "red"}, setSlice(x.Get("paint").Materialize()))
}

func TestMapRemoveKey(t *testing.T) {
	x := newStrMap(1)
	px := x.Get("paint")
	px.Join(px.Add("blue"))
	sx := x.Get("sound")
	sx.Join(sx.Add("loud"))

	// ship the removal to a converged replica
	y := newStrMap(2)
	y.Join(x)
	assert.ElementsMatch(t, []string{"blue"}, setSlice(y.Get("paint").Materialize()))

	delta := x.Remove("paint")
	x.Join(delta)
	y.Join(delta)
	assert.Empty(t, setSlice(x.Get("paint").Materialize()))
	assert.Empty(t, setSlice(y.Get("paint").Materialize()))
	assert.ElementsMatch(t, []string{"loud"}, setSlice(y.Get("sound").Materialize()))

	// removing an absent key yields an empty delta
	assert.Empty(t, x.Remove("nope").Materialize())
}

func TestMapRemovedKeyDoesNotResurrect(t *testing.T) {
	x := newStrMap(1)
	px := x.Get("paint")
	px.Join(px.Add("blue"))

	y := newStrMap(2)
	y.Join(x)

	// x removes the key while y is unaware; join order must not matter
	x.Join(x.Remove("paint"))
	x.Join(y)
	assert.Empty(t, setSlice(x.Get("paint").Materialize()))
	y.Join(x)
	assert.Empty(t, setSlice(y.Get("paint").Materialize()))
}

func TestMapClear(t *testing.T) {
	x := newStrMap(1)
	px := x.Get("paint")
	px.Join(px.Add("blue"))
	nx := x.Get("number")
	nx.Join(nx.Add("42"))

	x.Join(x.Clear())
	for key, v := range x.Materialize() {
		assert.Empty(t, setSlice(v.Materialize()), key)
	}
}

// Regression for the context-aliasing hazard: joining a map whose
// shared context backs three keys must yield the same vector as a
// from-scratch replay of the flattened event history.
func TestMapJoinNoDoubleCount(t *testing.T) {
	x := newStrMap(1)
	for _, key := range []string{"a", "b", "c"} {
		v := x.Get(key)
		v.Join(v.Add(key + "1"))
		v.Join(v.Add(key + "2"))
	}

	y := newStrMap(2)
	for _, key := range []string{"a", "b", "d"} {
		v := y.Get(key)
		v.Join(v.Add(key + "9"))
	}

	x.Join(y)

	// replica 1 minted six events, replica 2 three; the joined
	// context must say exactly that
	assert.Equal(t, uint64(6), x.Context().Current(1))
	assert.Equal(t, uint64(3), x.Context().Current(2))
	assert.Empty(t, x.Context().Dots())

	// and every concurrent addition must have survived the join
	assert.ElementsMatch(t, []string{"a1", "a2", "a9"}, setSlice(x.Get("a").Materialize()))
	assert.ElementsMatch(t, []string{"b1", "b2", "b9"}, setSlice(x.Get("b").Materialize()))
	assert.ElementsMatch(t, []string{"c1", "c2"}, setSlice(x.Get("c").Materialize()))
	assert.ElementsMatch(t, []string{"d9"}, setSlice(x.Get("d").Materialize()))
}

func TestMapJoinCommutes(t *testing.T) {
	build := func() (x, y *strmap) {
		x = newStrMap(1)
		v := x.Get("k")
		v.Join(v.Add("x1"))
		y = newStrMap(2)
		w := y.Get("k")
		w.Join(w.Add("y1"))
		u := y.Get("other")
		u.Join(u.Add("y2"))
		return
	}
	x1, y1 := build()
	x1.Join(y1)
	x2, y2 := build()
	y2.Join(x2)
	assert.Equal(t, matKeys(x1), matKeys(y2))
	assert.Equal(t, x1.Context().String(), y2.Context().String())
}

func setSlice(s map[string]struct{}) []string {
	ret := make([]string, 0)
	for v := range s {
		ret = append(ret, v)
	}
	return ret
}
