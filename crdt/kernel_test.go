package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kernelValues[V comparable](k *DotKernel[uint64, V]) map[V]int {
	ret := make(map[V]int)
	k.Range(func(_ Dot[uint64], v V) bool {
		ret[v]++
		return true
	})
	return ret
}

func TestKernelAddIsPureDelta(t *testing.T) {
	k := NewDotKernel[uint64, string]()
	delta := k.Add(1, "x")
	// receiver untouched until the delta is joined back
	assert.Equal(t, 0, k.Len())
	assert.Equal(t, 1, delta.Len())

	k.Join(delta)
	assert.Equal(t, 1, k.Len())
	assert.True(t, k.Context().Contains(Dot[uint64]{Src: 1, Seq: 1}))

	// joining the same delta twice changes nothing
	k.Join(delta)
	assert.Equal(t, 1, k.Len())
}

func TestKernelAddPreconditions(t *testing.T) {
	k := NewDotKernel[uint64, string]()
	assert.Panics(t, func() { k.Add(0, "x") })
	assert.Panics(t, func() { k.Add(1, "") })
}

func TestKernelRemoveValue(t *testing.T) {
	k := NewDotKernel[uint64, string]()
	k.Join(k.Add(1, "x"))
	k.Join(k.Add(1, "y"))

	delta := k.RemoveValue("x")
	assert.Equal(t, 2, k.Len()) // untouched
	k.Join(delta)
	assert.Equal(t, map[string]int{"y": 1}, kernelValues(k))
	// the removed dot stays causally remembered
	assert.True(t, k.Context().Contains(Dot[uint64]{Src: 1, Seq: 1}))

	// removing a value that never existed is a safe no-op
	empty := k.RemoveValue("nope")
	assert.Equal(t, 0, empty.Len())
	k.Join(empty)
	assert.Equal(t, map[string]int{"y": 1}, kernelValues(k))
}

func TestKernelRemoveDot(t *testing.T) {
	k := NewDotKernel[uint64, string]()
	k.Join(k.Add(1, "x"))
	k.Join(k.Add(2, "x")) // same value, different dot

	k.Join(k.RemoveDot(Dot[uint64]{Src: 1, Seq: 1}))
	assert.Equal(t, map[string]int{"x": 1}, kernelValues(k))

	// removing an unknown dot is a no-op
	k.Join(k.RemoveDot(Dot[uint64]{Src: 9, Seq: 9}))
	assert.Equal(t, 1, k.Len())
}

func TestKernelClear(t *testing.T) {
	k := NewDotKernel[uint64, string]()
	k.Join(k.Add(1, "x"))
	k.Join(k.Add(1, "y"))
	k.Join(k.Clear())
	assert.Equal(t, 0, k.Len())
	assert.True(t, k.Context().Contains(Dot[uint64]{Src: 1, Seq: 2}))
}

func TestKernelConcurrentRemoveWins(t *testing.T) {
	a := NewDotKernel[uint64, string]()
	a.Join(a.Add(1, "x"))

	b := a.DeepCopy()

	// a removes x; b keeps it
	a.Join(a.RemoveValue("x"))
	// joining b into a must not resurrect the entry: a's context has
	// observed the dot, b still carries it
	a.Join(b)
	assert.Equal(t, 0, a.Len())

	// the other direction also converges
	b.Join(a)
	assert.Equal(t, 0, b.Len())
}

func TestKernelJoinProperties(t *testing.T) {
	build := func() (a, b, c *DotKernel[uint64, string]) {
		a = NewDotKernel[uint64, string]()
		a.Join(a.Add(1, "one"))
		a.Join(a.Add(1, "two"))
		a.Join(a.RemoveValue("one"))
		b = NewDotKernel[uint64, string]()
		b.Join(b.Add(2, "three"))
		c = NewDotKernel[uint64, string]()
		c.Join(c.Add(3, "four"))
		c.Join(c.Clear())
		return
	}

	// commutativity
	a1, b1, _ := build()
	a1.Join(b1)
	a2, b2, _ := build()
	b2.Join(a2)
	assert.Equal(t, kernelValues(a1), kernelValues(b2))

	// associativity
	x1, y1, z1 := build()
	x1.Join(y1)
	x1.Join(z1)
	x2, y2, z2 := build()
	y2.Join(z2)
	x2.Join(y2)
	assert.Equal(t, kernelValues(x1), kernelValues(x2))

	// idempotence
	s, _, _ := build()
	before := kernelValues(s)
	s.Join(s)
	assert.Equal(t, before, kernelValues(s))
}

func TestKernelTLVRoundTrip(t *testing.T) {
	k := NewDotKernel[uint64, string]()
	k.Join(k.Add(1, "x"))
	k.Join(k.Add(2, "y"))
	k.Join(k.RemoveValue("x"))

	tlv := KernelTLV(k, Uint64Identity{}, StringValue{})
	back, err := KernelFromTLV(tlv, Uint64Identity{}, StringValue{})
	require.NoError(t, err)

	assert.Equal(t, kernelValues(k), kernelValues(back))
	assert.True(t, back.Context().Contains(Dot[uint64]{Src: 1, Seq: 1}))
	assert.Equal(t, tlv, KernelTLV(back, Uint64Identity{}, StringValue{}))
}
