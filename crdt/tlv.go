package crdt

import (
	"errors"
	"slices"

	"github.com/learn-decentralized-systems/toytlv"
	"golang.org/x/exp/constraints"
)

// TLV codecs for the persistence boundary: a replica's context and
// kernel state serialize to toytlv records and restore to a state
// that answers Contains identically, whatever the vector/cloud split
// was at save time.
//
// Layout:
//
//	context   V-record per vector entry, D-record per cloud dot,
//	          each wrapping an I-record (identity) and N-record (seq)
//	kernel    C-record (context) then E-records, each wrapping
//	          I, N and X-records (identity, seq, value)

var ErrBadRecord = errors.New("crdt: bad TLV record")

// IdentityCodec zips replica identities for the wire. Injected, since
// the CRDT layer is generic over the identity type.
type IdentityCodec[I constraints.Ordered] interface {
	Zip(id I) []byte
	Unzip(zip []byte) (I, error)
}

// ValueCodec zips kernel payload values.
type ValueCodec[V comparable] interface {
	Zip(v V) []byte
	Unzip(zip []byte) (V, error)
}

// Uint64Identity codes uint64 replica sources.
type Uint64Identity struct{}

func (Uint64Identity) Zip(id uint64) []byte {
	return ZipUint64(id)
}

func (Uint64Identity) Unzip(zip []byte) (uint64, error) {
	if len(zip) > 8 {
		return 0, ErrBadRecord
	}
	return UnzipUint64(zip), nil
}

// StringValue codes string kernel payloads.
type StringValue struct{}

func (StringValue) Zip(v string) []byte {
	return []byte(v)
}

func (StringValue) Unzip(zip []byte) (string, error) {
	return string(zip), nil
}

func appendDot[I constraints.Ordered](ret []byte, lit byte, ic IdentityCodec[I], dot Dot[I]) []byte {
	return toytlv.Append(ret, lit, toytlv.Concat(
		toytlv.Record('I', ic.Zip(dot.Src)),
		toytlv.Record('N', ZipUint64(dot.Seq)),
	))
}

func takeDot[I constraints.Ordered](ic IdentityCodec[I], body []byte) (dot Dot[I], err error) {
	idz, rest, err := toytlv.TakeWary('I', body)
	if err != nil {
		return
	}
	seqz, _, err := toytlv.TakeWary('N', rest)
	if err != nil {
		return
	}
	dot.Src, err = ic.Unzip(idz)
	dot.Seq = UnzipUint64(seqz)
	return
}

// ContextTLV serializes the context in canonical order.
func ContextTLV[I constraints.Ordered](cc *CausalContext[I], ic IdentityCodec[I]) (ret []byte) {
	for _, src := range cc.Sources() {
		ret = appendDot(ret, 'V', ic, Dot[I]{Src: src, Seq: cc.vv[src]})
	}
	for _, dot := range cc.Dots() {
		ret = appendDot(ret, 'D', ic, dot)
	}
	return
}

// ContextFromTLV restores a context. The restored context answers
// Contains exactly as the saved one did.
func ContextFromTLV[I constraints.Ordered](tlv []byte, ic IdentityCodec[I]) (*CausalContext[I], error) {
	cc := NewCausalContext[I]()
	rest := tlv
	for len(rest) > 0 {
		body, next := toytlv.Take('V', rest)
		if body == nil {
			break
		}
		dot, err := takeDot(ic, body)
		if err != nil {
			return nil, err
		}
		cc.vv[dot.Src] = dot.Seq
		rest = next
	}
	for len(rest) > 0 {
		body, next, err := toytlv.TakeWary('D', rest)
		if err != nil {
			return nil, err
		}
		dot, err := takeDot(ic, body)
		if err != nil {
			return nil, err
		}
		cc.Insert(dot, false)
		rest = next
	}
	cc.Compact()
	return cc, nil
}

// KernelTLV serializes a kernel's full state: context first, then the
// differential.
func KernelTLV[I constraints.Ordered, V comparable](k *DotKernel[I, V], ic IdentityCodec[I], vc ValueCodec[V]) (ret []byte) {
	ret = toytlv.Append(ret, 'C', ContextTLV(k.ctx, ic))
	for _, dot := range k.sortedDots() {
		ret = toytlv.Append(ret, 'E', toytlv.Concat(
			toytlv.Record('I', ic.Zip(dot.Src)),
			toytlv.Record('N', ZipUint64(dot.Seq)),
			toytlv.Record('X', vc.Zip(k.dots[dot])),
		))
	}
	return
}

// KernelFromTLV restores a kernel saved by KernelTLV.
func KernelFromTLV[I constraints.Ordered, V comparable](tlv []byte, ic IdentityCodec[I], vc ValueCodec[V]) (*DotKernel[I, V], error) {
	ctlv, rest, err := toytlv.TakeWary('C', tlv)
	if err != nil {
		return nil, err
	}
	ctx, err := ContextFromTLV(ctlv, ic)
	if err != nil {
		return nil, err
	}
	k := NewDotKernelWith[I, V](ctx)
	for len(rest) > 0 {
		var body []byte
		body, rest, err = toytlv.TakeWary('E', rest)
		if err != nil {
			return nil, err
		}
		dot, err := takeDot(ic, body)
		if err != nil {
			return nil, err
		}
		_, erest := toytlv.Take('I', body)
		_, erest = toytlv.Take('N', erest)
		valz, _ := toytlv.Take('X', erest)
		if valz == nil {
			return nil, ErrBadRecord
		}
		val, err := vc.Unzip(valz)
		if err != nil {
			return nil, err
		}
		if !k.ctx.Contains(dot) {
			return nil, ErrBadRecord
		}
		k.dots[dot] = val
	}
	return k, nil
}

type tokenCodec[V comparable] struct {
	vc ValueCodec[V]
}

func (tc tokenCodec[V]) Zip(tok Token[V]) []byte {
	flag := byte(0)
	if tok.Present {
		flag = 1
	}
	return append([]byte{flag}, tc.vc.Zip(tok.Value)...)
}

func (tc tokenCodec[V]) Unzip(zip []byte) (tok Token[V], err error) {
	if len(zip) == 0 || zip[0] > 1 {
		return tok, ErrBadRecord
	}
	tok.Present = zip[0] == 1
	tok.Value, err = tc.vc.Unzip(zip[1:])
	return
}

// SetTLV serializes a remove-wins set's full state.
func SetTLV[I constraints.Ordered, V comparable](s *RWORSet[I, V], ic IdentityCodec[I], vc ValueCodec[V]) []byte {
	return KernelTLV(s.kernel, ic, tokenCodec[V]{vc: vc})
}

// SetFromTLV restores a set saved by SetTLV for the given replica.
func SetFromTLV[I constraints.Ordered, V comparable](tlv []byte, src I, ic IdentityCodec[I], vc ValueCodec[V]) (*RWORSet[I, V], error) {
	k, err := KernelFromTLV(tlv, ic, tokenCodec[V]{vc: vc})
	if err != nil {
		return nil, err
	}
	return &RWORSet[I, V]{kernel: k, src: src}, nil
}

func (k *DotKernel[I, V]) sortedDots() []Dot[I] {
	dots := make([]Dot[I], 0, len(k.dots))
	for dot := range k.dots {
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
