package whereis

import (
	"github.com/learn-decentralized-systems/toyqueue"
	"github.com/learn-decentralized-systems/toytlv"

	"github.com/buildxl-team-collab/whereis/crdt"
)

// Entry TLV layout, also the pebble value format:
//
//	H  hash (zipped uint64)
//	Z  (size, last access) zipped pair, unix seconds
//	M  one record per machine, raw 16-byte id, canonical order

// TLV serializes the entry.
func (e Entry) TLV() (ret []byte) {
	ret = toytlv.Append(ret, 'H', crdt.ZipUint64(uint64(e.Hash)))
	ret = toytlv.Append(ret, 'Z', crdt.ZipUint64Pair(e.Size, e.LastAccess))
	for _, m := range e.MachineList() {
		ret = toytlv.Append(ret, 'M', m[:])
	}
	return
}

// EntryFromTLV parses an entry saved by TLV.
func EntryFromTLV(tlv []byte) (e Entry, err error) {
	hz, rest, err := toytlv.TakeWary('H', tlv)
	if err != nil {
		return e, ErrBadEntry
	}
	e.Hash = Hash(crdt.UnzipUint64(hz))
	zz, rest, err := toytlv.TakeWary('Z', rest)
	if err != nil {
		return e, ErrBadEntry
	}
	e.Size, e.LastAccess = crdt.UnzipUint64Pair(zz)
	for len(rest) > 0 {
		var mz []byte
		mz, rest, err = toytlv.TakeWary('M', rest)
		if err != nil || len(mz) != len(MachineID{}) {
			return e, ErrBadEntry
		}
		var m MachineID
		copy(m[:], mz)
		if m == NoMachine {
			return e, ErrBadEntry
		}
		if e.Machines == nil {
			e.Machines = make(map[MachineID]struct{})
		}
		e.Machines[m] = struct{}{}
	}
	return e, nil
}

// EntriesTLV serializes a batch, one record per entry.
func EntriesTLV(entries []Entry) (recs toyqueue.Records) {
	for _, e := range entries {
		recs = append(recs, toytlv.Record('L', e.TLV()))
	}
	return
}

// EntriesFromTLV parses a batch saved by EntriesTLV.
func EntriesFromTLV(recs toyqueue.Records) (entries []Entry, err error) {
	for _, rec := range recs {
		body, _, err := toytlv.TakeWary('L', rec)
		if err != nil {
			return nil, ErrBadEntry
		}
		e, err := EntryFromTLV(body)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return
}
