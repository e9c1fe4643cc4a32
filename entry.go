package whereis

import (
	"bytes"
	"slices"
)

// Entry is the materialized location record for one hash: the set of
// machines known to hold it plus access metadata. A nil or empty
// machine set is the explicit "no known locations" state; lookups
// never omit a hash from their result, they return such a sentinel.
//
// Merge is commutative, associative and idempotent: machine sets
// union, metadata takes the max. That keeps it joinable in any order,
// by the local merge operator and by the global tier alike.
type Entry struct {
	Hash       Hash
	Size       uint64
	LastAccess uint64 // unix seconds
	Machines   map[MachineID]struct{}
}

// MissingEntry is the "no known locations" sentinel for the hash.
func MissingEntry(h Hash) Entry {
	return Entry{Hash: h}
}

func (e *Entry) Missing() bool {
	return len(e.Machines) == 0
}

// Add records a machine as a holder. Idempotent.
func (e *Entry) Add(m MachineID) {
	if m == NoMachine {
		panic("whereis: zero machine id")
	}
	if e.Machines == nil {
		e.Machines = make(map[MachineID]struct{})
	}
	e.Machines[m] = struct{}{}
}

// Merge joins another entry for the same hash into this one.
// Entries for different hashes never meet; that would be a caller
// bug, not a data condition.
func (e *Entry) Merge(other Entry) {
	if e.Hash != other.Hash {
		panic("whereis: merging entries of different hashes")
	}
	for m := range other.Machines {
		if e.Machines == nil {
			e.Machines = make(map[MachineID]struct{}, len(other.Machines))
		}
		e.Machines[m] = struct{}{}
	}
	if other.Size > e.Size {
		e.Size = other.Size
	}
	if other.LastAccess > e.LastAccess {
		e.LastAccess = other.LastAccess
	}
}

// Clone returns a fully independent copy.
func (e Entry) Clone() Entry {
	ret := e
	if e.Machines != nil {
		ret.Machines = make(map[MachineID]struct{}, len(e.Machines))
		for m := range e.Machines {
			ret.Machines[m] = struct{}{}
		}
	}
	return ret
}

// MachineList returns the holders in canonical order.
func (e Entry) MachineList() []MachineID {
	ms := make([]MachineID, 0, len(e.Machines))
	for m := range e.Machines {
		ms = append(ms, m)
	}
	slices.SortFunc(ms, func(a, b MachineID) int {
		return bytes.Compare(a[:], b[:])
	})
	return ms
}
