package whereis

import (
	"io"
	"slices"

	"github.com/cockroachdb/pebble"
)

// The pebble merge operator joins serialized entries at read and
// compaction time. Registrations are therefore blind writes: nobody
// reads-modifies-writes an entry, the semilattice merge settles
// concurrent updates whatever order the log replays them in.

type entryMergeAdaptor struct {
	old  bool
	vals [][]byte
}

func (a *entryMergeAdaptor) MergeNewer(value []byte) error {
	target := make([]byte, len(value))
	copy(target, value)
	a.vals = append(a.vals, target)
	return nil
}

func (a *entryMergeAdaptor) MergeOlder(value []byte) error {
	target := make([]byte, len(value))
	copy(target, value)
	a.vals = append(a.vals, target)
	a.old = true
	return nil
}

func (a *entryMergeAdaptor) Finish(includesBase bool) (res []byte, cl io.Closer, err error) {
	if a.old {
		slices.Reverse(a.vals)
	}
	if len(a.vals) == 0 {
		return nil, nil, nil
	}
	merged, err := EntryFromTLV(a.vals[0])
	if err != nil {
		return nil, nil, err
	}
	for _, val := range a.vals[1:] {
		next, err := EntryFromTLV(val)
		if err != nil {
			return nil, nil, err
		}
		merged.Merge(next)
	}
	return merged.TLV(), nil, nil
}

func entryMerger(key, value []byte) (pebble.ValueMerger, error) {
	a := &entryMergeAdaptor{}
	if err := a.MergeNewer(value); err != nil {
		return nil, err
	}
	return a, nil
}

var locationMerger = &pebble.Merger{
	Name:  "whereis.locations",
	Merge: entryMerger,
}
