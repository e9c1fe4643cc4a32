package whereis

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

// GlobalClient is the boundary to a remote location tier (the
// cluster-wide store or a build ring). Implementations perform the
// actual RPC; every call honors the context and reports expected
// failure modes as errors, never panics. GetBulk answers are size
// preserving, missing hashes come back as sentinels.
type GlobalClient interface {
	GetBulk(ctx context.Context, hashes []Hash) ([]Entry, error)
	RegisterLocation(ctx context.Context, machine MachineID, blobs []BlobInfo) error
	PutBlob(ctx context.Context, data []byte) (BlobInfo, error)
	GetBlob(ctx context.Context, h Hash) ([]byte, error)
}

// MemGlobal is an in-process global tier: an explicitly constructed
// handle with its own lifecycle, shared by whichever stores are wired
// to it. It backs tests and single-process rings; the entry merge is
// the same semilattice the real tier applies.
type MemGlobal struct {
	entries *xsync.MapOf[Hash, Entry]
	blobs   *xsync.MapOf[Hash, []byte]
}

func NewMemGlobal() *MemGlobal {
	return &MemGlobal{
		entries: xsync.NewMapOf[Hash, Entry](),
		blobs:   xsync.NewMapOf[Hash, []byte](),
	}
}

func (g *MemGlobal) GetBulk(ctx context.Context, hashes []Hash) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ret := make([]Entry, 0, len(hashes))
	for _, h := range hashes {
		if e, ok := g.entries.Load(h); ok {
			ret = append(ret, e.Clone())
		} else {
			ret = append(ret, MissingEntry(h))
		}
	}
	return ret, nil
}

func (g *MemGlobal) RegisterLocation(ctx context.Context, machine MachineID, blobs []BlobInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if machine == NoMachine {
		panic("whereis: zero machine id")
	}
	for _, blob := range blobs {
		next := Entry{Hash: blob.Hash, Size: blob.Size}
		next.Add(machine)
		g.merge(next)
	}
	return nil
}

func (g *MemGlobal) merge(next Entry) {
	g.entries.Compute(next.Hash, func(old Entry, loaded bool) (Entry, bool) {
		if !loaded {
			return next.Clone(), false
		}
		merged := old.Clone()
		merged.Merge(next)
		return merged, false
	})
}

func (g *MemGlobal) PutBlob(ctx context.Context, data []byte) (BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return BlobInfo{}, err
	}
	h := HashOf(data)
	stored := make([]byte, len(data))
	copy(stored, data)
	g.blobs.Store(h, stored)
	return BlobInfo{Hash: h, Size: uint64(len(data))}, nil
}

func (g *MemGlobal) GetBlob(ctx context.Context, h Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, ok := g.blobs.Load(h)
	if !ok {
		return nil, ErrBlobNotFound
	}
	ret := make([]byte, len(data))
	copy(ret, data)
	return ret, nil
}
