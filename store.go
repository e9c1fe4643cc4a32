package whereis

import (
	"context"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/cockroachdb/pebble"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/buildxl-team-collab/whereis/utils"
)

// Origin selects which tier a lookup is satisfied from.
type Origin int

const (
	// OriginLocal consults only the on-disk view.
	OriginLocal Origin = iota
	// OriginBuildRing additionally queries the ring-scoped tier.
	OriginBuildRing
	// OriginGlobal additionally queries the cluster-wide tier.
	OriginGlobal
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginBuildRing:
		return "buildring"
	case OriginGlobal:
		return "global"
	}
	return "unknown"
}

type Options struct {
	// Dir is the pebble database directory.
	Dir string
	// Global reaches the cluster-wide location tier; nil means the
	// store runs local-only and OriginGlobal lookups fail soft.
	Global GlobalClient
	// Ring reaches the build-ring tier; falls back to Global when nil.
	Ring GlobalClient

	Logger     utils.Logger
	Registerer prometheus.Registerer
	// Now supplies last-access stamps, unix seconds.
	Now func() uint64
	// CacheSize bounds the hot entry cache in front of pebble.
	CacheSize int
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
	if o.CacheSize == 0 {
		o.CacheSize = 8192
	}
	if o.Now == nil {
		o.Now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	if o.Ring == nil {
		o.Ring = o.Global
	}
}

// Store is the machine-local content location store: a pebble
// database of merged entries under a CRDT merge operator, an LRU of
// hot entries in front of it, plus clients for the remote tiers.
// Every merge write invalidates the cached entry. All remote calls
// are bounded by the caller's context; a failed or cancelled remote
// call never leaves a partial local merge behind.
type Store struct {
	db      *pebble.DB
	opts    Options
	log     utils.Logger
	cache   *lru.Cache[Hash, Entry]
	metrics *storeMetrics
}

// Open opens (or creates) the local database.
func Open(opts Options) (*Store, error) {
	opts.SetDefaults()
	db, err := pebble.Open(opts.Dir, &pebble.Options{
		Merger: locationMerger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "whereis: open local store")
	}
	cache, _ := lru.New[Hash, Entry](opts.CacheSize)
	s := &Store{
		db:      db,
		opts:    opts,
		log:     opts.Logger,
		cache:   cache,
		metrics: newStoreMetrics(opts.Registerer, db),
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Database exposes the underlying pebble instance for collectors and
// maintenance tooling.
func (s *Store) Database() *pebble.DB {
	return s.db
}

func entryKey(h Hash) []byte {
	var key [9]byte
	key[0] = 'L'
	binary.BigEndian.PutUint64(key[1:], uint64(h))
	return key[:]
}

// GetBulk resolves one entry per input hash, same order, size
// preserving; unknown hashes come back as the explicit missing
// sentinel. Non-local origins query the remote tier, merge its
// answers into the local ones and persist the repair back, so the
// next local lookup already knows. Remote failure or cancellation
// surfaces as ErrGlobalUnavailable and leaves local state untouched.
func (s *Store) GetBulk(ctx context.Context, hashes []Hash, origin Origin) ([]Entry, error) {
	local, err := s.readLocal(hashes)
	if err != nil {
		return nil, err
	}
	if origin == OriginLocal {
		return local, nil
	}

	client := s.opts.Global
	if origin == OriginBuildRing {
		client = s.opts.Ring
	}
	if client == nil {
		return nil, errors.Wrapf(ErrGlobalUnavailable, "no %s tier configured", origin)
	}

	s.metrics.remoteCalls.Inc()
	remote, err := client.GetBulk(ctx, hashes)
	if err != nil {
		s.metrics.remoteFailures.Inc()
		s.log.Warn("remote lookup failed", "origin", origin.String(), "err", err)
		return nil, errors.Wrapf(ErrGlobalUnavailable, "get bulk from %s: %v", origin, err)
	}
	if len(remote) != len(hashes) {
		s.metrics.remoteFailures.Inc()
		return nil, errors.Wrapf(ErrGlobalUnavailable, "get bulk from %s: got %d entries for %d hashes", origin, len(remote), len(hashes))
	}

	for i := range hashes {
		if remote[i].Hash != hashes[i] {
			s.metrics.remoteFailures.Inc()
			return nil, errors.Wrapf(ErrGlobalUnavailable, "get bulk from %s: entry %d is for %s, wanted %s", origin, i, remote[i].Hash, hashes[i])
		}
		if remote[i].Missing() {
			continue
		}
		local[i].Merge(remote[i])
		// read repair: the merge operator folds it into the stored entry
		if err := s.db.Merge(entryKey(hashes[i]), remote[i].TLV(), pebble.NoSync); err != nil {
			return nil, errors.Wrap(err, "whereis: read repair")
		}
		s.cache.Remove(hashes[i])
		s.metrics.readRepairs.Inc()
	}
	return local, nil
}

func (s *Store) readLocal(hashes []Hash) ([]Entry, error) {
	ret := make([]Entry, 0, len(hashes))
	for _, h := range hashes {
		if e, ok := s.cache.Get(h); ok {
			ret = append(ret, e.Clone())
			continue
		}
		val, closer, err := s.db.Get(entryKey(h))
		if err == pebble.ErrNotFound {
			ret = append(ret, MissingEntry(h))
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "whereis: local lookup")
		}
		e, perr := EntryFromTLV(val)
		_ = closer.Close()
		if perr != nil {
			return nil, perr
		}
		s.cache.Add(h, e.Clone())
		ret = append(ret, e)
	}
	return ret, nil
}

// RegisterLocation announces that the machine holds the given blobs:
// the local view is merged optimistically first, then the global tier
// is told. A global failure is reported but leaves the local merge in
// place, to be reconciled on the next successful contact. Registering
// the same (machine, hash) pair again changes nothing.
func (s *Store) RegisterLocation(ctx context.Context, machine MachineID, blobs []BlobInfo) error {
	if machine == NoMachine {
		panic("whereis: zero machine id")
	}
	now := s.opts.Now()
	for _, blob := range blobs {
		e := Entry{Hash: blob.Hash, Size: blob.Size, LastAccess: now}
		e.Add(machine)
		if err := s.db.Merge(entryKey(blob.Hash), e.TLV(), pebble.Sync); err != nil {
			return errors.Wrap(err, "whereis: register local")
		}
		s.cache.Remove(blob.Hash)
	}
	s.metrics.registrations.Add(float64(len(blobs)))

	if s.opts.Global == nil {
		return errors.Wrap(ErrGlobalUnavailable, "no global tier configured")
	}
	if err := s.opts.Global.RegisterLocation(ctx, machine, blobs); err != nil {
		s.metrics.remoteFailures.Inc()
		s.log.Warn("global registration failed, local view kept",
			"machine", machine.String(), "blobs", len(blobs), "err", err)
		return errors.Wrapf(ErrGlobalUnavailable, "register location: %v", err)
	}
	return nil
}

// RegisterEntries merges pre-built entries into the local view; used
// by reconciliation sweeps replaying another tier's state.
func (s *Store) RegisterEntries(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.Missing() {
			continue
		}
		if err := s.db.Merge(entryKey(e.Hash), e.TLV(), pebble.NoSync); err != nil {
			return errors.Wrap(err, "whereis: register entries")
		}
		s.cache.Remove(e.Hash)
	}
	return nil
}
