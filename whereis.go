// Package whereis tracks which machines in a cluster hold which
// pieces of content. The local tier is a pebble database whose merge
// operator joins location entries the CRDT way, so registrations can
// be blind writes; the global tier is reached through a client
// interface and reconciled into the local view on read.
package whereis

import (
	"bytes"
	"encoding/hex"

	"github.com/cespare/xxhash"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Hash is a content digest, the key of the location namespace.
type Hash uint64

// HashOf digests blob contents.
func HashOf(data []byte) Hash {
	return Hash(xxhash.Sum64(data))
}

func (h Hash) String() string {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(h >> (56 - 8*i))
	}
	return hex.EncodeToString(buf[:])
}

// MachineID identifies one machine of the cluster.
type MachineID uuid.UUID

var NoMachine = MachineID{}

// RandomMachineID mints a fresh machine identity.
func RandomMachineID() MachineID {
	return MachineID(uuid.New())
}

func (m MachineID) String() string {
	return uuid.UUID(m).String()
}

func (m MachineID) Less(other MachineID) bool {
	return bytes.Compare(m[:], other[:]) < 0
}

// BlobInfo is what a machine announces per blob it holds.
type BlobInfo struct {
	Hash Hash
	Size uint64
}

var ErrGlobalUnavailable = errors.New("whereis: global store unavailable")
var ErrBlobNotFound = errors.New("whereis: blob not found")
var ErrBadEntry = errors.New("whereis: bad location entry record")
