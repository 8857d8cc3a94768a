// Package xorfilter implements a compact XOR8 probabilistic set filter,
// used to answer Interrogation's URN-set query without transmitting the
// full set of known URNs.
//
// No third-party implementation of this data structure appears among
// the retrieved examples, so it is built here directly on the hash
// primitives the rest of the module already uses.
package xorfilter

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zeebo/blake3"
)

const maxBuildIterations = 100

// Filter is an immutable, constructed XOR8 filter over a fixed key set.
// Contains reports true for every key in the set it was built from, and
// false for a key not in the set with probability roughly 1/256.
type Filter struct {
	seed         uint64
	blockLength  uint32
	fingerprints []uint8
}

// Build constructs a Filter containing exactly the given 64-bit keys.
// Callers should hash their domain values (e.g. a URN string) down to a
// uint64 with Hash64 before calling Build.
func Build(keys []uint64) (*Filter, error) {
	size := uint32(len(keys))
	capacity := uint32(32 + int(math.Ceil(1.23*float64(size))))
	capacity = (capacity + 2) / 3 * 3
	if capacity < 3 {
		capacity = 3
	}
	blockLength := capacity / 3

	var seed uint64 = 1
	for iter := 0; iter < maxBuildIterations; iter++ {
		f := &Filter{seed: seed, blockLength: blockLength}
		fp, ok := f.tryBuild(keys)
		if ok {
			f.fingerprints = fp
			return f, nil
		}
		seed = splitmix64(seed)
	}
	return nil, fmt.Errorf("xorfilter: failed to construct filter after %d iterations", maxBuildIterations)
}

type xorSlot struct {
	count uint32
	xor   uint64
}

func (f *Filter) hashes(key uint64) [3]uint32 {
	h := mix(key, f.seed)
	bl := f.blockLength
	return [3]uint32{
		reduce(uint32(h), bl),
		bl + reduce(uint32(h>>21), bl),
		2*bl + reduce(uint32(h>>42), bl),
	}
}

func (f *Filter) tryBuild(keys []uint64) ([]uint8, bool) {
	capacity := 3 * f.blockLength
	slots := make([]xorSlot, capacity)

	for _, k := range keys {
		for _, idx := range f.hashes(k) {
			slots[idx].count++
			// XOR-accumulating the original key (not its mix) lets a
			// slot with count==1 recover exactly that key.
			slots[idx].xor ^= k
		}
	}

	var queue []uint32
	for i := uint32(0); i < capacity; i++ {
		if slots[i].count == 1 {
			queue = append(queue, i)
		}
	}

	type peeled struct {
		slot uint32
		key  uint64
	}
	order := make([]peeled, 0, len(keys))

	for len(queue) > 0 {
		idx := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if slots[idx].count != 1 {
			continue
		}
		k := slots[idx].xor
		order = append(order, peeled{slot: idx, key: k})

		for _, other := range f.hashes(k) {
			slots[other].count--
			slots[other].xor ^= k
			if slots[other].count == 1 {
				queue = append(queue, other)
			}
		}
	}

	if len(order) != len(keys) {
		return nil, false
	}

	fp := make([]uint8, capacity)
	for i := len(order) - 1; i >= 0; i-- {
		p := order[i]
		var x uint64
		for _, idx := range f.hashes(p.key) {
			x ^= uint64(fp[idx])
		}
		fp[p.slot] = fingerprint(mix(p.key, f.seed)) ^ uint8(x)
	}

	return fp, true
}

// Contains reports whether key is (probably) a member of the set the
// filter was built from.
func (f *Filter) Contains(key uint64) bool {
	h := mix(key, f.seed)
	fpv := fingerprint(h)
	var x uint8
	for _, idx := range f.hashes(key) {
		x ^= f.fingerprints[idx]
	}
	return x == fpv
}

// Hash64 hashes an arbitrary byte string (e.g. a URN's wire form) down
// to the uint64 key space Build/Contains operate on.
func Hash64(data []byte) uint64 {
	sum := blake3.Sum256(data)
	return binary.LittleEndian.Uint64(sum[:8])
}

// Data is the wire-transferable form of a Filter: its three unexported
// fields, laid bare for CBOR framing.
type Data struct {
	Seed         uint64
	BlockLength  uint32
	Fingerprints []uint8
}

// Marshal returns f's wire form.
func (f *Filter) Marshal() Data {
	return Data{Seed: f.seed, BlockLength: f.blockLength, Fingerprints: f.fingerprints}
}

// FromData reconstructs a Filter previously produced by Marshal.
func FromData(d Data) *Filter {
	return &Filter{seed: d.Seed, blockLength: d.BlockLength, fingerprints: d.Fingerprints}
}

func mix(key, seed uint64) uint64 {
	return splitmix64(key ^ seed)
}

func fingerprint(h uint64) uint8 {
	return uint8(h) ^ uint8(h>>8) ^ uint8(h>>16) ^ uint8(h>>24)
}

func reduce(hash, n uint32) uint32 {
	return uint32((uint64(hash) * uint64(n)) >> 32)
}

func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	z := x
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}
