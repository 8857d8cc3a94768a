// Package broadcast implements a Plumtree-style epidemic broadcast
// tree layered over the membership protocol's active view: payloads
// are eagerly pushed along a spanning tree and lazily announced
// everywhere else, with redundant pushes pruned once a duplicate is
// observed.
package broadcast

import (
	"container/heap"
	"sync"
	"time"

	"github.com/radicle-link/linkd/internal/peerid"
)

// nonceEntry is one tracked fingerprint, due for expiry at deadline.
type nonceEntry struct {
	nonce    uint64
	deadline time.Time
	index    int
}

// nonceHeap is a min-heap on deadline, giving O(log n) expiry of the
// earliest-due entries.
type nonceHeap []*nonceEntry

func (h nonceHeap) Len() int            { return len(h) }
func (h nonceHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h nonceHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *nonceHeap) Push(x any)         { e := x.(*nonceEntry); e.index = len(*h); *h = append(*h, e) }
func (h *nonceHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// NonceBag deduplicates gossip fingerprints (URN + revision + origin
// hashed to a uint64) over a sliding TTL window, so a peer that sees
// the same broadcast twice through different branches of the tree can
// recognize and prune the redundant copy.
type NonceBag struct {
	mu      sync.Mutex
	ttl     time.Duration
	seen    map[uint64]*nonceEntry
	pending nonceHeap
	now     func() time.Time
}

// NewNonceBag creates a bag with the given TTL. now defaults to
// time.Now if nil; tests may override it for determinism.
func NewNonceBag(ttl time.Duration, now func() time.Time) *NonceBag {
	if now == nil {
		now = time.Now
	}
	return &NonceBag{
		ttl:     ttl,
		seen:    make(map[uint64]*nonceEntry),
		pending: nonceHeap{},
		now:     now,
	}
}

// Observe records nonce and reports whether it had already been seen
// (and is therefore a duplicate the caller should prune rather than
// re-broadcast). Expired entries are lazily compacted out on each
// call rather than on a separate timer.
func (b *NonceBag) Observe(nonce uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.compactLocked()

	if _, ok := b.seen[nonce]; ok {
		return true
	}

	e := &nonceEntry{nonce: nonce, deadline: b.now().Add(b.ttl)}
	b.seen[nonce] = e
	heap.Push(&b.pending, e)
	return false
}

func (b *NonceBag) compactLocked() {
	now := b.now()
	for b.pending.Len() > 0 && !b.pending[0].deadline.After(now) {
		e := heap.Pop(&b.pending).(*nonceEntry)
		delete(b.seen, e.nonce)
	}
}

// Len reports the number of live (non-expired) entries, for tests and
// diagnostics.
func (b *NonceBag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compactLocked()
	return len(b.seen)
}

// Fingerprint combines a payload's identifying fields into the uint64
// the bag tracks. origin may be the zero PeerId if unset.
func Fingerprint(urnStr string, revision string, origin peerid.PeerId) uint64 {
	h := fnvOffset
	for i := 0; i < len(urnStr); i++ {
		h ^= uint64(urnStr[i])
		h *= fnvPrime
	}
	for i := 0; i < len(revision); i++ {
		h ^= uint64(revision[i])
		h *= fnvPrime
	}
	originStr := origin.String()
	for i := 0; i < len(originStr); i++ {
		h ^= uint64(originStr[i])
		h *= fnvPrime
	}
	return h
}

const (
	fnvOffset uint64 = 14695981039346656037
	fnvPrime  uint64 = 1099511628211
)
