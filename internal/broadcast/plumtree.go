package broadcast

import (
	"sync"
	"time"

	"github.com/radicle-link/linkd/internal/peerid"
)

// TickKind distinguishes the side-effects a Tree computation asks the
// runtime to carry out.
type TickKind int

const (
	// TickEagerPush asks the runtime to forward the full payload to Peer.
	TickEagerPush TickKind = iota
	// TickLazyPush asks the runtime to send only the payload's
	// fingerprint (an "ihave") to Peer.
	TickLazyPush
	// TickGraft asks the runtime to request the full payload from Peer
	// after a lazy announcement revealed a message this tree hasn't
	// seen yet.
	TickGraft
	// TickPrune asks the runtime to tell Peer to stop eager-pushing to
	// us on this tree, demoting it to a lazy peer.
	TickPrune
	// TickDeliver asks the runtime to deliver a newly-received, not
	// previously-seen payload to local storage.
	TickDeliver
	// TickReAsk asks the runtime to schedule a retry: local storage
	// could not apply the payload (Outcome Error), so the runtime
	// should re-request it from Peer after a backoff rather than
	// silently dropping it.
	TickReAsk
)

// Tick is a single instruction produced by Tree.Receive or
// Tree.Broadcast.
type Tick struct {
	Kind    TickKind
	Peer    peerid.PeerId
	Payload Payload
	// Err carries the storage failure behind a TickReAsk; nil for
	// every other Kind.
	Err error
}

// Tree implements the Plumtree eager/lazy push algorithm over a fixed
// notion of "current neighbours" supplied by the membership layer.
// It classifies each neighbour as eager or lazy; any peer whose eager
// push turns out to be a duplicate is pruned, whichever peer delivered
// the payload first.
type Tree struct {
	mu sync.Mutex

	self    peerid.PeerId
	nonces  *NonceBag
	storage LocalStorage

	eagerPeers map[string]bool
	lazyPeers  map[string]bool
}

// NewTree creates a Tree that dedups against a fresh NonceBag with the
// given TTL and stores delivered payloads via storage.
func NewTree(self peerid.PeerId, nonceTTL time.Duration, storage LocalStorage) *Tree {
	return &Tree{
		self:       self,
		nonces:     NewNonceBag(nonceTTL, nil),
		storage:    storage,
		eagerPeers: make(map[string]bool),
		lazyPeers:  make(map[string]bool),
	}
}

// SetPeers replaces the current eager/lazy peer classification,
// typically called whenever the membership active view changes:
// every active peer starts out eager.
func (t *Tree) SetPeers(active []peerid.PeerId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.eagerPeers = make(map[string]bool, len(active))
	for _, p := range active {
		t.eagerPeers[p.String()] = true
	}
}

// Broadcast originates a new payload locally, eager-pushing it to
// every current eager peer.
func (t *Tree) Broadcast(p Payload) []Tick {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nonces.Observe(p.fingerprint())

	var ticks []Tick
	for key := range t.eagerPeers {
		ticks = append(ticks, Tick{Kind: TickEagerPush, Peer: peerIDFromKey(key), Payload: p})
	}
	return ticks
}

// Receive processes an eager-pushed payload arriving from from. An
// exact duplicate (same fingerprint already observed) prunes the
// sender outright, since it is apparently not on the shortest path
// from the origin. Otherwise the payload is hit against local
// storage, and its Outcome decides how Receive propagates it:
//
//   - Applied: re-attributed to from (the peer now known to actually
//     hold it) and delivered locally, then fanned out eagerly/lazily.
//   - Stale: local state already covers this revision; suppressed,
//     not re-broadcast at all.
//   - Uninteresting: fanned out unmodified, with nothing delivered
//     locally.
//   - Error: fanned out unmodified, plus a TickReAsk so the runtime
//     retries fetching it rather than dropping it silently.
func (t *Tree) Receive(p Payload, from peerid.PeerId) []Tick {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.nonces.Observe(p.fingerprint()) {
		return []Tick{{Kind: TickPrune, Peer: from}}
	}

	t.promoteLocked(from)

	outcome, err := t.storage.Put(p)
	switch outcome {
	case Stale:
		return nil

	case Applied:
		applied := p
		applied.Origin = &from
		ticks := []Tick{{Kind: TickDeliver, Peer: from, Payload: applied}}
		return append(ticks, t.fanoutLocked(applied, from)...)

	case Error:
		ticks := t.fanoutLocked(p, from)
		return append(ticks, Tick{Kind: TickReAsk, Peer: from, Payload: p, Err: err})

	default: // Uninteresting
		return t.fanoutLocked(p, from)
	}
}

// fanoutLocked re-pushes p eagerly to every eager peer and lazily to
// every lazy peer, excluding from. Caller must hold t.mu.
func (t *Tree) fanoutLocked(p Payload, from peerid.PeerId) []Tick {
	var ticks []Tick
	for key := range t.eagerPeers {
		if key == from.String() {
			continue
		}
		ticks = append(ticks, Tick{Kind: TickEagerPush, Peer: peerIDFromKey(key), Payload: p})
	}
	for key := range t.lazyPeers {
		if key == from.String() {
			continue
		}
		ticks = append(ticks, Tick{Kind: TickLazyPush, Peer: peerIDFromKey(key), Payload: p})
	}
	return ticks
}

// ReceiveIHave processes a lazy "ihave" announcement: if the payload
// hasn't been seen yet, it grafts the sender (requests the eager
// payload and promotes it back to eager).
func (t *Tree) ReceiveIHave(p Payload, from peerid.PeerId) []Tick {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.nonces.Observe(p.fingerprint()) || t.storage.Has(p) {
		return nil
	}
	t.promoteLocked(from)
	return []Tick{{Kind: TickGraft, Peer: from, Payload: p}}
}

// ReceivePrune demotes from to a lazy peer.
func (t *Tree) ReceivePrune(from peerid.PeerId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.eagerPeers, from.String())
	t.lazyPeers[from.String()] = true
}

func (t *Tree) promoteLocked(p peerid.PeerId) {
	delete(t.lazyPeers, p.String())
	t.eagerPeers[p.String()] = true
}

func peerIDFromKey(key string) peerid.PeerId {
	p, err := peerid.Parse(key)
	if err != nil {
		return peerid.PeerId{}
	}
	return p
}
