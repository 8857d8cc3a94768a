package membership

import "github.com/radicle-link/linkd/internal/peerid"

// Kind tags which of the membership protocol's wire messages a Message
// carries; exactly one of Message's fields is meaningful for a given
// Kind.
type Kind int

const (
	KindJoin Kind = iota
	KindForwardJoin
	KindNeighbour
	KindNeighbourReply
	KindShuffle
	KindShuffleReply
	KindDisconnect
)

// Join is sent by a new peer to a contact it already knows about, to
// be admitted into the network.
type Join struct {
	Sender peerid.PeerId
}

// ForwardJoin propagates a join through the network, decrementing TTL
// at each hop; a peer that receives it with TTL 0 (or has too few
// active peers) adds the original joiner to its active view.
type ForwardJoin struct {
	Joiner peerid.PeerId
	TTL    int
}

// Neighbour requests that the recipient add the sender to its active
// view. High priority means the recipient must accept even if it has
// to evict someone else; it is used when a peer's active view is
// empty.
type Neighbour struct {
	Sender       peerid.PeerId
	HighPriority bool
}

// NeighbourReply answers a Neighbour request.
type NeighbourReply struct {
	Sender   peerid.PeerId
	Accepted bool
}

// Shuffle carries a small, TTL-bounded sample of a peer's active and
// passive views, exchanged periodically to keep passive views fresh.
type Shuffle struct {
	Sender peerid.PeerId
	Origin peerid.PeerId
	Nodes  []peerid.PeerId
	TTL    int
}

// ShuffleReply answers a Shuffle with a sample of the replier's own
// view, routed back to Origin.
type ShuffleReply struct {
	Nodes []peerid.PeerId
}

// Disconnect notifies a peer that the sender is dropping it from its
// active view, optionally asking to be kept in the recipient's passive
// view (Alive) rather than discarded outright.
type Disconnect struct {
	Sender peerid.PeerId
	Alive  bool
}

// Message wraps exactly one of the protocol's message kinds for
// dispatch in View.Receive. It carries no connection-level sender; the
// message kinds that need one name it in their own Sender field.
type Message struct {
	Kind           Kind
	Join           *Join
	ForwardJoin    *ForwardJoin
	Neighbour      *Neighbour
	NeighbourReply *NeighbourReply
	Shuffle        *Shuffle
	ShuffleReply   *ShuffleReply
	Disconnect     *Disconnect
}
