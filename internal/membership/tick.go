package membership

import "github.com/radicle-link/linkd/internal/peerid"

// TickKind distinguishes the side-effects a View computation can ask
// the runtime to perform. View itself never opens a socket or starts
// a timer: it only returns Ticks, keeping the protocol's core logic
// pure and independently testable.
type TickKind int

const (
	// TickForget asks the runtime to drop any cached stream to Peer.
	TickForget TickKind = iota
	// TickConnect asks the runtime to open a new active connection to
	// Peer and, once established, feed the resulting transition back
	// into the View.
	TickConnect
	// TickReply asks the runtime to send Message back to Peer over
	// whatever stream it arrived on.
	TickReply
	// TickSend asks the runtime to open (or reuse) a connection to
	// Peer and send Message.
	TickSend
	// TickBroadcastAll asks the runtime to send Message to every peer
	// in Recipients, typically the current active view.
	TickBroadcastAll
)

// Tick is a single side-effect instruction produced by a View state
// transition.
type Tick struct {
	Kind       TickKind
	Peer       peerid.PeerId
	Message    any
	Recipients []peerid.PeerId
}

// Transition describes a change observed by the runtime's connection
// layer (a stream closing, a peer failing to answer a ping) that the
// View needs to fold into its state.
type TransitionKind int

const (
	// TransitionDemoted moves a peer from active to passive, usually
	// because the active view was full and a newcomer had priority.
	TransitionDemoted TransitionKind = iota
	// TransitionEvicted drops a peer entirely, typically after it
	// failed to respond to a Neighbour probe or its connection reset.
	TransitionEvicted
	// TransitionConnected reports that a previously-requested outbound
	// connection to a peer has completed.
	TransitionConnected
	// TransitionDisconnected reports that an active connection to a
	// peer was lost, independent of any protocol message.
	TransitionDisconnected
)

// Transition is fed into View.Apply to update membership state in
// response to a connection-layer event.
type Transition struct {
	Kind TransitionKind
	Peer peerid.PeerId
}

// transitionToTicks maps a Transition onto the Ticks the runtime must
// execute, mirroring the protocol's description of what a demotion or
// eviction implies for the wire.
func transitionToTicks(t Transition) []Tick {
	switch t.Kind {
	case TransitionDemoted:
		return []Tick{{Kind: TickSend, Peer: t.Peer, Message: Disconnect{Alive: true}}}
	case TransitionEvicted:
		return []Tick{{Kind: TickForget, Peer: t.Peer}}
	default:
		return nil
	}
}
