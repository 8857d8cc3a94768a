// Package rpc implements the Unix-socket control API a client process
// (the CLI, a hook) uses to ask the running peer daemon to announce a
// new revision or pull from a tracked remote.
package rpc

import "github.com/radicle-link/linkd/internal/urn"

// RequestKind distinguishes the two control-plane requests the socket
// accepts.
type RequestKind int

const (
	// RequestAnnounce asks the daemon to gossip a local update.
	RequestAnnounce RequestKind = iota
	// RequestPull asks the daemon to replicate from a specific peer
	// immediately, rather than waiting for a gossip announcement.
	RequestPull
)

// Request is the envelope sent over the request socket, framed with
// internal/codec's length-prefixed CBOR.
type Request struct {
	Kind     RequestKind
	URN      urn.URN
	Revision string
	Peer     string
}

// Response answers a Request. A non-empty Error is terminal: the
// client must treat the underlying stream as closed and is not
// expected to retry on it.
type Response struct {
	Error string
}

// Event is a single entry on the event socket, a push-only stream of
// replication outcomes the daemon emits for observers (hooks, the CLI
// "watch" command).
type Event struct {
	URN       urn.URN
	Peer      string
	Succeeded bool
	Detail    string
}
