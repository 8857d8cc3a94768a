package transport

import (
	"fmt"
	"io"

	"github.com/multiformats/go-multistream"
)

// Protocol identifies one of the control-plane sub-protocols
// multiplexed over a single ALPN-negotiated QUIC connection.
type Protocol string

const (
	ProtocolGossip        Protocol = "/rad/gossip/2"
	ProtocolMembership     Protocol = "/rad/membership/2"
	ProtocolGit            Protocol = "/rad/git/2"
	ProtocolInterrogation  Protocol = "/rad/interrogation/2"
	ProtocolRequestPull    Protocol = "/rad/pull/2"
)

// AllProtocols lists every protocol a server-side Mux registers a
// handler for.
var AllProtocols = []Protocol{
	ProtocolGossip,
	ProtocolMembership,
	ProtocolGit,
	ProtocolInterrogation,
	ProtocolRequestPull,
}

// Handler processes one upgraded stream for a negotiated protocol.
type Handler func(proto Protocol, stream io.ReadWriteCloser) error

// Mux wraps a multistream-select muxer, dispatching each newly opened
// stream to the handler registered for the protocol the remote
// selected.
type Mux struct {
	inner *multistream.MultistreamMuxer[string]
}

// NewMux creates an empty Mux; call Handle for each protocol before
// calling Negotiate on incoming streams.
func NewMux() *Mux {
	return &Mux{inner: multistream.NewMultistreamMuxer[string]()}
}

// Handle registers h to run whenever a stream negotiates proto.
func (m *Mux) Handle(proto Protocol, h Handler) {
	m.inner.AddHandler(string(proto), func(protoID string, rwc io.ReadWriteCloser) error {
		return h(Protocol(protoID), rwc)
	})
}

// Negotiate performs the server side of multistream-select on rwc,
// dispatching to the matched handler and returning its error.
func (m *Mux) Negotiate(rwc io.ReadWriteCloser) error {
	return m.inner.Handle(rwc)
}

// Dial performs the client side of multistream-select: it proposes
// proto (and only proto) to the remote over rwc and returns an error
// if the remote does not support it.
func Dial(rwc io.ReadWriteCloser, proto Protocol) error {
	selected, err := multistream.SelectOneOf([]string{string(proto)}, rwc)
	if err != nil {
		return fmt.Errorf("transport: negotiate protocol %s: %w", proto, err)
	}
	if selected != string(proto) {
		return fmt.Errorf("transport: unexpected protocol selected: %s", selected)
	}
	return nil
}
