package runtime

import (
	"context"
	"fmt"
	"io"

	"github.com/quic-go/quic-go"

	"github.com/radicle-link/linkd/internal/broadcast"
	"github.com/radicle-link/linkd/internal/codec"
	"github.com/radicle-link/linkd/internal/membership"
	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/replication"
	"github.com/radicle-link/linkd/internal/rpc"
	"github.com/radicle-link/linkd/internal/transport"
	"github.com/radicle-link/linkd/internal/urn"
	"github.com/radicle-link/linkd/internal/xorfilter"
)

// registerProtocols binds every wire protocol this peer answers to an
// inbound-stream handler, so a negotiated stream of that kind is
// actually read and its messages folded into local state instead of
// being accepted and then left untouched.
func (p *Peer) registerProtocols() {
	p.mux.Handle(transport.ProtocolMembership, func(_ transport.Protocol, stream io.ReadWriteCloser) error {
		return p.serveMembershipStream(stream)
	})
	p.mux.Handle(transport.ProtocolGossip, func(_ transport.Protocol, stream io.ReadWriteCloser) error {
		return p.serveGossipStream(stream)
	})
	p.mux.Handle(transport.ProtocolGit, func(_ transport.Protocol, stream io.ReadWriteCloser) error {
		return p.handleGitStream(stream)
	})
	p.mux.Handle(transport.ProtocolRequestPull, func(_ transport.Protocol, stream io.ReadWriteCloser) error {
		return p.serveRequestPullStream(stream)
	})
	p.mux.Handle(transport.ProtocolInterrogation, func(_ transport.Protocol, stream io.ReadWriteCloser) error {
		return p.serveInterrogationStream(stream)
	})
}

// acceptStreams accepts every stream a connected remote opens over
// conn and negotiates its protocol, dispatching to whichever handler
// registerProtocols bound, until the connection itself closes.
func (p *Peer) acceptStreams(ctx context.Context, conn *quic.Conn, remote peerid.PeerId) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			p.log.Debug("connection closed", "peer", remote.String(), "error", err)
			return
		}
		go func(s *quic.Stream) {
			if err := p.mux.Negotiate(s); err != nil {
				p.log.Debug("protocol negotiation failed", "peer", remote.String(), "error", err)
			}
		}(stream)
	}
}

// toMembershipMessage wraps a Tick's raw payload (one of Join,
// ForwardJoin, Neighbour, NeighbourReply, Shuffle, ShuffleReply,
// Disconnect) into the tagged envelope membership.View.Receive
// expects on the wire.
func toMembershipMessage(msg any) (membership.Message, error) {
	switch v := msg.(type) {
	case membership.Join:
		return membership.Message{Kind: membership.KindJoin, Join: &v}, nil
	case membership.ForwardJoin:
		return membership.Message{Kind: membership.KindForwardJoin, ForwardJoin: &v}, nil
	case membership.Neighbour:
		return membership.Message{Kind: membership.KindNeighbour, Neighbour: &v}, nil
	case membership.NeighbourReply:
		return membership.Message{Kind: membership.KindNeighbourReply, NeighbourReply: &v}, nil
	case membership.Shuffle:
		return membership.Message{Kind: membership.KindShuffle, Shuffle: &v}, nil
	case membership.ShuffleReply:
		return membership.Message{Kind: membership.KindShuffleReply, ShuffleReply: &v}, nil
	case membership.Disconnect:
		return membership.Message{Kind: membership.KindDisconnect, Disconnect: &v}, nil
	default:
		return membership.Message{}, fmt.Errorf("runtime: unsupported membership message type %T", msg)
	}
}

// serveMembershipStream reads HyParView messages off stream until it
// closes, folding each into the View and dispatching the Ticks it
// produces exactly as a locally-originated tick would be. The message
// kinds that need a sender name it in their own Sender field, so no
// connection-level identity is threaded through the mux.
func (p *Peer) serveMembershipStream(stream io.ReadWriteCloser) error {
	for {
		var msg membership.Message
		if err := codec.ReadFrame(stream, &msg); err != nil {
			return err
		}
		p.dispatchTicks(p.view.Receive(msg))
	}
}

// serveGossipStream reads Plumtree tick frames off stream, applying
// each to the local Tree and dispatching whatever further Ticks it
// produces. frame.From carries the sender, mirroring how membership
// messages self-declare theirs.
func (p *Peer) serveGossipStream(stream io.ReadWriteCloser) error {
	for {
		var frame gossipFrame
		if err := codec.ReadFrame(stream, &frame); err != nil {
			return err
		}
		switch frame.Kind {
		case broadcast.TickEagerPush:
			p.dispatchBroadcast(p.tree.Receive(frame.Payload, frame.From))
		case broadcast.TickLazyPush:
			p.dispatchBroadcast(p.tree.ReceiveIHave(frame.Payload, frame.From))
		case broadcast.TickPrune:
			p.tree.ReceivePrune(frame.From)
		case broadcast.TickGraft:
			p.dispatchBroadcast([]broadcast.Tick{{Kind: broadcast.TickEagerPush, Peer: frame.From, Payload: frame.Payload}})
		}
	}
}

// requestPullMessage is what a peer sends over /rad/pull/2 to ask the
// recipient to replicate a URN from it. Sender self-declares like
// every other control-plane message in this module.
type requestPullMessage struct {
	Sender peerid.PeerId
	URN    urn.URN
}

// serveRequestPullStream answers a peer-initiated pull solicitation by
// replicating the named URN from the soliciting peer.
func (p *Peer) serveRequestPullStream(stream io.ReadWriteCloser) error {
	for {
		var msg requestPullMessage
		if err := codec.ReadFrame(stream, &msg); err != nil {
			return err
		}
		go func(m requestPullMessage) {
			if err := p.triggerReplication(m.Sender, m.URN); err != nil {
				p.log.Debug("solicited replication failed", "peer", m.Sender.String(), "urn", m.URN.String(), "error", err)
			}
		}(msg)
	}
}

// interrogationRequest asks a peer a simple introspection question;
// today the only question is "what URNs do you track".
type interrogationRequest struct{}

// interrogationResponse answers with a compact XOR8 filter over the
// responder's tracked-URN set rather than the set itself, so a peer
// with a large tracking list doesn't have to enumerate it in full just
// to answer a membership probe.
type interrogationResponse struct {
	Filter xorfilter.Data
}

// serveInterrogationStream answers interrogation requests with a
// filter over the set of URNs this peer currently tracks.
func (p *Peer) serveInterrogationStream(stream io.ReadWriteCloser) error {
	for {
		var req interrogationRequest
		if err := codec.ReadFrame(stream, &req); err != nil {
			return err
		}
		urns, err := p.trackStore.TrackedURNs()
		if err != nil {
			p.log.Debug("interrogation: list tracked urns failed", "error", err)
			urns = nil
		}
		keys := make([]uint64, len(urns))
		for i, u := range urns {
			keys[i] = xorfilter.Hash64([]byte(u))
		}
		var resp interrogationResponse
		if len(keys) > 0 {
			filter, err := xorfilter.Build(keys)
			if err != nil {
				p.log.Debug("interrogation: build filter failed", "error", err)
			} else {
				resp.Filter = filter.Marshal()
			}
		}
		if err := codec.WriteFrame(stream, resp); err != nil {
			return err
		}
	}
}

// queryInterrogation asks remote which of candidates it tracks,
// returning the subset its filter reports as probably present.
func (p *Peer) queryInterrogation(remote peerid.PeerId, candidates []string) ([]string, error) {
	stream, err := p.borrowOrDialStream(remote, transport.ProtocolInterrogation)
	if err != nil {
		return nil, fmt.Errorf("runtime: dial interrogation stream to %s: %w", remote, err)
	}
	if err := codec.WriteFrame(stream, interrogationRequest{}); err != nil {
		p.invalidateStream(remote, transport.ProtocolInterrogation)
		return nil, fmt.Errorf("runtime: send interrogation request to %s: %w", remote, err)
	}
	var resp interrogationResponse
	if err := codec.ReadFrame(stream, &resp); err != nil {
		p.invalidateStream(remote, transport.ProtocolInterrogation)
		return nil, fmt.Errorf("runtime: read interrogation response from %s: %w", remote, err)
	}
	if resp.Filter.Fingerprints == nil {
		return nil, nil
	}
	filter := xorfilter.FromData(resp.Filter)
	var matches []string
	for _, c := range candidates {
		if filter.Contains(xorfilter.Hash64([]byte(c))) {
			matches = append(matches, c)
		}
	}
	return matches, nil
}

// triggerReplication runs replication.Replicate against remote for u,
// publishing an RPC event on the outcome and gossiping any refs it
// updated. Used by both the RPC-triggered pull path and an inbound
// pull solicitation.
func (p *Peer) triggerReplication(remote peerid.PeerId, u urn.URN) error {
	fetcher := newStreamFetcher(p, remote, u)
	whoami := replication.Whoami{Self: p.self}
	result, err := replication.Replicate(p.refStore, p.trackStore, p.resolver, fetcher, u, p.cfg.Replication, whoami)
	if err != nil {
		p.metrics.ReplicationTotal.WithLabelValues("error").Inc()
		p.rpcServer.Publish(rpc.Event{URN: u, Peer: remote.String(), Succeeded: false, Detail: err.Error()})
		return err
	}
	p.metrics.ReplicationTotal.WithLabelValues("ok").Inc()
	p.rpcServer.Publish(rpc.Event{URN: u, Peer: remote.String(), Succeeded: true})
	for _, ref := range result.UpdatedRefs {
		p.dispatchBroadcast(p.tree.Broadcast(broadcast.Payload{URN: u, Revision: ref, Origin: &p.self}))
	}
	return nil
}
