package runtime

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/filesystem"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/radicle-link/linkd/internal/broadcast"
	"github.com/radicle-link/linkd/internal/codec"
	"github.com/radicle-link/linkd/internal/config"
	"github.com/radicle-link/linkd/internal/identity"
	"github.com/radicle-link/linkd/internal/membership"
	"github.com/radicle-link/linkd/internal/metrics"
	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/refs"
	"github.com/radicle-link/linkd/internal/replication"
	"github.com/radicle-link/linkd/internal/rpc"
	"github.com/radicle-link/linkd/internal/tracking"
	"github.com/radicle-link/linkd/internal/transport"
)

// gossipFrame is the wire shape a gossip Tick is framed as: the tick
// kind (eager/lazy push, graft, prune) plus the payload it concerns,
// CBOR-framed the same way membership messages are.
type gossipFrame struct {
	Kind    broadcast.TickKind
	From    peerid.PeerId
	Payload broadcast.Payload
}

// Peer is the distinguished runtime loop: it owns the QUIC accept
// loop, the membership and broadcast state machines, and the
// supporting resource pools, and turns their pure Ticks into actual
// network I/O. Its methods are the only place in this module that
// mix protocol state with blocking I/O.
type Peer struct {
	cfg  config.Config
	self peerid.PeerId
	log  *slog.Logger

	endpoint  *transport.Endpoint
	mux       *transport.Mux
	view      *membership.View
	tree      *broadcast.Tree
	rpcServer *rpc.Server

	storage *StoragePool
	slots   *FetcherSlots
	limiter *RateLimiter
	metrics *metrics.Metrics
	packs   *lru.Cache[string, []byte]

	metaRepo   *git.Repository
	refStore   *refs.Store
	trackStore *tracking.Store
	resolver   identity.Resolver

	mdns *MDNSDiscovery

	mu      sync.Mutex
	streams map[string]io.ReadWriteCloser

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// localStorageAdapter adapts the Peer's pack cache to
// broadcast.LocalStorage, so the gossip layer can ask "do we already
// have this" without reaching into replication internals.
type localStorageAdapter struct {
	packs *lru.Cache[string, []byte]
}

func (a *localStorageAdapter) Has(p broadcast.Payload) bool {
	_, ok := a.packs.Get(p.String())
	return ok
}

func (a *localStorageAdapter) Put(p broadcast.Payload) (broadcast.Outcome, error) {
	if _, ok := a.packs.Get(p.String()); ok {
		return broadcast.Stale, nil
	}
	a.packs.Add(p.String(), nil)
	return broadcast.Applied, nil
}

// NewPeer wires every subsystem into one runtime loop, using cert as
// the peer's QUIC/TLS identity and cfg.Storage.Root as the bare-repo
// root the storage pool opens handles against.
func NewPeer(cfg config.Config, self peerid.PeerId, cert tls.Certificate, log *slog.Logger) (*Peer, error) {
	if log == nil {
		log = slog.Default()
	}

	endpoint, err := transport.NewEndpoint(cfg.Transport.ListenAddress, cert, self, cfg.Transport.LogicalNetwork, cfg.Transport.MaxIdleTimeout)
	if err != nil {
		return nil, fmt.Errorf("runtime: start transport endpoint: %w", err)
	}

	pool, err := NewStoragePool(cfg.Storage.Root, cfg.Storage.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("runtime: start storage pool: %w", err)
	}

	packs, err := lru.New[string, []byte](cfg.Storage.PackCacheSize)
	if err != nil {
		return nil, fmt.Errorf("runtime: create pack cache: %w", err)
	}

	membershipParams := membership.Params{
		MaxActive:            cfg.Membership.MaxActive,
		MaxPassive:           cfg.Membership.MaxPassive,
		ActiveRandomWalkLen:  cfg.Membership.ActiveRandomWalkLen,
		PassiveRandomWalkLen: cfg.Membership.PassiveRandomWalkLen,
		ShuffleSample:        cfg.Membership.ShuffleSample,
		ShuffleInterval:      cfg.Membership.ShuffleInterval,
		PromoteInterval:      cfg.Membership.PromoteInterval,
	}

	view := membership.New(self, membershipParams)
	tree := broadcast.NewTree(self, cfg.Broadcast.NonceTTL, &localStorageAdapter{packs: packs})
	mux := transport.NewMux()

	// The metadata repository backs the ref/tracking stores and the
	// identity resolver, which all need a long-lived handle rather than
	// the pool's acquire/release-per-operation one.
	metaFS := osfs.New(cfg.Storage.Root)
	metaStorer := filesystem.NewStorage(metaFS, nil)
	metaRepo, err := git.Open(metaStorer, metaFS)
	if err != nil {
		return nil, fmt.Errorf("runtime: open metadata repository at %s: %w", cfg.Storage.Root, err)
	}
	refStore := refs.Open(metaRepo)
	trackStore := tracking.Open(metaRepo)
	resolver := newGitResolver(refStore, replication.NewGitIdentityLoader(metaRepo))

	p := &Peer{
		cfg:        cfg,
		self:       self,
		log:        log,
		endpoint:   endpoint,
		mux:        mux,
		view:       view,
		tree:       tree,
		storage:    pool,
		slots:      NewFetcherSlots(cfg.Replication.FetchSlotWaitTimeout),
		limiter:    NewRateLimiter(32, 64),
		metrics:    metrics.New(),
		packs:      packs,
		streams:    make(map[string]io.ReadWriteCloser),
		metaRepo:   metaRepo,
		refStore:   refStore,
		trackStore: trackStore,
		resolver:   resolver,
	}
	p.registerProtocols()

	rpcServer, err := rpc.NewServer(cfg.RPC.RequestSocket, cfg.RPC.EventSocket, p.handleRPC, log)
	if err != nil {
		return nil, fmt.Errorf("runtime: start rpc server: %w", err)
	}
	p.rpcServer = rpcServer

	if cfg.Discovery.IsMDNSEnabled() {
		p.mdns = NewMDNSDiscovery(self, cfg.Transport.ListenAddress, p.onPeerDiscovered, log)
	}

	return p, nil
}

// Start launches the accept loop, the periodic membership/broadcast
// tickers, and mDNS discovery (if enabled). It returns once every
// background goroutine has been spawned; Stop tears them down.
func (p *Peer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.rpcServer.Serve(); err != nil {
			p.log.Error("rpc server exited", "error", err)
		}
	}()

	p.wg.Add(1)
	go p.acceptLoop(ctx)

	p.wg.Add(1)
	go p.membershipLoop(ctx)

	if p.mdns != nil {
		if err := p.mdns.Start(ctx); err != nil {
			p.log.Warn("mdns discovery failed to start", "error", err)
			p.mdns = nil
		}
	}

	return nil
}

// Stop cancels every background goroutine and waits for them to
// exit, closing the transport endpoint and RPC sockets.
func (p *Peer) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.mdns != nil {
		p.mdns.Close()
	}
	p.endpoint.Close()
	p.rpcServer.Close()
	p.wg.Wait()
	return nil
}

func (p *Peer) acceptLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		conn, remote, err := p.endpoint.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn("accept failed", "error", err)
			continue
		}
		if err := p.limiter.CheckAndWait(remote); err != nil {
			p.metrics.RateLimitRejections.WithLabelValues("connect").Inc()
			conn.CloseWithError(0, "rate limited")
			continue
		}
		p.handleTransitions(membership.Transition{Kind: membership.TransitionConnected, Peer: remote})
		go p.acceptStreams(ctx, conn, remote)
	}
}

// membershipLoop periodically fires the HyParView shuffle/promote
// ticks that have no natural external trigger.
func (p *Peer) membershipLoop(ctx context.Context) {
	defer p.wg.Done()

	shuffle := time.NewTicker(p.cfg.Membership.ShuffleInterval)
	promote := time.NewTicker(p.cfg.Membership.PromoteInterval)
	defer shuffle.Stop()
	defer promote.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-shuffle.C:
			p.dispatchTicks(p.view.ShuffleTick())
		case <-promote.C:
			p.dispatchTicks(p.view.PromoteIfEmpty())
		}
	}
}

func (p *Peer) handleTransitions(t membership.Transition) {
	p.dispatchTicks(p.view.Apply(t))
}

// dispatchTicks turns pure membership.Tick values into actual sends.
// Real stream acquisition is delegated to borrowOrDialStream; a tick
// whose recipient cannot be reached is logged and dropped rather than
// retried here, matching the at-most-once delivery semantics of
// membership control traffic.
func (p *Peer) dispatchTicks(ticks []membership.Tick) {
	for _, t := range ticks {
		p.metrics.MembershipActiveView.Set(float64(len(p.view.Active())))
		p.metrics.MembershipPassiveView.Set(float64(len(p.view.Passive())))

		switch t.Kind {
		case membership.TickSend, membership.TickConnect, membership.TickReply:
			p.sendMembership(t.Peer, t.Message)
		case membership.TickBroadcastAll:
			for _, peer := range t.Recipients {
				p.sendMembership(peer, t.Message)
			}
		case membership.TickForget:
			p.mu.Lock()
			delete(p.streams, t.Peer.String())
			p.mu.Unlock()
		}
	}
}

func (p *Peer) sendMembership(to peerid.PeerId, msg any) {
	stream, err := p.borrowOrDialStream(to, transport.ProtocolMembership)
	if err != nil {
		p.log.Debug("membership send failed", "peer", to.String(), "error", err)
		return
	}
	wire, err := toMembershipMessage(msg)
	if err != nil {
		p.log.Debug("membership message encode failed", "peer", to.String(), "error", err)
		return
	}
	if err := codec.WriteFrame(stream, wire); err != nil {
		p.log.Debug("membership frame write failed", "peer", to.String(), "error", err)
		p.invalidateStream(to, transport.ProtocolMembership)
	}
}

// invalidateStream drops and closes a cached stream after a failed
// write: a write failure means the underlying connection is no longer
// trustworthy, so the next send must dial fresh rather than retry the
// same broken stream.
func (p *Peer) invalidateStream(to peerid.PeerId, proto transport.Protocol) {
	key := to.String() + "|" + string(proto)
	p.mu.Lock()
	s, ok := p.streams[key]
	delete(p.streams, key)
	p.mu.Unlock()
	if ok {
		s.Close()
	}
}

// borrowOrDialStream returns a cached stream to a peer for a given
// protocol, dialing and negotiating a fresh one if none is cached.
func (p *Peer) borrowOrDialStream(to peerid.PeerId, proto transport.Protocol) (io.ReadWriteCloser, error) {
	key := to.String() + "|" + string(proto)

	p.mu.Lock()
	if s, ok := p.streams[key]; ok {
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := p.endpoint.Dial(ctx, to.String(), to)
	if err != nil {
		return nil, fmt.Errorf("runtime: dial %s: %w", to.String(), err)
	}
	stream, err := conn.OpenStream()
	if err != nil {
		return nil, fmt.Errorf("runtime: open stream to %s: %w", to.String(), err)
	}
	if err := transport.Dial(stream, proto); err != nil {
		return nil, fmt.Errorf("runtime: negotiate %s with %s: %w", proto, to.String(), err)
	}

	p.mu.Lock()
	p.streams[key] = stream
	p.mu.Unlock()
	return stream, nil
}

// onPeerDiscovered is the mDNS discovery callback: a peer found on the
// LAN is offered to HyParView as a join contact exactly like a
// configured bootstrap peer would be.
func (p *Peer) onPeerDiscovered(id peerid.PeerId, addr string) {
	p.metrics.MDNSDiscoveredTotal.WithLabelValues("discovered").Inc()
	p.dispatchTicks(p.view.Contact(id))
}

// handleRPC answers Announce/Pull control-plane requests by folding
// them into a gossip broadcast or an on-demand replication run.
func (p *Peer) handleRPC(req rpc.Request) rpc.Response {
	switch req.Kind {
	case rpc.RequestAnnounce:
		payload := broadcast.Payload{URN: req.URN, Revision: req.Revision, Origin: &p.self}
		p.dispatchBroadcast(p.tree.Broadcast(payload))
		return rpc.Response{}
	case rpc.RequestPull:
		peer, err := peerid.Parse(req.Peer)
		if err != nil {
			return rpc.Response{Error: fmt.Sprintf("invalid peer id: %v", err)}
		}
		release, err := p.slots.Acquire(context.Background(), req.URN, peer)
		if err != nil {
			return rpc.Response{Error: err.Error()}
		}
		defer release()
		if err := p.triggerReplication(peer, req.URN); err != nil {
			return rpc.Response{Error: err.Error()}
		}
		return rpc.Response{}
	default:
		return rpc.Response{Error: fmt.Sprintf("unknown request kind %d", req.Kind)}
	}
}

func (p *Peer) dispatchBroadcast(ticks []broadcast.Tick) {
	for _, t := range ticks {
		switch t.Kind {
		case broadcast.TickEagerPush, broadcast.TickLazyPush, broadcast.TickGraft, broadcast.TickPrune:
			stream, err := p.borrowOrDialStream(t.Peer, transport.ProtocolGossip)
			if err != nil {
				p.log.Debug("gossip send failed", "peer", t.Peer.String(), "error", err)
				continue
			}
			frame := gossipFrame{Kind: t.Kind, From: p.self, Payload: t.Payload}
			if err := codec.WriteFrame(stream, frame); err != nil {
				p.log.Debug("gossip frame write failed", "peer", t.Peer.String(), "error", err)
				p.invalidateStream(t.Peer, transport.ProtocolGossip)
			}
		case broadcast.TickDeliver:
			p.metrics.GossipDelivered.WithLabelValues(t.Payload.URN.String()).Inc()
			p.rpcServer.Publish(rpc.Event{URN: t.Payload.URN, Succeeded: true})
		case broadcast.TickReAsk:
			p.log.Debug("gossip payload could not be applied, will re-ask", "peer", t.Peer.String(), "urn", t.Payload.URN.String(), "error", t.Err)
			p.metrics.GossipReAsked.WithLabelValues(t.Payload.URN.String()).Inc()
		}
	}
}
