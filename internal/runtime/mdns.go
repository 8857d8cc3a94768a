package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/libp2p/zeroconf/v2"

	"github.com/radicle-link/linkd/internal/peerid"
)

// mdnsServiceName is the DNS-SD service type used for LAN bootstrap
// discovery. Fixed for every peer: network isolation comes from the
// ALPN token negotiated in the QUIC/TLS handshake, which carries the
// logical network, not from the service name.
const mdnsServiceName = "_linkd._udp"

const (
	mdnsBrowseInterval = 30 * time.Second
	mdnsBrowseTimeout  = 10 * time.Second

	// addrPrefix marks the TXT entry carrying the peer's dial address,
	// paired with a peerPrefix entry carrying its PeerId.
	addrPrefix = "addr="
	peerPrefix = "peer="
)

// PeerFoundFunc is invoked for every peer entry seen in a browse round
// on the LAN, with the dial address advertised in its TXT record; a
// peer is reported again in each round that sees it.
type PeerFoundFunc func(id peerid.PeerId, addr string)

// MDNSDiscovery advertises this peer's QUIC listen address over mDNS
// and periodically browses for others doing the same. Each browse
// round opens a fresh multicast socket rather than keeping one
// long-lived Browse call running, which sidesteps platform-specific
// mDNS daemons silently going quiet.
type MDNSDiscovery struct {
	self      peerid.PeerId
	advertise string
	onFound   PeerFoundFunc
	log       *slog.Logger

	server *zeroconf.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMDNSDiscovery prepares discovery for a peer reachable at
// advertise (host:port). onFound is called from the browse goroutine
// and must not block.
func NewMDNSDiscovery(self peerid.PeerId, advertise string, onFound PeerFoundFunc, log *slog.Logger) *MDNSDiscovery {
	if log == nil {
		log = slog.Default()
	}
	return &MDNSDiscovery{self: self, advertise: advertise, onFound: onFound, log: log}
}

// Start registers the service and begins the periodic browse loop.
func (md *MDNSDiscovery) Start(ctx context.Context) error {
	md.ctx, md.cancel = context.WithCancel(ctx)

	instance := instanceName()
	server, err := zeroconf.RegisterProxy(
		instance,
		mdnsServiceName,
		"local",
		4001, // required by DNS-SD, unused: the real address is in TXT
		instance,
		[]string{"127.0.0.1"},
		[]string{peerPrefix + md.self.String(), addrPrefix + md.advertise},
		nil,
	)
	if err != nil {
		return fmt.Errorf("runtime: register mdns service: %w", err)
	}
	md.server = server

	md.wg.Add(1)
	go md.browseLoop()
	return nil
}

// Close stops advertising and browsing, waiting for the browse
// goroutine to exit.
func (md *MDNSDiscovery) Close() error {
	if md.cancel != nil {
		md.cancel()
	}
	if md.server != nil {
		md.server.Shutdown()
	}
	md.wg.Wait()
	return nil
}

func (md *MDNSDiscovery) browseLoop() {
	defer md.wg.Done()

	select {
	case <-time.After(2 * time.Second):
	case <-md.ctx.Done():
		return
	}
	md.runBrowse()

	ticker := time.NewTicker(mdnsBrowseInterval)
	defer ticker.Stop()
	for {
		select {
		case <-md.ctx.Done():
			return
		case <-ticker.C:
			md.runBrowse()
		}
	}
}

func (md *MDNSDiscovery) runBrowse() {
	browseCtx, cancel := context.WithTimeout(md.ctx, mdnsBrowseTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	go func() {
		for entry := range entries {
			md.handleEntry(entry)
		}
	}()

	if err := zeroconf.Browse(browseCtx, mdnsServiceName, "local", entries); err != nil && md.ctx.Err() == nil {
		md.log.Debug("mdns: browse round error", "error", err)
	}
}

func (md *MDNSDiscovery) handleEntry(entry *zeroconf.ServiceEntry) {
	var peerStr, addr string
	for _, txt := range entry.Text {
		switch {
		case strings.HasPrefix(txt, peerPrefix):
			peerStr = strings.TrimPrefix(txt, peerPrefix)
		case strings.HasPrefix(txt, addrPrefix):
			addr = strings.TrimPrefix(txt, addrPrefix)
		}
	}
	if peerStr == "" || addr == "" {
		return
	}

	id, err := peerid.Parse(peerStr)
	if err != nil {
		md.log.Debug("mdns: bad peer id in TXT record", "error", err)
		return
	}
	if id.Equal(md.self) {
		return
	}
	if md.onFound != nil {
		md.onFound(id, addr)
	}
}

func instanceName() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 32)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}
