package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/radicle-link/linkd/internal/peerid"
)

// Endpoint is a single peer's QUIC listening socket, bound to its
// identity via a self-signed certificate.
type Endpoint struct {
	cert           tls.Certificate
	self           peerid.PeerId
	logicalNetwork string
	maxIdleTimeout time.Duration
	listener       *quic.Listener
}

// NewEndpoint opens a UDP listener at addr and wraps it as a QUIC
// endpoint identified by self.
func NewEndpoint(addr string, cert tls.Certificate, self peerid.PeerId, logicalNetwork string, maxIdleTimeout time.Duration) (*Endpoint, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp: %w", err)
	}

	alpn := ALPNProtocol(ALPNVersion, logicalNetwork)
	tlsConf := ServerTLSConfig(cert, []string{alpn}, nil)
	quicConf := &quic.Config{MaxIdleTimeout: maxIdleTimeout}

	ln, err := quic.Listen(conn, tlsConf, quicConf)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: quic listen: %w", err)
	}

	return &Endpoint{
		cert:           cert,
		self:           self,
		logicalNetwork: logicalNetwork,
		maxIdleTimeout: maxIdleTimeout,
		listener:       ln,
	}, nil
}

// Accept blocks until a remote peer establishes a connection,
// returning it alongside its verified PeerId.
func (e *Endpoint) Accept(ctx context.Context) (*quic.Conn, peerid.PeerId, error) {
	conn, err := e.listener.Accept(ctx)
	if err != nil {
		return nil, peerid.PeerId{}, fmt.Errorf("transport: accept: %w", err)
	}
	id, err := peerFromConnState(conn)
	if err != nil {
		conn.CloseWithError(0, "identity verification failed")
		return nil, peerid.PeerId{}, err
	}
	return conn, id, nil
}

// Dial opens a connection to addr, expecting it to present want's
// certificate.
func (e *Endpoint) Dial(ctx context.Context, addr string, want peerid.PeerId) (*quic.Conn, error) {
	alpn := ALPNProtocol(ALPNVersion, e.logicalNetwork)
	tlsConf := ClientTLSConfig(e.cert, []string{alpn}, want)
	quicConf := &quic.Config{MaxIdleTimeout: e.maxIdleTimeout}

	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConf)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return conn, nil
}

// Close shuts down the endpoint's listener.
func (e *Endpoint) Close() error {
	return e.listener.Close()
}

func peerFromConnState(conn *quic.Conn) (peerid.PeerId, error) {
	state := conn.ConnectionState().TLS
	if len(state.PeerCertificates) == 0 {
		return peerid.PeerId{}, fmt.Errorf("transport: no peer certificate in connection state")
	}
	return VerifyPeerCertificate([][]byte{state.PeerCertificates[0].Raw})
}
