package transport

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	lcrypto "github.com/libp2p/go-libp2p/core/crypto"

	"github.com/radicle-link/linkd/internal/peerid"
)

// certValidity is generous because the certificate's only purpose is
// to bind a TLS session to an Ed25519 public key; it is regenerated
// fresh on every process start rather than rotated in place.
const certValidity = 100 * 365 * 24 * time.Hour

// SelfSignedCert builds a self-signed TLS certificate whose public key
// is priv's Ed25519 public key, so that a peer verifying the
// certificate during the handshake learns the remote's PeerId without
// a separate round-trip.
func SelfSignedCert(priv lcrypto.PrivKey) (tls.Certificate, error) {
	raw, err := priv.Raw()
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("transport: extract private key: %w", err)
	}
	edPriv := ed25519.PrivateKey(raw)

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("transport: generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "linkd"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(certValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, edPriv.Public(), edPriv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("transport: create certificate: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  edPriv,
	}, nil
}

// VerifyPeerCertificate extracts the PeerId bound to a certificate
// chain presented during the TLS handshake, without relying on a
// trusted CA: the only requirement is a single self-signed certificate
// carrying an Ed25519 public key.
func VerifyPeerCertificate(rawCerts [][]byte) (peerid.PeerId, error) {
	if len(rawCerts) == 0 {
		return peerid.PeerId{}, fmt.Errorf("transport: no certificate presented")
	}
	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return peerid.PeerId{}, fmt.Errorf("transport: parse certificate: %w", err)
	}
	pub, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return peerid.PeerId{}, fmt.Errorf("transport: certificate public key is not Ed25519")
	}
	return peerid.FromPublicKeyBytes(pub)
}

// ServerTLSConfig builds the TLS config a listening peer presents,
// with the given ALPN protocols and client certificate verification
// deferred to the caller via expectPeer (nil accepts any peer,
// binding trust to the identity layer's own checks instead).
func ServerTLSConfig(cert tls.Certificate, alpn []string, expectPeer func(peerid.PeerId) error) *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		NextProtos:         alpn,
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			id, err := VerifyPeerCertificate(rawCerts)
			if err != nil {
				return err
			}
			if expectPeer != nil {
				return expectPeer(id)
			}
			return nil
		},
	}
}

// ClientTLSConfig builds the TLS config used when dialing a peer whose
// identity is already known (the PeerId looked up from its signed
// manifest or membership record).
func ClientTLSConfig(cert tls.Certificate, alpn []string, want peerid.PeerId) *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		NextProtos:         alpn,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			got, err := VerifyPeerCertificate(rawCerts)
			if err != nil {
				return err
			}
			if !got.Equal(want) {
				return fmt.Errorf("transport: dialed peer identity mismatch: got %s, want %s", got, want)
			}
			return nil
		},
	}
}
