package transport

import (
	"testing"

	lcrypto "github.com/libp2p/go-libp2p/core/crypto"

	"github.com/radicle-link/linkd/internal/peerid"
)

func newTestKeyPair(t *testing.T) (lcrypto.PrivKey, peerid.PeerId) {
	t.Helper()
	priv, _, err := lcrypto.GenerateKeyPair(lcrypto.Ed25519, -1)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	id, err := peerid.FromPublicKeyBytes(mustRaw(t, priv.GetPublic()))
	if err != nil {
		t.Fatalf("FromPublicKeyBytes: %v", err)
	}
	return priv, id
}

func mustRaw(t *testing.T, pub lcrypto.PubKey) []byte {
	t.Helper()
	raw, err := pub.Raw()
	if err != nil {
		t.Fatalf("Raw: %v", err)
	}
	return raw
}

func TestSelfSignedCertBindsPublicKey(t *testing.T) {
	priv, id := newTestKeyPair(t)

	cert, err := SelfSignedCert(priv)
	if err != nil {
		t.Fatalf("SelfSignedCert: %v", err)
	}
	if len(cert.Certificate) != 1 {
		t.Fatalf("expected exactly one certificate in the chain, got %d", len(cert.Certificate))
	}

	got, err := VerifyPeerCertificate(cert.Certificate)
	if err != nil {
		t.Fatalf("VerifyPeerCertificate: %v", err)
	}
	if !got.Equal(id) {
		t.Errorf("certificate bound to %s, want %s", got, id)
	}
}

func TestVerifyPeerCertificateRejectsEmpty(t *testing.T) {
	if _, err := VerifyPeerCertificate(nil); err == nil {
		t.Error("expected an error verifying an empty certificate chain")
	}
}

func TestClientTLSConfigRejectsMismatchedPeer(t *testing.T) {
	priv, _ := newTestKeyPair(t)
	_, otherID := newTestKeyPair(t)

	cert, err := SelfSignedCert(priv)
	if err != nil {
		t.Fatalf("SelfSignedCert: %v", err)
	}
	conf := ClientTLSConfig(cert, []string{"rad/2"}, otherID)
	if err := conf.VerifyPeerCertificate(cert.Certificate, nil); err == nil {
		t.Error("expected identity mismatch error")
	}
}

func TestClientTLSConfigAcceptsExpectedPeer(t *testing.T) {
	priv, id := newTestKeyPair(t)

	cert, err := SelfSignedCert(priv)
	if err != nil {
		t.Fatalf("SelfSignedCert: %v", err)
	}
	conf := ClientTLSConfig(cert, []string{"rad/2"}, id)
	if err := conf.VerifyPeerCertificate(cert.Certificate, nil); err != nil {
		t.Errorf("expected matching peer to be accepted, got %v", err)
	}
}
