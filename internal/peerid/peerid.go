// Package peerid manages a link peer's Ed25519 identity keypair and the
// PeerId derived from it.
package peerid

import (
	"crypto/ed25519"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	lcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// PeerId identifies a peer on the network. It is the multihash of the
// peer's Ed25519 public key, printed as the teacher's base58 peer.ID
// string form.
type PeerId struct {
	inner peer.ID
	pub   lcrypto.PubKey
}

// String returns the base58-encoded multihash form of the PeerId.
func (p PeerId) String() string {
	return p.inner.String()
}

// Equal reports whether two PeerIds identify the same public key.
func (p PeerId) Equal(other PeerId) bool {
	return p.inner == other.inner
}

// MarshalCBOR implements cbor.Marshaler, so a PeerId travels over the
// wire as its base58 string form rather than its unexported fields. A
// zero-value PeerId marshals as an empty string.
func (p PeerId) MarshalCBOR() ([]byte, error) {
	if p.inner == "" {
		return cbor.Marshal("")
	}
	return cbor.Marshal(p.String())
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (p *PeerId) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*p = PeerId{}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Bytes returns the raw Ed25519 public key bytes underlying this PeerId.
func (p PeerId) Bytes() ([]byte, error) {
	raw, err := p.pub.Raw()
	if err != nil {
		return nil, fmt.Errorf("peerid: extract public key bytes: %w", err)
	}
	return raw, nil
}

// Verify checks sig over msg against this PeerId's public key.
func (p PeerId) Verify(msg, sig []byte) (bool, error) {
	ok, err := p.pub.Verify(msg, sig)
	if err != nil {
		return false, fmt.Errorf("peerid: verify signature: %w", err)
	}
	return ok, nil
}

// FromPublicKeyBytes constructs a PeerId from raw Ed25519 public key
// bytes, as found in a signed document's delegation set.
func FromPublicKeyBytes(raw []byte) (PeerId, error) {
	if len(raw) != ed25519.PublicKeySize {
		return PeerId{}, fmt.Errorf("peerid: expected %d-byte ed25519 public key, got %d", ed25519.PublicKeySize, len(raw))
	}
	pub, err := lcrypto.UnmarshalEd25519PublicKey(raw)
	if err != nil {
		return PeerId{}, fmt.Errorf("peerid: unmarshal public key: %w", err)
	}
	id, err := peer.IDFromPublicKey(pub)
	if err != nil {
		return PeerId{}, fmt.Errorf("peerid: derive peer id: %w", err)
	}
	return PeerId{inner: id, pub: pub}, nil
}

// Parse decodes the base58 string form of a PeerId back into its
// public key.
func Parse(s string) (PeerId, error) {
	id, err := peer.Decode(s)
	if err != nil {
		return PeerId{}, fmt.Errorf("peerid: parse %q: %w", s, err)
	}
	pub, err := id.ExtractPublicKey()
	if err != nil {
		return PeerId{}, fmt.Errorf("peerid: extract public key from %q: %w", s, err)
	}
	return PeerId{inner: id, pub: pub}, nil
}

// KeyPair holds a peer's own signing key alongside its derived PeerId.
type KeyPair struct {
	Priv lcrypto.PrivKey
	ID   PeerId
}

// Sign signs msg with the keypair's private key.
func (k KeyPair) Sign(msg []byte) ([]byte, error) {
	sig, err := k.Priv.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("peerid: sign: %w", err)
	}
	return sig, nil
}

// checkKeyFilePermissions verifies that a key file is not readable by
// group or others.
func checkKeyFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		return fmt.Errorf("key file %s has insecure permissions %04o (expected 0600); fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// LoadOrCreate loads an existing Ed25519 identity key from path, or
// generates and persists a new one (mode 0600) if none exists.
func LoadOrCreate(path string) (KeyPair, error) {
	if _, err := os.Stat(path); err == nil {
		if err := checkKeyFilePermissions(path); err != nil {
			return KeyPair{}, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return KeyPair{}, fmt.Errorf("peerid: read key file %s: %w", path, err)
		}
		priv, err := lcrypto.UnmarshalPrivateKey(data)
		if err != nil {
			return KeyPair{}, fmt.Errorf("peerid: unmarshal key from %s: %w", path, err)
		}
		return keyPairFromPriv(priv)
	}

	priv, _, err := lcrypto.GenerateKeyPair(lcrypto.Ed25519, -1)
	if err != nil {
		return KeyPair{}, fmt.Errorf("peerid: generate keypair: %w", err)
	}

	data, err := lcrypto.MarshalPrivateKey(priv)
	if err != nil {
		return KeyPair{}, fmt.Errorf("peerid: marshal private key: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return KeyPair{}, fmt.Errorf("peerid: write key file %s: %w", path, err)
	}

	return keyPairFromPriv(priv)
}

func keyPairFromPriv(priv lcrypto.PrivKey) (KeyPair, error) {
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return KeyPair{}, fmt.Errorf("peerid: derive peer id: %w", err)
	}
	return KeyPair{Priv: priv, ID: PeerId{inner: id, pub: priv.GetPublic()}}, nil
}
