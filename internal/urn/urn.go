// Package urn implements the content-addressed identifier of an
// identity root: the hash of the initial identity document, optionally
// suffixed with a reference path.
package urn

import (
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/zeebo/blake3"
)

// blake3Code is the multicodec table entry for BLAKE3-256, used as the
// multihash function code when content-addressing a canonical identity
// document.
const blake3Code = 0x1e

const scheme = "urn:link:"

// URN identifies an identity root by the BLAKE3-256 digest of its
// canonical initial document, wrapped in a CIDv1, plus an optional
// reference path (e.g. "heads/main").
type URN struct {
	root cid.Cid
	path string
}

// FromRootDocument computes the URN for an identity whose canonical
// (C-JSON encoded) initial document is canonicalDoc.
func FromRootDocument(canonicalDoc []byte) URN {
	sum := blake3.Sum256(canonicalDoc)
	mh, err := multihash.Encode(sum[:], blake3Code)
	if err != nil {
		// Encode only fails on a malformed code table entry, which
		// cannot happen for a fixed constant.
		panic(fmt.Sprintf("urn: encode multihash: %v", err))
	}
	return URN{root: cid.NewCidV1(cid.Raw, mh)}
}

// WithPath returns a copy of u scoped to the given reference path.
func (u URN) WithPath(path string) URN {
	return URN{root: u.root, path: path}
}

// Path returns the URN's reference path, or "" if it names the root.
func (u URN) Path() string {
	return u.path
}

// Root returns the URN with any reference path stripped.
func (u URN) Root() URN {
	return URN{root: u.root}
}

// String returns the opaque wire form: "urn:link:<cidv1>[/<path>]".
func (u URN) String() string {
	s := scheme + u.root.String()
	if u.path != "" {
		s += "/" + u.path
	}
	return s
}

// Equal reports whether two URNs name the same root and path.
func (u URN) Equal(other URN) bool {
	return u.root.Equals(other.root) && u.path == other.path
}

// IsZero reports whether u is the zero value.
func (u URN) IsZero() bool {
	return !u.root.Defined()
}

// Parse decodes the wire form of a URN.
func Parse(s string) (URN, error) {
	if !strings.HasPrefix(s, scheme) {
		return URN{}, fmt.Errorf("urn: %q missing %q prefix", s, scheme)
	}
	rest := strings.TrimPrefix(s, scheme)

	root, path, _ := strings.Cut(rest, "/")
	c, err := cid.Decode(root)
	if err != nil {
		return URN{}, fmt.Errorf("urn: decode %q: %w", root, err)
	}
	return URN{root: c, path: path}, nil
}

// MarshalCanonical implements codec.Marshaler, encoding a URN as a
// canonical JSON string.
func (u URN) MarshalCanonical() ([]byte, error) {
	return []byte(`"` + u.String() + `"`), nil
}

// MarshalCBOR implements cbor.Marshaler, so a URN travels over the
// wire as its opaque string form rather than as its unexported fields.
func (u URN) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(u.String())
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (u *URN) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*u = URN{}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
