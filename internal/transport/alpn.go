// Package transport establishes authenticated QUIC connections between
// peers and negotiates which control-plane protocol a stream carries.
package transport

import "fmt"

// ALPNVersion is the wire protocol version advertised in the TLS ALPN
// token. Bumping it is a breaking change: peers with differing
// versions simply fail the TLS handshake rather than negotiating down.
const ALPNVersion byte = 2

// ALPNProtocol returns the ALPN token for a given version and, if
// non-empty, a logical network identifier that scopes peers to a
// private overlay distinct from the public one.
func ALPNProtocol(version byte, logicalNetwork string) string {
	if logicalNetwork == "" {
		return fmt.Sprintf("rad/%d", version)
	}
	return fmt.Sprintf("rad/%d/%s", version, logicalNetwork)
}
