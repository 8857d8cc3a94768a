package broadcast

import (
	"fmt"

	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/urn"
)

// Payload is a single gossip announcement: a URN reached a new Git
// revision (or was newly created), optionally attributed to the peer
// that produced it.
type Payload struct {
	URN      urn.URN
	Revision string
	Origin   *peerid.PeerId
}

func (p Payload) originString() string {
	if p.Origin == nil {
		return ""
	}
	return p.Origin.String()
}

// fingerprint is the dedup key Plumtree uses to recognize a duplicate
// delivery of this exact payload.
func (p Payload) fingerprint() uint64 {
	return Fingerprint(p.URN.String(), p.Revision, derefOrZero(p.Origin))
}

func derefOrZero(p *peerid.PeerId) peerid.PeerId {
	if p == nil {
		return peerid.PeerId{}
	}
	return *p
}

func (p Payload) String() string {
	return fmt.Sprintf("Payload{urn=%s rev=%s origin=%s}", p.URN, p.Revision, p.originString())
}
