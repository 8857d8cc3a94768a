package identity

import (
	"sort"

	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/urn"
)

// Delegations defines the set of signers eligible to vote on revisions
// of an identity document, and the quorum required to accept a vote.
type Delegations interface {
	// Eligible returns the subset of votes that count towards quorum
	// for this delegation set. For Direct delegations this is a
	// membership check; for Indirect delegations an unresolved entry
	// contributes no eligible voters until resolved separately.
	Eligible(votes []peerid.PeerId) []peerid.PeerId

	// QuorumThreshold is strictly more than floor(n/2) eligible voters,
	// where n is the number of direct members (resolved, for Indirect
	// sets).
	QuorumThreshold() int

	// Len returns the number of members in the delegation set.
	Len() int
}

// Direct is a delegation set of bare public keys.
type Direct struct {
	members map[string]peerid.PeerId
}

// NewDirect builds a Direct delegation set from a list of peer ids.
func NewDirect(ids []peerid.PeerId) *Direct {
	m := make(map[string]peerid.PeerId, len(ids))
	for _, id := range ids {
		m[id.String()] = id
	}
	return &Direct{members: m}
}

// Eligible implements Delegations.
func (d *Direct) Eligible(votes []peerid.PeerId) []peerid.PeerId {
	var out []peerid.PeerId
	for _, v := range votes {
		if _, ok := d.members[v.String()]; ok {
			out = append(out, v)
		}
	}
	return out
}

// QuorumThreshold implements Delegations: strictly more than floor(n/2).
func (d *Direct) QuorumThreshold() int {
	return d.Len()/2 + 1
}

// Len implements Delegations.
func (d *Direct) Len() int {
	return len(d.members)
}

// Members returns the delegation set's members in a stable order.
func (d *Direct) Members() []peerid.PeerId {
	out := make([]peerid.PeerId, 0, len(d.members))
	for _, id := range d.members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// DelegationRef is either a bare public key or a reference to another
// identity document's URN, whose own delegation set must be resolved
// and verified before it counts towards quorum.
type DelegationRef struct {
	Key *peerid.PeerId
	Ref *urn.URN
}

// Indirect is a delegation set whose members may themselves be other
// identity documents; delegated identities must be resolved and
// verified through a Resolver before their keys count towards quorum.
type Indirect struct {
	refs []DelegationRef
}

// NewIndirect builds an Indirect delegation set from a list of
// delegation references.
func NewIndirect(refs []DelegationRef) *Indirect {
	return &Indirect{refs: refs}
}

// Len implements Delegations.
func (i *Indirect) Len() int {
	return len(i.refs)
}

// QuorumThreshold implements Delegations.
func (i *Indirect) QuorumThreshold() int {
	return i.Len()/2 + 1
}

// Eligible implements Delegations for the direct-key members only;
// members referencing another document resolve through ResolveEligible.
func (i *Indirect) Eligible(votes []peerid.PeerId) []peerid.PeerId {
	direct := make(map[string]peerid.PeerId)
	for _, r := range i.refs {
		if r.Key != nil {
			direct[r.Key.String()] = *r.Key
		}
	}
	var out []peerid.PeerId
	for _, v := range votes {
		if _, ok := direct[v.String()]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Refs returns the delegation set's raw references.
func (i *Indirect) Refs() []DelegationRef {
	return i.refs
}
