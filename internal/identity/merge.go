package identity

import (
	"fmt"

	"github.com/radicle-link/linkd/internal/peerid"
)

// Merge constructs a new revision when two peers' views of the same
// identity diverge at the tip: the payload is taken from remote's view
// and the delegation set is carried over unchanged from local. The
// caller (whoami) must itself be an eligible delegate of local, or the
// merge is refused.
func Merge(local, remote Document, whoami Revision, resolver Resolver, policy Policy) (Document, error) {
	if local.Delegations == nil {
		return Document{}, ErrEmptyDelegationSet
	}

	canonical, err := Canonical(whoami.Doc)
	if err != nil {
		return Document{}, err
	}
	var voter []Signature
	for _, sig := range whoami.Signed {
		ok, err := sig.Signer.Verify(canonical, sig.Sig)
		if err != nil {
			return Document{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		if ok {
			voter = append(voter, sig)
		}
	}
	if len(voter) == 0 {
		return Document{}, ErrNotEligible
	}

	votes := make([]peerid.PeerId, 0, len(voter))
	for _, v := range voter {
		votes = append(votes, v.Signer)
	}

	eligible, err := ResolveEligible(local, votes, resolver, policy)
	if err != nil {
		return Document{}, err
	}
	if len(eligible) == 0 {
		return Document{}, ErrNotEligible
	}

	return Document{
		SchemaVersion: local.SchemaVersion,
		Revision:      local.Revision + 1,
		ParentOid:     "", // set by the caller once local is persisted
		Payload:       remote.Payload,
		Delegations:   local.Delegations,
	}, nil
}
