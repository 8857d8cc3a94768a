package identity

import (
	"fmt"

	"github.com/radicle-link/linkd/internal/peerid"
)

// Verify checks that rev's signatures verify against its canonical
// bytes and that the eligible subset of signers reaches rev's own
// delegation quorum. If parent is non-nil, the update must additionally
// reach the parent's delegation quorum (the chain-of-custody
// requirement that a revision's successor remains sanctioned by
// whoever authorized the prior revision).
//
// Verify only checks rev against the single parent it is given; it
// does not walk further back. Callers that need the full history
// re-verified, revision by revision, back to the root should use
// VerifyChain instead.
func Verify(rev Revision, parent *Document, resolver Resolver, policy Policy) error {
	verifiedVotes, err := verifyOwnQuorum(rev, resolver, policy)
	if err != nil {
		return err
	}
	if parent != nil {
		if err := verifyParentQuorum(verifiedVotes, *parent, resolver, policy); err != nil {
			return err
		}
	}
	return nil
}

// verifyOwnQuorum checks rev's signatures against its own delegation
// set's quorum threshold and returns the verified signer votes, for
// reuse against a parent's quorum by the caller.
func verifyOwnQuorum(rev Revision, resolver Resolver, policy Policy) ([]peerid.PeerId, error) {
	if rev.Doc.Delegations == nil || rev.Doc.Delegations.Len() == 0 {
		return nil, ErrEmptyDelegationSet
	}

	canonical, err := Canonical(rev.Doc)
	if err != nil {
		return nil, err
	}

	var verifiedVotes []peerid.PeerId
	for _, sig := range rev.Signed {
		ok, err := sig.Signer.Verify(canonical, sig.Sig)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: signer %s", ErrInvalidSignature, sig.Signer)
		}
		verifiedVotes = append(verifiedVotes, sig.Signer)
	}

	eligible, err := ResolveEligible(rev.Doc, verifiedVotes, resolver, policy)
	if err != nil {
		return nil, err
	}
	if len(eligible) < rev.Doc.Delegations.QuorumThreshold() {
		return nil, fmt.Errorf("%w: got %d of %d required", ErrNoQuorum, len(eligible), rev.Doc.Delegations.QuorumThreshold())
	}
	return verifiedVotes, nil
}

// verifyParentQuorum checks that childVotes, the verified signers of a
// child revision, also meet the parent revision's own quorum threshold
// — continuity of authorization across the update.
func verifyParentQuorum(childVotes []peerid.PeerId, parent Document, resolver Resolver, policy Policy) error {
	parentEligible, err := ResolveEligible(parent, childVotes, resolver, policy)
	if err != nil {
		return err
	}
	if len(parentEligible) < parent.Delegations.QuorumThreshold() {
		return fmt.Errorf("%w: got %d of %d required", ErrParentQuorum, len(parentEligible), parent.Delegations.QuorumThreshold())
	}
	return nil
}
