package identity

import (
	"fmt"

	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/urn"
)

// maxChainDepth bounds the walk against a malicious or corrupted
// history that loops back on itself instead of terminating at a root.
const maxChainDepth = 100000

// ChainCommit is one git commit backing a revision in an identity's
// history: the revision it carries plus the oid of its actual git
// parent commit, as distinct from the parent_oid the revision itself
// declares.
type ChainCommit struct {
	Revision     Revision
	GitParentOid string // empty if the commit has no git parent
}

// CommitLoader loads the identity revision stored at a git commit oid.
// Implementations live outside this package, close to the Git object
// store the revisions are actually read from.
type CommitLoader interface {
	Load(oid string) (ChainCommit, error)
}

// VerifyChain walks an identity's entire history, from the commit at
// tipOid back to its root, re-verifying every revision along the way:
// each revision's own quorum, its signers' continuity against the
// parent's quorum, the declared parent_oid against the actual git
// parent, and the walked-back root document against claimedRoot.
//
// tipOid == "" means the identity has no commits at all.
func VerifyChain(claimedRoot urn.URN, tipOid string, loader CommitLoader, resolver Resolver, policy Policy) error {
	if tipOid == "" {
		return ErrEmptyHistory
	}

	oid := tipOid
	seen := make(map[string]struct{})

	var childVotes []peerid.PeerId
	haveChild := false

	for depth := 0; ; depth++ {
		if depth >= maxChainDepth {
			return fmt.Errorf("%w: chain exceeds %d revisions without reaching a root", ErrHistory, maxChainDepth)
		}
		if _, dup := seen[oid]; dup {
			return fmt.Errorf("%w: history at %s cycles back on itself", ErrHistory, oid)
		}
		seen[oid] = struct{}{}

		cc, err := loader.Load(oid)
		if err != nil {
			if depth == 0 {
				return fmt.Errorf("%w: %v", ErrHistory, err)
			}
			return fmt.Errorf("%w: %w: %v", ErrHistory, ErrMissingParent, err)
		}
		rev := cc.Revision

		if len(rev.Signed) == 0 {
			return fmt.Errorf("%w: %w: revision %d at %s", ErrHistory, ErrNoSignatures, rev.Doc.Revision, oid)
		}

		votes, err := verifyOwnQuorum(rev, resolver, policy)
		if err != nil {
			return fmt.Errorf("%w: revision %d at %s: %w", ErrHistory, rev.Doc.Revision, oid, err)
		}

		if haveChild {
			if err := verifyParentQuorum(childVotes, rev.Doc, resolver, policy); err != nil {
				return fmt.Errorf("%w: revision %d at %s: %w", ErrHistory, rev.Doc.Revision, oid, err)
			}
		}

		isRoot := rev.Doc.Revision == 0 && rev.Doc.ParentOid == ""
		if isRoot {
			root, err := URNOf(rev.Doc)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrHistory, err)
			}
			if !root.Equal(claimedRoot.Root()) {
				return fmt.Errorf("%w: %w: walked back to %s, claimed %s", ErrHistory, ErrRootMismatch, root, claimedRoot)
			}
			return nil
		}

		if rev.Doc.ParentOid == "" {
			// Non-root revision declaring no parent: the history is
			// inconsistent by construction, not merely dangling.
			return fmt.Errorf("%w: %w: revision %d at %s declares no parent_oid but is not revision 0", ErrHistory, ErrParentMismatch, rev.Doc.Revision, oid)
		}
		if cc.GitParentOid == "" {
			return fmt.Errorf("%w: %w: revision %d at %s", ErrHistory, ErrDanglingParent, rev.Doc.Revision, oid)
		}
		if rev.Doc.ParentOid != cc.GitParentOid {
			return fmt.Errorf("%w: %w: revision %d at %s declares parent %s, git parent is %s", ErrHistory, ErrParentMismatch, rev.Doc.Revision, oid, rev.Doc.ParentOid, cc.GitParentOid)
		}

		childVotes = votes
		haveChild = true
		oid = cc.GitParentOid
	}
}
