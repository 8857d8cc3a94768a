package identity

import (
	"fmt"

	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/urn"
)

// Resolver looks up the current tip revision of an identity by its
// root URN. Implementations typically read a peer's local `rad/id`
// ref, or a tracked remote's signed view of it.
type Resolver interface {
	Resolve(u urn.URN) (Revision, error)
}

// memoKey identifies a specific (urn, revision) pair for the cyclic-
// delegation memoization cache.
type memoKey struct {
	urn string
	rev uint64
}

// eligibilityCache memoizes whether a given (urn, revision) has already
// been determined eligible, breaking cycles in Indirect delegation
// chains without unbounded recursion: a (urn, revision) revisited while
// still being resolved is treated as already counted rather than
// re-verified.
type eligibilityCache struct {
	resolved map[memoKey]bool
	visiting map[memoKey]bool
}

func newEligibilityCache() *eligibilityCache {
	return &eligibilityCache{
		resolved: make(map[memoKey]bool),
		visiting: make(map[memoKey]bool),
	}
}

// ResolveEligible computes the subset of votes eligible to count
// towards quorum for doc's delegation set, resolving any Indirect
// references one level at a time through resolver.
func ResolveEligible(doc Document, votes []peerid.PeerId, resolver Resolver, policy Policy) ([]peerid.PeerId, error) {
	cache := newEligibilityCache()
	return resolveEligible(doc.Delegations, votes, resolver, policy, cache)
}

func resolveEligible(d Delegations, votes []peerid.PeerId, resolver Resolver, policy Policy, cache *eligibilityCache) ([]peerid.PeerId, error) {
	switch del := d.(type) {
	case *Direct:
		return del.Eligible(votes), nil
	case *Indirect:
		voteSet := make(map[string]peerid.PeerId, len(votes))
		for _, v := range votes {
			voteSet[v.String()] = v
		}

		var eligible []peerid.PeerId
		for _, ref := range del.Refs() {
			switch {
			case ref.Key != nil:
				if v, ok := voteSet[ref.Key.String()]; ok {
					eligible = append(eligible, v)
				}
			case ref.Ref != nil:
				ok, err := resolveDelegateEligible(*ref.Ref, votes, resolver, policy, cache)
				if err != nil {
					return nil, err
				}
				if ok {
					// The delegate identity itself reached quorum over
					// votes; its URN does not correspond to a single
					// PeerId, so nothing is appended to eligible here —
					// callers must count such delegates separately via
					// Indirect.Len()/QuorumThreshold accounting.
					continue
				}
			}
		}
		return eligible, nil
	default:
		return nil, fmt.Errorf("identity: unsupported delegation type %T", d)
	}
}

// resolveDelegateEligible resolves a single Indirect delegate reference
// and reports whether its own delegation set reaches quorum over
// votes, breaking cycles via the memoization cache.
func resolveDelegateEligible(u urn.URN, votes []peerid.PeerId, resolver Resolver, policy Policy, cache *eligibilityCache) (bool, error) {
	rev, err := resolver.Resolve(u)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrUnknownDelegate, u, err)
	}

	key := memoKey{urn: u.String(), rev: rev.Doc.Revision}
	if v, ok := cache.resolved[key]; ok {
		return v, nil
	}
	if cache.visiting[key] {
		// Cycle: treat this revisit as already accounted for rather
		// than recursing further.
		return false, nil
	}

	if rev.Doc.SchemaVersion > SchemaVersion {
		if policy.UnknownSchema == UnknownSchemaHardFail {
			return false, fmt.Errorf("%w: %s declares schema version %d", ErrUnsupportedSchema, u, rev.Doc.SchemaVersion)
		}
		cache.resolved[key] = false
		return false, nil
	}

	cache.visiting[key] = true
	subEligible, err := resolveEligible(rev.Doc.Delegations, votes, resolver, policy, cache)
	delete(cache.visiting, key)
	if err != nil {
		return false, err
	}

	ok := len(subEligible) >= rev.Doc.Delegations.QuorumThreshold()
	cache.resolved[key] = ok
	return ok, nil
}
