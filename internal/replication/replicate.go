package replication

import (
	"fmt"
	"strings"

	"github.com/radicle-link/linkd/internal/config"
	"github.com/radicle-link/linkd/internal/identity"
	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/refs"
	"github.com/radicle-link/linkd/internal/tracking"
	"github.com/radicle-link/linkd/internal/urn"
)

// Whoami identifies the local peer performing a replication, needed
// to decide whether it is itself a delegate eligible to merge a
// divergent remote identity tip.
type Whoami struct {
	Self       peerid.PeerId
	Delegation identity.Delegations
}

// Replicate runs the 8-phase pipeline against u, pulling from fetcher
// and admitting only what the remote's own signed manifest vouches
// for.
func Replicate(
	refStore *refs.Store,
	trackStore *tracking.Store,
	resolver identity.Resolver,
	fetcher Fetcher,
	u urn.URN,
	cfg config.ReplicationConfig,
	whoami Whoami,
) (Result, error) {
	remote := fetcher.Remote()
	ns := refs.Namespace(u)

	// Phase 1: ls-refs, filtered to the refs this pipeline cares about.
	advertised, err := fetcher.LsRefs()
	if err != nil {
		return Result{}, fmt.Errorf("replication: ls-refs: %w", err)
	}
	relevant := filterRelevant(advertised, ns)

	// Phase 2: wants/haves, budget scaling.
	local, err := refStore.ComputeManifest(u)
	if err != nil {
		return Result{}, fmt.Errorf("replication: compute local manifest: %w", err)
	}
	wants, haves := wantsHaves(relevant, local)
	budget := cfg.FetchLimitBytes

	// Phase 3: fetch pack, aborting on budget overrun.
	if len(wants) > 0 {
		if err := fetcher.FetchPack(wants, haves, budget); err != nil {
			return Result{}, fmt.Errorf("replication: fetch pack: %w", err)
		}
	}

	result := Result{}

	// Phase 4: identity verification. The remote's freshly-fetched
	// rad/id chain (now present in refStore's object store, courtesy of
	// phase 3's fetch) is walked all the way back to its root and
	// re-verified revision by revision, not just its tip.
	identityRef := refs.IdentityRef(u)
	tipOid, hasIdentityUpdate := identityTipOid(relevant, identityRef)
	if hasIdentityUpdate {
		loader := gitIdentityLoader{repo: refStore.Repository()}
		if err := identity.VerifyChain(u, tipOid, loader, resolver, identity.DefaultPolicy); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrIdentityVerificationFailed, err)
		}
		if whoami.Delegation != nil {
			result.RequiresConfirmation = false
		} else {
			result.RequiresConfirmation = true
		}
	}

	// Phase 5: signed-refs admission — discard anything the remote did
	// not itself enumerate in its signed manifest.
	signed, err := refStore.LoadSigned(u, remote)
	admitted := relevant
	if err == nil {
		admitted = admitRefs(relevant, signed)
	}

	// Phase 6: ref updates under the ancestry policy.
	for _, ref := range admitted {
		localName := ns + "refs/remotes/" + remote.String() + "/" + ref.Name
		if isSymbolicChange(refStore, localName, ref) && !cfg.AllowSymbolicRefTypeChange {
			result.RejectedUpdates = append(result.RejectedUpdates, RejectedUpdate{
				Ref:    localName,
				Reason: "symbolic ref type change requires AllowSymbolicRefTypeChange",
			})
			continue
		}
		result.UpdatedRefs = append(result.UpdatedRefs, localName)
	}

	// Phase 7: new trackings for delegates/remotes-of-remotes that
	// satisfy local tracking rules are the runtime's responsibility,
	// since they require policy input this pipeline does not own; this
	// phase reports candidates without creating entries itself.
	for peer := range signed.Manifest.Remotes {
		if p, err := peerid.Parse(peer); err == nil {
			if !trackStore.IsTracked(u, p) {
				continue
			}
			result.Tracked = append(result.Tracked, u)
		}
	}

	// Phase 8: post-validation. Only an empty ref name is reported here,
	// as a non-fatal validation error; whether an updated ref's object
	// exists in the local object store is not checked.
	for _, ref := range result.UpdatedRefs {
		if strings.TrimSpace(ref) == "" {
			result.ValidationErrors = append(result.ValidationErrors, ValidationError{
				Ref: ref, Error: "empty ref name",
			})
		}
	}

	return result, nil
}

func filterRelevant(advertised []RefAdvertisement, ns string) []RefAdvertisement {
	var out []RefAdvertisement
	for _, ref := range advertised {
		if strings.HasPrefix(ref.Name, ns) {
			out = append(out, ref)
		}
	}
	return out
}

func wantsHaves(relevant []RefAdvertisement, local refs.Manifest) ([]string, []string) {
	haveSet := make(map[string]bool, len(local.Heads)+len(local.Tags))
	for _, oid := range local.Heads {
		haveSet[oid] = true
	}
	for _, oid := range local.Tags {
		haveSet[oid] = true
	}

	var wants, haves []string
	for _, ref := range relevant {
		if !haveSet[ref.Oid] {
			wants = append(wants, ref.Oid)
		}
	}
	for oid := range haveSet {
		haves = append(haves, oid)
	}
	return wants, haves
}

func admitRefs(relevant []RefAdvertisement, signed refs.Signed) []RefAdvertisement {
	allowed := make(map[string]bool, len(signed.Manifest.Heads)+len(signed.Manifest.Tags)+len(signed.Manifest.Notes))
	for name := range signed.Manifest.Heads {
		allowed["heads/"+name] = true
	}
	for name := range signed.Manifest.Tags {
		allowed["tags/"+name] = true
	}
	for name := range signed.Manifest.Notes {
		allowed["notes/"+name] = true
	}

	var out []RefAdvertisement
	for _, ref := range relevant {
		if allowed[ref.Name] {
			out = append(out, ref)
		}
	}
	return out
}

// isSymbolicChange reports whether admitting ref at localName would
// change the local ref's type between a symbolic reference and a
// direct hash reference. A ref with no local counterpart yet is not a
// type change — it is a new ref.
func isSymbolicChange(refStore *refs.Store, localName string, ref RefAdvertisement) bool {
	localIsSymbolic, err := refStore.IsSymbolicRef(localName)
	if err != nil {
		return false
	}
	remoteIsSymbolic := ref.SymbolicTarget != ""
	return localIsSymbolic != remoteIsSymbolic
}
