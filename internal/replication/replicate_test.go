package replication

import (
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/radicle-link/linkd/internal/config"
	"github.com/radicle-link/linkd/internal/identity"
	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/refs"
	"github.com/radicle-link/linkd/internal/tracking"
	"github.com/radicle-link/linkd/internal/urn"
)

type fakeFetcher struct {
	remote peerid.PeerId
	refs   []RefAdvertisement
}

func (f *fakeFetcher) Remote() peerid.PeerId { return f.remote }
func (f *fakeFetcher) LsRefs() ([]RefAdvertisement, error) {
	return f.refs, nil
}
func (f *fakeFetcher) FetchPack(wants, haves []string, maxBytes int64) error {
	return nil
}

type nilResolver struct{}

func (nilResolver) Resolve(u urn.URN) (identity.Revision, error) {
	return identity.Revision{}, identity.ErrUnknownDelegate
}

func newTestPeer(t *testing.T, name string) peerid.PeerId {
	t.Helper()
	kp, err := peerid.LoadOrCreate(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	return kp.ID
}

func TestReplicateAdmitsOnlySignedRefs(t *testing.T) {
	repo, err := git.Init(memory.NewStorage(), nil)
	if err != nil {
		t.Fatalf("git.Init: %v", err)
	}
	refStore := refs.Open(repo)
	trackStore := tracking.Open(repo)

	u := urn.FromRootDocument([]byte("project"))
	owner := newTestPeerKP(t, "owner")

	if _, err := refStore.Update(u, owner); err != nil {
		t.Fatalf("Update: %v", err)
	}

	ns := refs.Namespace(u)
	fetcher := &fakeFetcher{
		remote: owner.ID,
		refs: []RefAdvertisement{
			{Name: ns + "refs/heads/main", Oid: "deadbeef"},
		},
	}

	result, err := Replicate(refStore, trackStore, nilResolver{}, fetcher, u, config.Default().Replication, Whoami{Self: owner.ID})
	if err != nil {
		t.Fatalf("Replicate: %v", err)
	}
	// The remote's signed manifest (computed when empty) lists no
	// heads, so the advertised heads/main ref should not be admitted.
	if len(result.UpdatedRefs) != 0 {
		t.Errorf("expected no refs admitted, got %v", result.UpdatedRefs)
	}
}

func newTestPeerKP(t *testing.T, name string) peerid.KeyPair {
	t.Helper()
	kp, err := peerid.LoadOrCreate(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	return kp
}

func TestRereGuardPreventsSelfRere(t *testing.T) {
	g := NewRereGuard()
	done := g.Begin("nonce1")
	defer done()

	if g.ShouldRere("nonce1") {
		t.Error("should not rere on a nonce this peer originated")
	}
	if !g.ShouldRere("nonce2") {
		t.Error("should rere on an unrecognized nonce")
	}
	if g.ShouldRere("") {
		t.Error("should not rere when no nonce present")
	}
}

func TestOverlapsRemotes(t *testing.T) {
	if !OverlapsRemotes([]string{"a", "b"}, []string{"b", "c"}) {
		t.Error("expected overlap on shared peer b")
	}
	if OverlapsRemotes([]string{"a"}, []string{"c"}) {
		t.Error("expected no overlap")
	}
}
