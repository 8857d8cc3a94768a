package refs

import (
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/urn"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	repo, err := git.Init(memory.NewStorage(), nil)
	if err != nil {
		t.Fatalf("git.Init: %v", err)
	}
	return Open(repo)
}

func newTestKeyPair(t *testing.T, name string) peerid.KeyPair {
	t.Helper()
	kp, err := peerid.LoadOrCreate(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	return kp
}

func TestComputeManifestEmpty(t *testing.T) {
	s := newTestStore(t)
	u := urn.FromRootDocument([]byte("project-one"))

	m, err := s.ComputeManifest(u)
	if err != nil {
		t.Fatalf("ComputeManifest: %v", err)
	}
	if len(m.Heads) != 0 || len(m.Tags) != 0 || len(m.Notes) != 0 || len(m.Remotes) != 0 {
		t.Errorf("expected empty manifest, got %+v", m)
	}
}

func TestUpdateLoadSignedRoundTrip(t *testing.T) {
	s := newTestStore(t)
	u := urn.FromRootDocument([]byte("project-two"))
	owner := newTestKeyPair(t, "owner")

	signed, err := s.Update(u, owner)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(signed.Sig) == 0 {
		t.Fatal("expected non-empty signature")
	}

	loaded, err := s.LoadSigned(u, owner.ID)
	if err != nil {
		t.Fatalf("LoadSigned: %v", err)
	}

	ok, err := owner.ID.Verify(mustCanonical(t, loaded.Manifest), loaded.Sig)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Error("loaded signature does not verify against loaded manifest")
	}

	if len(loaded.Manifest.Heads) != len(signed.Manifest.Heads) {
		t.Errorf("heads mismatch: got %v, want %v", loaded.Manifest.Heads, signed.Manifest.Heads)
	}
}

func mustCanonical(t *testing.T, m Manifest) []byte {
	t.Helper()
	b, err := m.Canonical()
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	return b
}

func TestUpdateReflectsHeads(t *testing.T) {
	s := newTestStore(t)
	u := urn.FromRootDocument([]byte("project-three"))
	owner := newTestKeyPair(t, "owner")

	ns := Namespace(u)
	hash := plumbing.NewHash("0123456789abcdef0123456789abcdef01234567")
	ref := plumbing.NewHashReference(plumbing.ReferenceName(ns+"refs/heads/main"), hash)
	if err := s.repo.Storer.SetReference(ref); err != nil {
		t.Fatalf("SetReference: %v", err)
	}

	signed, err := s.Update(u, owner)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, ok := signed.Manifest.Heads["main"]; !ok {
		t.Errorf("expected heads[main] to be present, got %v", signed.Manifest.Heads)
	}
}

func TestRemoteTreeDepthRejected(t *testing.T) {
	deep := RemoteTree{
		"p1": RemoteTree{
			"p2": RemoteTree{
				"p3": RemoteTree{
					"p4": RemoteTree{},
				},
			},
		},
	}
	m := Manifest{Remotes: deep}
	if _, err := m.Canonical(); err == nil {
		t.Error("expected error for remotes tree exceeding MaxRemoteDepth")
	}
}
