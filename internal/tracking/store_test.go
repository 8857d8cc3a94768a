package tracking

import (
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/refs"
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

func newTestPeer(t *testing.T, name string) peerid.PeerId {
	t.Helper()
	kp, err := peerid.LoadOrCreate(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	return kp.ID
}

func TestTrackAndLookup(t *testing.T) {
	s := newTestStore(t)
	u := urn.FromRootDocument([]byte("project"))
	p := newTestPeer(t, "alice")

	if _, err := s.Track(u, &p, DefaultConfig(), TrackAny); err != nil {
		t.Fatalf("Track: %v", err)
	}

	entry, err := s.Lookup(u, &p)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry.Config.DataScope != ScopeAll {
		t.Errorf("DataScope = %v, want ScopeAll", entry.Config.DataScope)
	}
}

func TestTrackMustNotExistRejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	u := urn.FromRootDocument([]byte("project"))
	p := newTestPeer(t, "alice")

	if _, err := s.Track(u, &p, DefaultConfig(), TrackAny); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if _, err := s.Track(u, &p, DefaultConfig(), TrackMustNotExist); err != ErrAlreadyTracked {
		t.Errorf("got err=%v, want ErrAlreadyTracked", err)
	}
}

func TestTrackMustExistRejectsMissing(t *testing.T) {
	s := newTestStore(t)
	u := urn.FromRootDocument([]byte("project"))
	p := newTestPeer(t, "alice")

	if _, err := s.Track(u, &p, DefaultConfig(), TrackMustExist); err != ErrNotTracked {
		t.Errorf("got err=%v, want ErrNotTracked", err)
	}
}

func TestUntrackRemovesEntry(t *testing.T) {
	s := newTestStore(t)
	u := urn.FromRootDocument([]byte("project"))
	p := newTestPeer(t, "alice")

	if _, err := s.Track(u, &p, DefaultConfig(), TrackAny); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if _, err := s.Untrack(u, p, UntrackArgs{Policy: UntrackMustExist}); err != nil {
		t.Fatalf("Untrack: %v", err)
	}
	if _, err := s.Lookup(u, &p); err != ErrNotTracked {
		t.Errorf("Lookup after untrack: got err=%v, want ErrNotTracked", err)
	}
}

func TestUntrackMustExistRejectsMissing(t *testing.T) {
	s := newTestStore(t)
	u := urn.FromRootDocument([]byte("project"))
	p := newTestPeer(t, "alice")

	if _, err := s.Untrack(u, p, UntrackArgs{Policy: UntrackMustExist}); err != ErrNotTracked {
		t.Errorf("got err=%v, want ErrNotTracked", err)
	}
}

func TestUntrackPrunesRemoteRefs(t *testing.T) {
	s := newTestStore(t)
	u := urn.FromRootDocument([]byte("project"))
	p := newTestPeer(t, "alice")

	if _, err := s.Track(u, &p, DefaultConfig(), TrackAny); err != nil {
		t.Fatalf("Track: %v", err)
	}

	prefix := refs.RemotePrefix(u, p)
	hash := plumbing.NewHash("0123456789abcdef0123456789abcdef01234567")
	ref := plumbing.NewHashReference(plumbing.ReferenceName(prefix+"heads/main"), hash)
	if err := s.repo.Storer.SetReference(ref); err != nil {
		t.Fatalf("SetReference: %v", err)
	}

	pruned, err := s.Untrack(u, p, UntrackArgs{Policy: UntrackMustExist, Prune: true})
	if err != nil {
		t.Fatalf("Untrack: %v", err)
	}
	if len(pruned) != 1 || pruned[0].Name != prefix+"heads/main" {
		t.Errorf("pruned = %+v, want single entry for %s", pruned, prefix+"heads/main")
	}

	if _, err := s.repo.Storer.Reference(plumbing.ReferenceName(prefix + "heads/main")); err == nil {
		t.Error("expected pruned ref to be gone")
	}
}

func TestIsTrackedDefaultEntry(t *testing.T) {
	s := newTestStore(t)
	u := urn.FromRootDocument([]byte("project"))
	p := newTestPeer(t, "alice")

	if s.IsTracked(u, p) {
		t.Fatal("expected not tracked before any entry exists")
	}

	if _, err := s.Track(u, nil, DefaultConfig(), TrackAny); err != nil {
		t.Fatalf("Track default: %v", err)
	}
	if !s.IsTracked(u, p) {
		t.Error("expected default entry to make any peer tracked")
	}
}
