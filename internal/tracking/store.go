package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/radicle-link/linkd/internal/codec"
	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/refs"
	"github.com/radicle-link/linkd/internal/urn"
)

// Store persists tracking entries as Git refs under
// refs/rad/tracking/..., each pointing at a blob holding the entry's
// Canonical-JSON configuration.
type Store struct {
	repo *git.Repository
}

// Open wraps an already-opened bare repository.
func Open(repo *git.Repository) *Store {
	return &Store{repo: repo}
}

type wireConfig struct {
	DataScope int `json:"data_scope"`
}

func (c Config) canonical() ([]byte, error) {
	return codec.CanonicalJSON(map[string]any{
		"data_scope": int(c.DataScope),
	})
}

// Track creates or updates a tracking entry, subject to policy.
func (s *Store) Track(u urn.URN, p *peerid.PeerId, cfg Config, policy TrackPolicy) (Entry, error) {
	entry := Entry{URN: u, Peer: p, Config: cfg}
	refName := plumbing.ReferenceName(entry.ref())

	_, err := s.repo.Storer.Reference(refName)
	exists := err == nil
	if err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return Entry{}, fmt.Errorf("tracking: read reference %s: %w", refName, err)
	}

	switch policy {
	case TrackMustNotExist:
		if exists {
			return Entry{}, ErrAlreadyTracked
		}
	case TrackMustExist:
		if !exists {
			return Entry{}, ErrNotTracked
		}
	}

	canonical, err := cfg.canonical()
	if err != nil {
		return Entry{}, fmt.Errorf("tracking: encode config: %w", err)
	}

	blobHash, err := s.writeBlob(canonical)
	if err != nil {
		return Entry{}, err
	}
	ref := plumbing.NewHashReference(refName, blobHash)
	if err := s.repo.Storer.SetReference(ref); err != nil {
		return Entry{}, fmt.Errorf("tracking: set reference %s: %w", refName, err)
	}

	return entry, nil
}

// PrunedRef describes a ref removed by an untrack prune, distinguishing
// a direct ref from a symbolic one it happened to resolve through.
type PrunedRef struct {
	Name     string
	Symbolic bool
}

// UntrackArgs controls Untrack's behavior.
type UntrackArgs struct {
	Policy UntrackPolicy
	Prune  bool
}

// Untrack removes the tracking entry for (u, p) and, if Prune is set,
// deletes every ref under refs/namespaces/<u>/refs/remotes/<p>/*,
// returning the refs it pruned.
func (s *Store) Untrack(u urn.URN, p peerid.PeerId, args UntrackArgs) ([]PrunedRef, error) {
	refName := plumbing.ReferenceName(refs.TrackingRef(u, &p))

	_, err := s.repo.Storer.Reference(refName)
	exists := err == nil
	if err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, fmt.Errorf("tracking: read reference %s: %w", refName, err)
	}
	if !exists {
		if args.Policy == UntrackMustExist {
			return nil, ErrNotTracked
		}
		return nil, nil
	}

	if err := s.repo.Storer.RemoveReference(refName); err != nil {
		return nil, fmt.Errorf("tracking: remove reference %s: %w", refName, err)
	}

	if !args.Prune {
		return nil, nil
	}
	return s.pruneRemoteRefs(refs.RemotePrefix(u, p))
}

func (s *Store) pruneRemoteRefs(prefix string) ([]PrunedRef, error) {
	iter, err := s.repo.Storer.IterReferences()
	if err != nil {
		return nil, fmt.Errorf("tracking: iterate references: %w", err)
	}
	defer iter.Close()

	var toRemove []*plumbing.Reference
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if strings.HasPrefix(ref.Name().String(), prefix) {
			toRemove = append(toRemove, ref)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tracking: walk references: %w", err)
	}

	pruned := make([]PrunedRef, 0, len(toRemove))
	for _, ref := range toRemove {
		if err := s.repo.Storer.RemoveReference(ref.Name()); err != nil {
			return pruned, fmt.Errorf("tracking: remove reference %s: %w", ref.Name(), err)
		}
		pruned = append(pruned, PrunedRef{
			Name:     ref.Name().String(),
			Symbolic: ref.Type() == plumbing.SymbolicReference,
		})
	}
	return pruned, nil
}

// Lookup returns the tracking entry for (u, p), or ErrNotTracked if
// none exists.
func (s *Store) Lookup(u urn.URN, p *peerid.PeerId) (Entry, error) {
	refName := plumbing.ReferenceName(refs.TrackingRef(u, p))
	ref, err := s.repo.Storer.Reference(refName)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return Entry{}, ErrNotTracked
		}
		return Entry{}, fmt.Errorf("tracking: read reference %s: %w", refName, err)
	}

	data, err := s.readBlob(ref.Hash())
	if err != nil {
		return Entry{}, err
	}
	var wc wireConfig
	if err := json.Unmarshal(data, &wc); err != nil {
		return Entry{}, fmt.Errorf("tracking: decode config: %w", err)
	}

	return Entry{URN: u, Peer: p, Config: Config{DataScope: DataScope(wc.DataScope)}}, nil
}

// IsTracked reports whether a visible entry exists for (u, p): either
// a specific entry for p, or the default entry accepting any peer.
func (s *Store) IsTracked(u urn.URN, p peerid.PeerId) bool {
	if _, err := s.Lookup(u, &p); err == nil {
		return true
	}
	_, err := s.Lookup(u, nil)
	return err == nil
}

// TrackedURNs returns the root identity string of every URN with at
// least one tracking entry, deduplicated across per-peer and default
// entries.
func (s *Store) TrackedURNs() ([]string, error) {
	iter, err := s.repo.Storer.IterReferences()
	if err != nil {
		return nil, fmt.Errorf("tracking: iterate references: %w", err)
	}
	defer iter.Close()

	const prefix = "refs/rad/tracking/"
	seen := make(map[string]bool)
	var out []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().String()
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		root, _, ok := strings.Cut(strings.TrimPrefix(name, prefix), "/")
		if !ok || seen[root] {
			return nil
		}
		seen[root] = true
		out = append(out, root)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tracking: walk references: %w", err)
	}
	return out, nil
}

func (s *Store) writeBlob(data []byte) (plumbing.Hash, error) {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := w.Write(data); err != nil {
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.repo.Storer.SetEncodedObject(obj)
}

func (s *Store) readBlob(h plumbing.Hash) ([]byte, error) {
	obj, err := s.repo.Storer.EncodedObject(plumbing.BlobObject, h)
	if err != nil {
		return nil, fmt.Errorf("tracking: load blob: %w", err)
	}
	r, err := obj.Reader()
	if err != nil {
		return nil, fmt.Errorf("tracking: read blob: %w", err)
	}
	defer r.Close()
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("tracking: read blob contents: %w", err)
	}
	return buf, nil
}
