package refs

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/urn"
)

// Store reads and writes signed-refs manifests against a bare Git
// repository's object and reference storage.
type Store struct {
	repo *git.Repository
}

// Open wraps an already-opened bare repository.
func Open(repo *git.Repository) *Store {
	return &Store{repo: repo}
}

// Repository exposes the underlying Git repository, for callers
// outside this package (the replication pipeline's identity chain
// loader, in particular) that need to read raw commits this store
// doesn't itself model.
func (s *Store) Repository() *git.Repository {
	return s.repo
}

// IsSymbolicRef reports whether the local ref named name is a
// symbolic reference, as opposed to a direct hash reference. Returns
// an error if the ref does not exist locally.
func (s *Store) IsSymbolicRef(name string) (bool, error) {
	ref, err := s.repo.Storer.Reference(plumbing.ReferenceName(name))
	if err != nil {
		return false, fmt.Errorf("refs: load reference %s: %w", name, err)
	}
	return ref.Type() == plumbing.SymbolicReference, nil
}

// Hash resolves name to the commit hash it currently points at,
// following a symbolic reference if necessary.
func (s *Store) Hash(name string) (plumbing.Hash, error) {
	ref, err := s.repo.Reference(plumbing.ReferenceName(name), true)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("refs: resolve reference %s: %w", name, err)
	}
	return ref.Hash(), nil
}

// listRefs returns every ref under prefix, keyed by its suffix with
// prefix stripped.
func (s *Store) listRefs(prefix string) (map[string]plumbing.Hash, error) {
	out := make(map[string]plumbing.Hash)
	iter, err := s.repo.Storer.IterReferences()
	if err != nil {
		return nil, fmt.Errorf("refs: iterate references: %w", err)
	}
	defer iter.Close()

	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().String()
		if strings.HasPrefix(name, prefix) && ref.Type() == plumbing.HashReference {
			out[strings.TrimPrefix(name, prefix)] = ref.Hash()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("refs: walk references: %w", err)
	}
	return out, nil
}

// hexMap converts a suffix→hash map into a suffix→hex-string map.
func hexMap(in map[string]plumbing.Hash) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v.String()
	}
	return out
}

// ComputeManifest builds the current local manifest for u: heads,
// tags, and notes one level deep, plus the set of remotes already
// known for u (their own nested manifests are folded in up to
// MaxRemoteDepth, if present locally).
func (s *Store) ComputeManifest(u urn.URN) (Manifest, error) {
	ns := Namespace(u)

	heads, err := s.listRefs(ns + "refs/heads/")
	if err != nil {
		return Manifest{}, err
	}
	tags, err := s.listRefs(ns + "refs/tags/")
	if err != nil {
		return Manifest{}, err
	}
	notes, err := s.listRefs(ns + "refs/notes/")
	if err != nil {
		return Manifest{}, err
	}

	remotePrefixes, err := s.listRefs(ns + "refs/remotes/")
	if err != nil {
		return Manifest{}, err
	}
	remotes := make(RemoteTree)
	for suffix := range remotePrefixes {
		peer, _, ok := strings.Cut(suffix, "/")
		if !ok {
			continue
		}
		if _, seen := remotes[peer]; !seen {
			remotes[peer] = s.nestedRemotes(ns+"refs/remotes/"+peer+"/", 1)
		}
	}

	return Manifest{
		Heads:   hexMap(heads),
		Tags:    hexMap(tags),
		Notes:   hexMap(notes),
		Remotes: remotes,
	}, nil
}

// nestedRemotes discovers the remotes a given remote peer itself
// advertises, by looking for that remote's own refs/remotes/* subtree
// mirrored locally, bounded to MaxRemoteDepth.
func (s *Store) nestedRemotes(prefix string, depth int) RemoteTree {
	if depth >= MaxRemoteDepth {
		return RemoteTree{}
	}
	sub, err := s.listRefs(prefix + "refs/remotes/")
	if err != nil {
		return RemoteTree{}
	}
	out := make(RemoteTree)
	for suffix := range sub {
		peer, _, ok := strings.Cut(suffix, "/")
		if !ok {
			continue
		}
		if _, seen := out[peer]; !seen {
			out[peer] = s.nestedRemotes(prefix+"refs/remotes/"+peer+"/", depth+1)
		}
	}
	return out
}

// Update recomputes the manifest for owner's view of u and writes it
// to refs/namespaces/<urn>/refs/rad/signed_refs as a new commit. The
// commit's tree holds two blobs: the canonical manifest bytes and its
// detached signature, hex-encoded.
func (s *Store) Update(u urn.URN, owner peerid.KeyPair) (Signed, error) {
	manifest, err := s.ComputeManifest(u)
	if err != nil {
		return Signed{}, err
	}

	canonical, err := manifest.Canonical()
	if err != nil {
		return Signed{}, err
	}
	sig, err := owner.Sign(canonical)
	if err != nil {
		return Signed{}, fmt.Errorf("refs: sign manifest: %w", err)
	}

	manifestBlob, err := s.writeBlob(canonical)
	if err != nil {
		return Signed{}, err
	}
	sigBlob, err := s.writeBlob([]byte(hex.EncodeToString(sig)))
	if err != nil {
		return Signed{}, err
	}
	treeHash, err := s.writeManifestTree(manifestBlob, sigBlob)
	if err != nil {
		return Signed{}, err
	}

	commit := &object.Commit{
		Author:    object.Signature{Name: owner.ID.String(), When: stableTime()},
		Committer: object.Signature{Name: owner.ID.String(), When: stableTime()},
		Message:   fmt.Sprintf("signed-refs for %s", u.Root()),
		TreeHash:  treeHash,
	}
	commitHash, err := s.writeCommit(commit)
	if err != nil {
		return Signed{}, err
	}

	refName := plumbing.ReferenceName(SignedRefsRef(u))
	ref := plumbing.NewHashReference(refName, commitHash)
	if err := s.repo.Storer.SetReference(ref); err != nil {
		return Signed{}, fmt.Errorf("refs: set reference %s: %w", refName, err)
	}

	return Signed{Owner: owner.ID, Manifest: manifest, Sig: sig}, nil
}

// stableTime anchors commit timestamps to a fixed point rather than
// wall-clock time: signed-refs commits are an implementation detail of
// storage, not a user-facing history, and a deterministic timestamp
// keeps repeated Update calls byte-identical when nothing else changed.
func stableTime() time.Time {
	return time.Unix(0, 0).UTC()
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

// writeManifestTree writes a two-entry tree: "manifest" holding the
// canonical manifest bytes, and "sig" holding its hex-encoded detached
// signature.
func (s *Store) writeManifestTree(manifestBlob, sigBlob plumbing.Hash) (plumbing.Hash, error) {
	tree := &object.Tree{
		Entries: []object.TreeEntry{
			{Name: "manifest", Mode: filemode.Regular, Hash: manifestBlob},
			{Name: "sig", Mode: filemode.Regular, Hash: sigBlob},
		},
	}
	obj := s.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.repo.Storer.SetEncodedObject(obj)
}

func (s *Store) writeCommit(c *object.Commit) (plumbing.Hash, error) {
	obj := s.repo.Storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.repo.Storer.SetEncodedObject(obj)
}

// LoadSigned loads the signed-refs manifest committed for (u, owner).
// Signature verification against owner's public key is performed by
// the caller, which holds the identity layer's key material.
func (s *Store) LoadSigned(u urn.URN, owner peerid.PeerId) (Signed, error) {
	refName := plumbing.ReferenceName(SignedRefsRef(u))
	ref, err := s.repo.Storer.Reference(refName)
	if err != nil {
		return Signed{}, fmt.Errorf("refs: load reference %s: %w", refName, err)
	}

	commit, err := object.GetCommit(s.repo.Storer, ref.Hash())
	if err != nil {
		return Signed{}, fmt.Errorf("refs: load commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return Signed{}, fmt.Errorf("refs: load tree: %w", err)
	}

	manifestBytes, err := readTreeFile(tree, "manifest")
	if err != nil {
		return Signed{}, err
	}
	sigHex, err := readTreeFile(tree, "sig")
	if err != nil {
		return Signed{}, err
	}
	sig, err := hex.DecodeString(string(sigHex))
	if err != nil {
		return Signed{}, fmt.Errorf("refs: decode signature: %w", err)
	}

	manifest, err := parseManifest(manifestBytes)
	if err != nil {
		return Signed{}, err
	}

	return Signed{Owner: owner, Manifest: manifest, Sig: sig}, nil
}

func readTreeFile(tree *object.Tree, name string) ([]byte, error) {
	entry, err := tree.File(name)
	if err != nil {
		return nil, fmt.Errorf("refs: load %s blob: %w", name, err)
	}
	contents, err := entry.Contents()
	if err != nil {
		return nil, fmt.Errorf("refs: read %s blob: %w", name, err)
	}
	return []byte(contents), nil
}

// parseManifest decodes canonical JSON manifest bytes back into a
// Manifest.
func parseManifest(data []byte) (Manifest, error) {
	var raw struct {
		Heads   map[string]string `json:"heads"`
		Tags    map[string]string `json:"tags"`
		Notes   map[string]string `json:"notes"`
		Remotes map[string]any    `json:"remotes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Manifest{}, fmt.Errorf("refs: parse manifest: %w", err)
	}
	return Manifest{
		Heads:   raw.Heads,
		Tags:    raw.Tags,
		Notes:   raw.Notes,
		Remotes: anyToRemoteTree(raw.Remotes),
	}, nil
}

func anyToRemoteTree(m map[string]any) RemoteTree {
	out := make(RemoteTree, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = anyToRemoteTree(sub)
		} else {
			out[k] = RemoteTree{}
		}
	}
	return out
}
