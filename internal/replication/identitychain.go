package replication

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/radicle-link/linkd/internal/identity"
	"github.com/radicle-link/linkd/internal/peerid"
)

// stableTime anchors identity commit timestamps to a fixed point,
// matching internal/refs's signed-refs commits: these are storage
// implementation detail, not user-facing history.
func stableTime() time.Time {
	return time.Unix(0, 0).UTC()
}

// gitIdentityLoader implements identity.CommitLoader against a bare
// Git repository's object store, reading the tree shape written by
// writeIdentityCommit: a "doc" blob holding the canonical document
// bytes and a "sigs" blob holding its detached signatures.
type gitIdentityLoader struct {
	repo *git.Repository
}

type signatureEntry struct {
	Signer string `json:"signer"`
	Sig    string `json:"sig"`
}

// NewGitIdentityLoader exposes gitIdentityLoader to callers outside
// this package (the runtime's own identity.Resolver, in particular)
// so the tree-shape convention stays defined in exactly one place.
func NewGitIdentityLoader(repo *git.Repository) identity.CommitLoader {
	return gitIdentityLoader{repo: repo}
}

func (l gitIdentityLoader) Load(oid string) (identity.ChainCommit, error) {
	hash := plumbing.NewHash(oid)
	commit, err := object.GetCommit(l.repo.Storer, hash)
	if err != nil {
		return identity.ChainCommit{}, fmt.Errorf("replication: load identity commit %s: %w", oid, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return identity.ChainCommit{}, fmt.Errorf("replication: load identity tree %s: %w", oid, err)
	}

	docBytes, err := readTreeFile(tree, "doc")
	if err != nil {
		return identity.ChainCommit{}, err
	}
	doc, err := identity.ParseDocument(docBytes)
	if err != nil {
		return identity.ChainCommit{}, fmt.Errorf("replication: parse identity document at %s: %w", oid, err)
	}

	sigsBytes, err := readTreeFile(tree, "sigs")
	if err != nil {
		return identity.ChainCommit{}, err
	}
	var rawSigs []signatureEntry
	if err := json.Unmarshal(sigsBytes, &rawSigs); err != nil {
		return identity.ChainCommit{}, fmt.Errorf("replication: parse identity signatures at %s: %w", oid, err)
	}
	sigs := make([]identity.Signature, 0, len(rawSigs))
	for _, raw := range rawSigs {
		signer, err := peerid.Parse(raw.Signer)
		if err != nil {
			return identity.ChainCommit{}, fmt.Errorf("replication: parse signer %q at %s: %w", raw.Signer, oid, err)
		}
		sig, err := hex.DecodeString(raw.Sig)
		if err != nil {
			return identity.ChainCommit{}, fmt.Errorf("replication: decode signature at %s: %w", oid, err)
		}
		sigs = append(sigs, identity.Signature{Signer: signer, Sig: sig})
	}

	var gitParentOid string
	if len(commit.ParentHashes) > 0 {
		gitParentOid = commit.ParentHashes[0].String()
	}

	return identity.ChainCommit{
		Revision:     identity.Revision{Oid: oid, Doc: doc, Signed: sigs},
		GitParentOid: gitParentOid,
	}, nil
}

func readTreeFile(tree *object.Tree, name string) ([]byte, error) {
	entry, err := tree.File(name)
	if err != nil {
		return nil, fmt.Errorf("replication: load %s blob: %w", name, err)
	}
	contents, err := entry.Contents()
	if err != nil {
		return nil, fmt.Errorf("replication: read %s blob: %w", name, err)
	}
	return []byte(contents), nil
}

// writeIdentityCommit writes rev as a new git commit parented on
// parent (the zero hash for a root revision), mirroring the tree
// shape gitIdentityLoader reads back. Used by tests and by callers
// publishing a newly-signed revision.
func writeIdentityCommit(repo *git.Repository, rev identity.Revision, parent plumbing.Hash) (plumbing.Hash, error) {
	docBytes, err := identity.Canonical(rev.Doc)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	sigs := make([]signatureEntry, 0, len(rev.Signed))
	for _, sig := range rev.Signed {
		sigs = append(sigs, signatureEntry{Signer: sig.Signer.String(), Sig: hex.EncodeToString(sig.Sig)})
	}
	sigsBytes, err := json.Marshal(sigs)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	docBlob, err := writeBlob(repo, docBytes)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	sigsBlob, err := writeBlob(repo, sigsBytes)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	tree := &object.Tree{
		Entries: []object.TreeEntry{
			{Name: "doc", Mode: filemode.Regular, Hash: docBlob},
			{Name: "sigs", Mode: filemode.Regular, Hash: sigsBlob},
		},
	}
	treeObj := repo.Storer.NewEncodedObject()
	if err := tree.Encode(treeObj); err != nil {
		return plumbing.ZeroHash, err
	}
	treeHash, err := repo.Storer.SetEncodedObject(treeObj)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	var parents []plumbing.Hash
	if parent != plumbing.ZeroHash {
		parents = []plumbing.Hash{parent}
	}
	commit := &object.Commit{
		Author:       object.Signature{Name: "identity", When: stableTime()},
		Committer:    object.Signature{Name: "identity", When: stableTime()},
		Message:      fmt.Sprintf("identity revision %d", rev.Doc.Revision),
		TreeHash:     treeHash,
		ParentHashes: parents,
	}
	commitObj := repo.Storer.NewEncodedObject()
	if err := commit.Encode(commitObj); err != nil {
		return plumbing.ZeroHash, err
	}
	return repo.Storer.SetEncodedObject(commitObj)
}

func writeBlob(repo *git.Repository, data []byte) (plumbing.Hash, error) {
	obj := repo.Storer.NewEncodedObject()
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
	return repo.Storer.SetEncodedObject(obj)
}

// identityTipOid finds the advertised oid for the identity ref among
// the refs a remote reported relevant to this namespace.
func identityTipOid(relevant []RefAdvertisement, identityRefName string) (string, bool) {
	for _, ref := range relevant {
		if ref.Name == identityRefName {
			return ref.Oid, true
		}
	}
	return "", false
}
