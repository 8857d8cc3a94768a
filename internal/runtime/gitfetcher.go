package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/packfile"
	"github.com/go-git/go-git/v5/plumbing/revlist"

	"github.com/radicle-link/linkd/internal/codec"
	"github.com/radicle-link/linkd/internal/identity"
	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/refs"
	"github.com/radicle-link/linkd/internal/replication"
	"github.com/radicle-link/linkd/internal/transport"
	"github.com/radicle-link/linkd/internal/urn"
)

// gitRequestKind distinguishes the two calls replication.Fetcher needs
// from a remote over a single /rad/git/2 stream.
type gitRequestKind string

const (
	gitRequestLsRefs    gitRequestKind = "ls-refs"
	gitRequestFetchPack gitRequestKind = "fetch-pack"
)

// gitWireRequest is the CBOR-framed request sent on /rad/git/2.
type gitWireRequest struct {
	Kind     gitRequestKind
	URN      urn.URN
	Wants    []string
	Haves    []string
	MaxBytes int64
}

type gitLsRefsResponse struct {
	Refs  []replication.RefAdvertisement
	Error string
}

type gitFetchPackResponse struct {
	PackData []byte
	Error    string
}

// streamFetcher implements replication.Fetcher over a borrowed
// /rad/git/2 stream to a single remote, scoped to one URN per call
// (replication.Replicate is always invoked for exactly one URN at a
// time).
type streamFetcher struct {
	peer   *Peer
	remote peerid.PeerId
	urn    urn.URN
}

func newStreamFetcher(p *Peer, remote peerid.PeerId, u urn.URN) *streamFetcher {
	return &streamFetcher{peer: p, remote: remote, urn: u}
}

func (f *streamFetcher) Remote() peerid.PeerId { return f.remote }

func (f *streamFetcher) LsRefs() ([]replication.RefAdvertisement, error) {
	stream, err := f.peer.borrowOrDialStream(f.remote, transport.ProtocolGit)
	if err != nil {
		return nil, fmt.Errorf("runtime: dial git stream to %s: %w", f.remote, err)
	}
	if err := codec.WriteFrame(stream, gitWireRequest{Kind: gitRequestLsRefs, URN: f.urn}); err != nil {
		f.peer.invalidateStream(f.remote, transport.ProtocolGit)
		return nil, fmt.Errorf("runtime: send ls-refs request to %s: %w", f.remote, err)
	}
	var resp gitLsRefsResponse
	if err := codec.ReadFrame(stream, &resp); err != nil {
		f.peer.invalidateStream(f.remote, transport.ProtocolGit)
		return nil, fmt.Errorf("runtime: read ls-refs response from %s: %w", f.remote, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("runtime: remote ls-refs failed: %s", resp.Error)
	}
	return resp.Refs, nil
}

func (f *streamFetcher) FetchPack(wants, haves []string, maxBytes int64) error {
	stream, err := f.peer.borrowOrDialStream(f.remote, transport.ProtocolGit)
	if err != nil {
		return fmt.Errorf("runtime: dial git stream to %s: %w", f.remote, err)
	}
	req := gitWireRequest{Kind: gitRequestFetchPack, URN: f.urn, Wants: wants, Haves: haves, MaxBytes: maxBytes}
	if err := codec.WriteFrame(stream, req); err != nil {
		f.peer.invalidateStream(f.remote, transport.ProtocolGit)
		return fmt.Errorf("runtime: send fetch-pack request to %s: %w", f.remote, err)
	}
	var resp gitFetchPackResponse
	if err := codec.ReadFrame(stream, &resp); err != nil {
		f.peer.invalidateStream(f.remote, transport.ProtocolGit)
		return fmt.Errorf("runtime: read fetch-pack response from %s: %w", f.remote, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("runtime: remote fetch-pack failed: %s", resp.Error)
	}
	if int64(len(resp.PackData)) > maxBytes {
		return fmt.Errorf("runtime: fetch-pack from %s: %w: %d > %d bytes", f.remote, replication.ErrFetchBudgetExceeded, len(resp.PackData), maxBytes)
	}
	return f.applyPack(resp.PackData)
}

func (f *streamFetcher) applyPack(data []byte) error {
	repo, err := f.peer.storage.Acquire(context.Background())
	if err != nil {
		return fmt.Errorf("runtime: acquire storage handle: %w", err)
	}
	defer f.peer.storage.Release(repo)

	if err := packfile.UpdateObjectStorage(repo.Storer, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("runtime: unpack fetch-pack data from %s: %w", f.remote, err)
	}
	f.peer.metrics.ReplicationBytes.Add(float64(len(data)))
	return nil
}

// handleGitStream services the server side of /rad/git/2: a remote
// may issue any number of ls-refs/fetch-pack requests over one
// negotiated stream.
func (p *Peer) handleGitStream(stream io.ReadWriteCloser) error {
	for {
		var req gitWireRequest
		if err := codec.ReadFrame(stream, &req); err != nil {
			return err
		}
		switch req.Kind {
		case gitRequestLsRefs:
			refsOut, err := p.computeLocalAdvertisements(req.URN)
			if err != nil {
				if err := codec.WriteFrame(stream, gitLsRefsResponse{Error: err.Error()}); err != nil {
					return err
				}
				continue
			}
			if err := codec.WriteFrame(stream, gitLsRefsResponse{Refs: refsOut}); err != nil {
				return err
			}
		case gitRequestFetchPack:
			packData, err := p.buildPack(req.Wants, req.Haves)
			if err != nil {
				if err := codec.WriteFrame(stream, gitFetchPackResponse{Error: err.Error()}); err != nil {
					return err
				}
				continue
			}
			if err := codec.WriteFrame(stream, gitFetchPackResponse{PackData: packData}); err != nil {
				return err
			}
		default:
			if err := codec.WriteFrame(stream, gitFetchPackResponse{Error: fmt.Sprintf("unknown git request kind %q", req.Kind)}); err != nil {
				return err
			}
		}
	}
}

// computeLocalAdvertisements builds the ls-refs response for u: every
// head/tag/note this peer holds under u's namespace, plus its
// identity tip if one exists.
func (p *Peer) computeLocalAdvertisements(u urn.URN) ([]replication.RefAdvertisement, error) {
	manifest, err := p.refStore.ComputeManifest(u)
	if err != nil {
		return nil, fmt.Errorf("runtime: compute manifest for %s: %w", u, err)
	}
	ns := refs.Namespace(u)

	var out []replication.RefAdvertisement
	for name, oid := range manifest.Heads {
		out = append(out, replication.RefAdvertisement{Name: ns + "refs/heads/" + name, Oid: oid})
	}
	for name, oid := range manifest.Tags {
		out = append(out, replication.RefAdvertisement{Name: ns + "refs/tags/" + name, Oid: oid})
	}
	for name, oid := range manifest.Notes {
		out = append(out, replication.RefAdvertisement{Name: ns + "refs/notes/" + name, Oid: oid})
	}
	if hash, err := p.refStore.Hash(refs.IdentityRef(u)); err == nil {
		out = append(out, replication.RefAdvertisement{Name: refs.IdentityRef(u), Oid: hash.String()})
	}
	return out, nil
}

// buildPack encodes every object reachable from wants but not from
// haves into a single packfile, using go-git's revlist to compute the
// exact object set rather than over-sending whole history.
func (p *Peer) buildPack(wants, haves []string) ([]byte, error) {
	repo := p.refStore.Repository()

	wantHashes := make([]plumbing.Hash, 0, len(wants))
	for _, w := range wants {
		wantHashes = append(wantHashes, plumbing.NewHash(w))
	}
	haveHashes := make([]plumbing.Hash, 0, len(haves))
	for _, h := range haves {
		haveHashes = append(haveHashes, plumbing.NewHash(h))
	}

	objects, err := revlist.Objects(repo.Storer, wantHashes, haveHashes)
	if err != nil {
		return nil, fmt.Errorf("runtime: compute pack object list: %w", err)
	}

	var buf bytes.Buffer
	enc := packfile.NewEncoder(&buf, repo.Storer, false)
	if _, err := enc.Encode(objects, 10); err != nil {
		return nil, fmt.Errorf("runtime: encode packfile: %w", err)
	}
	return buf.Bytes(), nil
}

// gitResolver implements identity.Resolver by reading a URN's identity
// ref tip from this peer's own object store: resolving an Indirect
// delegate's current revision means reading what this peer's own
// `rad/id` ref for that URN currently points at.
type gitResolver struct {
	refStore *refs.Store
	loader   identity.CommitLoader
}

func newGitResolver(refStore *refs.Store, loader identity.CommitLoader) *gitResolver {
	return &gitResolver{refStore: refStore, loader: loader}
}

func (r *gitResolver) Resolve(u urn.URN) (identity.Revision, error) {
	hash, err := r.refStore.Hash(refs.IdentityRef(u))
	if err != nil {
		return identity.Revision{}, fmt.Errorf("runtime: resolve identity tip for %s: %w", u, err)
	}
	commit, err := r.loader.Load(hash.String())
	if err != nil {
		return identity.Revision{}, fmt.Errorf("runtime: load identity revision for %s: %w", u, err)
	}
	return commit.Revision, nil
}
