package refs

import (
	"fmt"
	"sort"

	"github.com/radicle-link/linkd/internal/codec"
	"github.com/radicle-link/linkd/internal/peerid"
)

// MaxRemoteDepth bounds the recursive depth of a manifest's Remotes
// tree; Canonical rejects a manifest with deeper nesting. Parsing a
// stored manifest does not check the depth.
const MaxRemoteDepth = 3

// Manifest is a per-peer, per-URN signed view of what that peer offers:
// its heads/tags/notes (one-level name to Git object id), plus a
// recursive map of the remote peers it itself knows about, bounded to
// MaxRemoteDepth.
type Manifest struct {
	Heads   map[string]string `json:"heads"`
	Tags    map[string]string `json:"tags"`
	Notes   map[string]string `json:"notes"`
	Remotes RemoteTree        `json:"remotes"`
}

// RemoteTree is a recursive map of PeerId (string form) to the remotes
// that peer itself advertises.
type RemoteTree map[string]RemoteTree

// Signed pairs a Manifest with the detached signature of its owning
// peer over its canonical encoding.
type Signed struct {
	Owner    peerid.PeerId
	Manifest Manifest
	Sig      []byte
}

// depth returns the tree's maximum nesting depth; an empty tree has
// depth 0.
func (t RemoteTree) depth() int {
	max := 0
	for _, sub := range t {
		if d := sub.depth() + 1; d > max {
			max = d
		}
	}
	return max
}

// Canonical encodes m as canonical JSON, the bytes a Signed manifest's
// signature covers.
func (m Manifest) Canonical() ([]byte, error) {
	if d := m.Remotes.depth(); d > MaxRemoteDepth {
		return nil, fmt.Errorf("refs: manifest remotes tree depth %d exceeds max %d", d, MaxRemoteDepth)
	}
	return codec.CanonicalJSON(map[string]any{
		"heads":   toAnyMap(m.Heads),
		"tags":    toAnyMap(m.Tags),
		"notes":   toAnyMap(m.Notes),
		"remotes": remoteTreeToAny(m.Remotes),
	})
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func remoteTreeToAny(t RemoteTree) map[string]any {
	out := make(map[string]any, len(t))
	for k, v := range t {
		out[k] = remoteTreeToAny(v)
	}
	return out
}

// SortedHeadNames returns the manifest's head names in sorted order,
// useful for deterministic test assertions and wire output.
func (m Manifest) SortedHeadNames() []string {
	names := make([]string, 0, len(m.Heads))
	for k := range m.Heads {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
