// Package refs computes, loads, and updates per-peer, per-URN signed
// refs manifests under a namespaced Git ref tree.
package refs

import (
	"fmt"
	"strings"

	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/urn"
)

// Namespace returns the root ref prefix for u's content-addressed
// identity: "refs/namespaces/<urn-id>/".
func Namespace(u urn.URN) string {
	return fmt.Sprintf("refs/namespaces/%s/", u.Root().String())
}

// SignedRefsRef returns the ref at which the owning peer's signed-refs
// manifest is stored within u's namespace.
func SignedRefsRef(u urn.URN) string {
	return Namespace(u) + "refs/rad/signed_refs"
}

// IdentityRef returns the ref at which u's identity document tip is
// stored within its own namespace.
func IdentityRef(u urn.URN) string {
	return Namespace(u) + "refs/rad/id"
}

// RemotePrefix returns the ref prefix under which a tracked remote's
// view of u is surfaced: "refs/namespaces/<urn-id>/refs/remotes/<peer>/".
func RemotePrefix(u urn.URN, p peerid.PeerId) string {
	return Namespace(u) + "refs/remotes/" + p.String() + "/"
}

// TrackingRef returns the ref under which a tracking entry for (u, p)
// is persisted as a Canonical-JSON blob.
func TrackingRef(u urn.URN, p *peerid.PeerId) string {
	if p == nil {
		return "refs/rad/tracking/" + u.Root().String() + "/default"
	}
	return "refs/rad/tracking/" + u.Root().String() + "/" + p.String()
}

// SplitLocalRef strips u's namespace prefix from a fully-qualified ref
// name, returning the remainder (e.g. "heads/main").
func SplitLocalRef(u urn.URN, full string) (string, bool) {
	prefix := Namespace(u)
	if !strings.HasPrefix(full, prefix) {
		return "", false
	}
	return strings.TrimPrefix(full, prefix), true
}
