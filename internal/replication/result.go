// Package replication implements the fetch-and-verify pipeline that
// brings a local namespace up to date with a remote peer's view of a
// URN: negotiate refs, pull objects, re-verify identity, admit only
// what the remote's own signed manifest vouches for, then update refs.
package replication

import (
	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/urn"
)

// RejectedUpdate records a ref update the pipeline declined to apply,
// and why.
type RejectedUpdate struct {
	Ref    string
	Reason string
}

// ValidationError records a non-fatal post-validation failure.
type ValidationError struct {
	Ref   string
	Error string
}

// Result is the outcome of a single Replicate call.
type Result struct {
	UpdatedRefs         []string
	RejectedUpdates     []RejectedUpdate
	Tracked             []urn.URN
	RequiresConfirmation bool
	ValidationErrors    []ValidationError
}

// RefAdvertisement is a single (name, oid) pair as advertised by a
// remote during ls-refs.
type RefAdvertisement struct {
	Name string
	Oid  string
	// SymbolicTarget is the target ref name if the remote advertises
	// Name as a symbolic ref (e.g. HEAD -> refs/heads/main), empty
	// otherwise.
	SymbolicTarget string
}

// Fetcher is a peer-scoped Git fetcher bound to (URN, remote PeerId,
// address hints); the transport/runtime layer supplies the concrete
// implementation over a Git upload-pack stream.
type Fetcher interface {
	// Remote identifies which peer this fetcher talks to.
	Remote() peerid.PeerId
	// LsRefs lists the refs the remote advertises for the namespace.
	LsRefs() ([]RefAdvertisement, error)
	// FetchPack negotiates and transfers the objects reachable from
	// wants that are not already reachable from haves, aborting if the
	// advertised transfer size exceeds maxBytes.
	FetchPack(wants, haves []string, maxBytes int64) error
}
