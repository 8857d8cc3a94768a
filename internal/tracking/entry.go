package tracking

import (
	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/refs"
	"github.com/radicle-link/linkd/internal/urn"
)

// DataScope controls how much of a tracked peer's history this peer
// fetches.
type DataScope int

const (
	// ScopeAll fetches every ref the tracked peer advertises.
	ScopeAll DataScope = iota
	// ScopeTrackedOnly restricts fetches to refs belonging to peers
	// this peer already tracks transitively.
	ScopeTrackedOnly
)

// Config is the per-entry configuration persisted alongside a tracking
// relationship.
type Config struct {
	DataScope DataScope `json:"data_scope"`
}

// DefaultConfig returns the configuration used when none is supplied
// explicitly.
func DefaultConfig() Config {
	return Config{DataScope: ScopeAll}
}

// Entry is a single tracking relationship: this peer replicates u from
// peer (or, if Peer is nil, from whichever peer first offers it — the
// "default" entry), governed by Config.
type Entry struct {
	URN    urn.URN
	Peer   *peerid.PeerId
	Config Config
}

// ref returns the ref at which this entry's Canonical-JSON blob is
// persisted.
func (e Entry) ref() string {
	return refs.TrackingRef(e.URN, e.Peer)
}
