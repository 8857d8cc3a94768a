// Package tracking persists which (URN, PeerId) pairs this peer
// replicates, gating which refs under refs/remotes/<peer>/... the
// storage layer will surface.
package tracking

import "fmt"

// TrackPolicy governs how a track request interacts with an existing
// entry for the same (URN, PeerId).
type TrackPolicy int

const (
	// TrackAny creates or overwrites the entry unconditionally.
	TrackAny TrackPolicy = iota
	// TrackMustNotExist fails if an entry already exists.
	TrackMustNotExist
	// TrackMustExist only updates an entry that already exists,
	// useful for safely reconfiguring an existing tracking relationship.
	TrackMustExist
)

// UntrackPolicy governs how an untrack request interacts with an
// existing entry.
type UntrackPolicy int

const (
	// UntrackAny removes the entry if present, succeeding either way.
	UntrackAny UntrackPolicy = iota
	// UntrackMustExist fails if no entry is present to remove.
	UntrackMustExist
)

// ErrAlreadyTracked is returned by Track under TrackMustNotExist when
// an entry is already present.
var ErrAlreadyTracked = fmt.Errorf("tracking: entry already exists")

// ErrNotTracked is returned by Track under TrackMustExist, or Untrack
// under UntrackMustExist, when no entry is present.
var ErrNotTracked = fmt.Errorf("tracking: entry does not exist")
