// Package membership implements a HyParView-style partial-view
// membership protocol: each peer keeps a small active set of
// permanent TCP/QUIC-like connections and a larger passive set of
// addresses it can promote from when an active peer is lost.
package membership

import "time"

// Params configures the view sizes and walk lengths used by the
// protocol. These mirror the config.MembershipConfig fields one to
// one; runtime wiring copies them over at startup.
type Params struct {
	MaxActive            int
	MaxPassive           int
	ActiveRandomWalkLen  int
	PassiveRandomWalkLen int
	ShuffleSample        int
	ShuffleInterval      time.Duration
	PromoteInterval      time.Duration
}

// DefaultParams returns the protocol's reference parameterization.
func DefaultParams() Params {
	return Params{
		MaxActive:            5,
		MaxPassive:           30,
		ActiveRandomWalkLen:  5,
		PassiveRandomWalkLen: 2,
		ShuffleSample:        3,
		ShuffleInterval:      60 * time.Second,
		PromoteInterval:      30 * time.Second,
	}
}
