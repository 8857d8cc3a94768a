package replication

import "sync"

// RereNonceHeader is the marker a recursive ("replicate-replicate")
// fetch request carries so the receiver can recognize and refuse to
// rere on it, preventing an unbounded fetch loop between two peers
// that both opportunistically replicate from each other.
const RereNonceHeader = "x-linkd-rere-nonce"

// RereGuard tracks in-flight rere nonces this peer has itself
// originated, so an incoming fetch carrying one of them is never
// mistaken for a fresh opportunistic replication to bounce back.
type RereGuard struct {
	mu      sync.Mutex
	pending map[string]bool
}

// NewRereGuard creates an empty guard.
func NewRereGuard() *RereGuard {
	return &RereGuard{pending: make(map[string]bool)}
}

// Begin marks nonce as originated by this peer, returning a function
// to call once the recursive fetch completes.
func (g *RereGuard) Begin(nonce string) func() {
	g.mu.Lock()
	g.pending[nonce] = true
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		delete(g.pending, nonce)
		g.mu.Unlock()
	}
}

// ShouldRere reports whether a fetch request carrying nonce should
// trigger an opportunistic rere: it should not if nonce is empty (the
// initiator declined to rere further) or if this peer itself
// originated it (we would be rere-ing ourselves).
func (g *RereGuard) ShouldRere(nonce string) bool {
	if nonce == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.pending[nonce]
}

// OverlapsRemotes reports whether localRemotes and theirRemotes share
// at least one peer, the trigger condition for considering a rere.
func OverlapsRemotes(localRemotes, theirRemotes []string) bool {
	set := make(map[string]bool, len(localRemotes))
	for _, r := range localRemotes {
		set[r] = true
	}
	for _, r := range theirRemotes {
		if set[r] {
			return true
		}
	}
	return false
}
