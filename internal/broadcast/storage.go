package broadcast

// Outcome classifies what happened when a received payload was handed
// to local storage, so Tree.Receive can decide how to propagate it.
type Outcome int

const (
	// Applied means the payload advanced local state to a revision it
	// did not have before.
	Applied Outcome = iota
	// Stale means local state is already at or past this revision;
	// the payload carries nothing new.
	Stale
	// Uninteresting means the payload is valid but out of scope for
	// this peer (e.g. a URN it does not track) — propagate unchanged,
	// but there is nothing to deliver locally.
	Uninteresting
	// Error means storage could not apply the payload (e.g. the
	// objects it references are not yet available).
	Error
)

// LocalStorage is the capability the gossip layer needs from the
// replication/storage layers: a way to test whether a payload is
// already reflected locally (so a redundant announcement can be
// pruned without even touching the network) and a way to hand off a
// freshly-received payload for the replication engine to act on.
type LocalStorage interface {
	// Has reports whether p's URN is already at or past p's revision
	// locally.
	Has(p Payload) bool
	// Put hands p to the replication engine, returning the Outcome
	// that decides how Tree.Receive fans it back out.
	Put(p Payload) (Outcome, error)
}
