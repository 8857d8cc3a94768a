package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/replication"
	"github.com/radicle-link/linkd/internal/urn"
)

// fetchKey identifies one (URN, remote) replication pair: at most one
// fetch for a given pair may be in flight at a time, to avoid two
// goroutines racing to fetch and update the same namespace.
type fetchKey struct {
	urn    string
	remote string
}

// FetcherSlots enforces at-most-one-fetcher-per-(URN,remote) and bounds
// how long a caller waits for a slot to free up.
type FetcherSlots struct {
	mu      sync.Mutex
	busy    map[fetchKey]struct{}
	waiters map[fetchKey][]chan struct{}
	timeout time.Duration
}

// NewFetcherSlots builds a slot tracker whose Acquire calls give up
// after waitTimeout.
func NewFetcherSlots(waitTimeout time.Duration) *FetcherSlots {
	return &FetcherSlots{
		busy:    make(map[fetchKey]struct{}),
		waiters: make(map[fetchKey][]chan struct{}),
		timeout: waitTimeout,
	}
}

// Acquire blocks until the (u, remote) slot is free, ctx is canceled,
// or the wait timeout elapses, whichever comes first. The returned
// release function must be called exactly once to free the slot.
func (s *FetcherSlots) Acquire(ctx context.Context, u urn.URN, remote peerid.PeerId) (func(), error) {
	key := fetchKey{urn: u.String(), remote: remote.String()}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for {
		s.mu.Lock()
		if _, taken := s.busy[key]; !taken {
			s.busy[key] = struct{}{}
			s.mu.Unlock()
			return func() { s.release(key) }, nil
		}
		wake := make(chan struct{})
		s.waiters[key] = append(s.waiters[key], wake)
		s.mu.Unlock()

		select {
		case <-wake:
			continue
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s/%s", replication.ErrFetcherSlotTimeout, key.urn, key.remote)
		}
	}
}

func (s *FetcherSlots) release(key fetchKey) {
	s.mu.Lock()
	delete(s.busy, key)
	waiters := s.waiters[key]
	delete(s.waiters, key)
	s.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
}
