package runtime

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/radicle-link/linkd/internal/peerid"
)

// ErrRateLimited is returned when a peer's inbound traffic overflows
// its keyed limiter. Peer checks the limiter once per accepted
// connection and closes a connection that overflows it; individual
// gossip and interrogation streams are not checked.
var ErrRateLimited = errors.New("runtime: inbound rate limit exceeded")

// RateLimiter keys a token-bucket limiter per remote peer, so one
// noisy peer cannot starve traffic budget meant for others.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewRateLimiter builds a limiter allowing rps sustained events per
// second per peer, with burst headroom.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (r *RateLimiter) limiterFor(id peerid.PeerId) *rate.Limiter {
	key := id.String()

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[key]; ok {
		return l
	}
	l := rate.NewLimiter(r.rps, r.burst)
	r.limiters[key] = l
	return l
}

// Allow reports whether one event from id may proceed right now.
func (r *RateLimiter) Allow(id peerid.PeerId) bool {
	return r.limiterFor(id).Allow()
}

// CheckAndWait errors immediately with ErrRateLimited, naming how long
// id must wait before its next event would be admitted, rather than
// blocking the caller.
func (r *RateLimiter) CheckAndWait(id peerid.PeerId) error {
	l := r.limiterFor(id)
	if l.Allow() {
		return nil
	}
	res := l.Reserve()
	delay := res.Delay()
	res.Cancel()
	return fmt.Errorf("%w: retry after %s", ErrRateLimited, delay.Round(time.Millisecond))
}

// Forget releases the per-peer limiter state, intended for when a peer
// is untracked or its connection is torn down for good.
func (r *RateLimiter) Forget(id peerid.PeerId) {
	r.mu.Lock()
	delete(r.limiters, id.String())
	r.mu.Unlock()
}
