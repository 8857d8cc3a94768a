package runtime

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/radicle-link/linkd/internal/peerid"
)

func newTestPeer(t *testing.T, name string) peerid.PeerId {
	t.Helper()
	kp, err := peerid.LoadOrCreate(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	return kp.ID
}

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	id := newTestPeer(t, "a")

	for i := 0; i < 3; i++ {
		if !rl.Allow(id) {
			t.Fatalf("event %d should be allowed within burst", i)
		}
	}
}

func TestRateLimiterRejectsOverBurst(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	id := newTestPeer(t, "a")

	if !rl.Allow(id) {
		t.Fatal("first event should be allowed")
	}
	if err := rl.CheckAndWait(id); !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestRateLimiterIsPerPeer(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	a := newTestPeer(t, "a")
	b := newTestPeer(t, "b")

	if !rl.Allow(a) {
		t.Fatal("a's first event should be allowed")
	}
	if !rl.Allow(b) {
		t.Fatal("b's limiter is independent of a's and should allow its first event")
	}
}

func TestRateLimiterForget(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	id := newTestPeer(t, "a")

	rl.Allow(id)
	rl.Forget(id)
	if !rl.Allow(id) {
		t.Error("forgetting a peer should reset its limiter state")
	}
}
