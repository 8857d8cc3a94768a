package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/radicle-link/linkd/internal/replication"
	"github.com/radicle-link/linkd/internal/urn"
)

func TestFetcherSlotsSerializesSamePair(t *testing.T) {
	slots := NewFetcherSlots(time.Second)
	u := urn.FromRootDocument([]byte("project"))
	remote := newTestPeer(t, "remote")

	release, err := slots.Acquire(context.Background(), u, remote)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	done := make(chan struct{})
	go func() {
		release2, err := slots.Acquire(context.Background(), u, remote)
		if err != nil {
			t.Errorf("second Acquire: %v", err)
			return
		}
		release2()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second acquire should not succeed before the first is released")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second acquire should succeed once the first slot is released")
	}
}

func TestFetcherSlotsTimesOut(t *testing.T) {
	slots := NewFetcherSlots(20 * time.Millisecond)
	u := urn.FromRootDocument([]byte("project"))
	remote := newTestPeer(t, "remote")

	release, err := slots.Acquire(context.Background(), u, remote)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	_, err = slots.Acquire(context.Background(), u, remote)
	if !errors.Is(err, replication.ErrFetcherSlotTimeout) {
		t.Errorf("expected ErrFetcherSlotTimeout, got %v", err)
	}
}

func TestFetcherSlotsDistinctPairsDontBlock(t *testing.T) {
	slots := NewFetcherSlots(time.Second)
	u := urn.FromRootDocument([]byte("project"))
	a := newTestPeer(t, "a")
	b := newTestPeer(t, "b")

	releaseA, err := slots.Acquire(context.Background(), u, a)
	if err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	defer releaseA()

	releaseB, err := slots.Acquire(context.Background(), u, b)
	if err != nil {
		t.Fatalf("Acquire b should not block on a's slot: %v", err)
	}
	releaseB()
}
