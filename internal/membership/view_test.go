package membership

import (
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

func TestJoinAddsToActiveView(t *testing.T) {
	self := newTestPeer(t, "self")
	joiner := newTestPeer(t, "joiner")

	v := New(self, DefaultParams())
	v.Receive(Message{Kind: KindJoin, Join: &Join{Sender: joiner}})

	active := v.Active()
	if len(active) != 1 || !active[0].Equal(joiner) {
		t.Errorf("active = %v, want [%v]", active, joiner)
	}
}

func TestJoinForwardsToExistingActivePeers(t *testing.T) {
	self := newTestPeer(t, "self")
	existing := newTestPeer(t, "existing")
	joiner := newTestPeer(t, "joiner")

	v := New(self, DefaultParams())
	v.Receive(Message{Kind: KindJoin, Join: &Join{Sender: existing}})

	ticks := v.Receive(Message{Kind: KindJoin, Join: &Join{Sender: joiner}})

	var sawForward bool
	for _, tk := range ticks {
		if tk.Kind == TickSend && tk.Peer.Equal(existing) {
			if fj, ok := tk.Message.(ForwardJoin); ok && fj.Joiner.Equal(joiner) {
				sawForward = true
			}
		}
	}
	if !sawForward {
		t.Error("expected a ForwardJoin tick to the existing active peer")
	}
}

func TestActiveViewCapEvictsOnOverflow(t *testing.T) {
	self := newTestPeer(t, "self")
	params := DefaultParams()
	params.MaxActive = 1

	v := New(self, params)
	p1 := newTestPeer(t, "p1")
	p2 := newTestPeer(t, "p2")

	v.Receive(Message{Kind: KindJoin, Join: &Join{Sender: p1}})
	v.Receive(Message{Kind: KindJoin, Join: &Join{Sender: p2}})

	active := v.Active()
	if len(active) != 1 {
		t.Fatalf("active view should be capped at 1, got %d", len(active))
	}
}

func TestDisconnectRemovesFromActive(t *testing.T) {
	self := newTestPeer(t, "self")
	peer := newTestPeer(t, "peer")

	v := New(self, DefaultParams())
	v.Receive(Message{Kind: KindJoin, Join: &Join{Sender: peer}})
	v.Receive(Message{Kind: KindDisconnect, Disconnect: &Disconnect{Sender: peer, Alive: true}})

	if len(v.Active()) != 0 {
		t.Error("expected active view to be empty after disconnect")
	}
	if len(v.Passive()) != 1 {
		t.Error("expected disconnected peer to move to passive view (Alive=true)")
	}
}

func TestApplyEvictedRemovesFromBothViews(t *testing.T) {
	self := newTestPeer(t, "self")
	peer := newTestPeer(t, "peer")

	v := New(self, DefaultParams())
	v.Receive(Message{Kind: KindJoin, Join: &Join{Sender: peer}})
	v.Apply(Transition{Kind: TransitionEvicted, Peer: peer})

	if len(v.Active()) != 0 || len(v.Passive()) != 0 {
		t.Error("expected peer to be fully removed after eviction")
	}
}

func TestForwardJoinTTLZeroAddsDirectly(t *testing.T) {
	self := newTestPeer(t, "self")
	joiner := newTestPeer(t, "joiner")

	v := New(self, DefaultParams())
	v.Receive(Message{Kind: KindForwardJoin, ForwardJoin: &ForwardJoin{Joiner: joiner, TTL: 0}})

	active := v.Active()
	if len(active) != 1 || !active[0].Equal(joiner) {
		t.Errorf("active = %v, want [%v]", active, joiner)
	}
}
