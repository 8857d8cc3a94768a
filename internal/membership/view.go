package membership

import (
	"math/rand"
	"sync"

	"github.com/radicle-link/linkd/internal/peerid"
)

// View holds one peer's active and passive membership sets and
// implements the HyParView protocol's message handling as pure state
// transitions: every method returns the Ticks the runtime must carry
// out, and never performs I/O itself.
type View struct {
	mu sync.Mutex

	self   peerid.PeerId
	params Params
	rng    *rand.Rand

	active  map[string]peerid.PeerId
	passive map[string]peerid.PeerId
}

// New creates an empty View for self.
func New(self peerid.PeerId, params Params) *View {
	return &View{
		self:    self,
		params:  params,
		rng:     rand.New(rand.NewSource(peerSeed(self))),
		active:  make(map[string]peerid.PeerId),
		passive: make(map[string]peerid.PeerId),
	}
}

func peerSeed(p peerid.PeerId) int64 {
	b, err := p.Bytes()
	if err != nil || len(b) == 0 {
		return 1
	}
	var seed int64
	for i, c := range b {
		seed += int64(c) << uint((i%8)*8)
	}
	if seed == 0 {
		seed = 1
	}
	return seed
}

// Active returns a snapshot of the current active view.
func (v *View) Active() []peerid.PeerId {
	v.mu.Lock()
	defer v.mu.Unlock()
	return mapValues(v.active)
}

// Passive returns a snapshot of the current passive view.
func (v *View) Passive() []peerid.PeerId {
	v.mu.Lock()
	defer v.mu.Unlock()
	return mapValues(v.passive)
}

func mapValues(m map[string]peerid.PeerId) []peerid.PeerId {
	out := make([]peerid.PeerId, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	return out
}

// Contact initiates the protocol against a known contact peer,
// returning the Join message to send.
func (v *View) Contact(contact peerid.PeerId) []Tick {
	return []Tick{{Kind: TickConnect, Peer: contact, Message: Join{Sender: v.self}}}
}

// addActive inserts p into the active view, demoting an arbitrary
// member (the first one map iteration yields) to passive if the view is
// already full and returning the Ticks required to notify that peer.
func (v *View) addActive(p peerid.PeerId) []Tick {
	if p.Equal(v.self) {
		return nil
	}
	if _, ok := v.active[p.String()]; ok {
		return nil
	}

	var ticks []Tick
	if len(v.active) >= v.params.MaxActive {
		for key, evicted := range v.active {
			delete(v.active, key)
			v.addPassiveLocked(evicted)
			ticks = append(ticks, Tick{Kind: TickSend, Peer: evicted, Message: Disconnect{Sender: v.self, Alive: true}})
			break
		}
	}

	v.active[p.String()] = p
	delete(v.passive, p.String())
	return ticks
}

// addPassiveLocked inserts p into the passive view, evicting a random
// member if full. Caller must hold v.mu.
func (v *View) addPassiveLocked(p peerid.PeerId) {
	if p.Equal(v.self) {
		return
	}
	if _, ok := v.active[p.String()]; ok {
		return
	}
	if _, ok := v.passive[p.String()]; ok {
		return
	}
	if len(v.passive) >= v.params.MaxPassive {
		for key := range v.passive {
			delete(v.passive, key)
			break
		}
	}
	v.passive[p.String()] = p
}

// Receive dispatches an incoming Message and returns the Ticks the
// runtime must execute.
func (v *View) Receive(m Message) []Tick {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch m.Kind {
	case KindJoin:
		return v.handleJoin(*m.Join)
	case KindForwardJoin:
		return v.handleForwardJoin(*m.ForwardJoin)
	case KindNeighbour:
		return v.handleNeighbour(*m.Neighbour)
	case KindNeighbourReply:
		return v.handleNeighbourReply(*m.NeighbourReply)
	case KindShuffle:
		return v.handleShuffle(*m.Shuffle)
	case KindShuffleReply:
		return v.handleShuffleReply(*m.ShuffleReply)
	case KindDisconnect:
		return v.handleDisconnect(*m.Disconnect)
	default:
		return nil
	}
}

func (v *View) handleJoin(j Join) []Tick {
	ticks := v.addActive(j.Sender)

	for _, peer := range v.active {
		if peer.Equal(j.Sender) {
			continue
		}
		ticks = append(ticks, Tick{
			Kind:    TickSend,
			Peer:    peer,
			Message: ForwardJoin{Joiner: j.Sender, TTL: v.params.ActiveRandomWalkLen},
		})
	}
	return ticks
}

func (v *View) handleForwardJoin(fj ForwardJoin) []Tick {
	if fj.TTL == 0 || len(v.active) == 0 {
		return v.addActive(fj.Joiner)
	}

	if fj.TTL == v.params.PassiveRandomWalkLen {
		v.addPassiveLocked(fj.Joiner)
	}

	next := v.randomActiveExcept(fj.Joiner)
	if next == nil {
		return v.addActive(fj.Joiner)
	}
	return []Tick{{
		Kind:    TickSend,
		Peer:    *next,
		Message: ForwardJoin{Joiner: fj.Joiner, TTL: fj.TTL - 1},
	}}
}

func (v *View) randomActiveExcept(exclude peerid.PeerId) *peerid.PeerId {
	candidates := make([]peerid.PeerId, 0, len(v.active))
	for _, p := range v.active {
		if !p.Equal(exclude) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	chosen := candidates[v.rng.Intn(len(candidates))]
	return &chosen
}

func (v *View) handleNeighbour(n Neighbour) []Tick {
	accept := n.HighPriority || len(v.active) < v.params.MaxActive
	if accept {
		ticks := v.addActive(n.Sender)
		return append(ticks, Tick{Kind: TickReply, Peer: n.Sender, Message: NeighbourReply{Sender: v.self, Accepted: true}})
	}
	return []Tick{{Kind: TickReply, Peer: n.Sender, Message: NeighbourReply{Sender: v.self, Accepted: false}}}
}

func (v *View) handleNeighbourReply(r NeighbourReply) []Tick {
	if !r.Accepted {
		v.addPassiveLocked(r.Sender)
		return nil
	}
	return v.addActive(r.Sender)
}

// PromoteIfEmpty is invoked on the promote tick: if the active view
// has room, it picks a passive peer and asks to become its neighbour.
func (v *View) PromoteIfEmpty() []Tick {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.active) >= v.params.MaxActive || len(v.passive) == 0 {
		return nil
	}

	candidates := mapValues(v.passive)
	chosen := candidates[v.rng.Intn(len(candidates))]
	highPriority := len(v.active) == 0
	return []Tick{{
		Kind:    TickConnect,
		Peer:    chosen,
		Message: Neighbour{Sender: v.self, HighPriority: highPriority},
	}}
}

// ShuffleTick is invoked on the shuffle tick: it picks an active peer
// and sends it a sample of this peer's known nodes.
func (v *View) ShuffleTick() []Tick {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.active) == 0 {
		return nil
	}

	target := v.randomActiveExcept(peerid.PeerId{})
	if target == nil {
		return nil
	}

	sample := v.sampleLocked(v.params.ShuffleSample)
	return []Tick{{
		Kind: TickSend,
		Peer: *target,
		Message: Shuffle{
			Sender: v.self,
			Origin: v.self,
			Nodes:  sample,
			TTL:    v.params.ActiveRandomWalkLen,
		},
	}}
}

func (v *View) sampleLocked(n int) []peerid.PeerId {
	all := make([]peerid.PeerId, 0, len(v.active)+len(v.passive))
	for _, p := range v.active {
		all = append(all, p)
	}
	for _, p := range v.passive {
		all = append(all, p)
	}
	v.rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

func (v *View) handleShuffle(s Shuffle) []Tick {
	if s.TTL > 0 && len(v.active) > 1 {
		next := v.randomActiveExcept(s.Sender)
		if next != nil {
			return []Tick{{
				Kind:    TickSend,
				Peer:    *next,
				Message: Shuffle{Sender: v.self, Origin: s.Origin, Nodes: s.Nodes, TTL: s.TTL - 1},
			}}
		}
	}

	for _, p := range s.Nodes {
		v.addPassiveLocked(p)
	}
	reply := v.sampleLocked(len(s.Nodes))
	return []Tick{{Kind: TickSend, Peer: s.Origin, Message: ShuffleReply{Nodes: reply}}}
}

func (v *View) handleShuffleReply(r ShuffleReply) []Tick {
	for _, p := range r.Nodes {
		v.addPassiveLocked(p)
	}
	return nil
}

func (v *View) handleDisconnect(d Disconnect) []Tick {
	delete(v.active, d.Sender.String())
	if d.Alive {
		v.addPassiveLocked(d.Sender)
	}
	return v.PromoteIfEmpty()
}

// Apply folds a connection-layer Transition into the View's state.
func (v *View) Apply(t Transition) []Tick {
	v.mu.Lock()
	switch t.Kind {
	case TransitionDemoted:
		delete(v.active, t.Peer.String())
		v.addPassiveLocked(t.Peer)
	case TransitionEvicted:
		delete(v.active, t.Peer.String())
		delete(v.passive, t.Peer.String())
	case TransitionConnected:
		v.addActive(t.Peer)
	case TransitionDisconnected:
		delete(v.active, t.Peer.String())
	}
	v.mu.Unlock()
	return transitionToTicks(t)
}
