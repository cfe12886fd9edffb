package ice

// ComponentState is the per-component state machine from spec.md §3.
type ComponentState int

const (
	ComponentDisconnected ComponentState = iota
	ComponentGathering
	ComponentConnecting
	ComponentConnected
	ComponentReady
	ComponentFailed
)

func (s ComponentState) String() string {
	switch s {
	case ComponentDisconnected:
		return "disconnected"
	case ComponentGathering:
		return "gathering"
	case ComponentConnecting:
		return "connecting"
	case ComponentConnected:
		return "connected"
	case ComponentReady:
		return "ready"
	case ComponentFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Component is one addressable sub-stream (RTP=1, RTCP=2, ...), owning its
// sockets, candidate lists, and selected pair (spec.md §3).
type Component struct {
	ID       int
	StreamID int
	State    ComponentState

	LocalCandidates  []Candidate
	RemoteCandidates []Candidate

	// SelectedPair, when non-nil, references a pair whose state is
	// SUCCEEDED and Nominated is true (spec.md §3 invariant).
	SelectedPair *CandidatePair

	// sockets maps a socketRef to the DatagramSocket it names. Candidates
	// resolve their transport through this map rather than holding a live
	// pointer (spec.md §9 ownership-strictly-downward guidance).
	sockets map[string]DatagramSocket

	// mediaAfterTick is set by ReceivePath whenever application media
	// arrives (spec.md §3's media_after_tick bookkeeping field). Nothing
	// clears it, so it stays true once any media has been received.
	mediaAfterTick bool
}

func newComponent(streamID, id int) *Component {
	return &Component{
		ID:       id,
		StreamID: streamID,
		State:    ComponentDisconnected,
		sockets:  make(map[string]DatagramSocket),
	}
}

func (c *Component) socketFor(ref string) (DatagramSocket, bool) {
	s, ok := c.sockets[ref]
	return s, ok
}

// addLocalCandidate appends a candidate, enforcing the spec.md §3
// uniqueness invariant: (type, base_addr, addr) is unique within a stream's
// candidates for this component.
func (c *Component) addLocalCandidate(cand Candidate) bool {
	key := cand.key()
	for _, existing := range c.LocalCandidates {
		if existing.key() == key {
			return false
		}
	}
	c.LocalCandidates = append(c.LocalCandidates, cand)
	return true
}

func (c *Component) findLocalByAddr(addr NiceAddress) (Candidate, bool) {
	for _, cand := range c.LocalCandidates {
		if cand.Addr.Equal(addr) {
			return cand, true
		}
	}
	return Candidate{}, false
}

func (c *Component) findRemoteByAddr(addr NiceAddress) (Candidate, bool) {
	for _, cand := range c.RemoteCandidates {
		if cand.Addr.Equal(addr) {
			return cand, true
		}
	}
	return Candidate{}, false
}

// transition applies a legal state change, returning false if the move
// would violate the forward-only graph in spec.md §3 (FAILED and READY are
// absorbing within a session).
func (c *Component) transition(next ComponentState) bool {
	if c.State == next {
		return false
	}
	if c.State == ComponentFailed || c.State == ComponentReady {
		return false
	}
	switch c.State {
	case ComponentDisconnected:
		// may only move to Gathering (first host candidate) or Failed.
		if next != ComponentGathering && next != ComponentFailed {
			return false
		}
	case ComponentGathering:
		if next != ComponentConnecting && next != ComponentFailed {
			return false
		}
	case ComponentConnecting:
		if next != ComponentConnected && next != ComponentFailed {
			return false
		}
	case ComponentConnected:
		if next != ComponentReady && next != ComponentFailed {
			return false
		}
	}
	c.State = next
	if next != ComponentReady {
		c.SelectedPair = nil
	}
	return true
}
