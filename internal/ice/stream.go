package ice

// Stream is a named collection of Components sharing one set of ICE
// credentials (spec.md §3).
type Stream struct {
	ID         int
	Components []*Component

	LocalUfrag    string
	LocalPassword string

	RemoteUfrag    string
	RemotePassword string

	// InitialBindingRequestReceived latches true on the first valid
	// inbound STUN Binding with expected credentials (spec.md §3).
	InitialBindingRequestReceived bool

	CheckList []*CandidatePair
}

func newStream(id, numComponents int, localUfrag, localPassword string) *Stream {
	s := &Stream{
		ID:            id,
		LocalUfrag:    localUfrag,
		LocalPassword: localPassword,
	}
	for i := 1; i <= numComponents; i++ {
		s.Components = append(s.Components, newComponent(id, i))
	}
	return s
}

func (s *Stream) component(id int) (*Component, bool) {
	for _, c := range s.Components {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// pairsForComponent returns the check-list entries touching component id,
// preserving overall check-list ordering.
func (s *Stream) pairsForComponent(componentID int) []*CandidatePair {
	var out []*CandidatePair
	for _, p := range s.CheckList {
		if p.Local.ComponentID == componentID {
			out = append(out, p)
		}
	}
	return out
}
