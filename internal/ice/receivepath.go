package ice

import "github.com/pion/stun/v3"

// ReceivePath classifies one inbound datagram and routes it to the
// discovery engine, the connectivity-check engine, or the application,
// per spec.md §4.4.
type ReceivePath struct {
	agent *Agent
}

func newReceivePath(a *Agent) *ReceivePath {
	return &ReceivePath{agent: a}
}

// Handle is invoked on the single task-loop goroutine (callers schedule it
// through Agent.submit) with the raw datagram and the socket/stream/
// component it arrived on.
func (r *ReceivePath) Handle(streamID, componentID int, socketRef string, src NiceAddress, data []byte) {
	stream, ok := r.agent.stream(streamID)
	if !ok {
		return
	}
	comp, ok := stream.component(componentID)
	if !ok {
		return
	}

	if looksLikeMedia(data) {
		comp.mediaAfterTick = true
		r.agent.deliverMedia(streamID, componentID, src, data)
		return
	}

	m := &stun.Message{Raw: append([]byte(nil), data...)}
	if err := m.Decode(); err != nil {
		return // neither RTP/RTCP-shaped nor a well-formed STUN message: drop
	}

	if r.agent.discovery.handleResponse(m) {
		return
	}

	local, ok := findLocalBySocketRef(comp, socketRef)
	if !ok {
		return
	}

	switch m.Type.Class {
	case stun.ClassRequest:
		r.agent.checklist.handleInboundRequest(stream, comp, local, src, m)
	case stun.ClassSuccessResponse, stun.ClassErrorResponse:
		if pair := findPairByTxID(stream, comp.ID, m.TransactionID); pair != nil {
			r.agent.checklist.handleResponse(stream, comp, pair, m)
		}
	case stun.ClassIndication:
		// Binding indications are keepalives: their arrival alone, with no
		// reply, is the entire point (spec.md §4.3 Keepalives).
	}
}

// looksLikeMedia applies the RFC 5245 / RFC 7983 demultiplexing heuristic:
// RTP and RTCP both set the top two bits of the first byte to 0b10; every
// STUN message's leading two bits are 0b00 (spec.md §4.4).
func looksLikeMedia(data []byte) bool {
	return len(data) >= 1 && data[0]&0xC0 == 0x80
}

func findLocalBySocketRef(comp *Component, socketRef string) (Candidate, bool) {
	for _, c := range comp.LocalCandidates {
		if c.socketRef == socketRef {
			return c, true
		}
	}
	return Candidate{}, false
}

func findPairByTxID(s *Stream, componentID int, txID [12]byte) *CandidatePair {
	for _, p := range s.CheckList {
		if p.Local.ComponentID == componentID && p.lastTxID == txID {
			return p
		}
	}
	return nil
}
