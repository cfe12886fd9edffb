package ice

import (
	"time"

	"github.com/pion/logging"
	"github.com/pion/stun/v3"
)

// NominationMode selects how the controlling agent nominates a pair, per
// spec.md §4.3: "aggressive" sets USE-CANDIDATE on every check it sends,
// "regular" waits for a short stabilization window after a pair becomes
// valid.
type NominationMode int

const (
	NominationRegular NominationMode = iota
	NominationAggressive
)

// ConnCheckEngine maintains per-stream check lists, runs triggered and
// ordinary checks, applies pair-state transitions, and handles nomination
// (spec.md §4.3).
type ConnCheckEngine struct {
	agent *Agent
	log   logging.LeveledLogger

	nomination NominationMode

	// pendingNomination tracks pairs waiting out the stabilization window
	// before the controlling agent re-checks them with USE-CANDIDATE.
	pendingNomination map[string]TimerHandle
}

func newConnCheckEngine(a *Agent) *ConnCheckEngine {
	return &ConnCheckEngine{
		agent:             a,
		log:               a.loggerFactory.NewLogger("ice-checklist"),
		pendingNomination: make(map[string]TimerHandle),
	}
}

// tick starts at most one new ordinary check, processes keepalives, and
// relies on per-pair retransmit timers (scheduled individually, see
// sendCheck) for retransmission — together this is spec.md §4.5's
// single-start-per-tick pacing rule.
func (e *ConnCheckEngine) tick() {
	if e.agent.config.FullMode {
		for _, s := range e.agent.streams {
			pair := highestPriorityWaiting(s)
			if pair == nil {
				continue
			}
			e.startCheck(s, pair, pair.Nominated || e.shouldSetUseCandidate(s, pair))
			break // at most one ordinary check per tick, across all streams
		}
	}
	e.runKeepalives()
}

func (e *ConnCheckEngine) shouldSetUseCandidate(s *Stream, p *CandidatePair) bool {
	if !e.agent.isControlling() || !e.agent.config.FullMode {
		return false
	}
	return e.nomination == NominationAggressive
}

func (e *ConnCheckEngine) startCheck(s *Stream, p *CandidatePair, useCandidate bool) {
	comp, ok := s.component(p.Local.ComponentID)
	if !ok {
		return
	}
	sock, ok := comp.socketFor(p.Local.socketRef)
	if !ok {
		e.log.Warnf("No socket for %s, failing pair", p.Local)
		e.failPair(s, comp, p)
		return
	}

	controlling := e.agent.isControlling()
	msg, err := buildBindingRequest(s.LocalUfrag, s.RemoteUfrag, s.RemotePassword, p.Local.Priority, controlling, e.agent.tieBreaker, useCandidate)
	if err != nil {
		e.log.Warnf("Failed to build Binding request: %v", err)
		return
	}

	p.State = PairInProgress
	p.lastTxID = msg.TransactionID
	p.retransmitCount = 0
	p.sendUseCandidate = useCandidate
	p.sentControlling = controlling
	if comp.State == ComponentGathering || comp.State == ComponentDisconnected {
		comp.transition(ComponentConnecting)
		e.agent.emitComponentState(s.ID, comp)
	}

	e.sendRaw(sock, p, msg.Raw)
	e.scheduleRetransmit(s, comp, p)
}

func (e *ConnCheckEngine) sendRaw(sock DatagramSocket, p *CandidatePair, raw []byte) {
	if _, err := sock.Send(p.Remote.Addr.UDPAddr(), raw); err != nil {
		e.log.Warnf("Send failed for %s: %v", p, err)
	}
}

func (e *ConnCheckEngine) scheduleRetransmit(s *Stream, comp *Component, p *CandidatePair) {
	e.agent.driver.Timer(rtoForAttempt(p.retransmitCount), func() {
		e.agent.submit(func() { e.onRetransmitTimeout(s, comp, p) })
	})
}

func (e *ConnCheckEngine) onRetransmitTimeout(s *Stream, comp *Component, p *CandidatePair) {
	if p.State != PairInProgress {
		return // a response already landed, or the pair was reset/removed
	}
	p.retransmitCount++
	if p.retransmitCount >= maxRetransmit {
		e.failPair(s, comp, p)
		return
	}
	sock, ok := comp.socketFor(p.Local.socketRef)
	if !ok {
		e.failPair(s, comp, p)
		return
	}
	controlling := e.agent.isControlling()
	msg, err := buildBindingRequest(s.LocalUfrag, s.RemoteUfrag, s.RemotePassword, p.Local.Priority, controlling, e.agent.tieBreaker, p.sendUseCandidate)
	if err != nil {
		return
	}
	p.lastTxID = msg.TransactionID
	p.sentControlling = controlling
	e.sendRaw(sock, p, msg.Raw)
	e.scheduleRetransmit(s, comp, p)
}

func (e *ConnCheckEngine) failPair(s *Stream, comp *Component, p *CandidatePair) {
	p.State = PairFailed
	anyAlive := false
	for _, other := range s.pairsForComponent(comp.ID) {
		if other.State != PairFailed {
			anyAlive = true
			break
		}
	}
	if !anyAlive && !e.agent.discovery.pending() {
		if comp.transition(ComponentFailed) {
			e.agent.emitComponentState(s.ID, comp)
		}
	}
}

// handleResponse processes a STUN response matching one of this pair's
// outstanding transactions (spec.md §4.3 Response handling).
func (e *ConnCheckEngine) handleResponse(s *Stream, comp *Component, p *CandidatePair, m *stun.Message) {
	switch m.Type.Class {
	case stun.ClassSuccessResponse:
		e.handleSuccess(s, comp, p, m)
	case stun.ClassErrorResponse:
		e.handleError(s, comp, p, m)
	}
}

func (e *ConnCheckEngine) handleSuccess(s *Stream, comp *Component, p *CandidatePair, m *stun.Message) {
	var xor stun.XORMappedAddress
	if err := xor.GetFrom(m); err != nil {
		e.log.Warnf("Success response missing XOR-MAPPED-ADDRESS: %v", err)
		return
	}
	mapped := NiceAddress{IP: xor.IP, Port: xor.Port}

	local := p.Local
	if !mapped.Equal(local.BaseAddr) {
		if existing, ok := comp.findLocalByAddr(mapped); ok {
			local = existing
		} else {
			prflx := NewCandidate(s.ID, comp.ID, CandidateTypePeerReflexive, mapped, local.BaseAddr, defaultLocalPreference, "", local.socketRef)
			comp.addLocalCandidate(prflx)
			e.agent.emitNewCandidate(s.ID, comp.ID, prflx.Foundation)
			local = prflx
			p.Local = local
			p.Priority = PairPriority(local.Priority, p.Remote.Priority, e.agent.isControlling())
		}
	}

	wasValid := p.Valid
	p.State = PairSucceeded
	p.Valid = true
	if !wasValid {
		unfreezeFoundation(s, p.Local.Foundation)
	}

	if comp.transition(ComponentConnected) {
		e.agent.emitComponentState(s.ID, comp)
	}

	if p.PeerNominated || p.sendUseCandidate || hasUseCandidate(m) || (e.agent.isControlling() && e.nomination == NominationAggressive) {
		e.nominate(s, comp, p)
		return
	}

	if e.agent.isControlling() && e.agent.config.FullMode && e.nomination == NominationRegular && !p.Nominated {
		e.scheduleNomination(s, comp, p)
	}
}

func (e *ConnCheckEngine) scheduleNomination(s *Stream, comp *Component, p *CandidatePair) {
	if _, scheduled := e.pendingNomination[p.ID]; scheduled {
		return
	}
	h := e.agent.driver.Timer(nominationStabilizationWindow, func() {
		e.agent.submit(func() {
			delete(e.pendingNomination, p.ID)
			if p.State == PairSucceeded && p.Valid && !p.Nominated {
				e.startCheck(s, p, true)
			}
		})
	})
	e.pendingNomination[p.ID] = h
}

// nominate installs p as the component's selected pair (spec.md §4.3
// Nomination).
func (e *ConnCheckEngine) nominate(s *Stream, comp *Component, p *CandidatePair) {
	if p.Nominated && comp.SelectedPair == p {
		return
	}
	p.Nominated = true
	comp.SelectedPair = p
	if comp.transition(ComponentReady) {
		e.agent.emitComponentState(s.ID, comp)
	}
	e.agent.emitSelectedPair(s.ID, comp.ID, p.Local.Foundation, p.Remote.Foundation)
}

func (e *ConnCheckEngine) handleError(s *Stream, comp *Component, p *CandidatePair, m *stun.Message) {
	var code stun.ErrorCodeAttribute
	if err := code.GetFrom(m); err == nil && code.Code == stun.CodeRoleConflict {
		// RFC 5245 §7.1.2.2: a 487 response unconditionally switches us to
		// the opposite of the role we claimed in the rejected request, not
		// merely "the opposite of whatever we are now" (the two can differ
		// if a separate inbound request already flipped our role first).
		e.handleRoleConflict(s, !p.sentControlling)
		p.State = PairWaiting
		return
	}
	e.failPair(s, comp, p)
}

// handleRoleConflict switches the agent to target's role (a no-op if it is
// already there) and resets SUCCEEDED/FAILED pairs back to WAITING so they
// are re-checked under the resolved roles (spec.md §4.1).
func (e *ConnCheckEngine) handleRoleConflict(s *Stream, target bool) {
	if !e.agent.setControllingRole(target) {
		return
	}
	for _, p := range s.CheckList {
		if p.State == PairSucceeded || p.State == PairFailed {
			p.State = PairWaiting
			p.Nominated = false
			p.Valid = false
		}
		p.Priority = PairPriority(p.Local.Priority, p.Remote.Priority, e.agent.isControlling())
	}
}

// roleConflicts detects an RFC 5245 §7.1.2.2 glare: an inbound request
// whose ICE-CONTROLLING/ICE-CONTROLLED attribute contradicts our own role.
// When weMustSwitch is true the tie-breaker comparison says we lose and
// must adopt targetControlling directly; when false we keep our role and
// reply 487 instead.
func (e *ConnCheckEngine) roleConflicts(m *stun.Message) (conflict, weMustSwitch, targetControlling bool) {
	controlling := e.agent.isControlling()
	if controlling && hasControlling(m) {
		peerTB, _ := getTieBreaker(m, true)
		return true, e.agent.tieBreaker < peerTB, false
	}
	if !controlling && hasControlled(m) {
		peerTB, _ := getTieBreaker(m, false)
		return true, e.agent.tieBreaker >= peerTB, true
	}
	return false, false, false
}

// handleInboundRequest implements the triggered-check path of spec.md
// §4.3: reply with a success response, then either advance a matching
// pair or synthesize one, possibly installing a peer-reflexive remote
// candidate.
func (e *ConnCheckEngine) handleInboundRequest(s *Stream, comp *Component, local Candidate, src NiceAddress, m *stun.Message) {
	// Authenticate before acting on anything the request claims, including
	// ICE-CONTROLLING/ICE-CONTROLLED: an unauthenticated request must never
	// be able to flip this agent's role (spec.md §6, RFC 5245 §7.2.1.1
	// checks message integrity before the role-conflict step).
	if !expectedUsername(m, s.LocalUfrag, s.RemoteUfrag) {
		e.log.Warnf("Dropping Binding request with unexpected USERNAME from %s", src)
		return
	}
	if err := checkMessageIntegrity(m, s.LocalPassword); err != nil {
		e.log.Warnf("Dropping Binding request with bad MESSAGE-INTEGRITY from %s: %v", src, err)
		return
	}

	if conflict, weMustSwitch, target := e.roleConflicts(m); conflict {
		if weMustSwitch {
			e.handleRoleConflict(s, target)
		} else {
			e.replyRoleConflict(comp, local, src, m, s.LocalPassword)
			return
		}
	}

	if !s.InitialBindingRequestReceived {
		s.InitialBindingRequestReceived = true
		e.agent.emitInitialBindingRequestReceived(s.ID)
	}

	remote, ok := comp.findRemoteByAddr(src)
	if !ok {
		priority, _ := getPriority(m)
		remote = NewCandidate(s.ID, comp.ID, CandidateTypePeerReflexive, src, src, uint16(priority>>8), "", "")
		remote.Priority = priority
		comp.RemoteCandidates = append(comp.RemoteCandidates, remote)
		e.agent.emitNewRemoteCandidate(s.ID, comp.ID, remote.Foundation)
		reformPairs(s, comp.ID, e.agent.isControlling())
	}

	resp, err := buildBindingSuccess(m, src, s.LocalPassword)
	if err == nil {
		if sock, ok := comp.socketFor(local.socketRef); ok {
			_, _ = sock.Send(src.UDPAddr(), resp.Raw)
		}
	}

	pair := findPair(s, local, remote)
	if pair == nil {
		pair = newCandidatePair(local, remote, e.agent.isControlling())
		s.CheckList = append(s.CheckList, pair)
	}

	useCandidate := hasUseCandidate(m)
	if useCandidate {
		pair.PeerNominated = true
	}
	switch pair.State {
	case PairSucceeded:
		if useCandidate && pair.Valid {
			e.nominate(s, comp, pair)
		}
	case PairFailed, PairInProgress:
		// Leave the in-flight/failed state alone; PeerNominated above will
		// be consulted once (or if) our own check on this pair succeeds.
	default:
		pair.State = PairWaiting
	}
}

func (e *ConnCheckEngine) replyRoleConflict(comp *Component, local Candidate, src NiceAddress, m *stun.Message, localPwd string) {
	resp, err := buildRoleConflictError(m, localPwd)
	if err != nil {
		return
	}
	if sock, ok := comp.socketFor(local.socketRef); ok {
		_, _ = sock.Send(src.UDPAddr(), resp.Raw)
	}
}

func findPair(s *Stream, local, remote Candidate) *CandidatePair {
	k := pairKey(local, remote)
	for _, p := range s.CheckList {
		if pairKey(p.Local, p.Remote) == k {
			return p
		}
	}
	return nil
}

// runKeepalives sends a Binding indication on every READY component's
// selected pair every Tr seconds (spec.md §4.3 Keepalives).
func (e *ConnCheckEngine) runKeepalives() {
	now := time.Now()
	for _, s := range e.agent.streams {
		for _, comp := range s.Components {
			if comp.State != ComponentReady || comp.SelectedPair == nil {
				continue
			}
			p := comp.SelectedPair
			if !p.nextTickAt.IsZero() && now.Before(p.nextTickAt) {
				continue
			}
			p.nextTickAt = now.Add(e.agent.keepaliveInterval())
			sock, ok := comp.socketFor(p.Local.socketRef)
			if !ok {
				continue
			}
			msg, err := buildBindingIndication()
			if err != nil {
				continue
			}
			_, _ = sock.Send(p.Remote.Addr.UDPAddr(), msg.Raw)
		}
	}
}
