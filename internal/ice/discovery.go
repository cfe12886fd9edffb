package ice

import (
	"net"

	"github.com/pion/logging"
	"github.com/pion/stun/v3"
)

// candidateDiscovery tracks one outstanding STUN Binding request used to
// produce a server-reflexive candidate (spec.md §4.2).
type candidateDiscovery struct {
	streamID      int
	componentID   int
	hostCandidate Candidate
	serverAddr    net.IP
	serverPort    int
	socketRef     string

	pendingTxID     [stun.TransactionIDSize]byte
	hasPending      bool
	retransmitCount int
	abandoned       bool
	succeeded       bool
}

func (d *candidateDiscovery) done() bool {
	return d.abandoned || d.succeeded
}

// DiscoveryEngine drives the set of outstanding server-reflexive discovery
// transactions, paced one-per-tick by the Agent's Ta scheduler (spec.md
// §4.2).
type DiscoveryEngine struct {
	agent *Agent
	log   logging.LeveledLogger

	items []*candidateDiscovery

	// gatheringStarted latches true the moment the first host candidate is
	// registered, so maybeFireGatheringDone has something to wait for
	// instead of firing on an empty queue before gathering has begun.
	gatheringStarted bool
	// gatheringDoneFired latches true exactly once per agent lifetime
	// (spec.md §4.2) and is never reset — a host candidate added later
	// (e.g. a new interface coming up) must not re-arm it.
	gatheringDoneFired bool
}

func newDiscoveryEngine(a *Agent) *DiscoveryEngine {
	return &DiscoveryEngine{
		agent: a,
		log:   a.loggerFactory.NewLogger("ice-discovery"),
	}
}

// addHostCandidate is called once per newly gathered host candidate to
// enqueue a server-reflexive discovery against the configured STUN server,
// if one is configured. spec.md §9 explicitly calls out a teacher bug where
// the discovery item is appended twice in a row; this implementation
// appends exactly once. A lite agent (FullMode == false) never initiates
// checks of any kind (spec.md §4.1), so it never enqueues a discovery
// transaction either — it only ever reports host candidates.
func (e *DiscoveryEngine) addHostCandidate(streamID, componentID int, host Candidate, socketRef string) {
	e.gatheringStarted = true
	if !e.agent.config.FullMode || e.agent.config.StunServer == "" {
		return
	}
	ip := net.ParseIP(e.agent.config.StunServer)
	if ip == nil {
		resolved, err := net.ResolveIPAddr("ip", e.agent.config.StunServer)
		if err != nil {
			e.log.Warnf("Failed to resolve STUN server %s: %v", e.agent.config.StunServer, err)
			return
		}
		ip = resolved.IP
	}
	e.items = append(e.items, &candidateDiscovery{
		streamID:      streamID,
		componentID:   componentID,
		hostCandidate: host,
		serverAddr:    ip,
		serverPort:    e.agent.config.StunServerPort,
		socketRef:     socketRef,
	})
}

// tick advances at most one discovery item: the oldest item whose
// next-retransmit time has arrived and that has no transaction in flight
// (spec.md §4.5 "start at most one new discovery").
func (e *DiscoveryEngine) tick() {
	var target *candidateDiscovery
	for _, d := range e.items {
		if d.done() || d.hasPending {
			continue
		}
		target = d
		break
	}
	if target != nil {
		e.sendRequest(target)
	}
	e.reapFinished()
	e.maybeFireGatheringDone()
}

func (e *DiscoveryEngine) sendRequest(d *candidateDiscovery) {
	stream, ok := e.agent.stream(d.streamID)
	if !ok {
		d.abandoned = true
		return
	}
	comp, ok := stream.component(d.componentID)
	if !ok {
		d.abandoned = true
		return
	}
	sock, ok := comp.socketFor(d.socketRef)
	if !ok {
		d.abandoned = true
		return
	}

	msg, err := stun.Build(stun.TransactionID, stun.BindingRequest, stun.Fingerprint)
	if err != nil {
		e.log.Warnf("Failed to build discovery Binding request: %v", err)
		d.abandoned = true
		return
	}
	d.pendingTxID = msg.TransactionID
	d.hasPending = true

	dst := &net.UDPAddr{IP: d.serverAddr, Port: d.serverPort}
	if _, err := sock.Send(dst, msg.Raw); err != nil {
		e.log.Warnf("Discovery Binding send failed: %v", err)
	}

	e.agent.driver.Timer(rtoForAttempt(d.retransmitCount), func() {
		e.agent.submit(func() { e.onRetransmitTimeout(d) })
	})
}

func (e *DiscoveryEngine) onRetransmitTimeout(d *candidateDiscovery) {
	if d.done() || !d.hasPending {
		return
	}
	d.hasPending = false
	d.retransmitCount++
	if d.retransmitCount >= maxRetransmit {
		d.abandoned = true
		e.log.Debugf("Discovery for %s abandoned after %d retransmits", d.hostCandidate, d.retransmitCount)
	}
}

// handleResponse is invoked by the ReceivePath when an inbound STUN message
// matches an outstanding discovery transaction id.
func (e *DiscoveryEngine) handleResponse(m *stun.Message) bool {
	for _, d := range e.items {
		if !d.hasPending || d.pendingTxID != m.TransactionID {
			continue
		}
		d.hasPending = false
		if m.Type.Class != stun.ClassSuccessResponse {
			d.abandoned = true
			return true
		}
		var xor stun.XORMappedAddress
		if err := xor.GetFrom(m); err != nil {
			e.log.Warnf("Discovery success missing XOR-MAPPED-ADDRESS: %v", err)
			d.abandoned = true
			return true
		}
		mapped := NiceAddress{IP: xor.IP, Port: xor.Port}
		e.promote(d, mapped)
		d.succeeded = true
		return true
	}
	return false
}

func (e *DiscoveryEngine) promote(d *candidateDiscovery, mapped NiceAddress) {
	if mapped.Equal(d.hostCandidate.Addr) {
		return // server saw us as our own host address: nothing new to learn
	}
	stream, ok := e.agent.stream(d.streamID)
	if !ok {
		return
	}
	comp, ok := stream.component(d.componentID)
	if !ok {
		return
	}

	srflx := NewCandidate(d.streamID, d.componentID, CandidateTypeServerReflexive, mapped, d.hostCandidate.Addr, defaultLocalPreference, d.serverAddr.String(), d.socketRef)
	if !comp.addLocalCandidate(srflx) {
		return
	}
	e.agent.emitNewCandidate(d.streamID, d.componentID, srflx.Foundation)
	reformPairs(stream, d.componentID, e.agent.isControlling())
	e.agent.kickChecklist(stream, d.componentID)
}

func (e *DiscoveryEngine) reapFinished() {
	kept := e.items[:0:0]
	for _, d := range e.items {
		if !d.done() {
			kept = append(kept, d)
		}
	}
	e.items = kept
}

// maybeFireGatheringDone emits candidate_gathering_done exactly once per
// agent lifetime once gathering has actually started, the discovery list
// is empty, and nothing is in flight (spec.md §4.2, §4.1 events).
func (e *DiscoveryEngine) maybeFireGatheringDone() {
	if e.gatheringDoneFired || !e.gatheringStarted {
		return
	}
	for _, d := range e.items {
		if !d.done() || d.hasPending {
			return
		}
	}
	e.gatheringDoneFired = true
	e.agent.emitGatheringDone()
}

func (e *DiscoveryEngine) pending() bool {
	for _, d := range e.items {
		if !d.done() {
			return true
		}
	}
	return false
}
