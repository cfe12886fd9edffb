package ice

import (
	"fmt"
	"net"

	"github.com/pion/logging"
	"github.com/pkg/errors"
)

// AgentConfig configures a new Agent. Driver and Sockets are the only
// required fields: they are the "external capabilities" spec.md §1
// deliberately keeps outside this module's scope (UDP I/O, the host event
// loop, RNG), injected here rather than reached for globally, the same
// dependency-inversion the teacher applies with its vnet.Net/SettingEngine
// pair.
type AgentConfig struct {
	Driver  Driver
	Sockets SocketFactory

	LoggerFactory logging.LoggerFactory
	RNG           RNG

	// StunServer/StunServerPort configure server-reflexive discovery
	// (spec.md §4.2). Empty StunServer disables discovery entirely.
	StunServer     string
	StunServerPort int

	// TurnServer/TurnServerPort are accepted and stored, never dialed:
	// relayed-candidate allocation is a spec.md §1 Non-goal. A future
	// gatherer that adds TURN support reads these from the same config
	// struct rather than forcing a breaking change.
	TurnServer     string
	TurnServerPort int

	ControllingMode bool
	FullMode        bool
	TimerTaMs       int
	Nomination      NominationMode
}

// Agent is the top-level ICE engine coordinating gathering, connectivity
// checking and the per-component state machines for every Stream it owns
// (spec.md §2). All state mutation happens on a single goroutine reached
// through submit, the same single-threaded task-queue discipline the
// vendored pion/ice Agent.run/taskLoop uses.
type Agent struct {
	log           logging.LeveledLogger
	loggerFactory logging.LoggerFactory
	config        AgentConfig

	driver  Driver
	sockets SocketFactory
	rng     RNG

	discovery   *DiscoveryEngine
	checklist   *ConnCheckEngine
	receivePath *ReceivePath

	tasks chan func()
	done  chan struct{}
	closed bool

	controlling bool
	tieBreaker  uint64

	streams      []*Stream
	nextStreamID int

	events      EventHandler
	mediaHandler func(streamID, componentID int, src NiceAddress, data []byte)

	tickHandle TimerHandle
}

// NewAgent constructs an Agent and starts its task-loop goroutine and Ta
// ticker. The caller owns Close.
func NewAgent(config AgentConfig) (*Agent, error) {
	if config.Driver == nil {
		return nil, errors.New("ice: AgentConfig.Driver is required")
	}
	if config.Sockets == nil {
		return nil, errors.New("ice: AgentConfig.Sockets is required")
	}
	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	rng := config.RNG
	if rng == nil {
		rng = newDefaultRNG()
	}

	a := &Agent{
		log:           loggerFactory.NewLogger("ice"),
		loggerFactory: loggerFactory,
		config:        config,
		driver:        config.Driver,
		sockets:       config.Sockets,
		rng:           rng,
		controlling:   config.ControllingMode,
		tasks:         make(chan func(), 256),
		done:          make(chan struct{}),
	}

	tieBreaker, err := a.randomUint64()
	if err != nil {
		return nil, errors.Wrap(err, "ice: failed to generate tie-breaker")
	}
	a.tieBreaker = tieBreaker

	a.discovery = newDiscoveryEngine(a)
	a.checklist = newConnCheckEngine(a)
	a.checklist.nomination = config.Nomination
	a.receivePath = newReceivePath(a)

	go a.loop()
	a.startTicker()

	return a, nil
}

// SetEventHandler installs the sink for spec.md §4.1's six event kinds.
func (a *Agent) SetEventHandler(h EventHandler) {
	a.runSync(func() { a.events = h })
}

// SetMediaHandler installs the callback invoked with every datagram the
// receive path classifies as application media rather than STUN (spec.md
// §4.4).
func (a *Agent) SetMediaHandler(h func(streamID, componentID int, src NiceAddress, data []byte)) {
	a.runSync(func() { a.mediaHandler = h })
}

func (a *Agent) loop() {
	for {
		select {
		case fn := <-a.tasks:
			fn()
		case <-a.done:
			return
		}
	}
}

// submit schedules fn to run on the task-loop goroutine without waiting for
// it to complete. Internal engine code (discovery/checklist/receivepath)
// uses this form when re-entering from a Driver-delivered callback.
func (a *Agent) submit(fn func()) {
	select {
	case a.tasks <- fn:
	case <-a.done:
	}
}

// runSync schedules fn and blocks until it has run, the synchronous form
// public API methods use, matching the vendored pion/ice Agent.run(ctx,
// task) pattern. Must never be called from inside the task loop itself.
func (a *Agent) runSync(fn func()) {
	wait := make(chan struct{})
	a.submit(func() {
		fn()
		close(wait)
	})
	select {
	case <-wait:
	case <-a.done:
	}
}

// runSyncErr is runSync for operations that return an error. It returns
// ErrClosed when the agent was closed before fn could run.
func (a *Agent) runSyncErr(fn func() error) error {
	result := ErrClosed
	a.runSync(func() { result = fn() })
	return result
}

func (a *Agent) isControlling() bool { return a.controlling }

// setControllingRole switches the agent to target, returning false (no-op)
// if it is already in that role. Used for RFC 5245 §7.1.2.2 role-conflict
// resolution, where the target role is a specific computed value rather
// than "whatever we aren't now".
func (a *Agent) setControllingRole(target bool) bool {
	if a.controlling == target {
		return false
	}
	a.controlling = target
	a.log.Infof("Switched role to controlling=%v after a role conflict", a.controlling)
	return true
}

func (a *Agent) randomUint64() (uint64, error) {
	b, err := a.rng.Bytes(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

func (a *Agent) randomICEString(n int) (string, error) {
	b, err := a.rng.Bytes(n)
	if err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, c := range b {
		out[i] = iceCharset[int(c)%len(iceCharset)]
	}
	return string(out), nil
}

func (a *Agent) stream(id int) (*Stream, bool) {
	for _, s := range a.streams {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// AddStream creates a Stream with numComponents components and freshly
// generated credentials (spec.md §4.1 add_stream).
func (a *Agent) AddStream(numComponents int) (streamID int, ufrag, password string, err error) {
	if numComponents < 1 {
		return 0, "", "", ErrComponentCount
	}
	err = a.runSyncErr(func() error {
		u, genErr := a.randomICEString(ufragLength)
		if genErr != nil {
			return genErr
		}
		p, genErr := a.randomICEString(passwordLength)
		if genErr != nil {
			return genErr
		}
		a.nextStreamID++
		s := newStream(a.nextStreamID, numComponents, u, p)
		a.streams = append(a.streams, s)
		streamID, ufrag, password = s.ID, u, p
		return nil
	})
	return streamID, ufrag, password, err
}

// RemoveStream tears down a Stream and closes every socket it owns
// (spec.md §4.1 remove_stream).
func (a *Agent) RemoveStream(streamID int) error {
	return a.runSyncErr(func() error {
		for i, s := range a.streams {
			if s.ID != streamID {
				continue
			}
			for _, comp := range s.Components {
				for _, sock := range comp.sockets {
					_ = sock.Close()
				}
			}
			a.streams = append(a.streams[:i], a.streams[i+1:]...)
			return nil
		}
		return ErrUnknownStream
	})
}

// GetLocalCredentials returns the ufrag/password generated for a stream by
// AddStream (spec.md §4.1 get_local_credentials).
func (a *Agent) GetLocalCredentials(streamID int) (ufrag, password string, err error) {
	err = a.runSyncErr(func() error {
		s, ok := a.stream(streamID)
		if !ok {
			return ErrUnknownStream
		}
		ufrag, password = s.LocalUfrag, s.LocalPassword
		return nil
	})
	return ufrag, password, err
}

// SetRemoteCredentials records the remote peer's ufrag/password, required
// before any connectivity check against this stream can be validated
// (spec.md §4.1 set_remote_credentials).
func (a *Agent) SetRemoteCredentials(streamID int, ufrag, password string) error {
	if err := validateUfrag(ufrag); err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	return a.runSyncErr(func() error {
		s, ok := a.stream(streamID)
		if !ok {
			return ErrUnknownStream
		}
		s.RemoteUfrag, s.RemotePassword = ufrag, password
		return nil
	})
}

// AddLocalAddress binds one socket per component of streamID on ip and
// publishes the resulting host candidates (spec.md §4.2 gathering). Calling
// it a second time with a different address adds further host candidates
// without disturbing ones already gathered.
func (a *Agent) AddLocalAddress(streamID int, ip net.IP) error {
	return a.runSyncErr(func() error {
		s, ok := a.stream(streamID)
		if !ok {
			return ErrUnknownStream
		}
		for _, comp := range s.Components {
			if err := a.bindHostCandidate(s, comp, ip); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *Agent) bindHostCandidate(s *Stream, comp *Component, ip net.IP) error {
	sock, err := a.sockets.Bind(&net.UDPAddr{IP: ip, Port: 0})
	if err != nil {
		return errors.Wrapf(err, "ice: failed to bind local address %s", ip)
	}
	local, ok := sock.LocalAddr().(*net.UDPAddr)
	if !ok {
		_ = sock.Close()
		return errors.New("ice: socket factory returned a non-UDP local address")
	}

	ref := fmt.Sprintf("%d/%d/%s", s.ID, comp.ID, local.String())
	addr := addressFromUDPAddr(local)
	host := NewCandidate(s.ID, comp.ID, CandidateTypeHost, addr, addr, defaultLocalPreference, "", ref)
	if !comp.addLocalCandidate(host) {
		_ = sock.Close()
		return nil // duplicate (type, base, addr): nothing new to gather
	}
	comp.sockets[ref] = sock

	if comp.transition(ComponentGathering) {
		a.emitComponentState(s.ID, comp)
	}

	a.driver.WatchReadable(sock, func(src net.Addr, b []byte) {
		udpSrc, ok := src.(*net.UDPAddr)
		if !ok {
			return
		}
		a.submit(func() {
			a.receivePath.Handle(s.ID, comp.ID, ref, addressFromUDPAddr(udpSrc), b)
		})
	})

	a.emitNewCandidate(s.ID, comp.ID, host.Foundation)
	a.discovery.addHostCandidate(s.ID, comp.ID, host, ref)
	reformPairs(s, comp.ID, a.isControlling())
	return nil
}

// AddRemoteCandidate appends a single remote candidate (spec.md §4.1
// add_remote_candidate, used for trickled candidates).
func (a *Agent) AddRemoteCandidate(streamID int, rc RemoteCandidateInit) error {
	return a.runSyncErr(func() error {
		s, ok := a.stream(streamID)
		if !ok {
			return ErrUnknownStream
		}
		comp, ok := s.component(rc.ComponentID)
		if !ok {
			return ErrUnknownComponent
		}
		cand := rc.toCandidate(streamID)
		for _, existing := range comp.RemoteCandidates {
			if existing.key() == cand.key() {
				return nil // already known: idempotent per spec.md §8
			}
		}
		comp.RemoteCandidates = append(comp.RemoteCandidates, cand)
		a.emitNewRemoteCandidate(streamID, comp.ID, cand.Foundation)
		reformPairs(s, comp.ID, a.isControlling())
		return nil
	})
}

// SetRemoteCandidates replaces the full remote candidate list for one
// component in a single call (spec.md §4.1 set_remote_candidates), used
// when candidates arrive as one signalling batch rather than trickled.
// Calling it twice with the same list leaves the check list structurally
// identical (spec.md §8 idempotence), since reformPairs preserves existing
// pair objects by key.
func (a *Agent) SetRemoteCandidates(streamID, componentID int, rcs []RemoteCandidateInit) error {
	return a.runSyncErr(func() error {
		s, ok := a.stream(streamID)
		if !ok {
			return ErrUnknownStream
		}
		comp, ok := s.component(componentID)
		if !ok {
			return ErrUnknownComponent
		}
		comp.RemoteCandidates = comp.RemoteCandidates[:0]
		for _, rc := range rcs {
			cand := rc.toCandidate(streamID)
			comp.RemoteCandidates = append(comp.RemoteCandidates, cand)
			a.emitNewRemoteCandidate(streamID, comp.ID, cand.Foundation)
		}
		reformPairs(s, comp.ID, a.isControlling())
		return nil
	})
}

// Send writes data to the peer on a component's selected pair. It returns
// ErrUnknownComponent if componentID names no component, and an error if
// the component has no selected (SUCCEEDED, nominated) pair yet.
func (a *Agent) Send(streamID, componentID int, data []byte) error {
	return a.runSyncErr(func() error {
		s, ok := a.stream(streamID)
		if !ok {
			return ErrUnknownStream
		}
		comp, ok := s.component(componentID)
		if !ok {
			return ErrUnknownComponent
		}
		if comp.SelectedPair == nil {
			return errors.New("ice: component has no selected pair yet")
		}
		sock, ok := comp.socketFor(comp.SelectedPair.Local.socketRef)
		if !ok {
			return errors.New("ice: selected pair's socket is gone")
		}
		_, err := sock.Send(comp.SelectedPair.Remote.Addr.UDPAddr(), data)
		return err
	})
}

// Close stops the Ta ticker and the task loop and closes every socket every
// stream owns.
func (a *Agent) Close() error {
	a.runSync(func() {
		if a.closed {
			return
		}
		a.closed = true
		if a.tickHandle != nil {
			a.driver.Cancel(a.tickHandle)
		}
		for _, s := range a.streams {
			for _, comp := range s.Components {
				for _, sock := range comp.sockets {
					_ = sock.Close()
				}
			}
		}
	})
	close(a.done)
	return nil
}

func (a *Agent) deliverMedia(streamID, componentID int, src NiceAddress, data []byte) {
	if a.mediaHandler != nil {
		a.mediaHandler(streamID, componentID, src, data)
	}
}

// kickChecklist nudges the scheduler immediately after a new candidate (or
// pair) is installed mid-session, rather than waiting up to one full Ta
// interval for the next tick to notice it (spec.md §4.3, "a newly unfrozen
// pair should not wait an extra tick").
func (a *Agent) kickChecklist(s *Stream, componentID int) {
	pair := highestPriorityWaiting(s)
	if pair == nil || pair.Local.ComponentID != componentID {
		return
	}
	a.checklist.startCheck(s, pair, pair.Nominated)
}

func (a *Agent) emitNewCandidate(streamID, componentID int, foundation string) {
	if a.events != nil {
		a.events.OnNewCandidate(streamID, componentID, foundation)
	}
}

func (a *Agent) emitNewRemoteCandidate(streamID, componentID int, foundation string) {
	if a.events != nil {
		a.events.OnNewRemoteCandidate(streamID, componentID, foundation)
	}
}

func (a *Agent) emitGatheringDone() {
	for _, s := range a.streams {
		if a.events != nil {
			a.events.OnCandidateGatheringDone(s.ID)
		}
	}
}

func (a *Agent) emitComponentState(streamID int, comp *Component) {
	if a.events != nil {
		a.events.OnComponentStateChange(streamID, comp.ID, comp.State)
	}
}

func (a *Agent) emitSelectedPair(streamID, componentID int, localFoundation, remoteFoundation string) {
	if a.events != nil {
		a.events.OnNewSelectedPair(streamID, componentID, localFoundation, remoteFoundation)
	}
}

func (a *Agent) emitInitialBindingRequestReceived(streamID int) {
	if a.events != nil {
		a.events.OnInitialBindingRequestReceived(streamID)
	}
}
