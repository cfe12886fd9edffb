package ice

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// memSocket is an in-memory DatagramSocket routed through a shared
// fakeDriver fabric, replacing a real UDP socket for deterministic tests
// the way the teacher's vnet package replaces a host network stack.
type memSocket struct {
	mu     sync.Mutex
	local  *net.UDPAddr
	fabric *fakeDriver
	onRecv func(src net.Addr, b []byte)
	closed bool
}

func (s *memSocket) Send(dst net.Addr, b []byte) (int, error) {
	udpDst, ok := dst.(*net.UDPAddr)
	if !ok {
		return 0, errors.Errorf("memSocket: unexpected dst type %T", dst)
	}
	return s.fabric.route(s.local, udpDst, b)
}

func (s *memSocket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *memSocket) LocalAddr() net.Addr { return s.local }

func (s *memSocket) deliver(src net.Addr, b []byte) {
	s.mu.Lock()
	cb, closed := s.onRecv, s.closed
	s.mu.Unlock()
	if closed || cb == nil {
		return
	}
	cb(src, append([]byte(nil), b...))
}

// fakeDriver is a Driver and SocketFactory over an in-process UDP fabric:
// Bind assigns deterministic ports, Send routes by exact address match,
// Timer uses real (but test-scale) wall-clock timers.
type fakeDriver struct {
	mu      sync.Mutex
	sockets map[string]*memSocket
	nextPort int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{sockets: make(map[string]*memSocket), nextPort: 40000}
}

func (d *fakeDriver) Bind(local net.Addr) (DatagramSocket, error) {
	udpAddr, ok := local.(*net.UDPAddr)
	if !ok {
		return nil, errors.Errorf("fakeDriver: Bind expects *net.UDPAddr, got %T", local)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	port := udpAddr.Port
	if port == 0 {
		d.nextPort++
		port = d.nextPort
	}
	addr := &net.UDPAddr{IP: udpAddr.IP, Port: port}
	s := &memSocket{local: addr, fabric: d}
	d.sockets[addr.String()] = s
	return s, nil
}

func (d *fakeDriver) route(src, dst *net.UDPAddr, b []byte) (int, error) {
	d.mu.Lock()
	target, ok := d.sockets[dst.String()]
	d.mu.Unlock()
	if !ok {
		return len(b), nil // simulate a packet dropped on the way to an unknown address
	}
	target.deliver(src, b)
	return len(b), nil
}

func (d *fakeDriver) WatchReadable(s DatagramSocket, cb func(src net.Addr, b []byte)) TimerHandle {
	ms, ok := s.(*memSocket)
	if !ok {
		return nil
	}
	ms.mu.Lock()
	ms.onRecv = cb
	ms.mu.Unlock()
	return ms
}

func (d *fakeDriver) CancelWatch(h TimerHandle) {
	if ms, ok := h.(*memSocket); ok {
		ms.mu.Lock()
		ms.onRecv = nil
		ms.mu.Unlock()
	}
}

func (d *fakeDriver) Timer(dur time.Duration, cb func()) TimerHandle {
	return time.AfterFunc(dur, cb)
}

func (d *fakeDriver) Cancel(h TimerHandle) {
	if t, ok := h.(*time.Timer); ok {
		t.Stop()
	}
}

// snapshotLocalCandidates and snapshotSelectedPair read Agent-owned state
// safely from a test goroutine by round-tripping through the task loop,
// the same discipline every exported Agent method already follows.
func (a *Agent) snapshotLocalCandidates(streamID, componentID int) []Candidate {
	var out []Candidate
	a.runSync(func() {
		s, ok := a.stream(streamID)
		if !ok {
			return
		}
		comp, ok := s.component(componentID)
		if !ok {
			return
		}
		out = append(out, comp.LocalCandidates...)
	})
	return out
}

func (a *Agent) snapshotSelectedPair(streamID, componentID int) *CandidatePair {
	var out *CandidatePair
	a.runSync(func() {
		s, ok := a.stream(streamID)
		if !ok {
			return
		}
		comp, ok := s.component(componentID)
		if !ok {
			return
		}
		out = comp.SelectedPair
	})
	return out
}

func (a *Agent) snapshotComponentState(streamID, componentID int) ComponentState {
	var out ComponentState
	a.runSync(func() {
		s, ok := a.stream(streamID)
		if !ok {
			return
		}
		comp, ok := s.component(componentID)
		if !ok {
			return
		}
		out = comp.State
	})
	return out
}

func remoteInitFromCandidate(c Candidate) RemoteCandidateInit {
	return RemoteCandidateInit{
		Foundation:  c.Foundation,
		ComponentID: c.ComponentID,
		Priority:    c.Priority,
		Addr:        c.Addr.IP,
		Port:        c.Addr.Port,
		Type:        c.Type,
	}
}
