package ice

import (
	"net"
	"testing"
	"time"

	"github.com/pion/stun/v3"
	"github.com/stretchr/testify/require"
)

// stunServer is a bare memSocket standing in for a RFC 5389 server: every
// inbound Binding request gets a success response carrying a translated
// (simulated-NAT) mapped address.
type stunServer struct {
	sock   *memSocket
	mapped NiceAddress
}

func newStunServer(fd *fakeDriver, addr string, port int, mappedIP string, mappedPort int) *stunServer {
	sock, err := fd.Bind(&net.UDPAddr{IP: net.ParseIP(addr), Port: port})
	if err != nil {
		panic(err)
	}
	srv := &stunServer{
		sock:   sock.(*memSocket),
		mapped: NiceAddress{IP: net.ParseIP(mappedIP), Port: mappedPort},
	}
	fd.WatchReadable(sock, srv.handle)
	return srv
}

func (s *stunServer) handle(src net.Addr, b []byte) {
	m := &stun.Message{Raw: append([]byte(nil), b...)}
	if err := m.Decode(); err != nil {
		return
	}
	if m.Type != stun.BindingRequest {
		return
	}
	resp, err := stun.Build(m, stun.BindingSuccess, &stun.XORMappedAddress{IP: s.mapped.IP, Port: s.mapped.Port}, stun.Fingerprint)
	if err != nil {
		return
	}
	_, _ = s.sock.Send(src, resp.Raw)
}

// TestDiscoveryAppendsExactlyOnce guards against the teacher bug named in
// spec.md §9: addHostCandidate must enqueue exactly one discovery item per
// host candidate, not two.
func TestDiscoveryAppendsExactlyOnce(t *testing.T) {
	fd := newFakeDriver()
	_ = newStunServer(fd, "203.0.113.1", 3478, "198.51.100.9", 9000)

	a, err := NewAgent(AgentConfig{
		Driver:          fd,
		Sockets:         fd,
		ControllingMode: true,
		FullMode:        true,
		TimerTaMs:       5,
		StunServer:      "203.0.113.1",
		StunServerPort:  3478,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	streamID, _, _, err := a.AddStream(1)
	require.NoError(t, err)
	require.NoError(t, a.AddLocalAddress(streamID, net.ParseIP("10.0.0.20")))

	// Read the queue right away: once the server's response has landed, the
	// next tick reaps the finished item.
	var pendingCount int
	a.runSync(func() {
		pendingCount = len(a.discovery.items)
	})
	require.Equal(t, 1, pendingCount, "addHostCandidate must enqueue exactly one discovery item, not two")

	require.Eventually(t, func() bool {
		return len(a.snapshotLocalCandidates(streamID, 1)) >= 2
	}, 2*time.Second, 10*time.Millisecond, "server-reflexive candidate must appear")

	var srflxCount int
	for _, c := range a.snapshotLocalCandidates(streamID, 1) {
		if c.Type == CandidateTypeServerReflexive {
			srflxCount++
		}
	}
	require.Equal(t, 1, srflxCount, "exactly one server-reflexive candidate must be produced, never a duplicate")
}

// TestDiscoveryFiresGatheringDoneOnce exercises the gathering-done edge from
// spec.md §4.2: once every discovery item is settled, the event fires
// exactly once even across further ticks.
func TestDiscoveryFiresGatheringDoneOnce(t *testing.T) {
	fd := newFakeDriver()
	_ = newStunServer(fd, "203.0.113.2", 3478, "198.51.100.10", 9001)

	a, err := NewAgent(AgentConfig{
		Driver:          fd,
		Sockets:         fd,
		ControllingMode: true,
		FullMode:        true,
		TimerTaMs:       5,
		StunServer:      "203.0.113.2",
		StunServerPort:  3478,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	var doneCount int
	a.SetEventHandler(EventHandlerFuncs{
		CandidateGatheringDone: func(streamID int) { doneCount++ },
	})

	streamID, _, _, err := a.AddStream(1)
	require.NoError(t, err)
	require.NoError(t, a.AddLocalAddress(streamID, net.ParseIP("10.0.0.21")))

	require.Eventually(t, func() bool {
		var n int
		a.runSync(func() { n = doneCount })
		return n >= 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	var n int
	a.runSync(func() { n = doneCount })
	require.Equal(t, 1, n, "candidate_gathering_done must fire exactly once")
}
