package ice

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestAgent(t *testing.T, fd *fakeDriver, controlling bool) *Agent {
	t.Helper()
	a, err := NewAgent(AgentConfig{
		Driver:          fd,
		Sockets:         fd,
		ControllingMode: controlling,
		FullMode:        true,
		TimerTaMs:       5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// TestLoopbackConnect exercises spec.md §8's basic scenario: two agents,
// host candidates only, exchanged out of band, reach a nominated pair and
// a READY component on both sides.
func TestLoopbackConnect(t *testing.T) {
	fd := newFakeDriver()

	a := newTestAgent(t, fd, true)
	b := newTestAgent(t, fd, false)

	streamA, ufragA, passA, err := a.AddStream(1)
	require.NoError(t, err)
	streamB, ufragB, passB, err := b.AddStream(1)
	require.NoError(t, err)

	require.NoError(t, a.SetRemoteCredentials(streamA, ufragB, passB))
	require.NoError(t, b.SetRemoteCredentials(streamB, ufragA, passA))

	require.NoError(t, a.AddLocalAddress(streamA, net.ParseIP("10.0.0.1")))
	require.NoError(t, b.AddLocalAddress(streamB, net.ParseIP("10.0.0.2")))

	for _, cand := range a.snapshotLocalCandidates(streamA, 1) {
		require.NoError(t, b.AddRemoteCandidate(streamB, remoteInitFromCandidate(cand)))
	}
	for _, cand := range b.snapshotLocalCandidates(streamB, 1) {
		require.NoError(t, a.AddRemoteCandidate(streamA, remoteInitFromCandidate(cand)))
	}

	require.Eventually(t, func() bool {
		return a.snapshotSelectedPair(streamA, 1) != nil && b.snapshotSelectedPair(streamB, 1) != nil
	}, 3*time.Second, 10*time.Millisecond, "both sides should reach a nominated pair")

	require.Equal(t, ComponentReady, a.snapshotComponentState(streamA, 1))
	require.Equal(t, ComponentReady, b.snapshotComponentState(streamB, 1))
}

// TestSendAfterReady exercises Agent.Send once a component is READY.
func TestSendAfterReady(t *testing.T) {
	fd := newFakeDriver()

	a := newTestAgent(t, fd, true)
	b := newTestAgent(t, fd, false)

	streamA, ufragA, passA, err := a.AddStream(1)
	require.NoError(t, err)
	streamB, ufragB, passB, err := b.AddStream(1)
	require.NoError(t, err)
	require.NoError(t, a.SetRemoteCredentials(streamA, ufragB, passB))
	require.NoError(t, b.SetRemoteCredentials(streamB, ufragA, passA))
	require.NoError(t, a.AddLocalAddress(streamA, net.ParseIP("10.0.0.3")))
	require.NoError(t, b.AddLocalAddress(streamB, net.ParseIP("10.0.0.4")))

	for _, cand := range a.snapshotLocalCandidates(streamA, 1) {
		require.NoError(t, b.AddRemoteCandidate(streamB, remoteInitFromCandidate(cand)))
	}
	for _, cand := range b.snapshotLocalCandidates(streamB, 1) {
		require.NoError(t, a.AddRemoteCandidate(streamA, remoteInitFromCandidate(cand)))
	}

	require.Eventually(t, func() bool {
		return a.snapshotSelectedPair(streamA, 1) != nil && b.snapshotSelectedPair(streamB, 1) != nil
	}, 3*time.Second, 10*time.Millisecond)

	var received []byte
	done := make(chan struct{})
	b.SetMediaHandler(func(streamID, componentID int, src NiceAddress, data []byte) {
		received = append([]byte(nil), data...)
		close(done)
	})

	require.NoError(t, a.Send(streamA, 1, []byte{0x80, 0x01, 0x02, 0x03}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("b never received the media datagram")
	}
	require.Equal(t, []byte{0x80, 0x01, 0x02, 0x03}, received)
}

func TestAddStreamRejectsZeroComponents(t *testing.T) {
	fd := newFakeDriver()
	a := newTestAgent(t, fd, true)
	_, _, _, err := a.AddStream(0)
	require.ErrorIs(t, err, ErrComponentCount)
}

func TestSetRemoteCredentialsValidatesLength(t *testing.T) {
	fd := newFakeDriver()
	a := newTestAgent(t, fd, true)
	streamID, _, _, err := a.AddStream(1)
	require.NoError(t, err)

	require.ErrorIs(t, a.SetRemoteCredentials(streamID, "abc", "01234567890123456789012"), ErrInvalidUfrag)
	require.ErrorIs(t, a.SetRemoteCredentials(streamID, "validufrag", "short"), ErrInvalidPassword)
}

func TestRemoveStreamClosesSockets(t *testing.T) {
	fd := newFakeDriver()
	a := newTestAgent(t, fd, true)
	streamID, _, _, err := a.AddStream(1)
	require.NoError(t, err)
	require.NoError(t, a.AddLocalAddress(streamID, net.ParseIP("10.0.0.5")))
	require.NoError(t, a.RemoveStream(streamID))
	_, _, err = a.GetLocalCredentials(streamID)
	require.ErrorIs(t, err, ErrUnknownStream)

	fd.mu.Lock()
	socks := make([]*memSocket, 0, len(fd.sockets))
	for _, s := range fd.sockets {
		socks = append(socks, s)
	}
	fd.mu.Unlock()
	require.Len(t, socks, 1)
	for _, s := range socks {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		require.True(t, closed, "RemoveStream must close the stream's socket")
	}
}
