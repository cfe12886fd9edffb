package ice

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCandidatePriorityOrdering(t *testing.T) {
	host := CandidatePriority(CandidateTypeHost, defaultLocalPreference, 1)
	srflx := CandidatePriority(CandidateTypeServerReflexive, defaultLocalPreference, 1)
	prflx := CandidatePriority(CandidateTypePeerReflexive, defaultLocalPreference, 1)
	relay := CandidatePriority(CandidateTypeRelayed, defaultLocalPreference, 1)

	require.Greater(t, host, prflx)
	require.Greater(t, prflx, srflx)
	require.Greater(t, srflx, relay)
}

func TestCandidatePriorityComponentTieBreak(t *testing.T) {
	c1 := CandidatePriority(CandidateTypeHost, defaultLocalPreference, 1)
	c2 := CandidatePriority(CandidateTypeHost, defaultLocalPreference, 2)
	require.Greater(t, c1, c2, "lower component id must win the (256 - component_id) tie-break")
}

func TestCandidateFoundationStable(t *testing.T) {
	base := NiceAddress{IP: net.ParseIP("192.168.1.5"), Port: 5000}
	f1 := CandidateFoundation(CandidateTypeHost, base, "")
	f2 := CandidateFoundation(CandidateTypeHost, base, "")
	require.Equal(t, f1, f2)

	other := CandidateFoundation(CandidateTypeServerReflexive, base, "")
	require.NotEqual(t, f1, other)
	require.LessOrEqual(t, len(f1), 32)
}

func TestCandidateUniquenessKey(t *testing.T) {
	addr := NiceAddress{IP: net.ParseIP("10.0.0.1"), Port: 1000}
	a := NewCandidate(1, 1, CandidateTypeHost, addr, addr, defaultLocalPreference, "", "ref-a")
	b := NewCandidate(1, 1, CandidateTypeHost, addr, addr, defaultLocalPreference, "", "ref-b")
	require.Equal(t, a.key(), b.key(), "uniqueness is keyed on (type, base, addr), not on ID or socketRef")
}

func TestPairPriorityControllingControlledAgree(t *testing.T) {
	// RFC 5245 §5.7.2: both sides must compute the same number for a pair,
	// regardless of which side is controlling.
	localPrio, remotePrio := uint32(126<<24|100<<8|255), uint32(100<<24|200<<8|255)

	fromControlling := PairPriority(localPrio, remotePrio, true)
	fromControlled := PairPriority(remotePrio, localPrio, false)
	require.Equal(t, fromControlling, fromControlled)
}

func TestComponentTransitionsAreForwardOnly(t *testing.T) {
	c := newComponent(1, 1)
	require.True(t, c.transition(ComponentGathering))
	require.True(t, c.transition(ComponentConnecting))
	require.False(t, c.transition(ComponentGathering), "must not move backward")
	require.True(t, c.transition(ComponentConnected))
	require.True(t, c.transition(ComponentReady))
	require.False(t, c.transition(ComponentFailed), "READY is absorbing")
}

func TestComponentTransitionFailedIsAbsorbing(t *testing.T) {
	c := newComponent(1, 1)
	require.True(t, c.transition(ComponentFailed))
	require.False(t, c.transition(ComponentGathering))
	require.False(t, c.transition(ComponentConnected))
}

func TestAddLocalCandidateEnforcesUniqueness(t *testing.T) {
	c := newComponent(1, 1)
	addr := NiceAddress{IP: net.ParseIP("10.0.0.1"), Port: 1234}
	cand := NewCandidate(1, 1, CandidateTypeHost, addr, addr, defaultLocalPreference, "", "ref")
	require.True(t, c.addLocalCandidate(cand))
	require.False(t, c.addLocalCandidate(cand), "a duplicate (type, base, addr) must be rejected")
}

func TestValidateUfragAndPassword(t *testing.T) {
	require.NoError(t, validateUfrag("abcd"))
	require.ErrorIs(t, validateUfrag("abc"), ErrInvalidUfrag)

	require.NoError(t, validatePassword("0123456789012345678901"))
	require.ErrorIs(t, validatePassword("short"), ErrInvalidPassword)
}

func TestRTOBackoffDoubles(t *testing.T) {
	require.Equal(t, initialRTO, rtoForAttempt(0))
	require.Equal(t, 2*initialRTO, rtoForAttempt(1))
	require.Equal(t, 4*initialRTO, rtoForAttempt(2))
}
