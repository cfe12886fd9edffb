package ice

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func mkCandidate(compID int, typ CandidateType, ip string, port int, base string, basePort int) Candidate {
	addr := NiceAddress{IP: net.ParseIP(ip), Port: port}
	baseAddr := NiceAddress{IP: net.ParseIP(base), Port: basePort}
	return NewCandidate(1, compID, typ, addr, baseAddr, defaultLocalPreference, "", "ref")
}

func TestReformPairsBuildsCrossProduct(t *testing.T) {
	s := newStream(1, 1, "localufraglocalufrag1", "localpasswordlocalpassword1")
	comp := s.Components[0]

	l1 := mkCandidate(1, CandidateTypeHost, "10.0.0.1", 1000, "10.0.0.1", 1000)
	l2 := mkCandidate(1, CandidateTypeServerReflexive, "1.2.3.4", 2000, "10.0.0.1", 1000)
	comp.LocalCandidates = []Candidate{l1, l2}

	r1 := mkCandidate(1, CandidateTypeHost, "10.0.0.2", 1500, "10.0.0.2", 1500)
	comp.RemoteCandidates = []Candidate{r1}

	// The cross product has two pairs, but l2 shares l1's base, so pruning
	// keeps only the higher-priority host pair.
	reformPairs(s, comp.ID, true)
	require.Len(t, s.CheckList, 1)
	require.Equal(t, CandidateTypeHost, s.CheckList[0].Local.Type)
}

func TestReformPairsPreservesExistingPairState(t *testing.T) {
	s := newStream(1, 1, "localufraglocalufrag1", "localpasswordlocalpassword1")
	comp := s.Components[0]
	l1 := mkCandidate(1, CandidateTypeHost, "10.0.0.1", 1000, "10.0.0.1", 1000)
	r1 := mkCandidate(1, CandidateTypeHost, "10.0.0.2", 1500, "10.0.0.2", 1500)
	comp.LocalCandidates = []Candidate{l1}
	comp.RemoteCandidates = []Candidate{r1}

	reformPairs(s, comp.ID, true)
	require.Len(t, s.CheckList, 1)
	s.CheckList[0].State = PairSucceeded
	s.CheckList[0].Valid = true

	// Re-running with the identical candidate set must not reset state.
	reformPairs(s, comp.ID, true)
	require.Len(t, s.CheckList, 1)
	require.Equal(t, PairSucceeded, s.CheckList[0].State)
	require.True(t, s.CheckList[0].Valid)
}

func TestPrunePairsKeepsHighestPriorityPerRedundancyKey(t *testing.T) {
	base := NiceAddress{IP: net.ParseIP("10.0.0.1"), Port: 1000}
	remote := mkCandidate(1, CandidateTypeHost, "10.0.0.2", 2000, "10.0.0.2", 2000)

	lowPref := NewCandidate(1, 1, CandidateTypeHost, base, base, 1, "", "ref")
	highPref := NewCandidate(1, 1, CandidateTypeHost, base, base, 65535, "", "ref")

	pairs := []*CandidatePair{
		newCandidatePair(lowPref, remote, true),
		newCandidatePair(highPref, remote, true),
	}
	pruned := prunePairs(pairs)
	require.Len(t, pruned, 1)
	require.Equal(t, highPref.Priority, pruned[0].Local.Priority)
}

func TestAssignFoundationStatesOnePerFoundation(t *testing.T) {
	remote := mkCandidate(1, CandidateTypeHost, "10.0.0.2", 2000, "10.0.0.2", 2000)
	l1 := mkCandidate(1, CandidateTypeHost, "10.0.0.1", 1000, "10.0.0.1", 1000)
	l2 := mkCandidate(1, CandidateTypeHost, "10.0.0.1", 1000, "10.0.0.1", 1000) // same foundation as l1

	p1 := newCandidatePair(l1, remote, true)
	p2 := newCandidatePair(l2, remote, true)
	p2.Priority = p1.Priority - 1 // ensure a deterministic winner

	pairs := []*CandidatePair{p1, p2}
	sortPairsByPriorityDesc(pairs)
	assignFoundationStates(pairs)

	require.Equal(t, PairWaiting, pairs[0].State)
	require.Equal(t, PairFrozen, pairs[1].State)
}

func TestHighestPriorityWaitingIgnoresOtherStates(t *testing.T) {
	s := newStream(1, 1, "localufraglocalufrag1", "localpasswordlocalpassword1")
	remote := mkCandidate(1, CandidateTypeHost, "10.0.0.2", 2000, "10.0.0.2", 2000)
	l1 := mkCandidate(1, CandidateTypeHost, "10.0.0.1", 1000, "10.0.0.1", 1000)
	p := newCandidatePair(l1, remote, true)
	p.State = PairFrozen
	s.CheckList = []*CandidatePair{p}

	require.Nil(t, highestPriorityWaiting(s))
	p.State = PairWaiting
	require.Equal(t, p, highestPriorityWaiting(s))
}
