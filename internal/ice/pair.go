package ice

import (
	"fmt"
	"time"
)

// PairState is the connectivity-check state machine for a CandidatePair
// (spec.md §3).
type PairState int

const (
	PairFrozen PairState = iota
	PairWaiting
	PairInProgress
	PairSucceeded
	PairFailed
)

func (s PairState) String() string {
	switch s {
	case PairFrozen:
		return "frozen"
	case PairWaiting:
		return "waiting"
	case PairInProgress:
		return "in-progress"
	case PairSucceeded:
		return "succeeded"
	case PairFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CandidatePair is an ordered (local, remote) tuple subject to
// connectivity checking, per spec.md §3.
type CandidatePair struct {
	ID     string
	Local  Candidate
	Remote Candidate

	Priority uint64
	State    PairState
	// Nominated latches true once the controlling agent's USE-CANDIDATE
	// check on this pair has succeeded (or, on the controlled side, once a
	// USE-CANDIDATE request arrives on an already-valid pair).
	Nominated bool
	// Valid means at least one Binding check on this pair has succeeded.
	Valid bool

	// PeerNominated latches true once the peer has sent a request on this
	// pair carrying USE-CANDIDATE, whether or not our own check on it has
	// succeeded yet (spec.md §4.3 Nomination, controlled side).
	PeerNominated bool

	lastTxID         [12]byte
	retransmitCount  int
	sendUseCandidate bool
	// sentControlling records which role this agent claimed in the request
	// identified by lastTxID, so a 487 Role Conflict response can switch to
	// the specific opposite role regardless of what Agent.controlling has
	// done in the meantime (spec.md §4.1 role-conflict handling).
	sentControlling bool
	nextTickAt      time.Time
}

// PairPriority computes the RFC 5245 §5.7.2 combined priority:
//
//	2^32 * min(G,D) + 2*max(G,D) + (G>D ? 1 : 0)
//
// where G is the controlling agent's candidate priority and D the
// controlled agent's, regardless of which side computes it locally.
func PairPriority(localPriority, remotePriority uint32, localIsControlling bool) uint64 {
	var g, d uint64
	if localIsControlling {
		g, d = uint64(localPriority), uint64(remotePriority)
	} else {
		g, d = uint64(remotePriority), uint64(localPriority)
	}
	min, max := g, d
	if min > max {
		min, max = max, min
	}
	result := (uint64(1)<<32)*min + 2*max
	if g > d {
		result++
	}
	return result
}

func newCandidatePair(local, remote Candidate, controlling bool) *CandidatePair {
	return &CandidatePair{
		ID:       local.ID + "/" + remote.ID,
		Local:    local,
		Remote:   remote,
		Priority: PairPriority(local.Priority, remote.Priority, controlling),
		State:    PairFrozen,
	}
}

func (p *CandidatePair) String() string {
	return fmt.Sprintf("%s <-> %s [%s prio=%d nominated=%v]", p.Local, p.Remote, p.State, p.Priority, p.Nominated)
}
