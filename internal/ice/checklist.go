package ice

import "sort"

// maxCheckListPairs is the implementation-defined ceiling from spec.md
// §4.3 step 6 ("truncate to an implementation-defined ceiling (>=100 pairs
// per stream)").
const maxCheckListPairs = 100

// reformPairs rebuilds the check list for one component after a change to
// the (local_candidates x remote_candidates) cross product: a new remote
// candidate, a new local reflexive candidate, or a call to
// SetRemoteCandidates. This implements spec.md §4.3 steps 1-6.
func reformPairs(s *Stream, componentID int, controlling bool) {
	comp, ok := s.component(componentID)
	if !ok {
		return
	}

	// Preserve state for pairs that already exist so re-forming after an
	// incremental candidate addition doesn't reset in-flight/succeeded
	// checks (spec.md §8 "Idempotence: calling set_remote_candidates twice
	// with the same list leaves the check list structurally identical").
	existing := make(map[candidatePairKey]*CandidatePair)
	for _, p := range s.CheckList {
		if p.Local.ComponentID == componentID {
			existing[pairKey(p.Local, p.Remote)] = p
		}
	}

	var fresh []*CandidatePair
	for _, lc := range comp.LocalCandidates {
		for _, rc := range comp.RemoteCandidates {
			if !lc.SameFamily(rc) {
				continue
			}
			k := pairKey(lc, rc)
			if p, found := existing[k]; found {
				fresh = append(fresh, p)
				continue
			}
			fresh = append(fresh, newCandidatePair(lc, rc, controlling))
		}
	}

	fresh = prunePairs(fresh)
	sortPairsByPriorityDesc(fresh)
	if len(fresh) > maxCheckListPairs {
		fresh = fresh[:maxCheckListPairs]
	}
	assignFoundationStates(fresh)

	// Splice: drop this component's old entries, keep every other
	// component's, append the freshly computed set. Check-list ordering
	// across components doesn't matter to spec.md (scheduling picks the
	// highest-priority WAITING pair across the whole list), only
	// within-component priority order does, which sortPairsByPriorityDesc
	// already established.
	kept := s.CheckList[:0:0]
	for _, p := range s.CheckList {
		if p.Local.ComponentID != componentID {
			kept = append(kept, p)
		}
	}
	s.CheckList = append(kept, fresh...)
}

type candidatePairKey struct {
	local  candidateKey
	remote candidateKey
}

func pairKey(local, remote Candidate) candidatePairKey {
	return candidatePairKey{local: local.key(), remote: remote.key()}
}

// prunePairs implements spec.md §4.3 step 3: when two pairs share the same
// remote candidate and local candidates with the same base, keep only the
// higher-priority one.
func prunePairs(pairs []*CandidatePair) []*CandidatePair {
	type redundancyKey struct {
		remote string
		base   string
	}
	best := make(map[redundancyKey]*CandidatePair)
	var order []redundancyKey
	for _, p := range pairs {
		k := redundancyKey{remote: p.Remote.key().String(), base: p.Local.BaseAddr.String()}
		cur, ok := best[k]
		if !ok {
			order = append(order, k)
			best[k] = p
			continue
		}
		if p.Priority > cur.Priority {
			best[k] = p
		}
	}
	out := make([]*CandidatePair, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

func (k candidateKey) String() string {
	return k.typ.String() + "|" + k.base + "|" + k.addr
}

func sortPairsByPriorityDesc(pairs []*CandidatePair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Priority > pairs[j].Priority
	})
}

// assignFoundationStates implements spec.md §4.3 step 5: for each distinct
// foundation, exactly one pair (the highest priority) enters WAITING;
// others stay FROZEN. If a foundation already has a pair IN_PROGRESS or
// SUCCEEDED, newly formed pairs for it stay FROZEN rather than being
// promoted to WAITING out from under the in-flight check.
func assignFoundationStates(pairs []*CandidatePair) {
	seen := make(map[string]bool)
	busy := make(map[string]bool)
	for _, p := range pairs {
		if p.State == PairInProgress || p.State == PairSucceeded {
			busy[p.Local.Foundation] = true
		}
	}
	for _, p := range pairs {
		if p.State != PairFrozen {
			continue // already scheduled, succeeded, or failed: leave as-is
		}
		f := p.Local.Foundation
		if busy[f] {
			continue
		}
		if !seen[f] {
			p.State = PairWaiting
			seen[f] = true
			busy[f] = true
		}
	}
}

// unfreezeFoundation moves every FROZEN pair sharing foundation f in s's
// check list to WAITING (spec.md §4.3 "Success... Unfreeze all FROZEN
// pairs in the same foundation").
func unfreezeFoundation(s *Stream, f string) {
	for _, p := range s.CheckList {
		if p.State == PairFrozen && p.Local.Foundation == f {
			p.State = PairWaiting
		}
	}
}

// highestPriorityWaiting returns the highest-priority WAITING pair across
// the whole check list (spec.md §4.3 Scheduling).
func highestPriorityWaiting(s *Stream) *CandidatePair {
	var best *CandidatePair
	for _, p := range s.CheckList {
		if p.State != PairWaiting {
			continue
		}
		if best == nil || p.Priority > best.Priority {
			best = p
		}
	}
	return best
}
