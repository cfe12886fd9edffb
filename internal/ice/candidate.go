package ice

import (
	"crypto/sha1" //nolint:gosec // foundation is an identity hash, not a security boundary
	"encoding/hex"
	"fmt"
	"net"

	"github.com/google/uuid"
)

// CandidateType is one of the four ICE candidate kinds (spec.md §3).
type CandidateType int

// Candidate types. Their RFC 5245 §4.1.2.2 type preferences come from
// preference(), not from these constant values.
const (
	CandidateTypeHost CandidateType = iota
	CandidateTypePeerReflexive
	CandidateTypeServerReflexive
	CandidateTypeRelayed
)

func (t CandidateType) String() string {
	switch t {
	case CandidateTypeHost:
		return "host"
	case CandidateTypePeerReflexive:
		return "prflx"
	case CandidateTypeServerReflexive:
		return "srflx"
	case CandidateTypeRelayed:
		return "relay"
	default:
		return "unknown"
	}
}

// preference returns the RFC 5245 §4.1.2.2 type preference value.
func (t CandidateType) preference() uint32 {
	switch t {
	case CandidateTypeHost:
		return 126
	case CandidateTypePeerReflexive:
		return 110
	case CandidateTypeServerReflexive:
		return 100
	case CandidateTypeRelayed:
		return 0
	default:
		return 0
	}
}

// Candidate is an immutable descriptor of one transport address, per
// spec.md §3. Once constructed it is never mutated; re-pairing after a
// peer-reflexive promotion creates a new Candidate rather than editing one
// in place.
type Candidate struct {
	ID          string
	StreamID    int
	ComponentID int
	Type        CandidateType
	Addr        NiceAddress
	BaseAddr    NiceAddress
	Priority    uint32
	Foundation  string
	Username    string
	Password    string

	// socketRef names the DatagramSocket this candidate is reachable
	// through; it is resolved against Component.sockets by the owning
	// Component, never stored as a live pointer (spec.md §9 "back-pointers").
	socketRef string
}

// NewCandidate constructs a Candidate, computing priority and foundation.
func NewCandidate(streamID, componentID int, typ CandidateType, addr, base NiceAddress, localPref uint16, foundationSalt string, socketRef string) Candidate {
	return Candidate{
		ID:          uuid.NewString(),
		StreamID:    streamID,
		ComponentID: componentID,
		Type:        typ,
		Addr:        addr,
		BaseAddr:    base,
		Priority:    CandidatePriority(typ, localPref, componentID),
		Foundation:  CandidateFoundation(typ, base, foundationSalt),
		socketRef:   socketRef,
	}
}

// CandidatePriority computes the RFC 5245 §4.1.2.1 priority formula:
//
//	(type_pref << 24) | (local_pref << 8) | (256 - component_id)
func CandidatePriority(typ CandidateType, localPref uint16, componentID int) uint32 {
	return (typ.preference() << 24) | (uint32(localPref) << 8) | uint32(256-componentID)
}

// CandidateFoundation derives a deterministic foundation string identifying
// (type, base_addr, stunServer) per spec.md §3, truncated to 32 characters.
// A content hash (rather than a counter) is used so that equivalent
// candidates from independent gathering runs land on the same foundation,
// which is required for the foundation-grouping freeze/unfreeze rule in
// spec.md §4.3 step 5.
func CandidateFoundation(typ CandidateType, base NiceAddress, stunServer string) string {
	h := sha1.New() //nolint:gosec
	fmt.Fprintf(h, "%s|%s|%s", typ, base.String(), stunServer)
	sum := hex.EncodeToString(h.Sum(nil))
	if len(sum) > 32 {
		sum = sum[:32]
	}
	return sum
}

// Key identifies a candidate for the "(type, base_addr, addr) unique across
// local candidates" invariant in spec.md §3.
type candidateKey struct {
	typ  CandidateType
	base string
	addr string
}

func (c Candidate) key() candidateKey {
	return candidateKey{typ: c.Type, base: c.BaseAddr.String(), addr: c.Addr.String()}
}

// SameFamily reports whether two candidates share an IPv4/IPv6 address family.
func (c Candidate) SameFamily(o Candidate) bool {
	return isV4(c.Addr.IP) == isV4(o.Addr.IP)
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s/%d %s %s (base %s) prio=%d found=%s", c.Type, c.ComponentID, "udp", c.Addr, c.BaseAddr, c.Priority, c.Foundation)
}

// RemoteCandidateInit is the wire-level shape accepted by
// Agent.AddRemoteCandidate, matching the abstract signalling layer format
// in spec.md §6.
type RemoteCandidateInit struct {
	Foundation    string
	ComponentID   int
	Priority      uint32
	Addr          net.IP
	Port          int
	Type          CandidateType
	RelatedAddr   net.IP
	RelatedPort   int
}

func (r RemoteCandidateInit) toCandidate(streamID int) Candidate {
	base := NiceAddress{IP: r.Addr, Port: r.Port}
	if r.RelatedAddr != nil {
		base = NiceAddress{IP: r.RelatedAddr, Port: r.RelatedPort}
	}
	return Candidate{
		ID:          uuid.NewString(),
		StreamID:    streamID,
		ComponentID: r.ComponentID,
		Type:        r.Type,
		Addr:        NiceAddress{IP: r.Addr, Port: r.Port},
		BaseAddr:    base,
		Priority:    r.Priority,
		Foundation:  r.Foundation,
	}
}
