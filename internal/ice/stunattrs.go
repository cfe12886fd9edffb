package ice

import (
	"encoding/binary"

	"github.com/pion/stun/v3"
)

// ICE-specific STUN attributes from RFC 5245 §7.1, built atop
// github.com/pion/stun/v3's generic Setter/Getter machinery the same way
// the real pion/ice module's internal stun extension package does (see the
// `stunx` import alias in the vendored pion/ice v2 agent.go). pion/stun's
// core package only knows generic STUN (RFC 5389); it has no opinion about
// ICE, so the four ICE-only attributes (PRIORITY, ICE-CONTROLLING,
// ICE-CONTROLLED, USE-CANDIDATE) are defined here rather than pulled from a
// library, matching how the ecosystem itself splits this boundary.
const (
	attrPriority      stun.AttrType = 0x0024
	attrUseCandidate  stun.AttrType = 0x0025
	attrICEControlled stun.AttrType = 0x8029
	attrICEControllingAttr stun.AttrType = 0x802a
)

// priorityAttr sets/reads the PRIORITY attribute (spec.md §6).
type priorityAttr uint32

func (p priorityAttr) AddTo(m *stun.Message) error {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, uint32(p))
	m.Add(attrPriority, v)
	return nil
}

func getPriority(m *stun.Message) (uint32, error) {
	v, err := m.Get(attrPriority)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(v), nil
}

// useCandidateAttr sets the zero-length USE-CANDIDATE attribute.
type useCandidateAttr struct{}

func (useCandidateAttr) AddTo(m *stun.Message) error {
	m.Add(attrUseCandidate, []byte{})
	return nil
}

func hasUseCandidate(m *stun.Message) bool {
	return m.Contains(attrUseCandidate)
}

// controlAttr sets ICE-CONTROLLING or ICE-CONTROLLED with the tie-breaker.
type controlAttr struct {
	controlling bool
	tieBreaker  uint64
}

func (c controlAttr) AddTo(m *stun.Message) error {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, c.tieBreaker)
	if c.controlling {
		m.Add(attrICEControllingAttr, v)
	} else {
		m.Add(attrICEControlled, v)
	}
	return nil
}

func getTieBreaker(m *stun.Message, controlling bool) (uint64, bool) {
	attr := attrICEControlled
	if controlling {
		attr = attrICEControllingAttr
	}
	v, err := m.Get(attr)
	if err != nil {
		return 0, false
	}
	return binary.BigEndian.Uint64(v), true
}

func hasControlling(m *stun.Message) bool { return m.Contains(attrICEControllingAttr) }
func hasControlled(m *stun.Message) bool  { return m.Contains(attrICEControlled) }

// usernameAttr builds USERNAME = "remoteUfrag:localUfrag" per spec.md §6.
func usernameAttr(remoteUfrag, localUfrag string) stun.Username {
	return stun.Username{Username: remoteUfrag + ":" + localUfrag}
}

// expectedUsername validates an inbound request's USERNAME matches
// "localUfrag:remoteUfrag" (i.e. the roles are reversed from usernameAttr,
// since the inbound request was built by the peer using our ufrag first).
func expectedUsername(m *stun.Message, localUfrag, remoteUfrag string) bool {
	var u stun.Username
	if err := u.GetFrom(m); err != nil {
		return false
	}
	return u.Username == localUfrag+":"+remoteUfrag
}

// buildBindingRequest assembles the full ICE connectivity-check request
// described in spec.md §4.3: PRIORITY, the controlling/controlled
// attribute, optional USE-CANDIDATE, USERNAME, MESSAGE-INTEGRITY and
// FINGERPRINT.
func buildBindingRequest(localUfrag, remoteUfrag, remotePwd string, priority uint32, controlling bool, tieBreaker uint64, useCandidate bool) (*stun.Message, error) {
	setters := []stun.Setter{
		stun.TransactionID,
		stun.NewType(stun.MethodBinding, stun.ClassRequest),
		usernameAttr(remoteUfrag, localUfrag),
		priorityAttr(priority),
		controlAttr{controlling: controlling, tieBreaker: tieBreaker},
	}
	if useCandidate {
		setters = append(setters, useCandidateAttr{})
	}
	setters = append(setters,
		stun.NewShortTermIntegrity(remotePwd),
		stun.Fingerprint,
	)
	return stun.Build(setters...)
}

// buildBindingSuccess assembles a Binding success response carrying the
// observed source address, keyed by the local password (spec.md §4.3).
func buildBindingSuccess(req *stun.Message, mapped NiceAddress, localPwd string) (*stun.Message, error) {
	return stun.Build(
		req,
		stun.BindingSuccess,
		&stun.XORMappedAddress{IP: mapped.IP, Port: mapped.Port},
		stun.NewShortTermIntegrity(localPwd),
		stun.Fingerprint,
	)
}

// buildRoleConflictError assembles a 487 Role Conflict error response
// (spec.md §4.1 role-conflict handling).
func buildRoleConflictError(req *stun.Message, localPwd string) (*stun.Message, error) {
	return stun.Build(
		req,
		stun.BindingError,
		&stun.ErrorCodeAttribute{Code: stun.CodeRoleConflict},
		stun.NewShortTermIntegrity(localPwd),
		stun.Fingerprint,
	)
}

// buildBindingIndication assembles the keepalive used once a component is
// READY (spec.md §4.3 Keepalives): an ordinary Binding indication, no
// response expected, no credentials required by RFC 5245 §10.
func buildBindingIndication() (*stun.Message, error) {
	return stun.Build(
		stun.TransactionID,
		stun.NewType(stun.MethodBinding, stun.ClassIndication),
		stun.Fingerprint,
	)
}

func checkMessageIntegrity(m *stun.Message, password string) error {
	return stun.MessageIntegrity([]byte(password)).Check(m)
}
