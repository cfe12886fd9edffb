package ice

import "time"

const (
	// defaultLocalPreference is used for every candidate in this
	// implementation: each component only ever has one socket per
	// interface, so the "must be unique across candidates of the same
	// type" requirement in RFC 5245 §4.1.2.1 is trivially satisfied with a
	// constant (64-bit NAT/host topologies with multiple interfaces are
	// still distinguished by their base address, which feeds the
	// foundation and the per-family priority tiers via type preference).
	defaultLocalPreference uint16 = 65535

	// defaultTaMs is the pacing interval between successive discovery or
	// connectivity-check actions (spec.md §4.5, AgentConfig.timer_ta_ms).
	defaultTaMs = 20

	// defaultKeepaliveInterval is Tr from spec.md §4.3 Keepalives.
	defaultKeepaliveInterval = 15 * time.Second

	// nominationStabilizationWindow is the "regular nomination" wait from
	// spec.md §4.3: the controlling agent waits this long after a pair
	// becomes valid before sending the USE-CANDIDATE check, to let a
	// higher-priority pair succeed first.
	nominationStabilizationWindow = 100 * time.Millisecond
)
