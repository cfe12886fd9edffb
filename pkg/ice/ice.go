// Package ice is the public facade over github.com/HyeonuPark/libnice's ICE
// engine (internal/ice), mirroring the teacher's split between an internal
// implementation package and a small, stable pkg/ice surface.
package ice

import (
	"net"

	"github.com/HyeonuPark/libnice/internal/ice"
	"github.com/pion/logging"
)

// CandidateType mirrors internal/ice.CandidateType for callers that only
// import pkg/ice.
type CandidateType = ice.CandidateType

const (
	CandidateTypeHost           = ice.CandidateTypeHost
	CandidateTypePeerReflexive  = ice.CandidateTypePeerReflexive
	CandidateTypeServerReflexive = ice.CandidateTypeServerReflexive
	CandidateTypeRelayed        = ice.CandidateTypeRelayed
)

// ComponentState mirrors internal/ice.ComponentState.
type ComponentState = ice.ComponentState

const (
	ComponentDisconnected = ice.ComponentDisconnected
	ComponentGathering    = ice.ComponentGathering
	ComponentConnecting   = ice.ComponentConnecting
	ComponentConnected    = ice.ComponentConnected
	ComponentReady        = ice.ComponentReady
	ComponentFailed       = ice.ComponentFailed
)

// NominationMode mirrors internal/ice.NominationMode.
type NominationMode = ice.NominationMode

const (
	NominationRegular    = ice.NominationRegular
	NominationAggressive = ice.NominationAggressive
)

// RemoteCandidateInit is the wire-level candidate shape accepted by
// Agent.AddRemoteCandidate / SetRemoteCandidates.
type RemoteCandidateInit = ice.RemoteCandidateInit

// EventHandler and EventHandlerFuncs re-export the six-event sink from
// internal/ice, so callers never need to import it directly.
type EventHandler = ice.EventHandler
type EventHandlerFuncs = ice.EventHandlerFuncs

// AgentConfig re-exports internal/ice.AgentConfig.
type AgentConfig = ice.AgentConfig

// Driver, SocketFactory, DatagramSocket, RNG, TimerHandle re-export the
// capability interfaces spec.md §1 keeps external to the engine.
type Driver = ice.Driver
type SocketFactory = ice.SocketFactory
type DatagramSocket = ice.DatagramSocket
type RNG = ice.RNG
type TimerHandle = ice.TimerHandle

// Agent is the top-level ICE engine. See internal/ice.Agent for the full
// operation set; this package only adds the NewNetAgent convenience
// constructor below.
type Agent = ice.Agent

// NewAgent constructs an Agent from config (internal/ice.NewAgent).
func NewAgent(config AgentConfig) (*Agent, error) {
	return ice.NewAgent(config)
}

// NewNetAgent builds a Driver/SocketFactory pair over the host network
// stack (github.com/pion/transport/v4/stdnet) and constructs an Agent with
// it, for callers that don't need a virtual network for testing.
func NewNetAgent(controlling bool, stunServer string, stunServerPort int, loggerFactory logging.LoggerFactory) (*Agent, error) {
	driver, err := ice.NewNetDriver(loggerFactory)
	if err != nil {
		return nil, err
	}
	return ice.NewAgent(AgentConfig{
		Driver:          driver,
		Sockets:         driver,
		LoggerFactory:   loggerFactory,
		StunServer:      stunServer,
		StunServerPort:  stunServerPort,
		ControllingMode: controlling,
		FullMode:        true,
	})
}

// LocalInterfaceAddresses enumerates host addresses suitable for gathering
// host candidates (internal/ice.LocalInterfaceAddresses).
func LocalInterfaceAddresses() []net.IP {
	return ice.LocalInterfaceAddresses()
}
