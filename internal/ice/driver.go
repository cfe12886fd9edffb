package ice

import (
	"net"
	"time"
)

// DatagramSocket is the minimal capability the core needs from a bound UDP
// socket (spec.md §1 "Deliberately excluded as external collaborators").
type DatagramSocket interface {
	Send(dst net.Addr, b []byte) (int, error)
	Close() error
	LocalAddr() net.Addr
}

// SocketFactory binds new DatagramSockets on demand, used during candidate
// gathering (one per local address per component).
type SocketFactory interface {
	Bind(local net.Addr) (DatagramSocket, error)
}

// TimerHandle identifies a scheduled callback so it can be cancelled.
type TimerHandle interface{}

// Driver is the host event loop the agent is given at construction
// (spec.md §9 "Driver capability" re-architecture guidance, replacing the
// teacher's `main_context_attach` pattern). The agent calls Driver methods
// and never reaches into the loop's internals.
type Driver interface {
	// WatchReadable registers cb to be invoked with each datagram received
	// on s, until CancelWatch is called.
	WatchReadable(s DatagramSocket, cb func(src net.Addr, b []byte)) TimerHandle
	CancelWatch(h TimerHandle)

	// Timer schedules cb to run after d elapses, returning a handle Cancel
	// can use to abort it. Used for Ta pacing, RTO retransmits, keepalives.
	Timer(d time.Duration, cb func()) TimerHandle
	Cancel(h TimerHandle)
}

// RNG is the random-byte-generation capability (spec.md §1: rng.bytes(n)).
type RNG interface {
	Bytes(n int) ([]byte, error)
}
