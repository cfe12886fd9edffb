package ice

import "errors"

// Sentinel errors returned synchronously to the caller. These correspond to
// the ConfigError/ResourceError kinds of spec.md §7: malformed input or a
// resource failure the caller needs to see, never a transient protocol
// condition (those are logged and dropped, not returned).
var (
	// ErrUnknownStream is returned when a stream id does not name a live stream.
	ErrUnknownStream = errors.New("ice: unknown stream id")

	// ErrUnknownComponent is returned when a component id does not exist on a stream.
	ErrUnknownComponent = errors.New("ice: unknown component id")

	// ErrNoRemoteCredentials names the missing-remote-credentials condition.
	// No Agent method returns it: connectivity checks start whether or not
	// SetRemoteCredentials has been called.
	ErrNoRemoteCredentials = errors.New("ice: remote credentials not set")

	// ErrInvalidUfrag is returned when a ufrag falls outside the 4-256 char range.
	ErrInvalidUfrag = errors.New("ice: ufrag must be 4-256 characters")

	// ErrInvalidPassword is returned when a password falls outside the 22-256 char range.
	ErrInvalidPassword = errors.New("ice: password must be 22-256 characters")

	// ErrComponentCount is returned when add_stream is asked for zero components.
	ErrComponentCount = errors.New("ice: a stream needs at least one component")

	// ErrClosed is returned by operations on an agent that has been closed.
	ErrClosed = errors.New("ice: agent closed")

	// ErrAddressFamilyMismatch names a candidate pair that would cross address
	// families. No Agent method returns it: pair formation skips such
	// (local, remote) combinations without an error.
	ErrAddressFamilyMismatch = errors.New("ice: candidate address family mismatch")
)
