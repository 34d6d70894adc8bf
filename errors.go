package telreg

import "errors"

var (
	// ErrPermissionDenied is returned when the caller lacks the capability
	// required by a location subscription or a dump. Nothing is mutated.
	ErrPermissionDenied = errors.New("telreg: permission denied")

	// ErrListenerFailed is returned by Listen when the listener failed
	// while the current state was replayed to it. The subscriber has been
	// removed.
	ErrListenerFailed = errors.New("telreg: listener failed")

	// ErrClosed is returned when subscribing to a closed registry.
	ErrClosed = errors.New("telreg: registry closed")

	// ErrNoListener is returned when subscribing without a listener.
	ErrNoListener = errors.New("telreg: nil listener")

	// ErrUnknownField is returned when a field name cannot be resolved.
	ErrUnknownField = errors.New("telreg: unknown field")
)
