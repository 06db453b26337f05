package orchestrator

import "errors"

var (
	// ErrAuthorizationDenied is terminal: the source was deauthorized and
	// previously shown scores were cleared.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrDataUnavailable means inputs were missing; the result is a placeholder
	// and a later call may succeed.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrComputationTimeout means the per-type deadline elapsed
	ErrComputationTimeout = errors.New("computation timed out")

	// ErrDependencyUnresolved means the upstream score did not resolve in
	// time. It is logged; the computation continues without it.
	ErrDependencyUnresolved = errors.New("dependency unresolved")
)
