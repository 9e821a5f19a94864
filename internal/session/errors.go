package session

import "errors"

var (
	// ErrNotFound is returned for unknown session IDs.
	ErrNotFound = errors.New("session not found")

	// ErrSuperseded means the session was invalidated or closed while a
	// generation was in flight; its result was discarded.
	ErrSuperseded = errors.New("generation superseded")
)
