package hexdump

import (
	"errors"
	"fmt"
)

// Kind classifies generation failures.
type Kind string

const (
	KindSpawnFailed    Kind = "spawn_failed"
	KindProcessError   Kind = "process_error"
	KindAlreadyRunning Kind = "already_running"
	KindInvalidOptions Kind = "invalid_options"
	KindTimeout        Kind = "timeout"
	KindCanceled       Kind = "canceled"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its Kind.
var (
	ErrSpawnFailed    = &Error{Kind: KindSpawnFailed}
	ErrProcessError   = &Error{Kind: KindProcessError}
	ErrAlreadyRunning = &Error{Kind: KindAlreadyRunning}
	ErrTimeout        = &Error{Kind: KindTimeout}
	ErrCanceled       = &Error{Kind: KindCanceled}
)

// Error is returned by the runner, the generator and the viewer gate.
type Error struct {
	Kind     Kind
	Op       string
	Err      error
	Stderr   string
	ExitCode int
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind
	}
	return ""
}
