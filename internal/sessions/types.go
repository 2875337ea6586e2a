package sessions

import "errors"

// Kind classifies what a session entry launches.
type Kind int

const (
	KindX11 Kind = iota
	KindWayland
	KindShell
)

func (k Kind) String() string {
	switch k {
	case KindX11:
		return "x11"
	case KindWayland:
		return "wayland"
	case KindShell:
		return "shell"
	}
	return "unknown"
}

// Choice is one selectable session entry. Script is empty for KindShell; the
// user's login shell from the user database is launched instead.
type Choice struct {
	Kind   Kind
	Name   string
	Script string
}

// Request is one login attempt crossing from the front end to the worker.
type Request struct {
	Username string
	Secret   []byte
	Choice   Choice
}

// OutcomeKind enumerates the results reported back to the front end.
type OutcomeKind int

const (
	// OutcomeAuthFailed carries the authentication error; re-prompting is
	// the front end's call.
	OutcomeAuthFailed OutcomeKind = iota
	// OutcomeStarted is emitted once the session child is running.
	OutcomeStarted
	// OutcomeEnded is the terminal outcome of a started session.
	OutcomeEnded
	// OutcomeInternalError covers everything the user cannot fix by
	// retyping a password. The manager stays up for further attempts.
	OutcomeInternalError
)

type Outcome struct {
	Kind       OutcomeKind
	Reason     error
	ExitStatus int
}

// Error categories surfaced through Outcome.Reason.
var (
	// ErrTransition marks failures preparing or starting the session child
	// after successful authentication.
	ErrTransition = errors.New("session transition failed")
	// ErrTty marks a failed virtual terminal switch. Fatal for graphical
	// sessions, a warning for shell sessions.
	ErrTty = errors.New("vt switch failed")
	// ErrInternal marks unexpected system failures.
	ErrInternal = errors.New("internal error")
	// ErrBusy is returned by Submit while a login or session is in flight.
	ErrBusy = errors.New("a session is already in progress")
)
