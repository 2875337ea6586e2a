package envctl

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// Package envctl owns the process environment across session boundaries. The
// manager is long-running; a user's session variables must never survive into
// the next login. Apply snapshots the current environment, replaces it, and
// hands back a guard whose Restore reinstates the snapshot exactly.

var (
	ErrGuardOutstanding = errors.New("environment guard already outstanding")

	mu     sync.Mutex
	active bool
)

// Guard restores the environment captured by Apply. Restore is idempotent.
type Guard struct {
	snapshot []string
	done     bool
}

// Apply captures the complete current environment, clears it, and installs
// env (KEY=VALUE pairs). At most one guard may be outstanding; a second
// Apply before Restore is refused.
func Apply(env []string) (*Guard, error) {
	mu.Lock()
	defer mu.Unlock()
	if active {
		return nil, ErrGuardOutstanding
	}

	g := &Guard{snapshot: os.Environ()}
	os.Clearenv()
	setAll(env)
	active = true
	return g, nil
}

// Restore reinstates the captured snapshot. After it returns the process
// environment is identical to the moment Apply was called.
func (g *Guard) Restore() {
	if g == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if g.done {
		return
	}
	g.done = true
	os.Clearenv()
	setAll(g.snapshot)
	active = false
}

func setAll(env []string) {
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		_ = os.Setenv(k, v)
	}
}
