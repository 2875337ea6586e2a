package sessions

import (
	"fmt"
	"os"
	"strings"

	"github.com/hnrobert/vtlogin/internal/auth"
	"github.com/hnrobert/vtlogin/internal/config"
)

const defaultPath = "/usr/local/sbin:/usr/local/bin:/usr/bin:/usr/sbin:/bin:/sbin"

// envSet is an insertion-ordered KEY=VALUE set. Later Set calls override
// earlier ones without disturbing the original position.
type envSet struct {
	keys   []string
	values map[string]string
}

func newEnvSet() *envSet {
	return &envSet{values: make(map[string]string)}
}

func (s *envSet) Set(key, value string) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

func (s *envSet) SetPair(kv string) {
	k, v, ok := strings.Cut(kv, "=")
	if !ok || k == "" {
		return
	}
	s.Set(k, v)
}

func (s *envSet) List() []string {
	out := make([]string, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, k+"="+s.values[k])
	}
	return out
}

// BuildEnv assembles the complete environment for a session child: a minimal
// baseline, then the PAM environment, then the session-type variables. The
// result fully replaces the manager's own environment; nothing ambient leaks
// in except TERM, which the child needs for the terminal it inherits.
func BuildEnv(actx *auth.Context, cfg config.Config, choice Choice) []string {
	s := newEnvSet()

	term := os.Getenv("TERM")
	if term == "" {
		term = "linux"
	}
	s.Set("HOME", actx.Home)
	s.Set("USER", actx.Username)
	s.Set("LOGNAME", actx.Username)
	s.Set("SHELL", actx.Shell)
	s.Set("PATH", defaultPath)
	s.Set("TERM", term)

	for _, kv := range actx.Env {
		s.SetPair(kv)
	}

	s.Set("XDG_RUNTIME_DIR", fmt.Sprintf("/run/user/%d", actx.UID))
	s.Set("XDG_SESSION_CLASS", "user")
	s.Set("XDG_SEAT", "seat0")
	s.Set("XDG_VTNR", fmt.Sprintf("%d", cfg.TTY))
	switch choice.Kind {
	case KindX11:
		s.Set("XDG_SESSION_TYPE", "x11")
		s.Set("DISPLAY", cfg.XDisplay)
	case KindWayland:
		s.Set("XDG_SESSION_TYPE", "wayland")
	case KindShell:
		s.Set("XDG_SESSION_TYPE", "tty")
	}

	return s.List()
}
