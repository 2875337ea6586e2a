//go:build linux

package sessions

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/hnrobert/vtlogin/internal/auth"
	"github.com/hnrobert/vtlogin/internal/config"
	"github.com/hnrobert/vtlogin/internal/envctl"
	"github.com/hnrobert/vtlogin/internal/ipc"
	"github.com/hnrobert/vtlogin/internal/logger"
	"github.com/hnrobert/vtlogin/internal/utmpx"
	"github.com/hnrobert/vtlogin/internal/vt"
)

// Launcher runs one authenticated session to completion: VT switch, child
// spawn under the user's credentials, accounting, supervision, and a strictly
// LIFO unwind of every side effect. It is owned by the worker goroutine; at
// most one session is active at a time.
type Launcher struct {
	cfg config.Config
	rec *utmpx.Recorder

	mu    sync.Mutex
	child *os.Process
}

func NewLauncher(cfg config.Config, rec *utmpx.Recorder) *Launcher {
	return &Launcher{cfg: cfg, rec: rec}
}

// Terminate kills the active session child, if any. The wait inside Launch
// then returns and the normal unwind path runs, so signal-driven shutdown
// tears down exactly like a regular logout.
func (l *Launcher) Terminate() {
	l.signal(syscall.SIGTERM)
}

// Kill is the escalation for a child that ignored Terminate.
func (l *Launcher) Kill() {
	l.signal(syscall.SIGKILL)
}

func (l *Launcher) signal(sig syscall.Signal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.child != nil {
		logger.Info("Sending %s to active session child %d", sig, l.child.Pid)
		_ = syscall.Kill(-l.child.Pid, sig)
	}
}

// Launch owns actx and closes it on every path. started is invoked once the
// session child is running.
func (l *Launcher) Launch(actx *auth.Context, choice Choice, started func()) Outcome {
	sessionID := uuid.NewString()
	logger.Info("Session %s: starting %s session %q for user %s", sessionID, choice.Kind, choice.Name, actx.Username)

	u := &unwind{}
	defer u.run()
	u.push("close pam session", actx.Close)

	graphical := choice.Kind != KindShell

	if graphical {
		prev, err := vt.Activate(l.cfg.TTY)
		if err != nil {
			return Outcome{Kind: OutcomeInternalError, Reason: fmt.Errorf("%w: %v", ErrTty, err)}
		}
		u.push("restore vt", func() error { vt.Restore(prev); return nil })
	}

	env := BuildEnv(actx, l.cfg, choice)
	guard, err := envctl.Apply(env)
	if err != nil {
		return Outcome{Kind: OutcomeInternalError, Reason: fmt.Errorf("%w: %v", ErrInternal, err)}
	}
	u.push("restore environment", func() error { guard.Restore(); return nil })

	var xsrv *xServer
	if choice.Kind == KindX11 {
		xsrv, err = startXServer(l.cfg.XDisplay, l.cfg.TTY)
		if err != nil {
			return Outcome{Kind: OutcomeInternalError, Reason: fmt.Errorf("%w: start X server: %v", ErrTransition, err)}
		}
		u.push("stop X server", xsrv.stop)
	}

	cmd, err := l.sessionCommand(actx, choice, env)
	if err != nil {
		return Outcome{Kind: OutcomeInternalError, Reason: err}
	}
	if err := cmd.Start(); err != nil {
		return Outcome{Kind: OutcomeInternalError, Reason: fmt.Errorf("%w: start session: %v", ErrTransition, err)}
	}
	l.setChild(cmd.Process)
	u.push("clear child handle", func() error { l.setChild(nil); return nil })

	started()

	line := fmt.Sprintf("tty%d", l.cfg.TTY)
	rec, err := l.rec.Register(cmd.Process.Pid, line, actx.Username, fmt.Sprintf("%d", l.cfg.TTY))
	if err != nil {
		// Accounting is best-effort; the login proceeds.
		logger.Warn("Session %s: utmp registration failed: %v", sessionID, err)
	}
	u.push("unregister utmp", func() error { return l.rec.Unregister(rec) })

	if graphical {
		if inbox, err := ipc.ListenInbox(ipc.DefaultInboxPath, int(actx.UID), int(actx.GID)); err != nil {
			logger.Warn("Session %s: logout socket unavailable: %v", sessionID, err)
		} else {
			u.push("close logout socket", func() error { inbox.Close(); return nil })
			go l.serveLogout(inbox, sessionID)
		}
	}

	waitErr := cmd.Wait()
	status := exitStatus(waitErr)
	logger.Info("Session %s: ended with status %d", sessionID, status)

	return Outcome{Kind: OutcomeEnded, ExitStatus: status}
}

func (l *Launcher) setChild(p *os.Process) {
	l.mu.Lock()
	l.child = p
	l.mu.Unlock()
}

// serveLogout ends the session when a logout request arrives on the inbox.
func (l *Launcher) serveLogout(inbox *ipc.Inbox, sessionID string) {
	err := inbox.Serve(func(req ipc.Request) (bool, error) {
		if req != ipc.ReqLogout {
			return false, nil
		}
		logger.Info("Session %s: logout requested", sessionID)
		if err := ipc.AckOutbox(ipc.DefaultOutboxPath); err != nil {
			logger.Warn("Session %s: cannot ack logout: %v", sessionID, err)
		}
		l.Terminate()
		return true, nil
	})
	if err != nil {
		logger.Warn("Session %s: logout socket error: %v", sessionID, err)
	}
}

// sessionCommand builds the child that hosts the privilege transition. The
// credential change happens entirely inside the child: group identity first,
// then user identity, applied by the kernel at exec. A failed start leaves
// the manager process untouched.
func (l *Launcher) sessionCommand(actx *auth.Context, choice Choice, env []string) (*exec.Cmd, error) {
	var cmd *exec.Cmd
	switch choice.Kind {
	case KindShell:
		if actx.Shell == "" {
			return nil, fmt.Errorf("%w: user %s has no shell", ErrTransition, actx.Username)
		}
		cmd = exec.Command(actx.Shell)
		// Login shell convention.
		cmd.Args = []string{"-" + filepath.Base(actx.Shell)}
	default:
		if _, err := os.Stat(choice.Script); err != nil {
			return nil, fmt.Errorf("%w: session script %s: %v", ErrTransition, choice.Script, err)
		}
		cmd = exec.Command("/bin/sh", choice.Script)
	}

	dir := actx.Home
	if _, err := os.Stat(dir); err != nil {
		logger.Warn("Home directory %s unavailable (%v); starting in /", dir, err)
		dir = "/"
	}

	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
		Credential: &syscall.Credential{
			Uid:    actx.UID,
			Gid:    actx.GID,
			Groups: actx.Groups,
		},
	}
	return cmd, nil
}

func exitStatus(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return exitErr.ExitCode()
	}
	logger.Error("Wait on session child failed: %v", waitErr)
	return 1
}
