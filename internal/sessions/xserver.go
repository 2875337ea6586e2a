//go:build linux

package sessions

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/hnrobert/vtlogin/internal/logger"
)

const (
	xServerBinary    = "/usr/bin/X"
	xReadyTimeout    = 10 * time.Second
	xReadyPollPeriod = 100 * time.Millisecond
)

// xServer supervises the display server an X11 session runs on. It stays
// root-owned; only the client script drops to the session user.
type xServer struct {
	cmd *exec.Cmd
}

// startXServer launches the X server on the configured display and VT and
// waits for its listening socket to appear.
func startXServer(display string, vtN int) (*xServer, error) {
	cmd := exec.Command(xServerBinary, display, fmt.Sprintf("vt%d", vtN))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	logger.Info("Started X server on display %s (pid %d)", display, cmd.Process.Pid)

	if err := waitForDisplay(display); err != nil {
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		_ = cmd.Wait()
		return nil, err
	}
	return &xServer{cmd: cmd}, nil
}

func (x *xServer) stop() error {
	logger.Info("Stopping X server (pid %d)", x.cmd.Process.Pid)
	if err := syscall.Kill(-x.cmd.Process.Pid, syscall.SIGTERM); err != nil {
		return err
	}
	if err := x.cmd.Wait(); err != nil {
		// X exits nonzero on SIGTERM; only report wait plumbing failures.
		if _, ok := err.(*exec.ExitError); !ok {
			return err
		}
	}
	return nil
}

// waitForDisplay polls for the display's unix socket, e.g. /tmp/.X11-unix/X1
// for display ":1".
func waitForDisplay(display string) error {
	socket := "/tmp/.X11-unix/X" + strings.TrimPrefix(display, ":")
	deadline := time.Now().Add(xReadyTimeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(socket); err == nil {
			return nil
		}
		time.Sleep(xReadyPollPeriod)
	}
	return fmt.Errorf("X server socket %s did not appear within %s", socket, xReadyTimeout)
}
