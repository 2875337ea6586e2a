//go:build linux

package vt

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/hnrobert/vtlogin/internal/logger"
)

// Package vt switches the active virtual terminal through the console
// device. Only graphical sessions need it; a shell session runs on whatever
// VT the manager already owns.

var consoleDevices = []string{"/dev/tty0", "/dev/console"}

var ErrNoConsole = errors.New("no console device available")

// ioctl request numbers from <linux/vt.h>; x/sys/unix does not define them.
const (
	VT_GETSTATE   = 0x5603
	VT_ACTIVATE   = 0x5606
	VT_WAITACTIVE = 0x5607
)

// vtState mirrors struct vt_stat from <linux/vt.h>.
type vtState struct {
	Active uint16
	Signal uint16
	State  uint16
}

// Previous remembers the VT that was active before a switch so Restore can
// reactivate it.
type Previous struct {
	number int
}

func (p Previous) Number() int { return p.number }

// Activate switches the console to VT n and waits for the switch to
// complete. It returns the previously active VT.
func Activate(n int) (Previous, error) {
	f, err := openConsole()
	if err != nil {
		return Previous{}, err
	}
	defer f.Close()

	prev, err := activeVT(f)
	if err != nil {
		return Previous{}, fmt.Errorf("query active vt: %w", err)
	}

	logger.Info("Switching to tty %d", n)
	if err := unix.IoctlSetInt(int(f.Fd()), VT_ACTIVATE, n); err != nil {
		return Previous{}, fmt.Errorf("activate vt %d: %w", n, err)
	}
	if err := unix.IoctlSetInt(int(f.Fd()), VT_WAITACTIVE, n); err != nil {
		return Previous{}, fmt.Errorf("wait for vt %d: %w", n, err)
	}
	return Previous{number: prev}, nil
}

// Restore reactivates the VT recorded by Activate. Failures are logged; by
// the time Restore runs the session is already over and there is nothing
// better to do.
func Restore(p Previous) {
	if p.number == 0 {
		return
	}
	f, err := openConsole()
	if err != nil {
		logger.Error("Cannot restore tty %d: %v", p.number, err)
		return
	}
	defer f.Close()

	if err := unix.IoctlSetInt(int(f.Fd()), VT_ACTIVATE, p.number); err != nil {
		logger.Error("Failed to restore tty %d: %v", p.number, err)
		return
	}
	_ = unix.IoctlSetInt(int(f.Fd()), VT_WAITACTIVE, p.number)
}

func openConsole() (*os.File, error) {
	for _, dev := range consoleDevices {
		f, err := os.OpenFile(dev, os.O_WRONLY, 0)
		if err == nil {
			return f, nil
		}
	}
	return nil, ErrNoConsole
}

func activeVT(f *os.File) (int, error) {
	var st vtState
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), VT_GETSTATE, uintptr(unsafe.Pointer(&st)))
	if errno != 0 {
		return 0, errno
	}
	return int(st.Active), nil
}
