//go:build linux

package sessions

import (
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnrobert/vtlogin/internal/auth"
	"github.com/hnrobert/vtlogin/internal/config"
	"github.com/hnrobert/vtlogin/internal/utmpx"
)

func testLauncher(t *testing.T) *Launcher {
	t.Helper()
	return NewLauncher(config.Default(), utmpx.NewRecorder(filepath.Join(t.TempDir(), "utmp")))
}

func TestSessionCommandShell(t *testing.T) {
	l := testLauncher(t)
	actx := &auth.Context{
		Username: "alice",
		UID:      1000,
		GID:      1000,
		Groups:   []uint32{10, 44},
		Home:     t.TempDir(),
		Shell:    "/bin/bash",
	}

	cmd, err := l.sessionCommand(actx, Choice{Kind: KindShell}, []string{"HOME=" + actx.Home})
	require.NoError(t, err)

	assert.Equal(t, "/bin/bash", cmd.Path)
	assert.Equal(t, []string{"-bash"}, cmd.Args, "login shell convention")
	assert.Equal(t, actx.Home, cmd.Dir)

	require.NotNil(t, cmd.SysProcAttr)
	require.NotNil(t, cmd.SysProcAttr.Credential)
	assert.True(t, cmd.SysProcAttr.Setsid)
	assert.Equal(t, uint32(1000), cmd.SysProcAttr.Credential.Uid)
	assert.Equal(t, uint32(1000), cmd.SysProcAttr.Credential.Gid)
	assert.Equal(t, []uint32{10, 44}, cmd.SysProcAttr.Credential.Groups)
}

func TestSessionCommandHomeFallback(t *testing.T) {
	l := testLauncher(t)
	actx := &auth.Context{
		Username: "alice",
		Home:     filepath.Join(t.TempDir(), "does-not-exist"),
		Shell:    "/bin/sh",
	}

	cmd, err := l.sessionCommand(actx, Choice{Kind: KindShell}, nil)
	require.NoError(t, err)
	assert.Equal(t, "/", cmd.Dir, "unreachable home falls back to /")
}

func TestSessionCommandMissingScript(t *testing.T) {
	l := testLauncher(t)
	actx := &auth.Context{Username: "alice", Home: t.TempDir(), Shell: "/bin/sh"}
	missing := filepath.Join(t.TempDir(), "nope.sh")

	_, err := l.sessionCommand(actx, Choice{Kind: KindX11, Name: "i3", Script: missing}, nil)
	assert.ErrorIs(t, err, ErrTransition)
}

func TestSessionCommandNoShell(t *testing.T) {
	l := testLauncher(t)
	actx := &auth.Context{Username: "nobody", Home: "/"}

	_, err := l.sessionCommand(actx, Choice{Kind: KindShell}, nil)
	assert.ErrorIs(t, err, ErrTransition)
}

func TestExitStatus(t *testing.T) {
	assert.Equal(t, 3, exitStatus(exec.Command("/bin/sh", "-c", "exit 3").Run()))
	assert.Equal(t, 0, exitStatus(exec.Command("/bin/sh", "-c", "exit 0").Run()))
	assert.Equal(t, 143, exitStatus(exec.Command("/bin/sh", "-c", "kill -TERM $$").Run()))
}
