//go:build linux

package auth

import (
	"errors"
	"testing"

	"github.com/msteinert/pam/v2"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		pamErr error
		want   error
	}{
		{pam.ErrAuth, ErrInvalidCredentials},
		{pam.ErrUserUnknown, ErrInvalidCredentials},
		{pam.ErrCredInsufficient, ErrInvalidCredentials},
		{pam.ErrMaxtries, ErrInvalidCredentials},
		{pam.ErrAcctExpired, ErrAccountExpired},
		{pam.ErrNewAuthtokReqd, ErrPasswordExpired},
		{pam.ErrCredExpired, ErrPasswordExpired},
		{pam.ErrAuthtokExpired, ErrPasswordExpired},
		{pam.ErrPermDenied, ErrAccessRestricted},
		{pam.ErrSystem, ErrModuleFailure},
		{pam.ErrAbort, ErrModuleFailure},
		{errors.New("something else"), ErrModuleFailure},
	}
	for _, c := range cases {
		got := mapError("step", c.pamErr)
		if !errors.Is(got, c.want) {
			t.Errorf("mapError(%v) = %v, want %v", c.pamErr, got, c.want)
		}
	}
}

func TestConvAnswersPrompts(t *testing.T) {
	c := newConv("alice", []byte("hunter2"))

	if got, err := c.answer(pam.PromptEchoOn, "login:"); err != nil || got != "alice" {
		t.Errorf("echo-on prompt: got %q, %v", got, err)
	}
	if got, err := c.answer(pam.PromptEchoOff, "Password:"); err != nil || got != "hunter2" {
		t.Errorf("echo-off prompt: got %q, %v", got, err)
	}
}

func TestConvRejectsSecondSecretPrompt(t *testing.T) {
	c := newConv("alice", []byte("hunter2"))

	if _, err := c.answer(pam.PromptEchoOff, "Password:"); err != nil {
		t.Fatalf("first secret prompt: %v", err)
	}
	// The exchange is non-interactive: one secret, no retries.
	if _, err := c.answer(pam.PromptEchoOff, "Password again:"); err == nil {
		t.Error("second secret prompt was answered")
	}
}

func TestConvIgnoresMessages(t *testing.T) {
	c := newConv("alice", []byte("hunter2"))

	if _, err := c.answer(pam.ErrorMsg, "module unhappy"); err != nil {
		t.Errorf("error message: %v", err)
	}
	if _, err := c.answer(pam.TextInfo, "module info"); err != nil {
		t.Errorf("info message: %v", err)
	}
	// Messages must not consume the secret.
	if got, err := c.answer(pam.PromptEchoOff, "Password:"); err != nil || got != "hunter2" {
		t.Errorf("secret consumed by messages: got %q, %v", got, err)
	}
}

func TestContextCloseIdempotent(t *testing.T) {
	c := &Context{Username: "alice"}
	if err := c.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	var nilCtx *Context
	if err := nilCtx.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}

func TestFlattenEnvSorted(t *testing.T) {
	env := flattenEnv(map[string]string{"B": "2", "A": "1", "C": "3"})
	want := []string{"A=1", "B=2", "C=3"}
	if len(env) != len(want) {
		t.Fatalf("got %v", env)
	}
	for i := range want {
		if env[i] != want[i] {
			t.Fatalf("got %v, want %v", env, want)
		}
	}
	if flattenEnv(nil) != nil {
		t.Error("flattenEnv(nil) should be nil")
	}
}
