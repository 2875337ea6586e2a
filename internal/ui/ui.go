package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/hnrobert/vtlogin/internal/auth"
	"github.com/hnrobert/vtlogin/internal/cache"
	"github.com/hnrobert/vtlogin/internal/logger"
	"github.com/hnrobert/vtlogin/internal/sessions"
)

// Package ui is the interactive front end: it collects username, password,
// and session choice on the controlling terminal and exchanges requests and
// outcomes with the worker through the orchestrator. It owns no privileged
// state and never blocks on anything but its own terminal input.

// MaxAttempts is the consecutive-failure budget before the front end gives
// up and lets the service supervisor restart the manager.
const MaxAttempts = 3

var ErrTooManyAttempts = errors.New("too many failed login attempts")

// worker is the slice of the orchestrator the front end talks to.
type worker interface {
	Submit(sessions.Request) error
	Outcomes() <-chan sessions.Outcome
}

type UI struct {
	orc     worker
	choices []sessions.Choice
	prefill cache.Entry

	in           *bufio.Reader
	out          io.Writer
	readPassword func() ([]byte, error)
}

func New(orc *sessions.Orchestrator, choices []sessions.Choice, prefill cache.Entry) *UI {
	return &UI{
		orc:     orc,
		choices: choices,
		prefill: prefill,
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		readPassword: func() ([]byte, error) {
			return term.ReadPassword(int(os.Stdin.Fd()))
		},
	}
}

// Run loops over login rounds until the terminal input ends or the attempt
// budget is exhausted. Each completed session leads back to a fresh prompt.
func (u *UI) Run() error {
	if len(u.choices) == 0 {
		return fmt.Errorf("no session environments available")
	}

	failures := 0
	for {
		req, err := u.collect()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := u.orc.Submit(req); err != nil {
			// Single-worker invariant: collect only returns after the
			// previous round's terminal outcome, so this is unexpected.
			fmt.Fprintf(u.out, "%v\n", err)
			continue
		}

		switch terminal := u.awaitOutcome(); terminal.Kind {
		case sessions.OutcomeAuthFailed:
			failures++
			if failures >= MaxAttempts {
				logger.Warn("Giving up after %d failed attempts", failures)
				return ErrTooManyAttempts
			}
		case sessions.OutcomeEnded:
			// Only a session that actually ran updates the next prompt's
			// defaults; a spawn failure must not look like a good choice.
			failures = 0
			u.prefill = cache.Entry{
				LastUsername:    req.Username,
				LastEnvironment: req.Choice.Name,
			}
		default:
			failures = 0
		}
	}
}

// collect prompts for one complete login request.
func (u *UI) collect() (sessions.Request, error) {
	fmt.Fprintln(u.out)

	choice, err := u.selectChoice()
	if err != nil {
		return sessions.Request{}, err
	}

	username, err := u.prompt("Username", u.prefill.LastUsername)
	if err != nil {
		return sessions.Request{}, err
	}

	fmt.Fprint(u.out, "Password: ")
	secret, err := u.readPassword()
	fmt.Fprintln(u.out)
	if err != nil {
		return sessions.Request{}, err
	}

	return sessions.Request{Username: username, Secret: secret, Choice: choice}, nil
}

func (u *UI) selectChoice() (sessions.Choice, error) {
	def := 0
	for i, c := range u.choices {
		if c.Name == u.prefill.LastEnvironment {
			def = i
		}
	}

	fmt.Fprintln(u.out, "Sessions:")
	for i, c := range u.choices {
		fmt.Fprintf(u.out, "  %d) %s (%s)\n", i+1, c.Name, c.Kind)
	}
	answer, err := u.prompt("Session", strconv.Itoa(def+1))
	if err != nil {
		return sessions.Choice{}, err
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(u.choices) {
		fmt.Fprintf(u.out, "Invalid selection %q, using %s\n", answer, u.choices[def].Name)
		return u.choices[def], nil
	}
	return u.choices[n-1], nil
}

func (u *UI) prompt(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(u.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(u.out, "%s: ", label)
	}
	line, err := u.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

// awaitOutcome consumes outcomes for the in-flight request until the
// terminal one arrives, rendering status lines as they come.
func (u *UI) awaitOutcome() sessions.Outcome {
	fmt.Fprintln(u.out, "Verifying credentials...")
	for out := range u.orc.Outcomes() {
		switch out.Kind {
		case sessions.OutcomeStarted:
			fmt.Fprintln(u.out, "Authentication successful. Logging in...")
		case sessions.OutcomeAuthFailed:
			fmt.Fprintln(u.out, auth.Humanize(out.Reason))
			return out
		case sessions.OutcomeEnded:
			fmt.Fprintf(u.out, "Session ended (status %d).\n", out.ExitStatus)
			return out
		case sessions.OutcomeInternalError:
			fmt.Fprintf(u.out, "Login failed: %v\n", out.Reason)
			return out
		}
	}
	return sessions.Outcome{Kind: sessions.OutcomeInternalError, Reason: errors.New("worker stopped")}
}
