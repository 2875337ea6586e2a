package ui

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnrobert/vtlogin/internal/auth"
	"github.com/hnrobert/vtlogin/internal/cache"
	"github.com/hnrobert/vtlogin/internal/sessions"
)

// scriptedWorker plays back one batch of outcomes per submitted request.
type scriptedWorker struct {
	script   [][]sessions.Outcome
	requests []sessions.Request
	outCh    chan sessions.Outcome
}

func newScriptedWorker(script ...[]sessions.Outcome) *scriptedWorker {
	return &scriptedWorker{script: script, outCh: make(chan sessions.Outcome, 8)}
}

func (w *scriptedWorker) Submit(req sessions.Request) error {
	w.requests = append(w.requests, req)
	if len(w.script) == 0 {
		return errors.New("unscripted request")
	}
	batch := w.script[0]
	w.script = w.script[1:]
	for _, out := range batch {
		w.outCh <- out
	}
	return nil
}

func (w *scriptedWorker) Outcomes() <-chan sessions.Outcome {
	return w.outCh
}

func testUI(w worker, input string, prefill cache.Entry) (*UI, *bytes.Buffer) {
	out := &bytes.Buffer{}
	u := &UI{
		orc:          w,
		choices:      []sessions.Choice{{Kind: sessions.KindShell, Name: "shell"}},
		prefill:      prefill,
		in:           bufio.NewReader(strings.NewReader(input)),
		out:          out,
		readPassword: func() ([]byte, error) { return []byte("pw"), nil },
	}
	return u, out
}

func TestPrefillUpdatedAfterEndedSession(t *testing.T) {
	w := newScriptedWorker([]sessions.Outcome{
		{Kind: sessions.OutcomeStarted},
		{Kind: sessions.OutcomeEnded, ExitStatus: 0},
	})
	u, _ := testUI(w, "1\nalice\n", cache.Entry{})

	require.NoError(t, u.Run())
	assert.Equal(t, "alice", u.prefill.LastUsername)
	assert.Equal(t, "shell", u.prefill.LastEnvironment)
}

func TestPrefillUntouchedOnInternalError(t *testing.T) {
	w := newScriptedWorker([]sessions.Outcome{
		{Kind: sessions.OutcomeInternalError, Reason: errors.New("fork failed")},
	})
	before := cache.Entry{LastUsername: "bob", LastEnvironment: "shell"}
	u, _ := testUI(w, "1\nalice\n", before)

	require.NoError(t, u.Run())
	assert.Equal(t, before, u.prefill, "a failed spawn must not become the next default")
}

func TestAttemptBudgetExhausted(t *testing.T) {
	failed := []sessions.Outcome{{Kind: sessions.OutcomeAuthFailed, Reason: auth.ErrInvalidCredentials}}
	w := newScriptedWorker(failed, failed, failed)
	u, out := testUI(w, strings.Repeat("1\nalice\n", MaxAttempts), cache.Entry{})

	err := u.Run()
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	assert.Len(t, w.requests, MaxAttempts)
	assert.Contains(t, out.String(), auth.Humanize(auth.ErrInvalidCredentials))
}

func TestAuthFailureBudgetResetsAfterSession(t *testing.T) {
	failed := []sessions.Outcome{{Kind: sessions.OutcomeAuthFailed, Reason: auth.ErrInvalidCredentials}}
	ended := []sessions.Outcome{
		{Kind: sessions.OutcomeStarted},
		{Kind: sessions.OutcomeEnded, ExitStatus: 0},
	}
	w := newScriptedWorker(failed, failed, ended, failed, failed)
	u, _ := testUI(w, strings.Repeat("1\nalice\n", 5), cache.Entry{})

	// Two failures, a full session, two more failures: the budget started
	// over after the session, so the run ends on input EOF, not the budget.
	require.NoError(t, u.Run())
	assert.Len(t, w.requests, 5)
}

func TestRunEndsCleanlyOnEOF(t *testing.T) {
	u, _ := testUI(newScriptedWorker(), "", cache.Entry{})
	assert.NoError(t, u.Run())
}

func TestRunRejectsEmptyChoiceList(t *testing.T) {
	u := &UI{orc: newScriptedWorker(), in: bufio.NewReader(strings.NewReader("")), out: io.Discard}
	assert.Error(t, u.Run())
}
