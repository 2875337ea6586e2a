package sessions

import (
	"sync/atomic"
	"time"

	"github.com/hnrobert/vtlogin/internal/auth"
	"github.com/hnrobert/vtlogin/internal/cache"
	"github.com/hnrobert/vtlogin/internal/logger"
)

// Orchestrator is the concurrency boundary between the interactive front end
// and the privileged worker. One worker goroutine owns the auth engine, the
// launcher, and all privileged state; the front end talks to it only through
// Submit and the outcome channel. A request submitted while another is in
// flight is rejected with ErrBusy.

type authenticator interface {
	Authenticate(username string, secret []byte) (*auth.Context, error)
}

type launcher interface {
	Launch(actx *auth.Context, choice Choice, started func()) Outcome
	Terminate()
	Kill()
}

type Orchestrator struct {
	engine   authenticator
	launcher launcher
	cache    *cache.Store

	reqCh chan Request
	outCh chan Outcome
	busy  atomic.Bool
}

func NewOrchestrator(engine authenticator, l launcher, c *cache.Store) *Orchestrator {
	o := &Orchestrator{
		engine:   engine,
		launcher: l,
		cache:    c,
		reqCh:    make(chan Request, 1),
		// Buffered for the started notification preceding the terminal
		// outcome; the worker never blocks on a slow front end.
		outCh: make(chan Outcome, 2),
	}
	go o.work()
	return o
}

// Submit hands a login request to the worker. It never blocks.
func (o *Orchestrator) Submit(req Request) error {
	if !o.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	o.reqCh <- req
	return nil
}

// Outcomes delivers the started notification and exactly one terminal
// outcome per accepted request.
func (o *Orchestrator) Outcomes() <-chan Outcome {
	return o.outCh
}

// Terminate forwards a shutdown signal to the active session, if any, so the
// launcher's unwind path runs.
func (o *Orchestrator) Terminate() {
	o.launcher.Terminate()
}

const idlePollPeriod = 25 * time.Millisecond

// Shutdown ends the active session, if any, and waits for the launcher's
// unwind to finish. A child that ignores SIGTERM past the timeout gets its
// process group killed and the unwind is awaited once more. Returns false
// only if the worker is still busy after both rounds; every unwind step that
// can run has run by the time Shutdown returns true.
func (o *Orchestrator) Shutdown(timeout time.Duration) bool {
	o.launcher.Terminate()
	if o.waitIdle(timeout) {
		return true
	}
	logger.Warn("Session child did not exit within %s; killing it", timeout)
	o.launcher.Kill()
	return o.waitIdle(timeout)
}

// waitIdle waits for the worker to finish its current request.
func (o *Orchestrator) waitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !o.busy.Load() {
			return true
		}
		time.Sleep(idlePollPeriod)
	}
	return !o.busy.Load()
}

// Close stops the worker once the current request, if any, completes.
func (o *Orchestrator) Close() {
	close(o.reqCh)
}

func (o *Orchestrator) work() {
	for req := range o.reqCh {
		o.handle(req)
		o.busy.Store(false)
	}
}

func (o *Orchestrator) handle(req Request) {
	actx, err := o.engine.Authenticate(req.Username, req.Secret)
	wipe(req.Secret)
	if err != nil {
		logger.Warn("Authentication failed for %q: %v", req.Username, err)
		o.outCh <- Outcome{Kind: OutcomeAuthFailed, Reason: err}
		return
	}

	started := func() {
		o.cache.Store(cache.Entry{
			LastUsername:    req.Username,
			LastEnvironment: req.Choice.Name,
		})
		o.outCh <- Outcome{Kind: OutcomeStarted}
	}
	o.outCh <- o.launcher.Launch(actx, req.Choice, started)
}

// wipe overwrites the secret in place as soon as the attempt is decided.
func wipe(secret []byte) {
	for i := range secret {
		secret[i] = 0
	}
}
