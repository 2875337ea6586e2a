//go:build linux

package auth

import (
	"errors"
	"fmt"
	"sort"

	"github.com/msteinert/pam/v2"

	"github.com/hnrobert/vtlogin/internal/logger"
	"github.com/hnrobert/vtlogin/internal/userdb"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExpired     = errors.New("account expired")
	ErrPasswordExpired    = errors.New("password expired")
	ErrAccessRestricted   = errors.New("access restricted")
	ErrModuleFailure      = errors.New("authentication module failure")
)

// Context is the outcome of a successful authentication. It owns an open PAM
// session; Close releases the session credentials and ends the transaction.
// The session launcher holds the only reference after handoff.
type Context struct {
	Username string
	UID      uint32
	GID      uint32
	Groups   []uint32
	Home     string
	Shell    string

	// Env holds the PAM environment as KEY=VALUE pairs, key-sorted.
	Env []string

	tx     *pam.Transaction
	closed bool
}

// Close unwinds the PAM side of the session. Safe to call more than once;
// only the first call does work.
func (c *Context) Close() error {
	if c == nil || c.closed {
		return nil
	}
	c.closed = true
	if c.tx == nil {
		return nil
	}
	var errs []error
	if err := c.tx.CloseSession(pam.Silent); err != nil {
		errs = append(errs, fmt.Errorf("close session: %w", err))
	}
	if err := c.tx.SetCred(pam.Silent | pam.DeleteCred); err != nil {
		errs = append(errs, fmt.Errorf("delete cred: %w", err))
	}
	if err := c.tx.End(); err != nil {
		errs = append(errs, fmt.Errorf("end transaction: %w", err))
	}
	c.tx = nil
	return errors.Join(errs...)
}

// Engine authenticates local users against the host PAM stack. It is
// stateless between calls; each Authenticate owns one transaction.
type Engine struct {
	service string
	db      *userdb.DB
}

func New(service string, db *userdb.DB) *Engine {
	return &Engine{service: service, db: db}
}

// Authenticate validates the credentials and, on success, establishes
// session credentials and returns a Context the caller must Close.
func (e *Engine) Authenticate(username string, secret []byte) (*Context, error) {
	conv := newConv(username, secret)

	tx, err := pam.StartFunc(e.service, username, conv.answer)
	if err != nil {
		return nil, fmt.Errorf("%w: start: %v", ErrModuleFailure, err)
	}

	ctx, err := e.establish(tx, username)
	if err != nil {
		if endErr := tx.End(); endErr != nil {
			logger.Warn("Failed to end PAM transaction after error: %v", endErr)
		}
		return nil, err
	}
	return ctx, nil
}

func (e *Engine) establish(tx *pam.Transaction, username string) (*Context, error) {
	if err := tx.Authenticate(pam.DisallowNullAuthtok); err != nil {
		return nil, mapError("authenticate", err)
	}
	if err := tx.AcctMgmt(pam.Silent); err != nil {
		return nil, mapError("account management", err)
	}
	if err := tx.SetCred(pam.Silent | pam.EstablishCred); err != nil {
		return nil, mapError("establish cred", err)
	}
	if err := tx.OpenSession(pam.Silent); err != nil {
		// Unwind the established credentials before reporting.
		_ = tx.SetCred(pam.Silent | pam.DeleteCred)
		return nil, mapError("open session", err)
	}

	entry, err := e.db.Lookup(username)
	if err != nil {
		_ = tx.CloseSession(pam.Silent)
		_ = tx.SetCred(pam.Silent | pam.DeleteCred)
		return nil, fmt.Errorf("%w: resolve user: %v", ErrModuleFailure, err)
	}
	groups, err := e.db.Groups(username, entry.GID)
	if err != nil {
		logger.Warn("Failed to read supplementary groups for %s: %v", username, err)
		groups = nil
	}

	env, err := tx.GetEnvList()
	if err != nil {
		logger.Warn("Failed to read PAM environment: %v", err)
		env = nil
	}

	return &Context{
		Username: entry.Name,
		UID:      entry.UID,
		GID:      entry.GID,
		Groups:   groups,
		Home:     entry.Home,
		Shell:    entry.Shell,
		Env:      flattenEnv(env),
		tx:       tx,
	}, nil
}

// mapError folds the PAM return value into the engine's error taxonomy.
func mapError(step string, err error) error {
	var reason error
	switch {
	case errors.Is(err, pam.ErrAuth),
		errors.Is(err, pam.ErrUserUnknown),
		errors.Is(err, pam.ErrCredInsufficient),
		errors.Is(err, pam.ErrMaxtries):
		reason = ErrInvalidCredentials
	case errors.Is(err, pam.ErrAcctExpired):
		reason = ErrAccountExpired
	case errors.Is(err, pam.ErrNewAuthtokReqd),
		errors.Is(err, pam.ErrCredExpired),
		errors.Is(err, pam.ErrAuthtokExpired):
		reason = ErrPasswordExpired
	case errors.Is(err, pam.ErrPermDenied):
		reason = ErrAccessRestricted
	default:
		reason = ErrModuleFailure
	}
	return fmt.Errorf("%w: %s: %v", reason, step, err)
}

func flattenEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// Humanize maps an authentication error onto the line shown to the user.
func Humanize(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username or password."
	case errors.Is(err, ErrAccountExpired):
		return "This account has expired."
	case errors.Is(err, ErrPasswordExpired):
		return "Your password has expired and must be changed."
	case errors.Is(err, ErrAccessRestricted):
		return "Access is not permitted at this time."
	default:
		return fmt.Sprintf("Authentication failed: %v", err)
	}
}
