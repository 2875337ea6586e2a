//go:build linux

package auth

import (
	"errors"

	"github.com/msteinert/pam/v2"

	"github.com/hnrobert/vtlogin/internal/logger"
)

var errExtraPrompt = errors.New("module requested input beyond the supplied credentials")

// conv answers the module stack's prompts from the submitted credentials.
// The exchange is non-interactive: one username, one secret. A module that
// asks for the secret twice gets an error, not a retry.
type conv struct {
	username   string
	secret     []byte
	secretUsed bool
}

func newConv(username string, secret []byte) *conv {
	return &conv{username: username, secret: secret}
}

func (c *conv) answer(style pam.Style, msg string) (string, error) {
	switch style {
	case pam.PromptEchoOn:
		return c.username, nil
	case pam.PromptEchoOff:
		if c.secretUsed {
			return "", errExtraPrompt
		}
		c.secretUsed = true
		return string(c.secret), nil
	case pam.ErrorMsg:
		logger.Warn("PAM: %s", msg)
		return "", nil
	case pam.TextInfo:
		logger.Info("PAM: %s", msg)
		return "", nil
	}
	return "", errExtraPrompt
}
