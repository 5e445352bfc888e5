// Package reauth exchanges a user's password or MFA code for an app-scoped
// token.
package reauth

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

const MFACodeLength = 6

type Mode string

const (
	ModePassword Mode = "password"
	ModeMFA      Mode = "mfa"
)

var (
	ErrNoCredentials   = errors.New("enter your password or verification code")
	ErrBothCredentials = errors.New("enter either a password or a verification code, not both")
	ErrInvalidMFACode  = errors.New("verification code must be 6 digits")
	ErrMFAUnavailable  = errors.New("verification codes are not enabled for this account")
	ErrNoAuthenticator = errors.New("no authenticator configured")
)

// Credentials carries exactly one of a password or an MFA code.
type Credentials struct {
	Password string
	MFACode  string
}

func Password(p string) Credentials {
	return Credentials{Password: p}
}

// MFA sanitizes code before storing it.
func MFA(code string) Credentials {
	return Credentials{MFACode: SanitizeMFACode(code)}
}

// SanitizeMFACode strips everything but ASCII digits, so "123 456" and
// "123-456" both become "123456".
func SanitizeMFACode(code string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return -1
		}
		return r
	}, code)
}

// hasPassword treats a whitespace-only password as absent.
func (c Credentials) hasPassword() bool {
	return strings.TrimSpace(c.Password) != ""
}

// Mode returns the credential mode, or "" when neither or both are set.
func (c Credentials) Mode() Mode {
	switch {
	case c.hasPassword() && c.MFACode == "":
		return ModePassword
	case c.MFACode != "" && !c.hasPassword():
		return ModeMFA
	default:
		return ""
	}
}

// Validate checks the credentials locally before any network call.
func (c Credentials) Validate(mfaEnabled bool) error {
	if !c.hasPassword() && c.MFACode == "" {
		return ErrNoCredentials
	}
	if c.hasPassword() && c.MFACode != "" {
		return ErrBothCredentials
	}
	if c.MFACode != "" {
		if !mfaEnabled {
			return ErrMFAUnavailable
		}
		if len(c.MFACode) != MFACodeLength || SanitizeMFACode(c.MFACode) != c.MFACode {
			return ErrInvalidMFACode
		}
	}
	return nil
}
