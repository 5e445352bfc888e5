// Package token reads and issues app-scoped bearer tokens.
//
// ExpiryClaim and Expired decode a token's payload WITHOUT verifying its
// signature. They exist so a client can skip requests that are certain to be
// rejected; they are not a security boundary. Every server receiving an app
// token must verify it on every request.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed reports a token whose structure cannot be decoded.
var ErrMalformed = errors.New("malformed token")

var parser = jwt.NewParser()

// ExpiryClaim returns the token's exp claim. A token without an exp claim
// returns nil and no error.
func ExpiryClaim(raw string) (*time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: exp claim: %v", ErrMalformed, err)
	}
	if exp == nil {
		return nil, nil
	}
	return &exp.Time, nil
}

// Expired reports whether the exp claim is at or before now. Tokens without
// an exp claim are not expired.
func Expired(raw string, now time.Time) (bool, error) {
	exp, err := ExpiryClaim(raw)
	if err != nil {
		return false, err
	}
	if exp == nil {
		return false, nil
	}
	return !exp.After(now), nil
}
