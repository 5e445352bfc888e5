package reauth

import (
	"context"
	"errors"

	"github.com/jrsteele09/go-app-lock/internal/metrics"
	"github.com/rs/zerolog/log"
)

// GenericMessage is shown for failures that carry no user-facing message.
const GenericMessage = "Could not unlock the app. Please try again."

// Authenticator exchanges credentials for an app-scoped token.
type Authenticator interface {
	Exchange(ctx context.Context, appID int, creds Credentials) (string, error)
}

// Error is a failure safe to show to the user.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage returns the text to show for err. Errors that are not an
// *Error get GenericMessage so protocol details never reach the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var rerr *Error
	if errors.As(err, &rerr) && rerr.Message != "" {
		return rerr.Message
	}
	return GenericMessage
}

// Flow validates credentials and exchanges them.
type Flow struct {
	Authenticator Authenticator
	MFAEnabled    bool
}

// Run returns the token on success. Every failure is an *Error.
func (f Flow) Run(ctx context.Context, appID int, creds Credentials) (string, error) {
	mode := creds.Mode()
	if err := creds.Validate(f.MFAEnabled); err != nil {
		metrics.ReauthFailures.WithLabelValues(modeLabel(mode)).Inc()
		return "", &Error{Message: err.Error(), Err: err}
	}
	if f.Authenticator == nil {
		return "", &Error{Message: GenericMessage, Err: ErrNoAuthenticator}
	}

	tok, err := f.Authenticator.Exchange(ctx, appID, creds)
	if err == nil && tok == "" {
		err = errors.New("empty token in response")
	}
	if err != nil {
		metrics.ReauthFailures.WithLabelValues(modeLabel(mode)).Inc()
		log.Warn().Err(err).Int("app_id", appID).Str("mode", string(mode)).Msg("re-authentication failed")
		return "", &Error{Message: UserMessage(err), Err: err}
	}
	return tok, nil
}

func modeLabel(m Mode) string {
	if m == "" {
		return "none"
	}
	return string(m)
}
