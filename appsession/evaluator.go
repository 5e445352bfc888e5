package appsession

import (
	"time"

	"github.com/jrsteele09/go-app-lock/token"
)

const (
	// DefaultTimeout is the sliding inactivity window for an app session.
	DefaultTimeout = 15 * time.Minute

	// DefaultClockSkew is how far ahead of now an activity time may lie.
	DefaultClockSkew = time.Minute
)

// Verdict is the outcome of evaluating a session record.
type Verdict string

const (
	Valid          Verdict = "valid"
	Missing        Verdict = "missing"
	NoActivity     Verdict = "no_activity"
	Idle           Verdict = "idle"
	FutureActivity Verdict = "future_activity"
	TokenMalformed Verdict = "token_malformed"
	TokenExpired   Verdict = "token_expired"
)

// Evaluator decides whether a record still grants access.
type Evaluator struct {
	Timeout time.Duration

	// RequireExpiry rejects tokens that carry no exp claim.
	RequireExpiry bool

	// ClockSkew tolerates activity written by a clock running ahead.
	// Zero means DefaultClockSkew.
	ClockSkew time.Duration
}

func NewEvaluator() Evaluator {
	return Evaluator{Timeout: DefaultTimeout, ClockSkew: DefaultClockSkew}
}

// Evaluate applies the rules in order: the record must exist with a non-empty
// token, have an activity timestamp no older than Timeout and no further
// ahead than ClockSkew, and carry a token
// whose exp claim (when present) is after now.
func (e Evaluator) Evaluate(rec *Record, now time.Time) Verdict {
	if rec == nil || rec.Token == "" {
		return Missing
	}
	if rec.LastActivity.IsZero() {
		return NoActivity
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if now.Sub(rec.LastActivity) > timeout {
		return Idle
	}
	if rec.LastActivity.Sub(now) > e.skew() {
		return FutureActivity
	}

	exp, err := token.ExpiryClaim(rec.Token)
	if err != nil {
		return TokenMalformed
	}
	if exp == nil {
		if e.RequireExpiry {
			return TokenExpired
		}
		return Valid
	}
	if !exp.After(now) {
		return TokenExpired
	}
	return Valid
}

func (e Evaluator) skew() time.Duration {
	if e.ClockSkew <= 0 {
		return DefaultClockSkew
	}
	return e.ClockSkew
}

func (e Evaluator) IsValid(rec *Record, now time.Time) bool {
	return e.Evaluate(rec, now) == Valid
}
