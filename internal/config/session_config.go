package config

import "time"

type SessionConfig interface {
	GetActivityTimeout() time.Duration
	GetCheckInterval() time.Duration
	GetCoalesceInterval() time.Duration
	GetRequireTokenExpiry() bool
}

type Session struct{}

var _ SessionConfig = Session{}

// GetActivityTimeout is the sliding inactivity window after which an app re-locks.
func (Session) GetActivityTimeout() time.Duration {
	return GetDurationEnv("ACTIVITY_TIMEOUT", 15*time.Minute)
}

// GetCheckInterval is how often the open app's session is re-evaluated without interaction.
func (Session) GetCheckInterval() time.Duration {
	return GetDurationEnv("CHECK_INTERVAL", 5*time.Minute)
}

func (Session) GetCoalesceInterval() time.Duration {
	return GetDurationEnv("COALESCE_INTERVAL", time.Second)
}

// GetRequireTokenExpiry makes tokens without an exp claim invalid.
func (Session) GetRequireTokenExpiry() bool {
	return GetBoolEnv("REQUIRE_TOKEN_EXPIRY", false)
}
