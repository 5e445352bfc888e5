package config

import "time"

type AuthConfig interface {
	GetAuthEndpoint() string
	GetParentToken() string
	GetMFAEnabled() bool
	GetAuthTimeout() time.Duration
}

type Auth struct{}

var _ AuthConfig = Auth{}

// GetAuthEndpoint is the base URL of the service exchanging credentials for app tokens.
func (Auth) GetAuthEndpoint() string {
	return GetEnv("AUTH_ENDPOINT", "http://localhost:8080")
}

// GetParentToken is the parent workspace bearer token; the subsystem treats it as opaque.
func (Auth) GetParentToken() string {
	return GetEnv("PARENT_TOKEN", "")
}

func (Auth) GetMFAEnabled() bool {
	return GetBoolEnv("MFA_ENABLED", false)
}

func (Auth) GetAuthTimeout() time.Duration {
	return GetDurationEnv("AUTH_TIMEOUT", 10*time.Second)
}
