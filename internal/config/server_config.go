package config

import (
	"fmt"
	"time"
)

type ServerConfig interface {
	GetPort() string
	GetTokenSigningKey() string
	GetTokenIssuer() string
	GetAppTokenExpiry() time.Duration
	GetTOTPIssuer() string
	GetParentSessionExpiry() time.Duration
	GetSeedUserEmail() string
	GetSeedUserPassword() string
}

type Server struct{}

var _ ServerConfig = Server{}

func (Server) GetPort() string {
	port := GetEnv("PORT", "8080")
	if port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (Server) GetTokenSigningKey() string {
	return GetEnv("TOKEN_SIGNING_KEY", "dev-signing-key")
}

func (Server) GetTokenIssuer() string {
	return GetEnv("TOKEN_ISSUER", "http://localhost:8080")
}

func (Server) GetAppTokenExpiry() time.Duration {
	return GetDurationEnv("APP_TOKEN_EXPIRY", time.Hour)
}

func (Server) GetTOTPIssuer() string {
	return GetEnv("TOTP_ISSUER", "App Lock")
}

// GetParentSessionExpiry bounds parent sessions created by the bootstrap.
func (Server) GetParentSessionExpiry() time.Duration {
	return GetDurationEnv("PARENT_SESSION_EXPIRY", 12*time.Hour)
}

func (Server) GetSeedUserEmail() string {
	return GetEnv("SEED_USER_EMAIL", "")
}

// GetSeedUserPassword is generated at startup when empty.
func (Server) GetSeedUserPassword() string {
	return GetEnv("SEED_USER_PASSWORD", "")
}
