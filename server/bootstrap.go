package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/jrsteele09/go-app-lock/server/parentsession"
	"github.com/jrsteele09/go-app-lock/users"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog/log"
)

const DefaultSeedUsername = "demo"

// Bootstrap holds the credentials created by InitialiseSystem. Secrets are
// only populated on first creation.
type Bootstrap struct {
	Email       string
	Password    string
	TOTPSecret  string
	ParentToken string
}

// InitialiseSystem creates the seed user, enrols it in authenticator MFA when
// enabled, and opens a parent session for it.
func (s *Server) InitialiseSystem(ctx context.Context) (*Bootstrap, error) {
	log.Info().Msg("bootstrap: checking seed user")

	email := s.config.GetSeedUserEmail()
	if email == "" {
		email = generateEmailFromBaseURL(DefaultSeedUsername, s.config.GetTokenIssuer())
	}
	result := &Bootstrap{Email: email}

	user, err := s.repos.Users.GetByEmail(email)
	if err != nil {
		user, result.Password, result.TOTPSecret, err = s.createSeedUser(email)
		if err != nil {
			return nil, err
		}
	} else {
		log.Info().Str("email", email).Msg("bootstrap: seed user already exists")
	}

	result.ParentToken, err = randomToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate parent token: %w", err)
	}
	now := s.nowTime()
	if err := s.repos.ParentSessions.Upsert(result.ParentToken, parentsession.Session{
		UserID:    user.ID,
		Email:     user.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.GetParentSessionExpiry()),
	}); err != nil {
		return nil, fmt.Errorf("failed to create parent session: %w", err)
	}

	log.Info().Str("email", email).Bool("mfa", user.MFAAuth()).Msg("bootstrap complete")
	return result, nil
}

func (s *Server) createSeedUser(email string) (*users.User, string, string, error) {
	password := s.config.GetSeedUserPassword()
	if password == "" {
		generated, err := randomToken(16)
		if err != nil {
			return nil, "", "", fmt.Errorf("failed to generate password: %w", err)
		}
		password = generated
	} else if err := users.ValidatePasswordStrength(password); err != nil {
		return nil, "", "", fmt.Errorf("seed user password: %w", err)
	}

	passwordHash, err := users.HashPassword(password)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := &users.User{
		Email:        email,
		PasswordHash: passwordHash,
		MFType:       users.MFNone,
	}

	var secret string
	if s.config.GetMFAEnabled() {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      s.config.GetTOTPIssuer(),
			AccountName: email,
		})
		if err != nil {
			return nil, "", "", fmt.Errorf("failed to generate totp secret: %w", err)
		}
		secret = key.Secret()
		user.MFType = users.MFAuthenticator
		user.TOTPSecret = secret
	}

	if err := s.repos.Users.Upsert(user); err != nil {
		return nil, "", "", fmt.Errorf("failed to create seed user: %w", err)
	}
	log.Info().Str("email", email).Msg("bootstrap: created seed user")
	return user, password, secret, nil
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// generateEmailFromBaseURL creates an email address from a username and base URL
// Example: ("demo", "https://auth.example.com/path") -> "demo@auth.example.com"
func generateEmailFromBaseURL(user, baseURL string) string {
	domain := strings.ReplaceAll(strings.ReplaceAll(baseURL, "https://", ""), "http://", "")
	domain = strings.SplitN(domain, "/", 2)[0] // Remove any path - safe because SplitN always returns at least 1 element
	domain = strings.SplitN(domain, ":", 2)[0] // Remove port if present
	return fmt.Sprintf("%s@%s", user, domain)
}
