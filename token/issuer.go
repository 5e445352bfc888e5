package token

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Issuer mints app-scoped tokens for the re-authentication endpoint.
type Issuer struct {
	signer  Signer
	issuer  string
	expiry  time.Duration
	nowFunc func() time.Time
}

type IssuerOption func(*Issuer)

func WithIssuerName(issuer string) IssuerOption {
	return func(i *Issuer) {
		i.issuer = issuer
	}
}

func WithExpiry(expiry time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.expiry = expiry
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

func NewIssuer(signer Signer, options ...IssuerOption) *Issuer {
	i := &Issuer{
		signer:  signer,
		expiry:  time.Hour,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(i)
	}
	return i
}

// Issue creates a token granting subject access to appID until the configured expiry.
func (i *Issuer) Issue(subject string, appID int) (string, error) {
	now := i.nowFunc()
	claims := jwt.MapClaims{
		"sub":    subject,
		"aud":    "app:" + strconv.Itoa(appID),
		"app_id": appID,
		"iat":    now.Unix(),
		"exp":    now.Add(i.expiry).Unix(),
		"jti":    uuid.New().String(),
	}
	if i.issuer != "" {
		claims["iss"] = i.issuer
	}

	signed, err := i.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[Issuer.Issue] sign")
	}
	return signed, nil
}
