package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer turns claims into a compact signed token.
type Signer interface {
	Sign(claims jwt.MapClaims) (string, error)
}

// HMACSigner signs app tokens with HS256 under one shared key.
type HMACSigner struct {
	key []byte
}

var _ Signer = (*HMACSigner)(nil)

func NewHMACSigner(key string) *HMACSigner {
	return &HMACSigner{key: []byte(key)}
}

func (h *HMACSigner) Sign(claims jwt.MapClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.key)
	if err != nil {
		return "", errors.Wrap(err, "[HMACSigner.Sign]")
	}
	return signed, nil
}

// Keyfunc is a jwt.Keyfunc for tokens this signer produced. Any algorithm
// other than HMAC is refused.
func (h *HMACSigner) Keyfunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("[HMACSigner.Keyfunc] unexpected signing method %v", t.Header["alg"])
	}
	return h.key, nil
}
