package token_test

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-app-lock/token"
	"github.com/stretchr/testify/require"
)

func TestHMACSigner_Keyfunc(t *testing.T) {
	signer := token.NewHMACSigner(testSecret)

	raw, err := signer.Sign(jwt.MapClaims{"sub": "user-1"})
	require.NoError(t, err)
	parsed, err := jwt.Parse(raw, signer.Keyfunc)
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	_, err = jwt.Parse(raw, token.NewHMACSigner("some-other-key").Keyfunc)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = jwt.Parse(unsigned, signer.Keyfunc)
	require.Error(t, err)
}
