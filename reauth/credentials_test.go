package reauth_test

import (
	"testing"

	"github.com/jrsteele09/go-app-lock/reauth"
	"github.com/stretchr/testify/require"
)

func TestSanitizeMFACode(t *testing.T) {
	tests := map[string]string{
		"123456":      "123456",
		"123 456":     "123456",
		"123-456":     "123456",
		" 12a3b4 56 ": "123456",
		"١٢٣٤٥٦":      "",
		"":            "",
	}
	for in, want := range tests {
		require.Equal(t, want, reauth.SanitizeMFACode(in), "input %q", in)
	}
}

func TestCredentials_Mode(t *testing.T) {
	require.Equal(t, reauth.ModePassword, reauth.Password("pw").Mode())
	require.Equal(t, reauth.ModeMFA, reauth.MFA("123456").Mode())
	require.Equal(t, reauth.Mode(""), reauth.Credentials{}.Mode())
	require.Equal(t, reauth.Mode(""), reauth.Credentials{Password: "pw", MFACode: "123456"}.Mode())
	require.Equal(t, reauth.Mode(""), reauth.Password(" \t\n").Mode())
	require.Equal(t, reauth.ModeMFA, reauth.Credentials{Password: "  ", MFACode: "123456"}.Mode())
}

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name       string
		creds      reauth.Credentials
		mfaEnabled bool
		want       error
	}{
		{"password", reauth.Password("pw"), false, nil},
		{"password with mfa enabled", reauth.Password("pw"), true, nil},
		{"mfa", reauth.MFA("123-456"), true, nil},
		{"empty", reauth.Credentials{}, true, reauth.ErrNoCredentials},
		{"whitespace password", reauth.Password("   "), false, reauth.ErrNoCredentials},
		{"whitespace password with code", reauth.Credentials{Password: "\t", MFACode: "123456"}, true, nil},
		{"password with surrounding spaces", reauth.Password(" pw "), false, nil},
		{"both", reauth.Credentials{Password: "pw", MFACode: "123456"}, true, reauth.ErrBothCredentials},
		{"mfa disabled", reauth.MFA("123456"), false, reauth.ErrMFAUnavailable},
		{"short code", reauth.MFA("12345"), true, reauth.ErrInvalidMFACode},
		{"long code", reauth.MFA("1234567"), true, reauth.ErrInvalidMFACode},
		{"unsanitized code", reauth.Credentials{MFACode: "12 456"}, true, reauth.ErrInvalidMFACode},
		{"letters only", reauth.MFA("abcdef"), true, reauth.ErrNoCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate(tt.mfaEnabled)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}
