package users

import (
	"fmt"
	"slices"
	"unicode"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

type MFAuthType string

const (
	MFNone          MFAuthType = "none"
	MFAuthenticator MFAuthType = "authenticator"
)

type User struct {
	ID           string     `json:"id,omitempty"`     // Unique identifier for the user
	Email        string     `json:"email,omitempty"`  // User's email address
	PasswordHash string     `json:"-"`                // Hashed version of the user's password - never serialize
	MFType       MFAuthType `json:"mfType,omitempty"` // MFType, Multifactor type
	TOTPSecret   string     `json:"-"`                // Base32 authenticator secret - never serialize
	Blocked      bool       `json:"blocked,omitempty"`

	// Apps the user may unlock. Empty means every app.
	Apps []int `json:"apps,omitempty"`
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CheckPassword checks a password against the user's hash
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.PasswordHash)
}

func (u *User) MFAAuth() bool {
	return u.MFType == MFAuthenticator && u.TOTPSecret != ""
}

// CheckMFACode validates a 6 digit authenticator code for the current time window.
func (u *User) CheckMFACode(code string) bool {
	if !u.MFAAuth() {
		return false
	}
	return totp.Validate(code, u.TOTPSecret)
}

func (u *User) CanUnlock(appID int) bool {
	return len(u.Apps) == 0 || slices.Contains(u.Apps, appID)
}
