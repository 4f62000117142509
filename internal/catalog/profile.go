package catalog

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultThemeColor is the accent color of a store that never picked one.
const DefaultThemeColor = "#2563eb"

// Profile is the singleton store profile.
type Profile struct {
	StoreName string `json:"storeName"`
	OwnerName string `json:"ownerName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`

	// LogoURL is an inline data URL, empty when the store has no logo.
	LogoURL string `json:"logoUrl"`

	ThemeColor string `json:"themeColor,omitempty"`

	// Password is a bcrypt hash. Profiles saved by older clients may hold
	// the plaintext password; CheckPassword accepts both.
	Password string `json:"password,omitempty"`

	// APIKey is the AI service credential.
	APIKey string `json:"apiKey,omitempty"`

	TermsAccepted bool `json:"termsAccepted"`
}

// NeedsSetup reports whether the profile lacks an admin password and must
// go through setup before any admin action.
func (p Profile) NeedsSetup() bool {
	return strings.TrimSpace(p.Password) == ""
}

// Accent returns the theme color or the default.
func (p Profile) Accent() string {
	if strings.TrimSpace(p.ThemeColor) == "" {
		return DefaultThemeColor
	}
	return p.ThemeColor
}

// HasCredential reports whether an AI credential is configured.
func (p Profile) HasCredential() bool {
	return strings.TrimSpace(p.APIKey) != ""
}

// Redacted returns a copy without the password and AI credential.
func (p Profile) Redacted() Profile {
	p.Password = ""
	p.APIKey = ""
	return p
}

// HashPassword hashes a plaintext admin password.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a login attempt against the stored password.
func CheckPassword(stored, attempt string) bool {
	if stored == "" {
		return false
	}
	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(attempt)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(attempt)) == 1
}

// IsHashed reports whether the stored password is already a bcrypt hash.
func (p Profile) IsHashed() bool {
	return isBcryptHash(p.Password)
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}
