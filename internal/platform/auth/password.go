package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/recophone/api/internal/platform/config"
)

var bcryptHashPattern = regexp.MustCompile(`^\$2[aby]\$\d{2}\$[./A-Za-z0-9]{53}$`)

var (
	// ErrInvalidPasswordHash is returned when the configured hash is not bcrypt.
	ErrInvalidPasswordHash = errors.New("auth: admin password hash is not a bcrypt hash")
	// ErrInvalidCredentials is returned for a wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// Admin is the authenticated back-office user.
type Admin struct {
	Email string
	Name  string
	Role  string
}

// Credentials checks the single admin account.
type Credentials struct {
	email string
	name  string
	hash  []byte
}

// NewCredentials reads ADMIN_EMAIL and the bcrypt hash, preferring the base64 form.
func NewCredentials(cfg config.AdminConfig) (*Credentials, error) {
	hash := strings.TrimSpace(cfg.PasswordHash)
	if b64 := strings.TrimSpace(cfg.PasswordHashB64); b64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, ErrInvalidPasswordHash
		}
		hash = strings.TrimSpace(string(decoded))
	}
	if !bcryptHashPattern.MatchString(hash) {
		return nil, ErrInvalidPasswordHash
	}
	email := strings.TrimSpace(cfg.Email)
	if email == "" {
		return nil, errors.New("auth: admin email is required")
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "Admin"
	}
	return &Credentials{email: email, name: name, hash: []byte(hash)}, nil
}

// Verify returns the admin when email (case-insensitive) and password match.
func (c *Credentials) Verify(email, password string) (Admin, error) {
	if c == nil {
		return Admin{}, ErrInvalidCredentials
	}
	given := strings.ToLower(strings.TrimSpace(email))
	want := strings.ToLower(c.email)
	emailOK := subtle.ConstantTimeCompare([]byte(given), []byte(want)) == 1
	pwErr := bcrypt.CompareHashAndPassword(c.hash, []byte(password))
	if !emailOK || pwErr != nil {
		return Admin{}, ErrInvalidCredentials
	}
	return Admin{Email: c.email, Name: c.name, Role: RoleAdmin}, nil
}
