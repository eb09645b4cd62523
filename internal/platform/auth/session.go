package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// RoleAdmin is the only role issued.
const RoleAdmin = "admin"

// ErrInvalidSession is returned for a missing, malformed, forged or expired token.
var ErrInvalidSession = errors.New("auth: invalid session")

// SessionClaims is the JWT body of the admin cookie.
type SessionClaims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies HS256 admin session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions returns a token manager. secret must be at least MinSecretBytes long.
func NewSessions(secret []byte, ttl time.Duration, clock func() time.Time) (*Sessions, error) {
	if len(secret) < MinSecretBytes {
		return nil, ErrSecretTooShort
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if clock == nil {
		clock = time.Now
	}
	return &Sessions{secret: secret, ttl: ttl, now: clock}, nil
}

// TTL returns the session lifetime.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue signs a token for admin and returns it with its expiry.
func (s *Sessions) Issue(admin Admin) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := SessionClaims{
		Name: admin.Name,
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   admin.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign session: %w", err)
	}
	return token, expires, nil
}

// Verify checks signature, algorithm, expiry and role.
func (s *Sessions) Verify(token string) (Admin, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Admin{}, ErrInvalidSession
	}
	var claims SessionClaims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return s.secret, nil }); err != nil {
		return Admin{}, ErrInvalidSession
	}
	if !claims.VerifyExpiresAt(s.now(), true) || claims.Role != RoleAdmin || claims.Subject == "" {
		return Admin{}, ErrInvalidSession
	}
	return Admin{Email: claims.Subject, Name: claims.Name, Role: claims.Role}, nil
}
