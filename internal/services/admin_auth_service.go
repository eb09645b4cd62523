package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/recophone/api/internal/platform/auth"
)

// ErrAdminLoginInvalid indicates an incomplete login body.
var ErrAdminLoginInvalid = errors.New("admin auth: email and password are required")

// AdminSession is an issued admin cookie token.
type AdminSession struct {
	Admin     auth.Admin
	Token     string
	ExpiresAt time.Time
}

// AdminAuthServiceDeps wires credential checks and token issuance.
type AdminAuthServiceDeps struct {
	Credentials *auth.Credentials
	Sessions    *auth.Sessions
	Logger      Logger
}

// AdminAuthService logs the single back-office admin in and out.
type AdminAuthService struct {
	credentials *auth.Credentials
	sessions    *auth.Sessions
	logger      Logger
}

// NewAdminAuthService validates dependencies.
func NewAdminAuthService(deps AdminAuthServiceDeps) (*AdminAuthService, error) {
	if deps.Credentials == nil {
		return nil, errors.New("admin auth service: credentials are required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("admin auth service: sessions are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &AdminAuthService{credentials: deps.Credentials, sessions: deps.Sessions, logger: logger}, nil
}

// Login checks the credentials and issues a session token.
func (s *AdminAuthService) Login(ctx context.Context, email, password string) (AdminSession, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return AdminSession{}, ErrAdminLoginInvalid
	}
	admin, err := s.credentials.Verify(email, password)
	if err != nil {
		s.logger(ctx, "admin.login_failed", map[string]any{"email": email})
		return AdminSession{}, err
	}
	token, expires, err := s.sessions.Issue(admin)
	if err != nil {
		return AdminSession{}, fmt.Errorf("admin auth: %w", err)
	}
	s.logger(ctx, "admin.login", map[string]any{"email": admin.Email})
	return AdminSession{Admin: admin, Token: token, ExpiresAt: expires}, nil
}

// Verify resolves the admin behind a session token.
func (s *AdminAuthService) Verify(token string) (auth.Admin, error) {
	return s.sessions.Verify(token)
}

// Sessions exposes the token manager for the session middleware.
func (s *AdminAuthService) Sessions() *auth.Sessions {
	return s.sessions
}
