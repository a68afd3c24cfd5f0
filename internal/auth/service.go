package auth

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RoleAdmin lets a caller see and manage every owner's scans and policies
const RoleAdmin = "admin"

// Token is a signed owner token
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TokenDetails contains detailed information about a verified token
type TokenDetails struct {
	TokenUUID string
	OwnerID   string
	Roles     []string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
	Subject   string
	Audience  []string
}

// HasRole reports whether the token carries role
func (d *TokenDetails) HasRole(role string) bool {
	for _, r := range d.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the token carries the admin role
func (d *TokenDetails) IsAdmin() bool {
	return d.HasRole(RoleAdmin)
}

// Service defines the authentication service interface.
// Tokens only carry an owner reference; there are no accounts or sessions.
type Service interface {
	// Verify verifies a token and returns its details
	Verify(ctx context.Context, tokenString string) (*TokenDetails, error)

	// GenerateToken issues a token for an owner
	GenerateToken(ctx context.Context, ownerID string, roles []string) (*Token, error)
}

type service struct {
	jwt *JWTService
	log *logrus.Logger
}

// NewService creates the token-only authentication service
func NewService(jwtService *JWTService, log *logrus.Logger) Service {
	if log == nil {
		log = logrus.New()
	}
	return &service{jwt: jwtService, log: log}
}

func (s *service) Verify(ctx context.Context, tokenString string) (*TokenDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.jwt.ExtractTokenDetails(tokenString)
}

func (s *service) GenerateToken(ctx context.Context, ownerID string, roles []string) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	token, err := s.jwt.GenerateToken(ownerID, roles)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"owner_id": ownerID, "roles": roles}).Debug("Issued owner token")
	return token, nil
}

// MockService is a mock implementation of the Service interface for testing
type MockService struct {
	VerifyFunc   func(ctx context.Context, tokenString string) (*TokenDetails, error)
	GenerateFunc func(ctx context.Context, ownerID string, roles []string) (*Token, error)
}

// Verify is a mock implementation
func (m *MockService) Verify(ctx context.Context, tokenString string) (*TokenDetails, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, tokenString)
	}
	return nil, ErrInvalidToken
}

// GenerateToken is a mock implementation
func (m *MockService) GenerateToken(ctx context.Context, ownerID string, roles []string) (*Token, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, ownerID, roles)
	}
	return nil, ErrMissingKey
}
