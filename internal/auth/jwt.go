package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// JWT error definitions
var (
	ErrInvalidToken         = errors.New("invalid token")
	ErrExpiredToken         = errors.New("token has expired")
	ErrTokenNotYetValid     = errors.New("token not yet valid")
	ErrInvalidSigningMethod = errors.New("invalid signing method")
	ErrInvalidClaims        = errors.New("invalid token claims")
	ErrMissingKey           = errors.New("signing key is missing")
	ErrInvalidAudience      = errors.New("invalid token audience")
	ErrInvalidIssuer        = errors.New("invalid token issuer")
	ErrInvalidOwner         = errors.New("invalid owner in token")
	ErrInvalidUUID          = errors.New("invalid UUID in token")
)

// JWTConfig contains configuration for owner token generation and validation
type JWTConfig struct {
	// Secret used for signing tokens
	Secret string

	// AccessTokenTTL is the lifetime of an issued token
	AccessTokenTTL time.Duration

	// Issuer identifies the principal that issued the JWT
	Issuer string

	// Audience identifies the recipients that the JWT is intended for
	Audience []string

	// Algorithm is one of HS256, HS384 or HS512
	Algorithm string
}

// DefaultJWTConfig returns the default JWT configuration
func DefaultJWTConfig() JWTConfig {
	return JWTConfig{
		AccessTokenTTL: time.Hour,
		Issuer:         "cobytes-scan-orchestrator",
		Audience:       []string{"cobytes-api"},
		Algorithm:      "HS256",
	}
}

// CustomClaims defines the claims carried by an owner token
type CustomClaims struct {
	OwnerID   string   `json:"owner"`
	Roles     []string `json:"roles"`
	TokenUUID string   `json:"tid"`
	jwt.RegisteredClaims
}

// JWTService issues and verifies owner tokens
type JWTService struct {
	Config JWTConfig
	log    *logrus.Logger
	now    func() time.Time
}

// NewJWTService creates a new JWT service with the provided configuration
func NewJWTService(config JWTConfig, log *logrus.Logger) *JWTService {
	if log == nil {
		log = logrus.New()
	}
	if config.Secret == "" {
		log.Warn("JWT secret is empty, token issuance and verification will fail")
	}
	if config.AccessTokenTTL <= 0 {
		config.AccessTokenTTL = DefaultJWTConfig().AccessTokenTTL
	}
	return &JWTService{
		Config: config,
		log:    log,
		now:    time.Now,
	}
}

func (s *JWTService) signingMethod() jwt.SigningMethod {
	switch strings.ToUpper(s.Config.Algorithm) {
	case "HS384":
		return jwt.SigningMethodHS384
	case "HS512":
		return jwt.SigningMethodHS512
	}
	return jwt.SigningMethodHS256
}

// GenerateToken issues a signed token for the owner with the given roles
func (s *JWTService) GenerateToken(ownerID string, roles []string) (*Token, error) {
	if s.Config.Secret == "" {
		return nil, ErrMissingKey
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrInvalidOwner
	}
	if roles == nil {
		roles = []string{}
	}

	tokenUUID := uuid.New().String()
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.Config.AccessTokenTTL)

	claims := CustomClaims{
		OwnerID:   ownerID,
		Roles:     roles,
		TokenUUID: tokenUUID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			Issuer:    s.Config.Issuer,
			Audience:  s.Config.Audience,
			ID:        tokenUUID,
			Subject:   ownerID,
		},
	}

	signed, err := jwt.NewWithClaims(s.signingMethod(), claims).SignedString([]byte(s.Config.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	}, nil
}

// ExtractTokenDetails validates a token and extracts its details
func (s *JWTService) ExtractTokenDetails(tokenString string) (*TokenDetails, error) {
	if s.Config.Secret == "" {
		return nil, ErrMissingKey
	}
	s.log.Debug("Attempting to parse and validate token")

	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSigningMethod
		}
		return []byte(s.Config.Secret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		s.log.WithError(err).Warn("Token parsing/validation failed")
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if err := s.validateClaims(claims); err != nil {
		return nil, err
	}

	details := &TokenDetails{
		TokenUUID: claims.TokenUUID,
		OwnerID:   claims.OwnerID,
		Roles:     claims.Roles,
		Issuer:    claims.Issuer,
		Subject:   claims.Subject,
		Audience:  claims.Audience,
	}
	if claims.ExpiresAt != nil {
		details.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		details.IssuedAt = claims.IssuedAt.Time
	}
	return details, nil
}

// validateClaims validates token claims based on configuration
func (s *JWTService) validateClaims(claims *CustomClaims) error {
	if s.Config.Issuer != "" && claims.Issuer != s.Config.Issuer {
		return ErrInvalidIssuer
	}

	if len(s.Config.Audience) > 0 {
		audienceValid := false
		for _, expected := range s.Config.Audience {
			for _, aud := range claims.Audience {
				if expected == aud {
					audienceValid = true
					break
				}
			}
			if audienceValid {
				break
			}
		}
		if !audienceValid {
			return ErrInvalidAudience
		}
	}

	if strings.TrimSpace(claims.OwnerID) == "" {
		return ErrInvalidOwner
	}
	if claims.TokenUUID == "" {
		return ErrInvalidUUID
	}
	return nil
}
