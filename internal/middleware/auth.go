package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cobytes/scanOrchestratorGo/internal/auth"
	"github.com/cobytes/scanOrchestratorGo/internal/utils"
	"github.com/gin-gonic/gin"
)

const (
	ownerIDKey      = "ownerID"
	ownerRolesKey   = "ownerRoles"
	tokenDetailsKey = "tokenDetails"

	// AccessTokenQueryParam carries the bearer token for browser EventSource and WebSocket clients
	AccessTokenQueryParam = "access_token"
)

// Authentication errors
var (
	ErrAuthHeaderMissing = errors.New("authorization header is required")
	ErrInvalidAuthHeader = errors.New("invalid authorization header format")
	ErrTokenVerification = errors.New("failed to verify token")
	ErrInsufficientRole  = errors.New("insufficient role permissions")
)

// AuthMiddleware provides JWT authentication for routes
type AuthMiddleware struct {
	authService auth.Service
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authService auth.Service) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

// RequireAuthentication ensures that the request carries a valid owner token
func (m *AuthMiddleware) RequireAuthentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		details, err := m.extractAndValidateToken(c)
		if err != nil {
			utils.Unauthorized(c, err.Error())
			return
		}

		c.Set(ownerIDKey, details.OwnerID)
		c.Set(ownerRolesKey, details.Roles)
		c.Set(tokenDetailsKey, details)
		c.Next()
	}
}

// RequireRole ensures that the caller has at least one of the required roles
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		details, err := GetTokenDetails(c)
		if err != nil {
			utils.Unauthorized(c, "authentication required")
			return
		}
		for _, role := range roles {
			if details.HasRole(role) {
				c.Next()
				return
			}
		}
		utils.Forbidden(c, fmt.Sprintf("%s: requires one of these roles: %s", ErrInsufficientRole, strings.Join(roles, ", ")))
	}
}

// RequireAdmin ensures that the caller has the admin role
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return m.RequireRole(auth.RoleAdmin)
}

// extractAndValidateToken reads the bearer token from the Authorization header,
// falling back to the access_token query parameter.
func (m *AuthMiddleware) extractAndValidateToken(c *gin.Context) (*auth.TokenDetails, error) {
	var tokenString string

	authHeader := c.GetHeader("Authorization")
	switch {
	case authHeader != "":
		headerParts := strings.Fields(authHeader)
		if len(headerParts) != 2 || !strings.EqualFold(headerParts[0], "Bearer") {
			return nil, ErrInvalidAuthHeader
		}
		tokenString = headerParts[1]
	case c.Query(AccessTokenQueryParam) != "":
		tokenString = c.Query(AccessTokenQueryParam)
	default:
		return nil, ErrAuthHeaderMissing
	}

	details, err := m.authService.Verify(c.Request.Context(), tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenVerification, err)
	}
	if details == nil {
		return nil, ErrTokenVerification
	}
	return details, nil
}

// GetOwnerID extracts the authenticated owner from the request context
func GetOwnerID(c *gin.Context) (string, error) {
	value, exists := c.Get(ownerIDKey)
	if !exists {
		return "", errors.New("owner ID not found in context")
	}
	ownerID, ok := value.(string)
	if !ok || ownerID == "" {
		return "", errors.New("owner ID in context has invalid type")
	}
	return ownerID, nil
}

// GetTokenDetails extracts the token details from the request context
func GetTokenDetails(c *gin.Context) (*auth.TokenDetails, error) {
	value, exists := c.Get(tokenDetailsKey)
	if !exists {
		return nil, errors.New("token details not found in context")
	}
	details, ok := value.(*auth.TokenDetails)
	if !ok {
		return nil, errors.New("token details in context have invalid type")
	}
	return details, nil
}

// IsAdmin reports whether the caller carries the admin role
func IsAdmin(c *gin.Context) bool {
	details, err := GetTokenDetails(c)
	if err != nil {
		return false
	}
	return details.IsAdmin()
}
