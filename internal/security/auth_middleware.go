package security

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"insight-gateway/internal/middleware"
	"insight-gateway/pkg/response"
)

// Context keys set by RequireAuth
const (
	ClaimsKey  = "token_claims"
	SubjectKey = "subject"
)

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	jwtManager *JWTManager
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(jwtManager *JWTManager) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
	}
}

// RequireAuth creates a middleware that requires a valid bearer token
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if am.authenticate(c) {
			c.Next()
		}
	}
}

// RequireRole creates a middleware that requires a token carrying role
func (am *AuthMiddleware) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !am.authenticate(c) {
			return
		}
		claims, _ := GetClaims(c)
		if !claims.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.ForbiddenResponse(
				"Insufficient permissions",
				middleware.GetCorrelationID(c),
			))
			return
		}
		c.Next()
	}
}

// authenticate validates the bearer token and stores its claims. On failure
// the request is aborted with 401.
func (am *AuthMiddleware) authenticate(c *gin.Context) bool {
	token, err := ExtractTokenFromHeader(c.GetHeader("Authorization"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.UnauthorizedResponse(
			err.Error(),
			middleware.GetCorrelationID(c),
		))
		return false
	}

	claims, err := am.jwtManager.ValidateToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.UnauthorizedResponse(
			"Invalid or expired token",
			middleware.GetCorrelationID(c),
		))
		return false
	}

	c.Set(ClaimsKey, claims)
	c.Set(SubjectKey, claims.Subject)
	return true
}

// GetClaims extracts token claims from context
func GetClaims(c *gin.Context) (*Claims, bool) {
	claims, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	tokenClaims, ok := claims.(*Claims)
	return tokenClaims, ok
}
