package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// Messages shared by every JSON error written from middleware.
const (
	unauthorizedMessage = "not authorized"
	unavailableMessage  = "service temporarily unavailable, please retry"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error string `json:"error"`
}

// TokenAuthenticator verifies bearer tokens.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.TokenClaims, error)
}

// RequireAuth validates the Authorization header and stores the verified
// claims. Missing, malformed, forged, expired and revoked tokens all produce
// the same 401 body.
func RequireAuth(auth TokenAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: unauthorizedMessage})
			return
		}

		claims, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, domain.ErrTransient) {
				_ = c.Error(err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: unavailableMessage})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: unauthorizedMessage})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(ClaimsKey, claims)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.UserID = claims.UserID
		}

		c.Next()
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

// GetAuthenticatedUserID retrieves the user ID from context (helper for handlers)
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}

	if id, ok := userID.(string); ok {
		return id, true
	}

	return "", false
}

// GetClaims returns the claims stored by RequireAuth.
func GetClaims(c *gin.Context) (*domain.TokenClaims, bool) {
	value, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*domain.TokenClaims)
	return claims, ok && claims != nil
}
