package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/transport/http/middleware"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

const invalidBodyMessage = "invalid request body"

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth *usecase.AuthService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// AuthRouteMiddleware holds per-route middleware chains.
type AuthRouteMiddleware struct {
	Register []gin.HandlerFunc
	Login    []gin.HandlerFunc
}

// RegisterRoutes binds authentication routes, applying optional middleware ahead of handlers.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, mw AuthRouteMiddleware) {
	r.POST("/register", chain(mw.Register, h.register)...)
	r.POST("/login", chain(mw.Login, h.login)...)

	protected := r.Group("", middleware.RequireAuth(h.auth))
	protected.GET("/me", h.me)
	protected.GET("/profile", h.me)
	protected.PATCH("/profile", h.updateProfile)
	protected.POST("/logout", h.logout)
}

func chain(pre []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	handlers := make([]gin.HandlerFunc, 0, len(pre)+1)
	handlers = append(handlers, pre...)
	return append(handlers, handler)
}

// register handles POST /api/auth/register.
func (h *AuthHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(invalidBodyMessage))
		return
	}

	result, err := h.auth.Register(c.Request.Context(), domain.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newAuthResponse(result))
}

// login handles POST /api/auth/login.
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(invalidBodyMessage))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, newAuthResponse(result))
}

// me handles GET /api/auth/me and GET /api/auth/profile.
func (h *AuthHandler) me(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		respondAuthError(c, domain.ErrUnauthenticated)
		return
	}

	user, err := h.auth.Profile(c.Request.Context(), userID)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, UserEnvelope{User: newUserResponse(user)})
}

// updateProfile handles PATCH /api/auth/profile.
func (h *AuthHandler) updateProfile(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		respondAuthError(c, domain.ErrUnauthenticated)
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(invalidBodyMessage))
		return
	}

	user, err := h.auth.UpdateProfile(c.Request.Context(), userID, domain.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, UserEnvelope{User: newUserResponse(user)})
}

// logout handles POST /api/auth/logout. The presented token stops working
// immediately.
func (h *AuthHandler) logout(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		respondAuthError(c, domain.ErrUnauthenticated)
		return
	}

	if err := h.auth.Logout(c.Request.Context(), *claims); err != nil {
		respondAuthError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
