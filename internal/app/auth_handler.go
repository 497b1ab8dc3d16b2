package app

import (
	"errors"
	"net/http"
	"strings"

	"chatsync/internal/identity"
	"chatsync/internal/service"
	"chatsync/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type AuthHandler struct {
	authService service.AuthService
	jwtSecret   string
}

func NewAuthHandler(authService service.AuthService, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		jwtSecret:   jwtSecret,
	}
}

// Register handles user registration
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, bindingErrorMessage(err))
		return
	}

	resp, err := h.authService.Register(req)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusCreated, "Registered successfully", resp)
}

// Login handles user login
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	resp, err := h.authService.Login(req)
	if err != nil {
		util.Unauthorized(c, err.Error())
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Login successful", resp)
}

// GetMe returns the authenticated user's profile
// GET /api/v1/auth/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	user, err := h.authService.GetMe(userID.(string))
	if err != nil {
		util.RespondError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "User retrieved", gin.H{"user": user})
}

// bindingErrorMessage turns validation errors into user-friendly text.
func bindingErrorMessage(err error) string {
	var validationErr validator.ValidationErrors
	if !errors.As(err, &validationErr) {
		return err.Error()
	}
	for _, fieldErr := range validationErr {
		switch fieldErr.Field() {
		case "Password":
			if fieldErr.Tag() == "min" {
				return "Password must be at least 8 characters"
			}
		case "Email":
			return "A valid email address is required"
		case "DisplayName":
			return "Display name must be between 2 and 100 characters"
		}
	}
	return validationErr.Error()
}

// AuthMiddleware validates the bearer token and attaches the user id
func (h *AuthHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			util.Unauthorized(c, "Missing or invalid authorization header")
			c.Abort()
			return
		}

		userID, err := service.ParseToken(strings.TrimPrefix(auth, "Bearer "), h.jwtSecret)
		if err != nil {
			util.Unauthorized(c, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set("userID", userID)
		c.Request = c.Request.WithContext(identity.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}
