package app

import (
	"io"
	"net/http"

	"chatsync/internal/repository"
	"chatsync/internal/util"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userRepo   repository.UserRepository
	cloudinary *util.CloudinaryClient
}

func NewUserHandler(userRepo repository.UserRepository, cloudinary *util.CloudinaryClient) *UserHandler {
	return &UserHandler{
		userRepo:   userRepo,
		cloudinary: cloudinary,
	}
}

// ListUsers returns every user except the caller
// GET /api/v1/users
func (h *UserHandler) ListUsers(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	users, err := h.userRepo.FindAllExcept(userID.(string))
	if err != nil {
		util.ErrorResponse(c, http.StatusServiceUnavailable, "Failed to load users", nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Users retrieved", gin.H{"users": users})
}

// SearchUsers finds users by display name or email
// GET /api/v1/users/search?q=...
func (h *UserHandler) SearchUsers(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	query := c.Query("q")
	if query == "" {
		util.BadRequest(c, "q is required")
		return
	}

	users, err := h.userRepo.Search(query, userID.(string), 25)
	if err != nil {
		util.ErrorResponse(c, http.StatusServiceUnavailable, "Failed to search users", nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Users retrieved", gin.H{"users": users})
}

// UploadAvatar stores a new avatar image and updates the user's record
// POST /api/v1/users/avatar
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	if h.cloudinary == nil {
		util.ErrorResponse(c, http.StatusServiceUnavailable, "Image uploads are disabled", nil)
		return
	}

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		util.BadRequest(c, "avatar file is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		util.BadRequest(c, "failed to read avatar file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		util.BadRequest(c, "failed to read avatar file")
		return
	}

	url, err := h.cloudinary.UploadAvatar(data, fileHeader.Filename)
	if err != nil {
		util.ErrorResponse(c, http.StatusServiceUnavailable, "Failed to upload avatar", nil)
		return
	}

	if err := h.userRepo.UpdateAvatar(userID.(string), url); err != nil {
		util.ErrorResponse(c, http.StatusServiceUnavailable, "Failed to update avatar", nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Avatar updated", gin.H{"avatar_url": url})
}
