package app

import (
	"net/http"

	"chatsync/internal/service"
	"chatsync/internal/util"

	"github.com/gin-gonic/gin"
)

type FriendshipHandler struct {
	friendshipService service.FriendshipService
}

func NewFriendshipHandler(friendshipService service.FriendshipService) *FriendshipHandler {
	return &FriendshipHandler{friendshipService: friendshipService}
}

type sendFriendRequestRequest struct {
	ToID string `json:"to_id" binding:"required"`
}

// SendFriendRequest opens a pending request toward another user
// POST /api/v1/friends/requests
func (h *FriendshipHandler) SendFriendRequest(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	var req sendFriendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	request, err := h.friendshipService.SendFriendRequest(userID.(string), req.ToID)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusCreated, "Friend request sent", gin.H{"request": request})
}

// AcceptFriendRequest accepts a pending request addressed to the caller
// POST /api/v1/friends/requests/:id/accept
func (h *FriendshipHandler) AcceptFriendRequest(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	result, err := h.friendshipService.AcceptFriendRequest(c.Param("id"), userID.(string))
	if err != nil {
		util.RespondError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Friend request accepted", gin.H{
		"request": result.Request,
		"chat":    result.Chat,
	})
}

// RejectFriendRequest declines a pending request addressed to the caller
// POST /api/v1/friends/requests/:id/reject
func (h *FriendshipHandler) RejectFriendRequest(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	if err := h.friendshipService.RejectFriendRequest(c.Param("id"), userID.(string)); err != nil {
		util.RespondError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Friend request rejected", nil)
}

// GetPendingRequests lists open requests addressed to the caller
// GET /api/v1/friends/requests
func (h *FriendshipHandler) GetPendingRequests(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	requests, err := h.friendshipService.GetPendingRequests(userID.(string))
	if err != nil {
		util.RespondError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Pending requests retrieved", gin.H{"requests": requests})
}

// GetFriends lists the caller's accepted friends
// GET /api/v1/friends
func (h *FriendshipHandler) GetFriends(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	friends, err := h.friendshipService.GetFriends(userID.(string))
	if err != nil {
		util.RespondError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Friends retrieved", gin.H{"friends": friends})
}

// GetFriendshipStatus reports the caller's status toward another user
// GET /api/v1/friends/:peerId/status
func (h *FriendshipHandler) GetFriendshipStatus(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	status, err := h.friendshipService.GetFriendshipStatus(userID.(string), c.Param("peerId"))
	if err != nil {
		util.RespondError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Status retrieved", gin.H{"status": status})
}

// RemoveFriend deletes the friendship with another user
// DELETE /api/v1/friends/:peerId
func (h *FriendshipHandler) RemoveFriend(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	if err := h.friendshipService.RemoveFriend(userID.(string), c.Param("peerId")); err != nil {
		util.RespondError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Friend removed", nil)
}
