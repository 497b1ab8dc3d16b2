package app

import (
	"net/http"
	"strconv"

	"chatsync/internal/service"
	"chatsync/internal/util"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatService service.ChatService
}

func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

type openPrivateChatRequest struct {
	PeerID string `json:"peer_id" binding:"required"`
}

// OpenPrivateChat returns the private chat with a peer, creating it on
// first use
// POST /api/v1/chats/private
func (h *ChatHandler) OpenPrivateChat(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	var req openPrivateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	chat, err := h.chatService.GetOrCreatePrivateChat(userID.(string), req.PeerID)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Chat retrieved", gin.H{"chat": chat})
}

type createGroupChatRequest struct {
	Name      string   `json:"name" binding:"required"`
	MemberIDs []string `json:"member_ids" binding:"required,min=1"`
}

// CreateGroupChat creates a named chat with the given members
// POST /api/v1/chats/group
func (h *ChatHandler) CreateGroupChat(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	var req createGroupChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	chat, err := h.chatService.CreateGroupChat(userID.(string), req.Name, req.MemberIDs)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusCreated, "Group chat created", gin.H{"chat": chat})
}

// ListChats lists the caller's chats, most recently active first
// GET /api/v1/chats
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	chats, err := h.chatService.ListChats(userID.(string))
	if err != nil {
		util.RespondError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Chats retrieved", gin.H{"chats": chats})
}

// GetChat returns a single chat the caller belongs to
// GET /api/v1/chats/:id
func (h *ChatHandler) GetChat(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	chat, err := h.chatService.GetChat(c.Param("id"), userID.(string))
	if err != nil {
		util.RespondError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Chat retrieved", gin.H{"chat": chat})
}

type sendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// SendMessage appends a message to the chat's log
// POST /api/v1/chats/:id/messages
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	msg, err := h.chatService.AppendMessage(c.Param("id"), userID.(string), req.Text)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusCreated, "Message sent", gin.H{"message": msg})
}

// ListMessages returns the chat's messages in ascending order
// GET /api/v1/chats/:id/messages?limit=50
func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	msgs, err := h.chatService.ListMessages(c.Param("id"), userID.(string), limit)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Messages retrieved", gin.H{"messages": msgs})
}

// MarkRead marks every message in the chat as read by the caller
// POST /api/v1/chats/:id/read
func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	if err := h.chatService.MarkRead(c.Param("id"), userID.(string)); err != nil {
		util.RespondError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Messages marked read", nil)
}

// UnreadCount reports how many messages the caller has not read yet
// GET /api/v1/chats/:id/unread
func (h *ChatHandler) UnreadCount(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	count, err := h.chatService.UnreadCount(c.Param("id"), userID.(string))
	if err != nil {
		util.RespondError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Unread count retrieved", gin.H{"count": count})
}
