package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chatvault/internal/apperr"
	"chatvault/internal/models"
	"chatvault/internal/worker"
)

const messageWindow = 24 * time.Hour

type createChatRequest struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Visibility models.Visibility `json:"visibility"`
}

type visibilityRequest struct {
	Visibility models.Visibility `json:"visibility"`
}

type messageInput struct {
	ID          string          `json:"id"`
	Role        models.Role     `json:"role"`
	Parts       json.RawMessage `json:"parts"`
	Attachments json.RawMessage `json:"attachments"`
}

type postMessagesRequest struct {
	Visibility models.Visibility `json:"visibility"`
	Messages   []messageInput    `json:"messages"`
}

type voteRequest struct {
	ChatID    string          `json:"chatId"`
	MessageID string          `json:"messageId"`
	Type      models.VoteType `json:"type"`
}

type streamRequest struct {
	ID string `json:"id"`
}

func (h *Handler) createChat(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	chat, err := h.store.SaveChat(c.Request.Context(), models.Chat{
		ID:         req.ID,
		Title:      req.Title,
		UserID:     user.ID,
		Visibility: req.Visibility,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, chat)
}

func (h *Handler) getChat(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	chat, err := h.readableChat(c, user, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

func (h *Handler) deleteChat(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.ownedChat(c, user, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	deleted, err := h.store.DeleteChatByID(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deleted)
}

func (h *Handler) updateVisibility(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	chat, err := h.ownedChat(c, user, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.store.UpdateChatVisibilityByID(c.Request.Context(), chat.ID, req.Visibility); err != nil {
		respondError(c, err)
		return
	}
	chat.Visibility = req.Visibility
	c.JSON(http.StatusOK, chat)
}

func (h *Handler) listMessages(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	chat, err := h.readableChat(c, user, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	messages, err := h.store.GetMessagesByChatID(c.Request.Context(), chat.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat, "messages": messages})
}

// postMessages appends messages to a chat, creating it on first use. Only
// user-authored messages count against the daily entitlement.
func (h *Handler) postMessages(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req postMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		badRequest(c, "messages are required")
		return
	}
	ctx := c.Request.Context()
	chatID := c.Param("id")

	incoming := 0
	for _, m := range req.Messages {
		if m.Role == "" || m.Role == models.RoleUser {
			incoming++
		}
	}
	if incoming > 0 {
		count, err := h.store.GetMessageCountByUserID(ctx, user.ID, messageWindow)
		if err != nil {
			respondError(c, err)
			return
		}
		if count+incoming > h.messageLimit(user) {
			respondError(c, apperr.New(apperr.RateLimitChat, "you have exceeded your maximum number of messages for the day"))
			return
		}
	}

	chat, err := h.store.GetChatByID(ctx, chatID)
	if err != nil {
		respondError(c, err)
		return
	}
	created := false
	if chat == nil {
		chat, err = h.store.SaveChat(ctx, models.Chat{
			ID:         chatID,
			UserID:     user.ID,
			Visibility: req.Visibility,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		created = true
	} else if chat.UserID != user.ID {
		respondError(c, apperr.New(apperr.ForbiddenChat, "this chat belongs to another user"))
		return
	}

	batch := make([]models.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := m.Role
		if role == "" {
			role = models.RoleUser
		}
		batch = append(batch, models.Message{
			ID:          m.ID,
			ChatID:      chat.ID,
			Role:        role,
			Parts:       m.Parts,
			Attachments: m.Attachments,
		})
	}
	saved, err := h.store.SaveMessages(ctx, batch)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.titles != nil && (created || chat.Title == "") {
		for _, msg := range saved {
			if msg.Role == models.RoleUser {
				h.titles.ScheduleTitle(worker.TitleTask{UserID: user.ID, ChatID: chat.ID, Message: msg})
				break
			}
		}
	}
	c.JSON(http.StatusCreated, gin.H{"chat": chat, "messages": saved})
}

func (h *Handler) listVotes(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	chat, err := h.readableChat(c, user, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	votes, err := h.store.GetVotesByChatID(c.Request.Context(), chat.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if votes == nil {
		votes = []models.Vote{}
	}
	c.JSON(http.StatusOK, votes)
}

func (h *Handler) voteMessage(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChatID == "" || req.MessageID == "" {
		badRequest(c, "chatId, messageId and type are required")
		return
	}
	if _, err := h.ownedChat(c, user, req.ChatID); err != nil {
		respondError(c, err)
		return
	}
	if err := h.store.VoteMessage(c.Request.Context(), req.ChatID, req.MessageID, req.Type); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) listStreams(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	chat, err := h.ownedChat(c, user, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ids, err := h.store.GetStreamIDsByChatID(c.Request.Context(), chat.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"streamIds": ids})
}

func (h *Handler) createStream(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req streamRequest
	// An empty body is fine; the store assigns an id.
	_ = c.ShouldBindJSON(&req)
	chat, err := h.ownedChat(c, user, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.store.CreateStreamID(c.Request.Context(), req.ID, chat.ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

// deleteTrailingMessages removes the given message and everything after it.
func (h *Handler) deleteTrailingMessages(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	msg, err := h.store.GetMessageByID(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if msg == nil {
		respondError(c, apperr.New(apperr.NotFoundChat, "message not found"))
		return
	}
	if _, err := h.ownedChat(c, user, msg.ChatID); err != nil {
		respondError(c, err)
		return
	}
	n, err := h.store.DeleteMessagesByChatIDAfterTimestamp(ctx, msg.ChatID, msg.CreatedAt)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deletedCount": n})
}

// readableChat loads a chat the user may read: their own, or a public one.
func (h *Handler) readableChat(c *gin.Context, user *models.User, id string) (*models.Chat, error) {
	chat, err := h.store.GetChatByID(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, apperr.New(apperr.NotFoundChat, "chat not found")
	}
	if chat.Visibility == models.VisibilityPrivate && chat.UserID != user.ID {
		return nil, apperr.New(apperr.ForbiddenChat, "this chat is private")
	}
	return chat, nil
}

func (h *Handler) ownedChat(c *gin.Context, user *models.User, id string) (*models.Chat, error) {
	chat, err := h.store.GetChatByID(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, apperr.New(apperr.NotFoundChat, "chat not found")
	}
	if chat.UserID != user.ID {
		return nil, apperr.New(apperr.ForbiddenChat, "this chat belongs to another user")
	}
	return chat, nil
}

func (h *Handler) messageLimit(user *models.User) int {
	if user.IsAnonymous {
		return h.entitlements.GuestMessagesPerDay
	}
	return h.entitlements.RegularMessagesPerDay
}
