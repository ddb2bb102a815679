package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chatvault/internal/auth"
	"chatvault/internal/models"
	"chatvault/internal/preferences"
	"chatvault/internal/store"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	user, err := h.auth.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	h.issueSession(c, user, http.StatusCreated)
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	user, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	h.issueSession(c, user, http.StatusOK)
}

func (h *Handler) guestLogin(c *gin.Context) {
	user, err := h.auth.CreateGuest(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	h.issueSession(c, user, http.StatusCreated)
}

func (h *Handler) upgradeGuest(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	upgraded, err := h.auth.UpgradeGuest(c.Request.Context(), user.ID, req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": upgraded})
}

func (h *Handler) logoutUser(c *gin.Context) {
	token, _ := auth.AuthTokenFromContext(c)
	if err := h.auth.RevokeToken(c.Request.Context(), token); err != nil {
		respondError(c, err)
		return
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) currentIdentity(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "type": user.Type()})
}

func (h *Handler) issueSession(c *gin.Context, user *models.User, status int) {
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		respondError(c, err)
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(status, gin.H{
		"user":       user,
		"type":       user.Type(),
		"auth_token": authToken,
	})
}

func (h *Handler) getPreferences(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	stored, err := h.auth.LoadPreferences(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, preferences.Merge(stored))
}

func (h *Handler) savePreferences(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var update preferences.Overrides
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "invalid preferences payload")
		return
	}
	if err := preferences.Validate(&update); err != nil {
		badRequest(c, err.Error())
		return
	}
	merged, err := h.auth.SavePreferences(c.Request.Context(), user.ID, &update)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, merged)
}

func (h *Handler) listHistory(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	req := store.ChatPageRequest{
		UserID:        user.ID,
		StartingAfter: c.Query("starting_after"),
		EndingBefore:  c.Query("ending_before"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "limit must be an integer")
			return
		}
		req.Limit = limit
	}
	page, err := h.store.GetChatsByUserID(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) deleteHistory(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	n, err := h.store.DeleteAllChatsByUserID(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if h.titles != nil {
		h.titles.CancelUser(user.ID)
	}
	c.JSON(http.StatusOK, gin.H{"deletedCount": n})
}

func (h *Handler) deleteAccount(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.store.DeleteAllChatsByUserID(ctx, user.ID); err != nil {
		log.Printf("[api] delete account %s: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "bad_request:database", "error": "failed to delete account"})
		return
	}
	if h.titles != nil {
		h.titles.CancelUser(user.ID)
	}
	if err := h.auth.DeleteUser(ctx, user.ID); err != nil {
		log.Printf("[api] delete account %s: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "bad_request:database", "error": "failed to delete account"})
		return
	}
	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
