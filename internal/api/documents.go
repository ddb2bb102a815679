package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"chatvault/internal/apperr"
	"chatvault/internal/models"
)

type saveDocumentRequest struct {
	Title   string              `json:"title"`
	Content *string             `json:"content"`
	Kind    models.DocumentKind `json:"kind"`
}

type suggestionInput struct {
	ID                string  `json:"id"`
	DocumentCreatedAt string  `json:"documentCreatedAt"`
	OriginalText      string  `json:"originalText"`
	SuggestedText     string  `json:"suggestedText"`
	Description       *string `json:"description"`
}

type saveSuggestionsRequest struct {
	Suggestions []suggestionInput `json:"suggestions"`
}

func (h *Handler) getDocuments(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	docs, err := h.store.GetDocumentsByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if len(docs) == 0 {
		respondError(c, apperr.New(apperr.NotFoundDocument, "document not found"))
		return
	}
	if docs[0].UserID != user.ID {
		respondError(c, apperr.New(apperr.ForbiddenDocument, "this document belongs to another user"))
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *Handler) saveDocument(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req saveDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	latest, err := h.store.GetDocumentByID(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if latest != nil && latest.UserID != user.ID {
		respondError(c, apperr.New(apperr.ForbiddenDocument, "this document belongs to another user"))
		return
	}
	doc, err := h.store.SaveDocument(ctx, models.Document{
		ID:      id,
		Title:   req.Title,
		Content: req.Content,
		Kind:    req.Kind,
		UserID:  user.ID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// deleteDocumentsAfter drops every revision newer than the timestamp query
// parameter, given as RFC 3339 or unix milliseconds.
func (h *Handler) deleteDocumentsAfter(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	ts, err := parseTimestamp(c.Query("timestamp"))
	if err != nil {
		badRequest(c, "timestamp must be RFC 3339 or unix milliseconds")
		return
	}
	ctx := c.Request.Context()
	if _, ok := h.ownedDocument(c, user, c.Param("id")); !ok {
		return
	}
	deleted, err := h.store.DeleteDocumentsByIDAfterTimestamp(ctx, c.Param("id"), ts)
	if err != nil {
		respondError(c, err)
		return
	}
	if deleted == nil {
		deleted = []models.Document{}
	}
	c.JSON(http.StatusOK, deleted)
}

func (h *Handler) listSuggestions(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if _, ok := h.ownedDocument(c, user, c.Param("id")); !ok {
		return
	}
	suggestions, err := h.store.GetSuggestionsByDocumentID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if suggestions == nil {
		suggestions = []models.Suggestion{}
	}
	c.JSON(http.StatusOK, suggestions)
}

// saveSuggestions attaches suggestions to a revision. Without an explicit
// documentCreatedAt the latest revision is used.
func (h *Handler) saveSuggestions(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req saveSuggestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Suggestions) == 0 {
		badRequest(c, "suggestions are required")
		return
	}
	latest, ok := h.ownedDocument(c, user, c.Param("id"))
	if !ok {
		return
	}
	batch := make([]models.Suggestion, 0, len(req.Suggestions))
	for _, in := range req.Suggestions {
		revision := latest.CreatedAt
		if in.DocumentCreatedAt != "" {
			ts, err := parseTimestamp(in.DocumentCreatedAt)
			if err != nil {
				badRequest(c, "documentCreatedAt must be RFC 3339 or unix milliseconds")
				return
			}
			revision = ts
		}
		batch = append(batch, models.Suggestion{
			ID:                in.ID,
			DocumentID:        latest.ID,
			DocumentCreatedAt: revision,
			OriginalText:      in.OriginalText,
			SuggestedText:     in.SuggestedText,
			Description:       in.Description,
			UserID:            user.ID,
		})
	}
	saved, err := h.store.SaveSuggestions(c.Request.Context(), batch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

// ownedDocument writes the error response itself and reports false on failure.
func (h *Handler) ownedDocument(c *gin.Context, user *models.User, id string) (*models.Document, bool) {
	doc, err := h.store.GetDocumentByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if doc == nil {
		respondError(c, apperr.New(apperr.NotFoundDocument, "document not found"))
		return nil, false
	}
	if doc.UserID != user.ID {
		respondError(c, apperr.New(apperr.ForbiddenDocument, "this document belongs to another user"))
		return nil, false
	}
	return doc, true
}

func parseTimestamp(raw string) (time.Time, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}
