package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatvault/internal/apperr"
	"chatvault/internal/auth"
	"chatvault/internal/config"
	"chatvault/internal/models"
	"chatvault/internal/store"
	"chatvault/internal/worker"
)

// TitleScheduler queues background title generation for new chats.
type TitleScheduler interface {
	ScheduleTitle(task worker.TitleTask) bool
	CancelUser(userID string)
}

// Handler wires HTTP routes to the chat store and the identity service.
type Handler struct {
	store        store.Repository
	auth         *auth.Service
	titles       TitleScheduler
	entitlements config.Entitlements
}

// NewHandler constructs a Handler instance. titles may be nil.
func NewHandler(repo store.Repository, authService *auth.Service, titles TitleScheduler, entitlements config.Entitlements) *Handler {
	return &Handler{
		store:        repo,
		auth:         authService,
		titles:       titles,
		entitlements: entitlements,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/auth/register", h.registerUser)
	api.POST("/auth/login", h.loginUser)
	api.POST("/auth/guest", h.guestLogin)

	authed := api.Group("")
	authed.Use(h.auth.Middleware(), h.auth.CSRFMiddleware())
	authed.POST("/auth/upgrade", h.upgradeGuest)
	authed.POST("/auth/logout", h.logoutUser)
	authed.GET("/auth/me", h.currentIdentity)

	authed.GET("/preferences", h.getPreferences)
	authed.POST("/preferences", h.savePreferences)
	authed.GET("/history", h.listHistory)
	authed.DELETE("/history", h.deleteHistory)
	authed.DELETE("/account", h.deleteAccount)

	authed.POST("/chats", h.createChat)
	authed.GET("/chats/:id", h.getChat)
	authed.DELETE("/chats/:id", h.deleteChat)
	authed.PATCH("/chats/:id/visibility", h.updateVisibility)
	authed.GET("/chats/:id/messages", h.listMessages)
	authed.POST("/chats/:id/messages", h.postMessages)
	authed.GET("/chats/:id/votes", h.listVotes)
	authed.GET("/chats/:id/streams", h.listStreams)
	authed.POST("/chats/:id/streams", h.createStream)
	authed.DELETE("/messages/:id/trailing", h.deleteTrailingMessages)
	authed.PATCH("/vote", h.voteMessage)

	authed.GET("/documents/:id", h.getDocuments)
	authed.POST("/documents/:id", h.saveDocument)
	authed.DELETE("/documents/:id", h.deleteDocumentsAfter)
	authed.GET("/documents/:id/suggestions", h.listSuggestions)
	authed.POST("/documents/:id/suggestions", h.saveSuggestions)
}

func (h *Handler) currentUser(c *gin.Context) (*models.User, bool) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": string(apperr.Unauthorized), "error": "authorization required"})
		return nil, false
	}
	return user, true
}

// respondError writes err using its kind. Database details stay in the log.
func respondError(c *gin.Context, err error) {
	status := apperr.StatusCode(err)
	if status >= http.StatusInternalServerError || apperr.KindOf(err).Surface() == "database" {
		log.Printf("[api] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	kind := apperr.KindOf(err)
	if kind == "" {
		kind = "internal:api"
	}
	c.JSON(status, gin.H{"code": string(kind), "error": apperr.PublicMessage(err)})
}

func badRequest(c *gin.Context, message string) {
	respondError(c, apperr.New(apperr.BadRequestAPI, message))
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}
