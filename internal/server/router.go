package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sddion/projectzg/internal/auth"
	"github.com/sddion/projectzg/internal/config"
	"github.com/sddion/projectzg/internal/ratelimit"
	"github.com/sddion/projectzg/internal/social"
	"github.com/sddion/projectzg/internal/users"
	"go.uber.org/zap"
)

const (
	apiPrefix                = "/api"
	mediaPrefix              = "/media"
	defaultHeartbeatInterval = 25 * time.Second
	contentSecurityPolicy    = "default-src 'self'; img-src 'self' data: https:; media-src 'self' https:; " +
		"connect-src 'self'; frame-ancestors 'none'; base-uri 'self'"
)

var (
	errMissingIdentityProvider = errors.New("identity provider dependency required")
	errMissingProfileService   = errors.New("profile service dependency required")
	errMissingSocialService    = errors.New("social service dependency required")
	errMissingMediaService     = errors.New("media service dependency required")
	errMissingResetLimiter     = errors.New("reset limiter dependency required")
)

// IdentityProvider signs users in and verifies their access tokens.
type IdentityProvider interface {
	SignUp(ctx context.Context, request auth.SignUpRequest) (auth.User, error)
	SignIn(ctx context.Context, email string, password string) (auth.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (auth.Session, error)
	RequestPasswordReset(ctx context.Context, email string, redirectURL string) error
	ResetPassword(ctx context.Context, token string, password string) error
	UpdatePassword(ctx context.Context, userID string, password string) error
	VerifyAccessToken(ctx context.Context, accessToken string) (auth.Identity, error)
}

// Dependencies are the collaborators of the HTTP handler.
type Dependencies struct {
	Identity     IdentityProvider
	Profiles     *users.Service
	Social       *social.Service
	Media        *social.MediaService
	ResetLimiter ratelimit.Limiter
	Realtime     *RealtimeDispatcher
	// MediaRoot is served under /media when uploads live on local disk.
	MediaRoot string
	Config    config.AppConfig
	Logger    *zap.Logger
}

type httpHandler struct {
	identity     IdentityProvider
	profiles     *users.Service
	social       *social.Service
	media        *social.MediaService
	resetLimiter ratelimit.Limiter
	realtime     *RealtimeDispatcher
	config       config.AppConfig
	heartbeat    time.Duration
	logger       *zap.Logger
}

// NewHTTPHandler wires every route under /api.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Identity == nil {
		return nil, errMissingIdentityProvider
	}
	if deps.Profiles == nil {
		return nil, errMissingProfileService
	}
	if deps.Social == nil {
		return nil, errMissingSocialService
	}
	if deps.Media == nil {
		return nil, errMissingMediaService
	}
	if deps.ResetLimiter == nil {
		return nil, errMissingResetLimiter
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher(logger)
	}

	handler := &httpHandler{
		identity:     deps.Identity,
		profiles:     deps.Profiles,
		social:       deps.Social,
		media:        deps.Media,
		resetLimiter: deps.ResetLimiter,
		realtime:     realtime,
		config:       deps.Config,
		heartbeat:    defaultHeartbeatInterval,
		logger:       logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(securityHeaders())
	router.Use(corsMiddleware(deps.Config.AllowedOrigins))

	if deps.MediaRoot != "" {
		router.Static(mediaPrefix, deps.MediaRoot)
	}

	api := router.Group(apiPrefix)
	api.GET("/healthz", handler.handleHealth)
	api.GET("/config", handler.handleConfig)

	authRoutes := api.Group("/auth")
	authRoutes.POST("/signup", handler.handleSignUp)
	authRoutes.POST("/login", handler.handleLogin)
	authRoutes.POST("/refresh", handler.handleRefresh)
	authRoutes.POST("/logout", handler.handleLogout)
	authRoutes.POST("/reset-password", handler.limitResetRequests, handler.handleRequestPasswordReset)
	authRoutes.POST("/reset-password/update", handler.handleResetPassword)
	authRoutes.GET("/me", handler.requireAuth, handler.handleMe)
	authRoutes.POST("/onboarding", handler.requireAuth, handler.handleOnboarding)

	guest := api.Group("/")
	guest.Use(handler.optionalAuth)
	guest.GET("/posts/:id/comments", handler.handleListComments)
	guest.GET("/profile/:username", handler.handlePublicProfile)
	guest.GET("/profile/:username/posts", handler.handlePublicProfilePosts)

	protected := api.Group("/")
	protected.Use(handler.requireAuth)
	protected.GET("/posts", handler.handleFeed)
	protected.POST("/posts", handler.handleCreatePost)
	protected.PUT("/posts/:id", handler.handleUpdatePost)
	protected.DELETE("/posts/:id", handler.handleDeletePost)
	protected.POST("/posts/:id/like", handler.handleToggleLike)
	protected.POST("/posts/:id/bookmark", handler.handleToggleBookmark)
	protected.POST("/posts/:id/comments", handler.handleCreateComment)
	protected.PUT("/comments/:id", handler.handleUpdateComment)
	protected.DELETE("/comments/:id", handler.handleDeleteComment)
	protected.GET("/stories", handler.handleListStories)
	protected.POST("/stories", handler.handleCreateStory)
	protected.GET("/profile", handler.handleOwnProfile)
	protected.PUT("/profile", handler.handleUpdateProfile)
	protected.GET("/profile/posts", handler.handleOwnPosts)
	protected.GET("/profile/bookmarks", handler.handleBookmarks)
	protected.GET("/profile/tagged", handler.handleTagged)
	protected.GET("/profile/stories", handler.handleOwnStories)
	protected.POST("/profile/follow/:id", handler.handleToggleFollow)
	protected.GET("/notifications", handler.handleNotifications)
	protected.POST("/notifications/read", handler.handleMarkNotificationsRead)
	protected.GET("/notifications/stream", handler.handleNotificationStream)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	wildcard := len(allowedOrigins) == 0
	for _, origin := range allowedOrigins {
		if origin == "*" {
			wildcard = true
			continue
		}
		origins = append(origins, strings.TrimRight(origin, "/"))
	}
	if wildcard {
		// Credentialed requests cannot use "*", so any origin is reflected instead.
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("X-Content-Type-Options", "nosniff")
		header.Set("X-Frame-Options", "DENY")
		header.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		header.Set("Content-Security-Policy", contentSecurityPolicy)
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if identity, ok := identityFrom(c); ok {
			fields = append(fields, zap.String("user_id", identity.UserID))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("http request", fields...)
			return
		}
		logger.Info("http request", fields...)
	}
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"api_url":     h.config.AppURL + apiPrefix,
		"storage_url": h.config.Storage.PublicBaseURL,
		"environment": h.config.Environment,
	})
}
