package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sddion/projectzg/internal/apperr"
	"github.com/sddion/projectzg/internal/auth"
	"go.uber.org/zap"
)

const (
	identityContextKey    = "zg_identity"
	accessTokenCookie     = "sb-access-token"
	refreshTokenCookie    = "sb-refresh-token"
	defaultAccessMaxAge   = 3600
	refreshCookieMaxAge   = 30 * 24 * 60 * 60
	codeMissingToken      = "missing_token"
	codeInvalidToken      = "invalid_token"
	codeTokenExpired      = "token_expired"
	messageAuthRequired   = "Authentication required"
	messageInvalidSession = "Invalid or expired session"
)

// requireAuth resolves the caller from the bearer header or the access cookie and provisions their profile.
func (h *httpHandler) requireAuth(c *gin.Context) {
	token := extractAccessToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": messageAuthRequired, "code": codeMissingToken})
		return
	}
	identity, err := h.identity.VerifyAccessToken(c.Request.Context(), token)
	if err != nil {
		if apperr.IsKind(err, apperr.KindUpstream) {
			h.abortWithError(c, err)
			return
		}
		h.clearSessionCookies(c)
		code := h.logTokenFailure(err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": messageInvalidSession, "code": code})
		return
	}
	if err := h.profiles.EnsureProvisioned(c.Request.Context(), identity); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Set(identityContextKey, identity)
	c.Next()
}

// optionalAuth attaches the caller when a valid token is present and otherwise continues as a guest.
func (h *httpHandler) optionalAuth(c *gin.Context) {
	token := extractAccessToken(c)
	if token == "" {
		c.Next()
		return
	}
	identity, err := h.identity.VerifyAccessToken(c.Request.Context(), token)
	if err != nil {
		h.clearSessionCookies(c)
		h.logTokenFailure(err)
		c.Next()
		return
	}
	if err := h.profiles.EnsureProvisioned(c.Request.Context(), identity); err != nil {
		h.logger.Warn("guest route provisioning failed", zap.String("user_id", identity.UserID), zap.Error(err))
	}
	c.Set(identityContextKey, identity)
	c.Next()
}

func (h *httpHandler) logTokenFailure(err error) string {
	if errors.Is(err, auth.ErrExpiredSessionToken) {
		h.logger.Info("token validation failed", zap.Error(err))
		return codeTokenExpired
	}
	h.logger.Warn("token validation failed", zap.Error(err))
	return codeInvalidToken
}

func extractAccessToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) > len("Bearer ") && strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		if token := strings.TrimSpace(header[len("Bearer "):]); token != "" {
			return token
		}
	}
	if cookie, err := c.Cookie(accessTokenCookie); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

func identityFrom(c *gin.Context) (auth.Identity, bool) {
	value, ok := c.Get(identityContextKey)
	if !ok {
		return auth.Identity{}, false
	}
	identity, ok := value.(auth.Identity)
	return identity, ok
}

// viewerID is the caller's id, or empty for guests.
func viewerID(c *gin.Context) string {
	identity, _ := identityFrom(c)
	return identity.UserID
}

func (h *httpHandler) setSessionCookies(c *gin.Context, session auth.Session) {
	maxAge := int(session.ExpiresIn)
	if maxAge <= 0 {
		maxAge = defaultAccessMaxAge
	}
	h.applySameSite(c)
	secure := h.config.IsProduction()
	c.SetCookie(accessTokenCookie, session.AccessToken, maxAge, "/", "", secure, true)
	if session.RefreshToken != "" {
		c.SetCookie(refreshTokenCookie, session.RefreshToken, refreshCookieMaxAge, "/", "", secure, true)
	}
}

func (h *httpHandler) clearSessionCookies(c *gin.Context) {
	h.applySameSite(c)
	secure := h.config.IsProduction()
	c.SetCookie(accessTokenCookie, "", -1, "/", "", secure, true)
	c.SetCookie(refreshTokenCookie, "", -1, "/", "", secure, true)
}

func (h *httpHandler) applySameSite(c *gin.Context) {
	if h.config.IsProduction() {
		c.SetSameSite(http.SameSiteStrictMode)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
}

// limitResetRequests allows a few password reset requests per client address. Limiter failures let the
// request through.
func (h *httpHandler) limitResetRequests(c *gin.Context) {
	allowed, err := h.resetLimiter.Allow(c.Request.Context(), c.ClientIP())
	if err != nil {
		h.logger.Warn("rate limiter unavailable", zap.String("route", c.FullPath()), zap.Error(err))
		c.Next()
		return
	}
	if !allowed {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "Too many password reset attempts, please try again later",
			"code":  "rate_limited",
		})
		return
	}
	c.Next()
}
