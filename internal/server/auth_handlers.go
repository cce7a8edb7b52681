package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sddion/projectzg/internal/auth"
	"github.com/sddion/projectzg/internal/storage"
	"github.com/sddion/projectzg/internal/users"
	"go.uber.org/zap"
)

const (
	messageSignUpSuccess      = "Sign up successful! Please check your email."
	messageLoginSuccess       = "Login successful!"
	messageLogoutSuccess      = "Logout successful!"
	messageResetLinkSent      = "Password reset link sent to your email."
	messagePasswordUpdated    = "Password updated successfully."
	messageOnboardingComplete = "Profile completed successfully!"
	messageLoginFieldsMissing = "Email and password are required."
	messageUsernameLogin      = "Login with Username not fully supported yet. Please use Email."
	messageEmailRequired      = "Email is required."
	messageResetFieldsMissing = "Token and password are required."
	messageRefreshMissing     = "Refresh token is required."
	messagePasswordRequired   = "Password is required (min 8 characters)"
	codePasswordRequired      = "auth.onboarding.password_required"
	resetPasswordPath         = "/reset-password"
)

type signUpRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

type loginRequestPayload struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type refreshRequestPayload struct {
	RefreshToken string `json:"refresh_token"`
}

type resetRequestPayload struct {
	Email string `json:"email"`
}

type resetUpdatePayload struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *httpHandler) handleSignUp(c *gin.Context) {
	var payload signUpRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondInvalidRequest(c)
		return
	}
	request := auth.NormalizeSignUp(auth.SignUpRequest{
		Email:    payload.Email,
		Password: payload.Password,
		Username: payload.Username,
		FullName: payload.FullName,
	})
	if err := auth.ValidateSignUp(request); err != nil {
		h.respondError(c, err)
		return
	}
	available, err := h.profiles.UsernameAvailable(c.Request.Context(), request.Username, "")
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !available {
		c.JSON(http.StatusConflict, gin.H{"error": users.MessageUsernameTaken, "code": "auth.sign_up.username_taken"})
		return
	}

	user, err := h.identity.SignUp(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": messageSignUpSuccess, "user": user})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var payload loginRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondInvalidRequest(c)
		return
	}
	identifier := strings.TrimSpace(payload.Identifier)
	if identifier == "" {
		identifier = strings.TrimSpace(payload.Email)
	}
	if identifier == "" || payload.Password == "" {
		respondBadRequest(c, codeInvalidRequest, messageLoginFieldsMissing)
		return
	}
	if !strings.Contains(identifier, "@") {
		respondBadRequest(c, "auth.login.username_unsupported", messageUsernameLogin)
		return
	}

	session, err := h.identity.SignIn(c.Request.Context(), identifier, payload.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.setSessionCookies(c, session)
	c.JSON(http.StatusOK, gin.H{"message": messageLoginSuccess, "user": session.User, "session": session})
}

func (h *httpHandler) handleRefresh(c *gin.Context) {
	refreshToken, _ := c.Cookie(refreshTokenCookie)
	if strings.TrimSpace(refreshToken) == "" {
		var payload refreshRequestPayload
		if err := c.ShouldBindJSON(&payload); err == nil {
			refreshToken = payload.RefreshToken
		}
	}
	if strings.TrimSpace(refreshToken) == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": messageRefreshMissing, "code": codeMissingToken})
		return
	}

	session, err := h.identity.Refresh(c.Request.Context(), strings.TrimSpace(refreshToken))
	if err != nil {
		h.clearSessionCookies(c)
		h.respondError(c, err)
		return
	}
	h.setSessionCookies(c, session)
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *httpHandler) handleMe(c *gin.Context) {
	identity, _ := identityFrom(c)
	c.JSON(http.StatusOK, gin.H{"user": auth.UserFromIdentity(identity)})
}

// handleLogout always clears the session cookies; a token that is present but invalid is still reported.
func (h *httpHandler) handleLogout(c *gin.Context) {
	token := extractAccessToken(c)
	h.clearSessionCookies(c)
	if token != "" {
		if err := h.identity.SignOut(c.Request.Context(), token); err != nil {
			h.respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": messageLogoutSuccess})
}

func (h *httpHandler) handleRequestPasswordReset(c *gin.Context) {
	var payload resetRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondInvalidRequest(c)
		return
	}
	email := strings.TrimSpace(payload.Email)
	if email == "" {
		respondBadRequest(c, codeInvalidRequest, messageEmailRequired)
		return
	}
	if err := h.identity.RequestPasswordReset(c.Request.Context(), email, h.config.AppURL+resetPasswordPath); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": messageResetLinkSent})
}

func (h *httpHandler) handleResetPassword(c *gin.Context) {
	var payload resetUpdatePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondInvalidRequest(c)
		return
	}
	if strings.TrimSpace(payload.Token) == "" || payload.Password == "" {
		respondBadRequest(c, codeInvalidRequest, messageResetFieldsMissing)
		return
	}
	if err := h.identity.ResetPassword(c.Request.Context(), strings.TrimSpace(payload.Token), payload.Password); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": messagePasswordUpdated})
}

// handleOnboarding completes a profile: username and gender, an optional avatar, and a new password.
// Identities from a hosted provider own no local credentials, so the password step applies only to
// sessions issued by this service.
func (h *httpHandler) handleOnboarding(c *gin.Context) {
	identity, _ := identityFrom(c)
	ctx := c.Request.Context()

	username := strings.TrimSpace(c.PostForm("username"))
	gender := strings.TrimSpace(c.PostForm("gender"))
	password := c.PostForm("password")
	if err := auth.ValidateUsername(username); err != nil {
		h.respondError(c, err)
		return
	}
	localIdentity := identity.SessionID != ""
	if localIdentity && len(password) < auth.MinPasswordLength {
		respondBadRequest(c, codePasswordRequired, messagePasswordRequired)
		return
	}

	update := users.ProfileUpdate{Username: &username, Gender: &gender}
	avatarURL := ""
	if fileHeader, err := c.FormFile("avatar"); err == nil {
		body, err := readUpload(fileHeader)
		if err != nil {
			h.respondError(c, err)
			return
		}
		upload, err := h.media.Upload(ctx, identity.UserID, storage.BucketAvatars, fileHeader.Filename, body)
		if err != nil {
			h.respondError(c, err)
			return
		}
		avatarURL = upload.URL
		update.AvatarURL = &avatarURL
	}

	if _, err := h.profiles.UpdateProfile(ctx, identity.UserID, update); err != nil {
		h.respondError(c, err)
		return
	}
	if localIdentity {
		if err := h.identity.UpdatePassword(ctx, identity.UserID, password); err != nil {
			h.logger.Error("onboarding password update failed", zap.String("user_id", identity.UserID), zap.Error(err))
			h.respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": messageOnboardingComplete, "avatar_url": avatarURL})
}
