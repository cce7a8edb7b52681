package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sddion/projectzg/internal/social"
	"github.com/sddion/projectzg/internal/storage"
	"github.com/sddion/projectzg/internal/users"
)

type updateProfilePayload struct {
	FullName  *string `json:"full_name"`
	Username  *string `json:"username"`
	Bio       *string `json:"bio"`
	Gender    *string `json:"gender"`
	AvatarURL *string `json:"avatar_url"`
}

type createStoryPayload struct {
	MediaURL  string `json:"media_url"`
	Caption   string `json:"caption"`
	MediaType string `json:"media_type"`
}

func (h *httpHandler) handleOwnProfile(c *gin.Context) {
	identity, _ := identityFrom(c)
	profile, err := h.social.OwnProfile(c.Request.Context(), identity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

// handleUpdateProfile accepts JSON, or multipart form fields with an optional avatar file.
func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	userID := viewerID(c)
	var update users.ProfileUpdate
	if isMultipart(c) {
		update = users.ProfileUpdate{
			FullName: optionalFormValue(c, "full_name"),
			Username: optionalFormValue(c, "username"),
			Bio:      optionalFormValue(c, "bio"),
			Gender:   optionalFormValue(c, "gender"),
		}
		if fileHeader, err := c.FormFile("avatar"); err == nil {
			body, err := readUpload(fileHeader)
			if err != nil {
				h.respondError(c, err)
				return
			}
			upload, err := h.media.Upload(c.Request.Context(), userID, storage.BucketAvatars, fileHeader.Filename, body)
			if err != nil {
				h.respondError(c, err)
				return
			}
			update.AvatarURL = &upload.URL
		}
	} else {
		var payload updateProfilePayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			respondInvalidRequest(c)
			return
		}
		update = users.ProfileUpdate(payload)
	}

	profile, err := h.profiles.UpdateProfile(c.Request.Context(), userID, update)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

func optionalFormValue(c *gin.Context, key string) *string {
	value, ok := c.GetPostForm(key)
	if !ok {
		return nil
	}
	return &value
}

func (h *httpHandler) handleOwnPosts(c *gin.Context) {
	userID := viewerID(c)
	h.respondPosts(c, func() ([]social.FeedPost, error) {
		return h.social.PostsByAuthor(c.Request.Context(), userID, userID)
	})
}

func (h *httpHandler) handleBookmarks(c *gin.Context) {
	h.respondPosts(c, func() ([]social.FeedPost, error) {
		return h.social.BookmarkedPosts(c.Request.Context(), viewerID(c))
	})
}

func (h *httpHandler) handleTagged(c *gin.Context) {
	h.respondPosts(c, func() ([]social.FeedPost, error) {
		return h.social.TaggedPosts(c.Request.Context(), viewerID(c))
	})
}

func (h *httpHandler) handlePublicProfilePosts(c *gin.Context) {
	h.respondPosts(c, func() ([]social.FeedPost, error) {
		return h.social.PostsByUsername(c.Request.Context(), viewerID(c), c.Param("username"))
	})
}

func (h *httpHandler) respondPosts(c *gin.Context, load func() ([]social.FeedPost, error)) {
	posts, err := load()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (h *httpHandler) handlePublicProfile(c *gin.Context) {
	profile, err := h.social.PublicProfile(c.Request.Context(), viewerID(c), c.Param("username"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

func (h *httpHandler) handleToggleFollow(c *gin.Context) {
	following, err := h.social.ToggleFollow(c.Request.Context(), viewerID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": following})
}

func (h *httpHandler) handleListStories(c *gin.Context) {
	stories, err := h.social.ActiveStories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": stories})
}

func (h *httpHandler) handleOwnStories(c *gin.Context) {
	stories, err := h.social.StoriesByUser(c.Request.Context(), viewerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": stories})
}

func (h *httpHandler) handleCreateStory(c *gin.Context) {
	userID := viewerID(c)
	draft := social.StoryDraft{}
	if isMultipart(c) {
		draft.Caption = strings.TrimSpace(c.PostForm("caption"))
		if fileHeader, err := c.FormFile("media"); err == nil {
			body, err := readUpload(fileHeader)
			if err != nil {
				h.respondError(c, err)
				return
			}
			upload, err := h.media.Upload(c.Request.Context(), userID, storage.BucketStories, fileHeader.Filename, body)
			if err != nil {
				h.respondError(c, err)
				return
			}
			draft.MediaURL = upload.URL
			draft.MediaType = upload.MediaType
		}
	} else {
		var payload createStoryPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			respondInvalidRequest(c)
			return
		}
		draft = social.StoryDraft(payload)
	}

	story, err := h.social.CreateStory(c.Request.Context(), userID, draft)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"story": story})
}
