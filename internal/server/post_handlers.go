package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sddion/projectzg/internal/apperr"
	"github.com/sddion/projectzg/internal/social"
	"github.com/sddion/projectzg/internal/storage"
)

const (
	messagePostDeleted    = "Post deleted successfully"
	messageCommentDeleted = "Comment deleted successfully"
	messageInvalidCursor  = "Invalid before cursor"
	opCreatePostRequest   = "server.create_post"
)

type createPostPayload struct {
	Content   string   `json:"content"`
	MediaURLs []string `json:"media_urls"`
}

type updatePostPayload struct {
	Content   string    `json:"content"`
	MediaURLs *[]string `json:"media_urls"`
}

type commentPayload struct {
	Content  string `json:"content"`
	ParentID string `json:"parent_id" binding:"max=36"`
}

type updateCommentPayload struct {
	Content string `json:"content"`
}

func (h *httpHandler) handleFeed(c *gin.Context) {
	query := social.FeedQuery{
		ViewerID: viewerID(c),
		Mode:     social.ParseFeedMode(c.Query("filter")),
	}
	if raw := strings.TrimSpace(c.Query("before")); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			respondBadRequest(c, codeInvalidRequest, messageInvalidCursor)
			return
		}
		query.Before = &before
	}
	posts, err := h.social.Feed(c.Request.Context(), query)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// handleCreatePost accepts either multipart content with up to four media files or JSON with uploaded URLs.
func (h *httpHandler) handleCreatePost(c *gin.Context) {
	userID := viewerID(c)
	draft := social.PostDraft{}
	if isMultipart(c) {
		draft.Content = c.PostForm("content")
		form, err := c.MultipartForm()
		if err != nil {
			respondInvalidRequest(c)
			return
		}
		files := form.File["media"]
		if len(files) > social.MaxMediaPerPost {
			h.respondError(c, apperr.New(apperr.KindValidation, opCreatePostRequest, "too_many_media", social.MessageTooManyMedia, nil))
			return
		}
		for _, fileHeader := range files {
			body, err := readUpload(fileHeader)
			if err != nil {
				h.respondError(c, err)
				return
			}
			upload, err := h.media.Upload(c.Request.Context(), userID, storage.BucketPosts, fileHeader.Filename, body)
			if err != nil {
				h.respondError(c, err)
				return
			}
			draft.MediaURLs = append(draft.MediaURLs, upload.URL)
		}
	} else {
		var payload createPostPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			respondInvalidRequest(c)
			return
		}
		draft.Content = payload.Content
		draft.MediaURLs = payload.MediaURLs
	}

	post, err := h.social.CreatePost(c.Request.Context(), userID, draft)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post": post})
}

func (h *httpHandler) handleUpdatePost(c *gin.Context) {
	var payload updatePostPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondInvalidRequest(c)
		return
	}
	post, err := h.social.UpdatePost(c.Request.Context(), viewerID(c), c.Param("id"), social.PostEdit{
		Content:   payload.Content,
		MediaURLs: payload.MediaURLs,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post})
}

func (h *httpHandler) handleDeletePost(c *gin.Context) {
	if err := h.social.DeletePost(c.Request.Context(), viewerID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": messagePostDeleted})
}

func (h *httpHandler) handleToggleLike(c *gin.Context) {
	liked, err := h.social.ToggleLike(c.Request.Context(), viewerID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": liked})
}

func (h *httpHandler) handleToggleBookmark(c *gin.Context) {
	bookmarked, err := h.social.ToggleBookmark(c.Request.Context(), viewerID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookmarked": bookmarked})
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	thread, err := h.social.Comments(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

func (h *httpHandler) handleCreateComment(c *gin.Context) {
	var payload commentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondInvalidRequest(c)
		return
	}
	comment, err := h.social.CreateComment(c.Request.Context(), viewerID(c), c.Param("id"), social.CommentDraft{
		Content:  payload.Content,
		ParentID: payload.ParentID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment": comment})
}

func (h *httpHandler) handleUpdateComment(c *gin.Context) {
	var payload updateCommentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondInvalidRequest(c)
		return
	}
	comment, err := h.social.UpdateComment(c.Request.Context(), viewerID(c), c.Param("id"), payload.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comment": comment})
}

func (h *httpHandler) handleDeleteComment(c *gin.Context) {
	postID, err := h.social.DeleteComment(c.Request.Context(), viewerID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": messageCommentDeleted, "postId": postID})
}
