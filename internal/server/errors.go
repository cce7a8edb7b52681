package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sddion/projectzg/internal/apperr"
	"go.uber.org/zap"
)

const (
	codeInvalidRequest    = "invalid_request"
	codeInternalError     = "internal_error"
	messageInvalidRequest = "Invalid request body"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:   http.StatusBadRequest,
	apperr.KindUnauthorized: http.StatusUnauthorized,
	apperr.KindForbidden:    http.StatusForbidden,
	apperr.KindNotFound:     http.StatusNotFound,
	apperr.KindConflict:     http.StatusConflict,
	apperr.KindUpstream:     http.StatusInternalServerError,
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status, body := h.errorResponse(c, err)
	c.JSON(status, body)
}

func (h *httpHandler) abortWithError(c *gin.Context, err error) {
	status, body := h.errorResponse(c, err)
	c.AbortWithStatusJSON(status, body)
}

func (h *httpHandler) errorResponse(c *gin.Context, err error) (int, gin.H) {
	appErr, ok := apperr.As(err)
	if !ok {
		h.logger.Error("unclassified request error", zap.String("path", c.FullPath()), zap.Error(err))
		return http.StatusInternalServerError, gin.H{"error": "Internal Server Error", "code": codeInternalError}
	}
	status, known := statusByKind[appErr.Kind()]
	if !known {
		status = http.StatusInternalServerError
	}
	return status, gin.H{"error": appErr.Message(), "code": appErr.Code()}
}

func respondInvalidRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": messageInvalidRequest, "code": codeInvalidRequest})
}

func respondBadRequest(c *gin.Context, code string, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": code})
}
