package server

import (
	"io"
	"mime/multipart"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sddion/projectzg/internal/apperr"
	"github.com/sddion/projectzg/internal/social"
)

const opReadUpload = "server.read_upload"

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// readUpload reads a multipart file, refusing anything over the per-file limit.
func readUpload(fileHeader *multipart.FileHeader) ([]byte, error) {
	if fileHeader.Size > social.MaxUploadBytes {
		return nil, apperr.New(apperr.KindValidation, opReadUpload, "file_too_large", social.MessageFileTooLarge, nil)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, opReadUpload, "open_failed", social.MessageUploadFailed, err)
	}
	defer file.Close()
	body, err := io.ReadAll(io.LimitReader(file, social.MaxUploadBytes+1))
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, opReadUpload, "read_failed", social.MessageUploadFailed, err)
	}
	if len(body) > social.MaxUploadBytes {
		return nil, apperr.New(apperr.KindValidation, opReadUpload, "file_too_large", social.MessageFileTooLarge, nil)
	}
	return body, nil
}
