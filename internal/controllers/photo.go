package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"school_bus/internal/blob"
)

const maxPhotoBytes = 5 << 20

// uploadPhoto stores the multipart "photo" file of the request under
// <org>/<kind>/<id>/ and returns its URL. On failure the response is written.
func (h *Handler) uploadPhoto(c *gin.Context, kind, id string) (string, bool) {
	fh, err := c.FormFile("photo")
	if err != nil {
		badRequest(c, err)
		return "", false
	}
	if fh.Size > maxPhotoBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo exceeds 5 MB"})
		return "", false
	}
	contentType := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo must be an image"})
		return "", false
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, err)
		return "", false
	}
	defer f.Close()

	url, err := h.blobs.Upload(c.Request.Context(), blob.ObjectPath(org(c), kind, id, fh.Filename), f, contentType)
	if err != nil {
		respondError(c, err)
		return "", false
	}
	return url, true
}
