package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"school_bus/internal/boarding"
)

// RequestTagWrite asks the RFID writer to write a tag for a student.
func (h *Handler) RequestTagWrite(c *gin.Context) {
	var body struct {
		RollNumber string `json:"roll_number" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	tw, err := h.boarding.RequestTagWrite(c.Request.Context(), org(c), body.RollNumber)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": tw})
}

// TagWriteStatus is polled by the admin app until the tag is saved.
func (h *Handler) TagWriteStatus(c *gin.Context) {
	tw, err := h.boarding.TagWriteStatus(c.Request.Context(), org(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tw})
}

// ReportTagWrite is called by the writer device once it wrote (or failed to
// write) the tag.
func (h *Handler) ReportTagWrite(c *gin.Context) {
	var body boarding.TagWrite
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	tw, err := h.boarding.ReportTagWrite(c.Request.Context(), org(c), body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tw})
}
