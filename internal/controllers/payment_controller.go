package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"school_bus/internal/fees"
)

type paymentInput struct {
	Amount number `json:"amount" binding:"required"`
	Date   string `json:"date"`
	Method string `json:"method"`
	Note   string `json:"note"`
}

// parseDate accepts RFC 3339 or a plain YYYY-MM-DD date. Empty means now.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func (h *Handler) RecordPayment(c *gin.Context) {
	var input paymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	date, err := parseDate(input.Date)
	if err != nil {
		badRequest(c, err)
		return
	}
	payment, st, err := h.fees.RecordPayment(c.Request.Context(), org(c), c.Param("roll"), fees.PaymentInput{
		Amount: float64(input.Amount),
		Date:   date,
		Method: input.Method,
		Note:   input.Note,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"payment": payment, "student": st})
}

// ListPayments returns the statement of the current fee cycle, or every
// payment including archived ones with ?all=true.
func (h *Handler) ListPayments(c *gin.Context) {
	ctx := c.Request.Context()
	if c.Query("all") == "true" {
		history, err := h.fees.History(ctx, org(c), c.Param("roll"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": history})
		return
	}
	stmt, err := h.fees.Statement(ctx, org(c), c.Param("roll"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stmt})
}

func (h *Handler) ResetStudentFees(c *gin.Context) {
	st, err := h.fees.ResetStudent(c.Request.Context(), org(c), c.Param("roll"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": st})
}

// ResetFeeCycle starts a new fee cycle for every student of the organization.
func (h *Handler) ResetFeeCycle(c *gin.Context) {
	report, err := h.fees.ResetFeeCycle(c.Request.Context(), org(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}
