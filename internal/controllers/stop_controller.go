package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"school_bus/internal/apperr"
	"school_bus/internal/models"
)

var stopFields = map[string]fieldKind{
	"name":      textField,
	"latitude":  numberField,
	"longitude": numberField,
	"fee":       numberField,
}

type stopInput struct {
	Name      string `json:"name" binding:"required"`
	Latitude  number `json:"latitude"`
	Longitude number `json:"longitude"`
	Fee       number `json:"fee"`
}

func (h *Handler) CreateStop(c *gin.Context) {
	var input stopInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	s := &models.Stop{
		Name:      input.Name,
		Latitude:  float64(input.Latitude),
		Longitude: float64(input.Longitude),
		Fee:       float64(input.Fee),
	}
	if err := h.coord.CreateStop(c.Request.Context(), org(c), s); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": s})
}

func (h *Handler) ListStops(c *gin.Context) {
	stops, err := h.store.Stops.All(c.Request.Context(), org(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if stops == nil {
		stops = []models.Stop{}
	}
	c.JSON(http.StatusOK, gin.H{"data": stops})
}

func (h *Handler) GetStop(c *gin.Context) {
	s, err := h.store.Stops.Get(c.Request.Context(), org(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": s})
}

func (h *Handler) UpdateStop(c *gin.Context) {
	body, ok := bindPatch(c)
	if !ok {
		return
	}
	fields, err := body.fields(stopFields)
	if err != nil {
		respondError(c, err)
		return
	}
	if name, ok := fields["name"]; ok && name == "" {
		respondError(c, apperr.Validation("name must not be empty"))
		return
	}
	if fee, ok := fields["fee"].(float64); ok && fee < 0 {
		respondError(c, apperr.Validation("fee must not be negative"))
		return
	}
	s, err := h.coord.UpdateStop(c.Request.Context(), org(c), c.Param("id"), fields)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": s})
}

func (h *Handler) DeleteStop(c *gin.Context) {
	if err := h.coord.DeleteStop(c.Request.Context(), org(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Stop deleted"})
}
