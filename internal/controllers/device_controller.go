package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"school_bus/internal/apperr"
	"school_bus/internal/middleware"
	"school_bus/internal/models"
)

// deviceBus resolves the bus of the driver the device token was minted for.
func (h *Handler) deviceBus(c *gin.Context) (*models.Driver, string, bool) {
	d, err := h.store.Drivers.Get(c.Request.Context(), org(c), middleware.Subject(c))
	if err != nil {
		respondError(c, err)
		return nil, "", false
	}
	if d.AssignedBus == nil {
		respondError(c, apperr.Conflict("driver %q has no bus assigned", d.LicenseNumber))
		return nil, "", false
	}
	return d, *d.AssignedBus, true
}

// DeviceProfile returns the driver and bus the device acts for.
func (h *Handler) DeviceProfile(c *gin.Context) {
	ctx := c.Request.Context()
	d, err := h.store.Drivers.Get(ctx, org(c), middleware.Subject(c))
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{"driver": d, "bus": nil}
	if d.AssignedBus != nil {
		if bus, err := h.store.Buses.Get(ctx, org(c), *d.AssignedBus); err == nil {
			resp["bus"] = bus
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) StartTrip(c *gin.Context) {
	d, busID, ok := h.deviceBus(c)
	if !ok {
		return
	}
	trip, err := h.boarding.StartTrip(c.Request.Context(), org(c), busID, d.LicenseNumber)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": trip})
}

func (h *Handler) EndTrip(c *gin.Context) {
	_, busID, ok := h.deviceBus(c)
	if !ok {
		return
	}
	trip, err := h.boarding.EndTrip(c.Request.Context(), org(c), busID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": trip})
}

// RecordScan stores an RFID tap. Readers send cardId or studentId and
// scanType or type; both spellings are accepted.
func (h *Handler) RecordScan(c *gin.Context) {
	var body struct {
		CardID    string `json:"card_id"`
		CardIDAlt string `json:"cardId"`
		StudentID string `json:"studentId"`
		Type      string `json:"type"`
		ScanType  string `json:"scanType"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	card := firstNonEmpty(body.CardID, body.CardIDAlt, body.StudentID)
	kind := firstNonEmpty(body.Type, body.ScanType)

	_, busID, ok := h.deviceBus(c)
	if !ok {
		return
	}
	scan, err := h.boarding.RecordScan(c.Request.Context(), org(c), busID, card, kind)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": scan})
}

// AddStop lets a driver with can_add_stop record a new stop from the road.
func (h *Handler) AddStop(c *gin.Context) {
	d, _, ok := h.deviceBus(c)
	if !ok {
		return
	}
	if !d.CanAddStop {
		c.JSON(http.StatusForbidden, gin.H{"error": "driver may not add stops"})
		return
	}
	h.CreateStop(c)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
