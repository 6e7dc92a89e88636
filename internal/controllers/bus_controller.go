package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"school_bus/internal/apperr"
	"school_bus/internal/assignment"
	"school_bus/internal/models"
	"school_bus/internal/seats"
)

var busFields = map[string]fieldKind{
	"bus_number":   textField,
	"registration": textField,
}

type busInput struct {
	BusNumber    string `json:"bus_number" binding:"required"`
	Registration string `json:"registration" binding:"required"`
	Capacity     any    `json:"capacity"`
	DriverID     string `json:"driver_id"`
	RouteID      string `json:"route_id"`
}

// CreateBus registers a bus. Capacity accepts a number or a numeric string;
// anything else falls back to 0.
func (h *Handler) CreateBus(c *gin.Context) {
	var input busInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	capacity, ok := seats.ParseCount(input.Capacity)
	if !ok {
		logrus.WithField("capacity", input.Capacity).Warn("Invalid bus capacity, defaulting to 0")
	}
	b := &models.Bus{
		BusNumber:    input.BusNumber,
		Registration: input.Registration,
		Capacity:     capacity,
		DriverID:     models.Ref(input.DriverID),
		RouteID:      models.Ref(input.RouteID),
	}
	if err := h.coord.CreateBus(c.Request.Context(), org(c), b); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": b})
}

func (h *Handler) ListBuses(c *gin.Context) {
	buses, err := h.store.Buses.All(c.Request.Context(), org(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if buses == nil {
		buses = []models.Bus{}
	}
	c.JSON(http.StatusOK, gin.H{"data": buses})
}

func (h *Handler) GetBus(c *gin.Context) {
	b, err := h.store.Buses.Get(c.Request.Context(), org(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": b})
}

func (h *Handler) UpdateBus(c *gin.Context) {
	body, ok := bindPatch(c)
	if !ok {
		return
	}
	var (
		patch assignment.BusPatch
		err   error
	)
	if patch.Fields, err = body.fields(busFields); err != nil {
		respondError(c, err)
		return
	}
	if body.has("capacity") {
		var raw any
		if err := json.Unmarshal(body["capacity"], &raw); err != nil {
			respondError(c, apperr.Validation("capacity must be a whole number"))
			return
		}
		n, ok := seats.ParseCount(raw)
		if !ok {
			respondError(c, apperr.Validation("capacity must be a whole number"))
			return
		}
		patch.Capacity = &n
	}
	if patch.Driver, err = body.ref("driver_id"); err != nil {
		respondError(c, err)
		return
	}
	if patch.Route, err = body.ref("route_id"); err != nil {
		respondError(c, err)
		return
	}
	b, err := h.coord.UpdateBus(c.Request.Context(), org(c), c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": b})
}

func (h *Handler) DeleteBus(c *gin.Context) {
	if err := h.coord.DeleteBus(c.Request.Context(), org(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bus deleted"})
}

// SetBusDriver assigns a driver from the bus side ({"driver_id": id|null}).
func (h *Handler) SetBusDriver(c *gin.Context) {
	body, ok := bindPatch(c)
	if !ok {
		return
	}
	ref, err := body.requiredRef("driver_id")
	if err != nil {
		respondError(c, err)
		return
	}
	b, err := h.coord.AssignBusDriver(c.Request.Context(), org(c), c.Param("id"), ref.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": b})
}

// SetBusRoute assigns a route from the bus side ({"route_id": id|null}).
func (h *Handler) SetBusRoute(c *gin.Context) {
	body, ok := bindPatch(c)
	if !ok {
		return
	}
	ref, err := body.requiredRef("route_id")
	if err != nil {
		respondError(c, err)
		return
	}
	b, err := h.coord.AssignBusRoute(c.Request.Context(), org(c), c.Param("id"), ref.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": b})
}

func (h *Handler) RecalculateSeats(c *gin.Context) {
	avail, err := h.seats.Recalculate(c.Request.Context(), org(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"avail_seats": avail})
}

// Boarded lists the students currently on board according to the latest trip.
func (h *Handler) Boarded(c *gin.Context) {
	students, err := h.boarding.Boarded(c.Request.Context(), org(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": students})
}

func (h *Handler) BusLocations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	locs, err := h.tracker.History(c.Request.Context(), org(c), c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": locs})
}

func (h *Handler) BusTrips(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	trips, err := h.boarding.Trips(c.Request.Context(), org(c), c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": trips})
}
