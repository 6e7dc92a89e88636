package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"school_bus/internal/assignment"
	"school_bus/internal/models"
	"school_bus/internal/store"
)

var driverFields = map[string]fieldKind{
	"full_name":               textField,
	"phone_number":            textField,
	"date_of_birth":           textField,
	"joining_date":            textField,
	"license_expiry_date":     textField,
	"emergency_contact_name":  textField,
	"emergency_contact_phone": textField,
	"blood_group":             textField,
	"address":                 textField,
	"can_add_stop":            boolField,
}

type driverInput struct {
	LicenseNumber         string `json:"license_number" binding:"required"`
	FullName              string `json:"full_name" binding:"required"`
	PhoneNumber           string `json:"phone_number" binding:"required"`
	DateOfBirth           string `json:"date_of_birth"`
	JoiningDate           string `json:"joining_date"`
	LicenseExpiryDate     string `json:"license_expiry_date"`
	EmergencyContactName  string `json:"emergency_contact_name"`
	EmergencyContactPhone string `json:"emergency_contact_phone"`
	BloodGroup            string `json:"blood_group"`
	Address               string `json:"address"`
	AssignedBus           string `json:"assigned_bus"`
	CanAddStop            bool   `json:"can_add_stop"`
}

func (h *Handler) CreateDriver(c *gin.Context) {
	var input driverInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	d := &models.Driver{
		LicenseNumber:         input.LicenseNumber,
		FullName:              strings.TrimSpace(input.FullName),
		PhoneNumber:           input.PhoneNumber,
		DateOfBirth:           input.DateOfBirth,
		JoiningDate:           input.JoiningDate,
		LicenseExpiryDate:     input.LicenseExpiryDate,
		EmergencyContactName:  input.EmergencyContactName,
		EmergencyContactPhone: input.EmergencyContactPhone,
		BloodGroup:            input.BloodGroup,
		Address:               input.Address,
		AssignedBus:           models.Ref(input.AssignedBus),
		CanAddStop:            input.CanAddStop,
	}
	ctx := c.Request.Context()
	if err := h.coord.CreateDriver(ctx, org(c), d); err != nil {
		respondError(c, err)
		return
	}
	if uid := h.ensureIdentity(ctx, d.LicenseNumber, d.PhoneNumber); uid != "" {
		if err := h.store.Drivers.Update(ctx, org(c), d.LicenseNumber, map[string]any{"auth_uid": uid}); err == nil {
			d.AuthUID = uid
		}
	}
	c.JSON(http.StatusCreated, gin.H{"data": d})
}

// ListDrivers lists drivers; ?unassigned=true keeps only drivers without a bus.
func (h *Handler) ListDrivers(c *gin.Context) {
	var filters []store.Filter
	if c.Query("unassigned") == "true" {
		filters = append(filters, store.IsNull("assigned_bus"))
	}
	drivers, err := h.store.Drivers.All(c.Request.Context(), org(c), filters...)
	if err != nil {
		respondError(c, err)
		return
	}
	if drivers == nil {
		drivers = []models.Driver{}
	}
	c.JSON(http.StatusOK, gin.H{"data": drivers})
}

func (h *Handler) GetDriver(c *gin.Context) {
	d, err := h.store.Drivers.Get(c.Request.Context(), org(c), c.Param("license"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": d})
}

func (h *Handler) UpdateDriver(c *gin.Context) {
	body, ok := bindPatch(c)
	if !ok {
		return
	}
	var (
		patch assignment.DriverPatch
		err   error
	)
	if patch.Fields, err = body.fields(driverFields); err != nil {
		respondError(c, err)
		return
	}
	if patch.Bus, err = body.ref("assigned_bus"); err != nil {
		respondError(c, err)
		return
	}
	d, err := h.coord.UpdateDriver(c.Request.Context(), org(c), c.Param("license"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": d})
}

func (h *Handler) DeleteDriver(c *gin.Context) {
	if err := h.coord.DeleteDriver(c.Request.Context(), org(c), c.Param("license")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Driver deleted"})
}

// SetDriverBus assigns the driver to a bus ({"bus_id": id|null}).
func (h *Handler) SetDriverBus(c *gin.Context) {
	body, ok := bindPatch(c)
	if !ok {
		return
	}
	ref, err := body.requiredRef("bus_id")
	if err != nil {
		respondError(c, err)
		return
	}
	d, err := h.coord.AssignDriverBus(c.Request.Context(), org(c), c.Param("license"), ref.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": d})
}

func (h *Handler) UploadDriverPhoto(c *gin.Context) {
	ctx := c.Request.Context()
	license := c.Param("license")
	if _, err := h.store.Drivers.Get(ctx, org(c), license); err != nil {
		respondError(c, err)
		return
	}
	url, ok := h.uploadPhoto(c, "drivers", license)
	if !ok {
		return
	}
	if err := h.store.Drivers.Update(ctx, org(c), license, map[string]any{"photo_url": url}); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"photo_url": url})
}
