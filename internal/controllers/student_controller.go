package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"school_bus/internal/assignment"
	"school_bus/internal/identity"
	"school_bus/internal/models"
	"school_bus/internal/store"
)

var studentFields = map[string]fieldKind{
	"full_name":     textField,
	"parent_name":   textField,
	"parent_phone":  textField,
	"student_phone": textField,
	"email":         textField,
	"address":       textField,
	"batch":         textField,
}

type studentInput struct {
	RollNumber   string `json:"roll_number" binding:"required"`
	FullName     string `json:"full_name" binding:"required"`
	ParentName   string `json:"parent_name"`
	ParentPhone  string `json:"parent_phone"`
	StudentPhone string `json:"student_phone"`
	Email        string `json:"email"`
	Address      string `json:"address"`
	Batch        string `json:"batch"`
	FeeAmount    number `json:"fee_amount"`
	BusStopID    string `json:"bus_stop_id"`
	BusID        string `json:"bus_id"`
	RouteID      string `json:"route_id"`
}

func (h *Handler) CreateStudent(c *gin.Context) {
	var input studentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	st := &models.Student{
		RollNumber:   input.RollNumber,
		FullName:     strings.TrimSpace(input.FullName),
		ParentName:   input.ParentName,
		ParentPhone:  input.ParentPhone,
		StudentPhone: input.StudentPhone,
		Email:        input.Email,
		Address:      input.Address,
		Batch:        input.Batch,
		FeeAmount:    float64(input.FeeAmount),
		BusStopID:    models.Ref(input.BusStopID),
		BusID:        models.Ref(input.BusID),
		RouteID:      models.Ref(input.RouteID),
	}
	ctx := c.Request.Context()
	if err := h.coord.CreateStudent(ctx, org(c), st); err != nil {
		respondError(c, err)
		return
	}

	phone := st.StudentPhone
	if phone == "" {
		phone = st.ParentPhone
	}
	if uid := h.ensureIdentity(ctx, st.RollNumber, phone); uid != "" {
		if err := h.store.Students.Update(ctx, org(c), st.RollNumber, map[string]any{"auth_uid": uid}); err == nil {
			st.AuthUID = uid
		}
	}
	c.JSON(http.StatusCreated, gin.H{"data": st})
}

// ensureIdentity registers uid with the sign-in provider. Failures are
// logged and yield "".
func (h *Handler) ensureIdentity(ctx context.Context, uid, phone string) string {
	got, err := h.identity.EnsureIdentity(ctx, uid, phone)
	if err != nil {
		logrus.WithError(err).WithField("uid", uid).Warn("Could not register sign-in identity")
		return ""
	}
	if _, static := h.identity.(identity.Static); static {
		return ""
	}
	return got
}

// ListStudents lists the organization's students, optionally filtered by
// bus_id, route_id or bus_stop_id.
func (h *Handler) ListStudents(c *gin.Context) {
	var filters []store.Filter
	for _, key := range []string{"bus_id", "route_id", "bus_stop_id"} {
		if v := c.Query(key); v != "" {
			filters = append(filters, store.Eq(key, v))
		}
	}
	students, err := h.store.Students.All(c.Request.Context(), org(c), filters...)
	if err != nil {
		respondError(c, err)
		return
	}
	if students == nil {
		students = []models.Student{}
	}
	c.JSON(http.StatusOK, gin.H{"data": students})
}

func (h *Handler) GetStudent(c *gin.Context) {
	st, err := h.store.Students.Get(c.Request.Context(), org(c), c.Param("roll"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": st})
}

func (h *Handler) UpdateStudent(c *gin.Context) {
	body, ok := bindPatch(c)
	if !ok {
		return
	}
	var (
		patch assignment.StudentPatch
		err   error
	)
	if patch.Fields, err = body.fields(studentFields); err != nil {
		respondError(c, err)
		return
	}
	if fee, present, err := body.number("fee_amount"); err != nil {
		respondError(c, err)
		return
	} else if present {
		patch.FeeAmount = &fee
	}
	if patch.Stop, err = body.ref("bus_stop_id"); err != nil {
		respondError(c, err)
		return
	}
	if patch.Bus, err = body.ref("bus_id"); err != nil {
		respondError(c, err)
		return
	}

	st, err := h.coord.UpdateStudent(c.Request.Context(), org(c), c.Param("roll"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": st})
}

func (h *Handler) DeleteStudent(c *gin.Context) {
	if err := h.coord.DeleteStudent(c.Request.Context(), org(c), c.Param("roll")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Student deleted"})
}

// SetStudentStop moves a student to another stop ({"bus_stop_id": id|null}).
func (h *Handler) SetStudentStop(c *gin.Context) {
	body, ok := bindPatch(c)
	if !ok {
		return
	}
	ref, err := body.requiredRef("bus_stop_id")
	if err != nil {
		respondError(c, err)
		return
	}
	st, err := h.coord.ReassignStudentStop(c.Request.Context(), org(c), c.Param("roll"), ref.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": st})
}

// SetStudentBus puts a student on a bus directly ({"bus_id": id|null}).
func (h *Handler) SetStudentBus(c *gin.Context) {
	body, ok := bindPatch(c)
	if !ok {
		return
	}
	ref, err := body.requiredRef("bus_id")
	if err != nil {
		respondError(c, err)
		return
	}
	st, err := h.coord.AssignStudentBus(c.Request.Context(), org(c), c.Param("roll"), ref.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": st})
}

func (h *Handler) UploadStudentPhoto(c *gin.Context) {
	ctx := c.Request.Context()
	roll := c.Param("roll")
	if _, err := h.store.Students.Get(ctx, org(c), roll); err != nil {
		respondError(c, err)
		return
	}
	url, ok := h.uploadPhoto(c, "students", roll)
	if !ok {
		return
	}
	if err := h.store.Students.Update(ctx, org(c), roll, map[string]any{"photo_url": url}); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"photo_url": url})
}
