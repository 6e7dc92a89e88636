package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"school_bus/internal/apperr"
	"school_bus/internal/assignment"
	"school_bus/internal/blob"
	"school_bus/internal/boarding"
	"school_bus/internal/fees"
	"school_bus/internal/identity"
	"school_bus/internal/middleware"
	"school_bus/internal/models"
	"school_bus/internal/realtime"
	"school_bus/internal/seats"
	"school_bus/internal/store"
	"school_bus/internal/tracking"
)

// Deps are the collaborators the handlers run on.
type Deps struct {
	DB        *gorm.DB
	Live      realtime.Store
	Hub       *realtime.Hub
	Identity  identity.Provider
	Blobs     blob.Uploader
	BatchSize int
}

// Handler serves the HTTP API of one process.
type Handler struct {
	db       *gorm.DB
	store    *store.Store
	coord    *assignment.Coordinator
	seats    *seats.Ledger
	fees     *fees.Ledger
	boarding *boarding.Service
	tracker  *tracking.Tracker
	hub      *realtime.Hub
	identity identity.Provider
	blobs    blob.Uploader
}

func New(d Deps) *Handler {
	if d.Identity == nil {
		d.Identity = identity.Static{}
	}
	if d.Blobs == nil {
		d.Blobs = blob.Disabled{}
	}
	if d.Hub == nil {
		d.Hub = realtime.NewHub()
	}
	if d.Live == nil {
		d.Live = realtime.NewDBStore(d.DB, d.Hub)
	}
	return &Handler{
		db:       d.DB,
		store:    store.New(d.DB),
		coord:    assignment.New(d.DB).WithBatchSize(d.BatchSize),
		seats:    seats.New(d.DB),
		fees:     fees.New(d.DB).WithBatchSize(d.BatchSize),
		boarding: boarding.New(d.DB, d.Live),
		tracker:  tracking.New(d.DB, d.Live),
		hub:      d.Hub,
		identity: d.Identity,
		blobs:    d.Blobs,
	}
}

// respondError writes err as {"error": ..., "kind": ...} with the status of
// its kind. Internal and upstream failures are logged.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": apperr.Message(err), "kind": apperr.KindOf(err).String()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error(), "kind": apperr.KindValidation.String()})
}

func org(c *gin.Context) string { return middleware.OrgID(c) }

// number decodes a JSON number or a numeric string.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s = strings.TrimSpace(s); s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*n = number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = number(f)
	return nil
}

type fieldKind int

const (
	textField fieldKind = iota
	numberField
	boolField
)

// patchBody is a partial update as sent by the client. Only present keys
// are applied.
type patchBody map[string]json.RawMessage

func (p patchBody) has(key string) bool {
	_, ok := p[key]
	return ok
}

// ref reads an optional reference. null and "" unassign.
func (p patchBody) ref(key string) (assignment.RefUpdate, error) {
	raw, ok := p[key]
	if !ok {
		return assignment.RefUpdate{}, nil
	}
	if string(bytes.TrimSpace(raw)) == "null" {
		return assignment.RefUpdate{Present: true}, nil
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return assignment.RefUpdate{}, apperr.Validation("%s must be a string id or null", key)
	}
	return assignment.RefUpdate{Present: true, ID: models.Ref(id)}, nil
}

// requiredRef is ref for endpoints that exist only to change the reference:
// the key must be present, null unassigns.
func (p patchBody) requiredRef(key string) (assignment.RefUpdate, error) {
	ref, err := p.ref(key)
	if err != nil {
		return ref, err
	}
	if !ref.Present {
		return ref, apperr.Validation("%s is required (use null to unassign)", key)
	}
	return ref, nil
}

// number reads a lenient number, reporting whether the key was present.
func (p patchBody) number(key string) (float64, bool, error) {
	raw, ok := p[key]
	if !ok {
		return 0, false, nil
	}
	var n number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, true, apperr.Validation("%s must be a number", key)
	}
	return float64(n), true, nil
}

// fields extracts the plain columns listed in allowed. Unknown keys are
// ignored.
func (p patchBody) fields(allowed map[string]fieldKind) (map[string]any, error) {
	out := make(map[string]any)
	for key, kind := range allowed {
		raw, ok := p[key]
		if !ok {
			continue
		}
		switch kind {
		case textField:
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, apperr.Validation("%s must be a string", key)
			}
			out[key] = strings.TrimSpace(s)
		case numberField:
			f, _, err := p.number(key)
			if err != nil {
				return nil, err
			}
			out[key] = f
		case boolField:
			var b bool
			if err := json.Unmarshal(raw, &b); err != nil {
				return nil, apperr.Validation("%s must be true or false", key)
			}
			out[key] = b
		}
	}
	return out, nil
}

func bindPatch(c *gin.Context) (patchBody, bool) {
	var body patchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return nil, false
	}
	return body, true
}

// Healthz reports whether the database answers.
func (h *Handler) Healthz(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
