package controllers

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/twpayne/go-geom"
	gjson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"

	"school_bus/internal/assignment"
	"school_bus/internal/models"
)

var routeFields = map[string]fieldKind{
	"name":        textField,
	"description": textField,
}

// RouteResponse mirrors models.Route with the geometry as GeoJSON and the
// number of the bus serving it.
type RouteResponse struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Stops       []models.StopRef `json:"stops"`
	AssignedBus *string          `json:"assigned_bus"`
	BusNumber   string           `json:"bus_number"`
	Geometry    json.RawMessage  `json:"geometry,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (h *Handler) toRouteResponse(ctx context.Context, route *models.Route) RouteResponse {
	resp := RouteResponse{
		ID:          route.ID,
		Name:        route.Name,
		Description: route.Description,
		Stops:       route.Stops,
		AssignedBus: route.AssignedBus,
		BusNumber:   "Unassigned",
		CreatedAt:   route.CreatedAt,
		UpdatedAt:   route.UpdatedAt,
	}
	if resp.Stops == nil {
		resp.Stops = []models.StopRef{}
	}
	if route.AssignedBus != nil {
		if bus, err := h.store.Buses.Get(ctx, route.OrgID, *route.AssignedBus); err == nil {
			resp.BusNumber = bus.BusNumber
		} else {
			resp.BusNumber = *route.AssignedBus
		}
	}
	if g, err := convertWKBToGeoJSON(route.Geometry); err != nil {
		logrus.WithError(err).WithField("route_id", route.ID).Warn("Stored route geometry is unreadable")
	} else if g != "" {
		resp.Geometry = json.RawMessage(g)
	}
	return resp
}

// parseAndConvertGeometry parses a GeoJSON LineString (an object or a string
// holding one) and returns it as WKB. Empty input yields nil.
func parseAndConvertGeometry(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" || string(raw) == `""` {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		raw = json.RawMessage(s)
	}
	var g geom.T
	if err := gjson.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	if _, ok := g.(*geom.LineString); !ok {
		return nil, errors.New("geometry must be a LineString")
	}
	return wkb.Marshal(g, binary.LittleEndian)
}

// convertWKBToGeoJSON converts WKB bytes into a GeoJSON string
func convertWKBToGeoJSON(wkbBytes []byte) (string, error) {
	if len(wkbBytes) == 0 {
		return "", nil
	}
	g, err := wkb.Unmarshal(wkbBytes)
	if err != nil {
		return "", err
	}
	b, err := gjson.Marshal(g)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h *Handler) CreateRoute(c *gin.Context) {
	var input struct {
		Name        string           `json:"name" binding:"required"`
		Description string           `json:"description"`
		Stops       []models.StopRef `json:"stops"`
		AssignedBus string           `json:"assigned_bus"`
		Geometry    json.RawMessage  `json:"geometry"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		logrus.WithError(err).Warn("CreateRoute: invalid input payload")
		badRequest(c, err)
		return
	}
	wkbGeom, err := parseAndConvertGeometry(input.Geometry)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid geometry: " + err.Error(), "kind": "validation"})
		return
	}

	route := &models.Route{
		Name:        input.Name,
		Description: input.Description,
		Stops:       input.Stops,
		AssignedBus: models.Ref(input.AssignedBus),
		Geometry:    wkbGeom,
	}
	ctx := c.Request.Context()
	if err := h.coord.CreateRoute(ctx, org(c), route); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": h.toRouteResponse(ctx, route)})
}

func (h *Handler) ListRoutes(c *gin.Context) {
	ctx := c.Request.Context()
	out := []RouteResponse{}
	for r, err := range h.store.Routes.List(ctx, org(c)) {
		if err != nil {
			respondError(c, err)
			return
		}
		out = append(out, h.toRouteResponse(ctx, r))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *Handler) GetRoute(c *gin.Context) {
	ctx := c.Request.Context()
	r, err := h.store.Routes.Get(ctx, org(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.toRouteResponse(ctx, r)})
}

func (h *Handler) UpdateRoute(c *gin.Context) {
	body, ok := bindPatch(c)
	if !ok {
		return
	}
	var (
		patch assignment.RoutePatch
		err   error
	)
	if patch.Fields, err = body.fields(routeFields); err != nil {
		respondError(c, err)
		return
	}
	if body.has("geometry") {
		wkbGeom, err := parseAndConvertGeometry(body["geometry"])
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid geometry: " + err.Error(), "kind": "validation"})
			return
		}
		patch.Fields["geometry"] = wkbGeom
	}
	if body.has("stops") {
		if err := json.Unmarshal(body["stops"], &patch.Stops); err != nil {
			badRequest(c, err)
			return
		}
		patch.ReplaceStops = true
	}
	if patch.Bus, err = body.ref("assigned_bus"); err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	r, err := h.coord.UpdateRoute(ctx, org(c), c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.toRouteResponse(ctx, r)})
}

func (h *Handler) DeleteRoute(c *gin.Context) {
	if err := h.coord.DeleteRoute(c.Request.Context(), org(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Route deleted successfully"})
}

// SetRouteBus assigns a bus from the route side ({"bus_id": id|null}).
func (h *Handler) SetRouteBus(c *gin.Context) {
	body, ok := bindPatch(c)
	if !ok {
		return
	}
	ref, err := body.requiredRef("bus_id")
	if err != nil {
		respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	r, err := h.coord.AssignRouteBus(ctx, org(c), c.Param("id"), ref.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.toRouteResponse(ctx, r)})
}

// SetRouteStops replaces the stop list ({"stops": [...]}) and resyncs the
// route's students.
func (h *Handler) SetRouteStops(c *gin.Context) {
	var input struct {
		Stops []models.StopRef `json:"stops" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	r, err := h.coord.SyncRouteStops(ctx, org(c), c.Param("id"), input.Stops)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.toRouteResponse(ctx, r)})
}
