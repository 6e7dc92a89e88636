package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"school_bus/internal/apperr"
	"school_bus/internal/middleware"
	"school_bus/internal/tracking"
)

// upgrader configures the WebSocket connection. Origins are checked by the
// CORS layer and the token, not here.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleLocationWebSocket serves /ws/location. Driver devices stream GPS
// fixes; admins receive every realtime update of their organization.
func (h *Handler) HandleLocationWebSocket(c *gin.Context) {
	role := c.GetString(middleware.CtxRole)
	if role != middleware.RoleDriver && role != middleware.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized role for WebSocket connection"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("Failed to upgrade WebSocket connection.")
		return
	}
	defer conn.Close()

	if role == middleware.RoleDriver {
		h.handleDriverWebSocket(c, conn)
	} else {
		h.handleAdminWebSocket(c, conn)
	}
}

func (h *Handler) handleDriverWebSocket(c *gin.Context, conn *websocket.Conn) {
	orgID, license := org(c), middleware.Subject(c)
	log := logrus.WithFields(logrus.Fields{
		"org_id":    orgID,
		"driver_id": license,
		"conn_ptr":  fmt.Sprintf("%p", conn),
	})
	log.Info("Driver WebSocket connection established.")

	for {
		messageType, p, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Info("Driver WebSocket closed.")
			} else {
				log.WithError(err).Error("Error reading WebSocket message from driver")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var fix tracking.Fix
		if err := json.Unmarshal(p, &fix); err != nil {
			log.WithError(err).WithField("payload", string(p)).Warn("Invalid location payload")
			_ = conn.WriteJSON(gin.H{"error": "Invalid location data format. Check timestamp format."})
			continue
		}
		res, err := h.tracker.Process(c.Request.Context(), orgID, license, fix)
		if err != nil {
			_ = conn.WriteJSON(gin.H{"error": apperr.Message(err), "kind": apperr.KindOf(err).String()})
			continue
		}
		if err := conn.WriteJSON(res); err != nil {
			log.WithError(err).Warn("Failed to acknowledge location")
			return
		}
	}
}

func (h *Handler) handleAdminWebSocket(c *gin.Context, conn *websocket.Conn) {
	orgID := org(c)
	h.hub.Register(orgID, conn)
	defer h.hub.Unregister(orgID, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("org_id", orgID).Warn("Error reading from dashboard WebSocket")
			}
			return
		}
		logrus.WithField("org_id", orgID).Debug("Dashboard sent unexpected message. Ignoring.")
	}
}
