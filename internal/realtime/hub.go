// Package realtime is the key/value channel shared with the mobile apps and
// the admin dashboards, plus the websocket hub that fans updates out per
// organization.
package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Event is one update of a realtime key.
type Event struct {
	OrgID string          `json:"org_id"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
}

// WriteWait is how long one broadcast write may take before the subscriber
// is dropped.
const WriteWait = 10 * time.Second

// Conn is the write side of a subscriber. *websocket.Conn satisfies it.
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v any) error
}

// Hub keeps the subscribers of every organization and broadcasts events to
// them. All writes happen on the hub goroutine, so a connection never sees
// two concurrent writers.
type Hub struct {
	clients   map[string]map[Conn]bool
	broadcast chan Event
	mu        sync.Mutex
	closeOnce sync.Once
	writeWait time.Duration
}

// NewHub creates a hub and starts its broadcast loop.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Conn]bool),
		broadcast: make(chan Event, 100),
		writeWait: WriteWait,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for ev := range h.broadcast {
		for _, c := range h.subscribers(ev.OrgID) {
			if err := h.write(c, ev); err != nil {
				if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					logrus.WithFields(logrus.Fields{
						"org_id":   ev.OrgID,
						"conn_ptr": fmt.Sprintf("%p", c),
					}).Info("Client connection closed during broadcast, unregistering.")
				} else {
					logrus.WithError(err).WithFields(logrus.Fields{
						"org_id":   ev.OrgID,
						"conn_ptr": fmt.Sprintf("%p", c),
					}).Warn("Failed to send broadcast message to client, unregistering.")
				}
				h.Unregister(ev.OrgID, c)
			}
		}
	}
}

func (h *Hub) write(c Conn, ev Event) error {
	if err := c.SetWriteDeadline(time.Now().Add(h.writeWait)); err != nil {
		return err
	}
	return c.WriteJSON(ev)
}

func (h *Hub) subscribers(org string) []Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Conn, 0, len(h.clients[org]))
	for c := range h.clients[org] {
		out = append(out, c)
	}
	return out
}

// Register subscribes conn to the events of org.
func (h *Hub) Register(org string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[org]; !ok {
		h.clients[org] = make(map[Conn]bool)
	}
	h.clients[org][conn] = true
	logrus.WithFields(logrus.Fields{
		"org_id":   org,
		"conn_ptr": fmt.Sprintf("%p", conn),
	}).Info("Client registered with realtime hub.")
}

// Unregister drops conn. Unknown connections are ignored.
func (h *Hub) Unregister(org string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[org]
	if !ok || !clients[conn] {
		return
	}
	delete(clients, conn)
	if len(clients) == 0 {
		delete(h.clients, org)
	}
	logrus.WithFields(logrus.Fields{
		"org_id":   org,
		"conn_ptr": fmt.Sprintf("%p", conn),
	}).Info("Client unregistered from realtime hub.")
}

// Subscribers returns how many connections listen to org.
func (h *Hub) Subscribers(org string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[org])
}

// Publish queues ev for broadcast. A full queue drops the event.
func (h *Hub) Publish(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		logrus.WithField("org_id", ev.OrgID).Warn("Realtime broadcast channel full, dropping message.")
	}
}

// Close stops the broadcast loop. Publishing after Close panics.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.broadcast) })
}
