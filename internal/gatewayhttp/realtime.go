package gatewayhttp

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/homepilot/control-plane/internal/automation"
	"github.com/homepilot/control-plane/internal/bus"
	"github.com/homepilot/control-plane/internal/httpjson"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxMessageSize = 4096
	sendQueueSize  = 64
)

// broadcastTopics are the bus events forwarded to every realtime client.
var broadcastTopics = []string{
	"device-updated",
	"scene-activated",
	"security-mode-changed",
	"energy:update",
	"error-storm",
	"circuit-open",
	"zone-fault",
}

// Envelope is the wire frame for both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Hub tracks connected realtime clients and fans bus events out to them.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]bool)}
}

// SubscribeBroadcasts wires the hub to the outbound bus topics.
func (h *Hub) SubscribeBroadcasts(b interface {
	Subscribe(event, system string, fn bus.Handler)
}) {
	for _, topic := range broadcastTopics {
		topic := topic
		b.Subscribe(topic, "gateway", func(payload any) {
			h.Broadcast(topic, payload)
		})
	}
}

// Broadcast sends one event to every connected client. A client whose send
// queue is full is dropped rather than blocking the publisher.
func (h *Hub) Broadcast(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

// CloseAll disconnects every client, used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.conn.Close()
		delete(h.clients, c)
		close(c.send)
	}
}

// verifyRealtimeToken checks the handshake token against the configured
// HMAC secret. In production a missing or invalid token rejects the socket.
func verifyRealtimeToken(token, secret string) bool {
	if token == "" {
		return false
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	return err == nil && parsed.Valid
}

func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Auth.Production {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = r.Header.Get("X-Auth-Token")
		}
		if !verifyRealtimeToken(token, s.cfg.Auth.RealtimeAuthSecret) {
			s.log.LogSecurityEvent(r.Context(), "realtime_auth_rejected", map[string]interface{}{
				"client": ClientIP(r),
			})
			httpjson.Write(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendQueueSize)}
	s.hub.add(c)

	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readPump(c *client) {
	defer func() {
		s.hub.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleInboundEvent(c, raw)
	}
}

// handleInboundEvent validates and dispatches one client frame. Identifier
// lengths are checked before any downstream call.
func (s *Server) handleInboundEvent(c *client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}

	switch env.Event {
	case "subscribe-device":
		var deviceID string
		if err := json.Unmarshal(env.Data, &deviceID); err != nil {
			return
		}
		if deviceID == "" || len(deviceID) > maxDeviceIDLen {
			return
		}
		// Subscription is implicit: every client receives device-updated
		// broadcasts. The event is accepted for protocol compatibility.

	case "control-device":
		var msg struct {
			DeviceID   string `json:"deviceId"`
			Capability string `json:"capability"`
			Value      any    `json:"value"`
		}
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return
		}
		if msg.DeviceID == "" || len(msg.DeviceID) > maxDeviceIDLen {
			return
		}
		if msg.Capability == "" || len(msg.Capability) > maxCapabilityLen {
			return
		}
		ctx, cancel := contextWithTimeout()
		defer cancel()
		if err := s.devices.SetDeviceCapability(ctx, msg.DeviceID, msg.Capability, msg.Value); err != nil {
			s.history.Record("gateway", "realtime control failed: "+err.Error(), "")
			return
		}
		s.bus.PublishEvent("device-updated", automation.DeviceChange{
			DeviceID:   msg.DeviceID,
			Capability: msg.Capability,
			Value:      msg.Value,
		})

	case "activate-scene":
		var sceneID string
		if err := json.Unmarshal(env.Data, &sceneID); err != nil {
			return
		}
		if sceneID == "" || len(sceneID) > maxSceneIDLen {
			return
		}
		ctx, cancel := contextWithTimeout()
		defer cancel()
		if err := s.devices.TriggerFlow(ctx, sceneID); err != nil {
			s.history.Record("gateway", "realtime scene failed: "+err.Error(), "")
			return
		}
		s.bus.PublishEvent("scene-activated", sceneID)
	}
}
