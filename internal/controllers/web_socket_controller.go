package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"ride_tracker/internal/middleware"
	"ride_tracker/internal/tracking"
)

// upgrader configures the WebSocket connection.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for development (restrict in production!)
	},
}

// locationMessage is the wire format for incoming driver fixes. Timestamp is
// handled by the custom UnmarshalJSON since device clients are sloppy about
// timezone suffixes.
type locationMessage struct {
	RideID    *string   `json:"ride_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     *float64  `json:"speed"`
	Heading   *float64  `json:"heading"`
	Accuracy  *float64  `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// UnmarshalJSON tolerates timestamps without an explicit timezone by assuming UTC.
func (lm *locationMessage) UnmarshalJSON(data []byte) error {
	type alias locationMessage
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*alias
	}{alias: (*alias)(lm)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	ts := aux.Timestamp
	if ts == "" {
		return errors.New("timestamp is required")
	}
	if !(strings.HasSuffix(ts, "Z") || (len(ts) >= 6 && strings.ContainsAny(ts[len(ts)-6:], "+-"))) {
		ts += "Z"
	}

	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", aux.Timestamp, err)
	}
	lm.Timestamp = t
	return nil
}

// RideHub fans live fix broadcasts out to the watchers of each ride.
type RideHub struct {
	watchers  map[string]map[*websocket.Conn]bool
	broadcast chan map[string]interface{}
	mu        sync.Mutex
}

// NewRideHub creates a hub and starts its broadcast goroutine.
func NewRideHub() *RideHub {
	hub := &RideHub{
		watchers:  make(map[string]map[*websocket.Conn]bool),
		broadcast: make(chan map[string]interface{}, 100),
	}
	go hub.run()
	return hub
}

func (h *RideHub) run() {
	for msg := range h.broadcast {
		rideID, ok := msg["ride_id"].(string)
		if !ok {
			logrus.Warn("Broadcast message missing 'ride_id'. Skipping broadcast.")
			continue
		}

		h.mu.Lock()
		conns := make([]*websocket.Conn, 0, len(h.watchers[rideID]))
		for conn := range h.watchers[rideID] {
			conns = append(conns, conn)
		}
		h.mu.Unlock()

		for _, conn := range conns {
			if err := conn.WriteJSON(msg); err != nil {
				if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					logrus.WithField("ride_id", rideID).Info("Watcher connection closed during broadcast, unregistering.")
				} else {
					logrus.WithError(err).WithField("ride_id", rideID).Warn("Failed to send broadcast message to watcher.")
				}
				h.Unregister(rideID, conn)
			}
		}
	}
}

// Register adds a watcher connection for a ride.
func (h *RideHub) Register(rideID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.watchers[rideID]; !ok {
		h.watchers[rideID] = make(map[*websocket.Conn]bool)
	}
	h.watchers[rideID][conn] = true
	logrus.WithField("ride_id", rideID).Info("Watcher registered with RideHub.")
}

// Unregister removes a watcher connection.
func (h *RideHub) Unregister(rideID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.watchers[rideID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.watchers, rideID)
		}
	}
}

// Publish queues a fix broadcast; drops it if the hub is saturated.
func (h *RideHub) Publish(data map[string]interface{}) {
	select {
	case h.broadcast <- data:
	default:
		logrus.Warn("Location broadcast channel full, dropping message.")
	}
}

// WebSocketController handles the live location channel: drivers push fixes
// in, ride watchers get them fanned back out.
type WebSocketController struct {
	engine *tracking.Engine
	hub    *RideHub
}

func NewWebSocketController(engine *tracking.Engine) *WebSocketController {
	return &WebSocketController{engine: engine, hub: NewRideHub()}
}

// authenticateWebSocket validates the token query parameter and extracts the
// user identity and role.
func authenticateWebSocket(c *gin.Context) (userID, role string, err error) {
	tokenString := c.Query("token")
	if tokenString == "" {
		return "", "", errors.New("missing authentication token")
	}

	token, err := middleware.ValidateToken(tokenString)
	if err != nil || !token.Valid {
		return "", "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid token claims")
	}
	userID, _ = claims["user_id"].(string)
	role, _ = claims["role"].(string)
	if userID == "" {
		return "", "", errors.New("token missing user identity")
	}
	return userID, role, nil
}

// HandleLocationWebSocket is the single WebSocket endpoint. Drivers stream
// fixes; riders and operators watch a ride given by the ride_id query.
func (wc *WebSocketController) HandleLocationWebSocket(c *gin.Context) {
	userID, role, err := authenticateWebSocket(c)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket connection attempt failed.")
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("Failed to upgrade WebSocket connection.")
		return
	}
	defer conn.Close()

	switch role {
	case "driver":
		wc.handleDriver(c, conn, userID)
	case "rider", "admin":
		rideID := c.Query("ride_id")
		if rideID == "" {
			conn.WriteJSON(gin.H{"error": "ride_id query parameter is required for watchers"})
			return
		}
		wc.handleWatcher(conn, rideID)
	default:
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Unauthorized role"))
	}
}

func (wc *WebSocketController) handleDriver(c *gin.Context, conn *websocket.Conn, driverID string) {
	logrus.WithField("driver_id", driverID).Info("Driver WebSocket connection established.")

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("driver_id", driverID).Info("Driver WebSocket closed.")
			} else {
				logrus.WithError(err).WithField("driver_id", driverID).Error("Error reading WebSocket message from driver.")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg locationMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			logrus.WithError(err).WithField("driver_id", driverID).Warn("Invalid location payload on WebSocket.")
			conn.WriteJSON(gin.H{"error": "Invalid location data format. Check timestamp format."})
			continue
		}

		report := tracking.FixReport{
			Latitude:  msg.Latitude,
			Longitude: msg.Longitude,
			Timestamp: msg.Timestamp,
			Speed:     msg.Speed,
			Heading:   msg.Heading,
			Accuracy:  msg.Accuracy,
		}
		if err := wc.engine.RecordFix(c.Request.Context(), driverID, report, msg.RideID); err != nil {
			if errors.Is(err, tracking.ErrInvalidCoordinate) || errors.Is(err, tracking.ErrMissingTimestamp) {
				conn.WriteJSON(gin.H{"error": err.Error()})
			} else {
				logrus.WithError(err).WithField("driver_id", driverID).Error("Failed to store fix from WebSocket.")
				conn.WriteJSON(gin.H{"error": "Failed to save location."})
			}
			continue
		}

		conn.WriteJSON(gin.H{"status": "saved", "timestamp": msg.Timestamp.Format(time.RFC3339Nano)})

		if msg.RideID != nil {
			wc.hub.Publish(map[string]interface{}{
				"ride_id":   *msg.RideID,
				"driver_id": driverID,
				"latitude":  msg.Latitude,
				"longitude": msg.Longitude,
				"speed":     msg.Speed,
				"heading":   msg.Heading,
				"accuracy":  msg.Accuracy,
				"timestamp": msg.Timestamp.Format(time.RFC3339Nano),
			})
		}
	}
}

func (wc *WebSocketController) handleWatcher(conn *websocket.Conn, rideID string) {
	wc.hub.Register(rideID, conn)
	defer wc.hub.Unregister(rideID, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("ride_id", rideID).Info("Watcher WebSocket closed.")
			} else {
				logrus.WithError(err).WithField("ride_id", rideID).Error("Error reading WebSocket message from watcher.")
			}
			return
		}
		logrus.WithField("ride_id", rideID).Warn("Watcher sent unexpected message. Ignoring.")
	}
}
