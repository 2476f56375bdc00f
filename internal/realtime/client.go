package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TokenValidator resolves a raw token to the authenticated principal.
type TokenValidator func(token string) (userID uuid.UUID, tenant, role string, err error)

// Client represents a single WebSocket connection in a tenant scope.
type Client struct {
	ID       string
	Tenant   string
	UserID   uuid.UUID
	Role     string
	hub      *Hub
	conn     *websocket.Conn
	send     chan WSMessage
	filterMu sync.Mutex
	// filter is the optional set of video ids this connection cares about.
	// Empty means everything in the tenant scope. Events stay
	// tenant-broadcast; this only trims what the connection forwards.
	filter map[string]struct{}
	logger *zap.Logger
}

// ServeWs handles the WebSocket upgrade and runs the client loop. The token
// is validated before the upgrade: an unauthenticated connection never joins
// a tenant scope.
func ServeWs(hub *Hub, logger *zap.Logger, validate TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}
		userID, tenant, role, err := validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:     uuid.New().String(),
			Tenant: tenant,
			UserID: userID,
			Role:   role,
			hub:    hub,
			conn:   conn,
			send:   make(chan WSMessage, 256),
			filter: make(map[string]struct{}),
			logger: logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

// deliver queues an event for this connection, applying the asset filter.
// A full send buffer drops the event for this client only; other
// subscribers are unaffected.
func (c *Client) deliver(ev Event) {
	c.filterMu.Lock()
	if len(c.filter) > 0 {
		if _, ok := c.filter[ev.VideoID]; !ok {
			c.filterMu.Unlock()
			return
		}
	}
	c.filterMu.Unlock()

	select {
	case c.send <- WSMessage{Event: ev.Name, Data: ev.Data}:
	default:
		// buffer full, skip
	}
}

type subscribePayload struct {
	VideoID string `json:"video_id"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "subscribe":
			var p subscribePayload
			if err := json.Unmarshal(msg.Data, &p); err == nil && p.VideoID != "" {
				c.filterMu.Lock()
				c.filter[p.VideoID] = struct{}{}
				c.filterMu.Unlock()
			}
		case "unsubscribe":
			var p subscribePayload
			if err := json.Unmarshal(msg.Data, &p); err == nil && p.VideoID != "" {
				c.filterMu.Lock()
				delete(c.filter, p.VideoID)
				c.filterMu.Unlock()
			}
		default:
			// ignore
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
