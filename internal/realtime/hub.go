// Package realtime fans pipeline events out to connected WebSocket clients.
// Delivery is scoped by tenant, best-effort and at-most-once: a client that
// connects after an event was published never sees it, the video record is
// the source of truth.
package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat (seconds).
	PingInterval = 30
	PongWait     = 60
)

// Event names published by the processing pipeline.
const (
	EventProgress = "video:progress"
	EventComplete = "video:complete"
	EventError    = "video:error"
)

// Event is the envelope carried across instances and down to clients.
// VideoID rides outside Data so per-connection asset filters don't have to
// parse payloads.
type Event struct {
	Name    string          `json:"event"`
	VideoID string          `json:"video_id"`
	Data    json.RawMessage `json:"data"`
}

// RedisPublisher publishes an event to a tenant channel for cross-instance
// broadcast.
type RedisPublisher interface {
	PublishTenantEvent(tenant string, ev Event) error
}

// RedisSubscriber subscribes to a tenant channel and invokes handler for
// incoming events.
type RedisSubscriber interface {
	SubscribeTenant(tenant string, handler func(ev Event)) (cancel func(), err error)
}

// Hub maintains tenant -> set of connections and broadcasts events.
// With Redis configured, publishes go through pub/sub so every instance
// (including a standalone worker) reaches all subscribers exactly once.
type Hub struct {
	// tenant -> map[clientID]*Client
	tenants  map[string]map[string]*Client
	subs     map[string]func() // cancel Redis subscription per tenant
	mu       sync.RWMutex
	logger   *zap.Logger
	redisPub RedisPublisher
	redisSub RedisSubscriber
}

// NewHub creates a WebSocket hub. Both Redis handles may be nil for a
// single-instance deployment; broadcasts then stay local.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		tenants:  make(map[string]map[string]*Client),
		subs:     make(map[string]func()),
		logger:   logger,
		redisPub: redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to its tenant scope. Starts the Redis subscription
// for the tenant when the first client joins.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.tenants[c.Tenant] == nil {
		h.tenants[c.Tenant] = make(map[string]*Client)
		if h.redisSub != nil {
			tenant := c.Tenant
			cancel, err := h.redisSub.SubscribeTenant(tenant, func(ev Event) {
				h.broadcastLocal(tenant, ev)
			})
			if err == nil {
				h.subs[tenant] = cancel
			} else {
				h.logger.Warn("tenant channel subscribe failed", zap.String("tenant", tenant), zap.Error(err))
			}
		}
	}
	h.tenants[c.Tenant][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined tenant scope", zap.String("client_id", c.ID), zap.String("tenant", c.Tenant))
}

// Unregister removes a client. Cancels the Redis subscription when the last
// client of a tenant leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.tenants[c.Tenant]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.tenants, c.Tenant)
			if cancel, ok := h.subs[c.Tenant]; ok {
				cancel()
				delete(h.subs, c.Tenant)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left tenant scope", zap.String("client_id", c.ID), zap.String("tenant", c.Tenant))
}

// PublishToTenant delivers an event to every subscriber in the tenant scope.
// With Redis configured the event is published once and the channel
// subscription performs the local broadcast, so clients on this and every
// other instance receive it exactly once.
func (h *Hub) PublishToTenant(tenant, videoID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("marshal event payload", zap.String("event", event), zap.Error(err))
		return
	}
	ev := Event{Name: event, VideoID: videoID, Data: data}
	if h.redisPub != nil {
		if err := h.redisPub.PublishTenantEvent(tenant, ev); err != nil {
			h.logger.Warn("redis publish failed, falling back to local broadcast", zap.Error(err))
			h.broadcastLocal(tenant, ev)
		}
		return
	}
	h.broadcastLocal(tenant, ev)
}

// broadcastLocal sends an event to all locally connected clients of a tenant.
// A slow client is skipped rather than blocking the others.
func (h *Hub) broadcastLocal(tenant string, ev Event) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.tenants[tenant]))
	for _, c := range h.tenants[tenant] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.deliver(ev)
	}
}

// SubscriberCount returns the number of connected clients in a tenant scope.
func (h *Hub) SubscriberCount(tenant string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants[tenant])
}
