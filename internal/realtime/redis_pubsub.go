package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "tenant:"
	publishTimeout = 5 * time.Second
)

// RedisPubSub bridges tenant events across instances via Redis pub/sub.
// It implements both RedisPublisher and RedisSubscriber, and doubles as the
// event publisher for headless workers that run without a hub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for tenant events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// PublishTenantEvent publishes an event to the tenant's Redis channel.
func (r *RedisPubSub) PublishTenantEvent(tenant string, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, channelPrefix+tenant, body).Err()
}

// PublishToTenant satisfies the pipeline's event publisher so a standalone
// worker can emit progress without a local hub. Server instances holding
// subscribers pick the event up off the tenant channel.
func (r *RedisPubSub) PublishToTenant(tenant, videoID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warn("marshal event payload", zap.String("event", event), zap.Error(err))
		return
	}
	if err := r.PublishTenantEvent(tenant, Event{Name: event, VideoID: videoID, Data: data}); err != nil {
		r.logger.Warn("publish tenant event failed", zap.String("tenant", tenant), zap.Error(err))
	}
}

// SubscribeTenant subscribes to a tenant's Redis channel and calls handler
// for each event. Returns a cancel function to stop the subscription.
func (r *RedisPubSub) SubscribeTenant(tenant string, handler func(ev Event)) (cancel func(), err error) {
	channel := channelPrefix + tenant
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err = pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				handler(ev)
			}
		}
	}()
	return func() { cancelCtx() }, nil
}
