package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"debatemesh/internal/core/domain"
	"debatemesh/internal/core/ports"
	"debatemesh/pkg/emitter"
	"debatemesh/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisChannel carries signaling messages over one redis pub/sub channel per
// room. Redis pub/sub preserves publish order per connection, which supplies
// the per-sender ordering the negotiation layer assumes.
type RedisChannel struct {
	client  *redis.Client
	roomID  string
	localID domain.ParticipantID
	pubsub  *redis.PubSub
	signals *emitter.Emitter[domain.SignalMessage]
	cancel  context.CancelFunc
	logger  *zap.SugaredLogger
}

var _ ports.SignalingChannel = (*RedisChannel)(nil)

// NewRedisChannel subscribes to the room's signaling channel and starts the
// consume loop.
func NewRedisChannel(
	ctx context.Context,
	client *redis.Client,
	roomID string,
	localID domain.ParticipantID,
	logger *zap.SugaredLogger,
) (*RedisChannel, error) {
	c := &RedisChannel{
		client:  client,
		roomID:  roomID,
		localID: localID,
		signals: emitter.New[domain.SignalMessage](),
		logger:  logger,
	}

	c.pubsub = client.Subscribe(ctx, c.channelKey())
	// Force the subscription before any publish can race past it.
	if _, err := c.pubsub.Receive(ctx); err != nil {
		c.pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to signaling channel: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.consume(loopCtx)
	return c, nil
}

func (c *RedisChannel) channelKey() string {
	return fmt.Sprintf("debatemesh:room:%s:signal", c.roomID)
}

func (c *RedisChannel) SendTo(ctx context.Context, to domain.ParticipantID, msg domain.SignalMessage) error {
	msg.From = c.localID
	msg.To = to
	return c.publish(ctx, msg)
}

func (c *RedisChannel) Broadcast(ctx context.Context, msg domain.SignalMessage) error {
	msg.From = c.localID
	msg.To = ""
	return c.publish(ctx, msg)
}

func (c *RedisChannel) publish(ctx context.Context, msg domain.SignalMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal signal message: %w", err)
	}
	if err := c.client.Publish(ctx, c.channelKey(), data).Err(); err != nil {
		return fmt.Errorf("failed to publish signal message: %w", err)
	}
	c.logger.Debugw("published signal",
		"kind", msg.Kind,
		"to", msg.To,
	)
	return nil
}

func (c *RedisChannel) Subscribe(fn func(domain.SignalMessage)) (cancel func()) {
	return c.signals.Subscribe(fn)
}

func (c *RedisChannel) consume(ctx context.Context) {
	ch := c.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			var msg domain.SignalMessage
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				c.logger.Warnw("failed to unmarshal signal message",
					"error", err,
					"payload", utils.TruncateString(raw.Payload, 200),
				)
				continue
			}
			if msg.From == c.localID {
				continue
			}
			if msg.To != "" && msg.To != c.localID {
				continue
			}
			c.signals.Emit(msg)
		}
	}
}

func (c *RedisChannel) Close() error {
	c.cancel()
	c.signals.Close()
	return c.pubsub.Close()
}
