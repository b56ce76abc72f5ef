package signal

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"debatemesh/internal/core/domain"
	"debatemesh/internal/core/ports"
	"debatemesh/pkg/emitter"
	"debatemesh/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// WSConfig holds websocket transport settings.
type WSConfig struct {
	URL          string
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	SendRate     float64 // messages per second, 0 disables limiting
	SendBurst    int
}

// WSChannel is a websocket signaling client. It expects a room relay that
// fans every message out to the other members of the room; filtering by
// recipient happens client-side, same as the redis transport.
type WSChannel struct {
	config  WSConfig
	roomID  string
	localID domain.ParticipantID

	conn    *websocket.Conn
	writeMu sync.Mutex
	limiter *rate.Limiter
	signals *emitter.Emitter[domain.SignalMessage]
	cancel  context.CancelFunc
	logger  *zap.SugaredLogger
}

var _ ports.SignalingChannel = (*WSChannel)(nil)

// NewWSChannel dials the relay with backoff and starts the read and ping
// loops. The join token is sent as a bearer header and verified relay-side.
func NewWSChannel(
	ctx context.Context,
	config WSConfig,
	roomID string,
	localID domain.ParticipantID,
	joinToken string,
	logger *zap.SugaredLogger,
) (*WSChannel, error) {
	c := &WSChannel{
		config:  config,
		roomID:  roomID,
		localID: localID,
		signals: emitter.New[domain.SignalMessage](),
		logger:  logger,
	}
	if config.SendRate > 0 {
		burst := config.SendBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(config.SendRate), burst)
	}

	url := fmt.Sprintf("%s?room=%s&participant=%s", config.URL, roomID, localID)
	header := http.Header{}
	if joinToken != "" {
		header.Set("Authorization", "Bearer "+joinToken)
	}

	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if err != nil {
			c.logger.Warnw("websocket dial failed", "url", config.URL, "error", err)
			return err
		}
		c.conn = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect signaling relay: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.PongTimeout))
		return nil
	})

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.readLoop()
	go c.pingLoop(loopCtx)

	c.logger.Infow("connected to signaling relay", "url", config.URL, "room_id", roomID)
	return c, nil
}

func (c *WSChannel) SendTo(ctx context.Context, to domain.ParticipantID, msg domain.SignalMessage) error {
	msg.From = c.localID
	msg.To = to
	return c.write(ctx, msg)
}

func (c *WSChannel) Broadcast(ctx context.Context, msg domain.SignalMessage) error {
	msg.From = c.localID
	msg.To = ""
	return c.write(ctx, msg)
}

func (c *WSChannel) write(ctx context.Context, msg domain.SignalMessage) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("send rate limit wait: %w", err)
		}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write signal message: %w", err)
	}
	return nil
}

func (c *WSChannel) Subscribe(fn func(domain.SignalMessage)) (cancel func()) {
	return c.signals.Subscribe(fn)
}

func (c *WSChannel) readLoop() {
	for {
		var msg domain.SignalMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warnw("signaling read failed", "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout))

		if msg.From == c.localID {
			continue
		}
		if msg.To != "" && msg.To != c.localID {
			continue
		}
		c.signals.Emit(msg)
	}
}

func (c *WSChannel) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Warnw("failed to send ping", "error", err)
				return
			}
		}
	}
}

func (c *WSChannel) Close() error {
	c.cancel()
	c.signals.Close()

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return c.conn.Close()
}
