package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"debatemesh/internal/core/domain"
	"debatemesh/internal/core/ports"
	"debatemesh/pkg/emitter"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPresence keeps the room roster in per-participant TTL keys so a
// crashed client ages out without an explicit leave. Roster changes are
// announced on a pub/sub channel; subscribers re-read the full roster on
// every announcement.
type RedisPresence struct {
	client  *redis.Client
	roomID  string
	localID domain.ParticipantID
	ttl     time.Duration

	mu        sync.Mutex
	current   *domain.Participant
	heartbeat context.CancelFunc

	pubsub  *redis.PubSub
	rosters *emitter.Emitter[[]domain.Participant]
	cancel  context.CancelFunc
	logger  *zap.SugaredLogger
}

var _ ports.PresenceTracker = (*RedisPresence)(nil)

// NewRedisPresence subscribes to the room's roster channel and starts the
// notification loop.
func NewRedisPresence(
	ctx context.Context,
	client *redis.Client,
	roomID string,
	localID domain.ParticipantID,
	ttl time.Duration,
	logger *zap.SugaredLogger,
) (*RedisPresence, error) {
	p := &RedisPresence{
		client:  client,
		roomID:  roomID,
		localID: localID,
		ttl:     ttl,
		rosters: emitter.New[[]domain.Participant](),
		logger:  logger,
	}

	p.pubsub = client.Subscribe(ctx, p.rosterChannel())
	if _, err := p.pubsub.Receive(ctx); err != nil {
		p.pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to roster channel: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.consume(loopCtx)
	return p, nil
}

func (p *RedisPresence) presenceKey(id domain.ParticipantID) string {
	return fmt.Sprintf("debatemesh:room:%s:presence:%s", p.roomID, id)
}

func (p *RedisPresence) rosterChannel() string {
	return fmt.Sprintf("debatemesh:room:%s:roster", p.roomID)
}

// Track writes the local presence record and starts the TTL heartbeat on
// first call. Subsequent calls overwrite the record (camera state changes).
func (p *RedisPresence) Track(ctx context.Context, participant domain.Participant) error {
	participant.LastSeen = time.Now()
	data, err := json.Marshal(participant)
	if err != nil {
		return fmt.Errorf("failed to marshal participant: %w", err)
	}
	if err := p.client.Set(ctx, p.presenceKey(participant.ID), data, p.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write presence record: %w", err)
	}
	if err := p.client.Publish(ctx, p.rosterChannel(), string(participant.ID)).Err(); err != nil {
		p.logger.Warnw("failed to announce roster change", "error", err)
	}

	p.mu.Lock()
	p.current = &participant
	if p.heartbeat == nil {
		hbCtx, cancel := context.WithCancel(context.Background())
		p.heartbeat = cancel
		go p.refreshLoop(hbCtx)
	}
	p.mu.Unlock()
	return nil
}

// refreshLoop re-sets the presence record at a third of the TTL so the key
// survives as long as the process does.
func (p *RedisPresence) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(p.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			current := p.current
			p.mu.Unlock()
			if current == nil {
				continue
			}
			data, err := json.Marshal(current)
			if err != nil {
				continue
			}
			if err := p.client.Set(ctx, p.presenceKey(current.ID), data, p.ttl).Err(); err != nil {
				p.logger.Warnw("failed to refresh presence record", "error", err)
			}
		}
	}
}

// Leave withdraws the local record and stops the heartbeat.
func (p *RedisPresence) Leave(ctx context.Context) error {
	p.mu.Lock()
	if p.heartbeat != nil {
		p.heartbeat()
		p.heartbeat = nil
	}
	p.current = nil
	p.mu.Unlock()

	if err := p.client.Del(ctx, p.presenceKey(p.localID)).Err(); err != nil {
		return fmt.Errorf("failed to delete presence record: %w", err)
	}
	if err := p.client.Publish(ctx, p.rosterChannel(), string(p.localID)).Err(); err != nil {
		p.logger.Warnw("failed to announce leave", "error", err)
	}
	return nil
}

// Snapshot scans the room's presence keys and returns the roster sorted by
// participant id.
func (p *RedisPresence) Snapshot(ctx context.Context) ([]domain.Participant, error) {
	pattern := fmt.Sprintf("debatemesh:room:%s:presence:*", p.roomID)
	var keys []string
	iter := p.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan presence keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence records: %w", err)
	}

	roster := make([]domain.Participant, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Key expired between scan and read.
			continue
		}
		var participant domain.Participant
		if err := json.Unmarshal([]byte(raw), &participant); err != nil {
			p.logger.Warnw("skipping malformed presence record", "error", err)
			continue
		}
		roster = append(roster, participant)
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].ID < roster[j].ID })
	return roster, nil
}

func (p *RedisPresence) Subscribe(fn func([]domain.Participant)) (cancel func()) {
	return p.rosters.Subscribe(fn)
}

func (p *RedisPresence) consume(ctx context.Context) {
	ch := p.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			roster, err := p.Snapshot(ctx)
			if err != nil {
				p.logger.Warnw("failed to refresh roster after change", "error", err)
				continue
			}
			p.rosters.Emit(roster)
		}
	}
}

func (p *RedisPresence) Close() error {
	p.mu.Lock()
	if p.heartbeat != nil {
		p.heartbeat()
		p.heartbeat = nil
	}
	p.mu.Unlock()

	p.cancel()
	p.rosters.Close()
	return p.pubsub.Close()
}
