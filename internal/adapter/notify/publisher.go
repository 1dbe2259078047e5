// Package notify delivers member notifications over Redis pub/sub or the
// application log. Delivery is best-effort: failures are logged, never
// returned to the ledger.
package notify

import (
	"context"
	"encoding/json"
	"time"

	domain "coop-ledger/internal/domain/notify"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	_ domain.Publisher = (*RedisPublisher)(nil)
	_ domain.Publisher = (*LogPublisher)(nil)
	_ domain.Publisher = Multi(nil)
)

const publishTimeout = 2 * time.Second

// Message is the wire form published for subscribers.
type Message struct {
	MemberID string         `json:"member_id"`
	Event    string         `json:"event"`
	Payload  map[string]any `json:"payload,omitempty"`
	SentAt   time.Time      `json:"sent_at"`
}

// RedisPublisher publishes each event on the member's channel,
// prefix + memberID.
type RedisPublisher struct {
	rdb    *redis.Client
	prefix string
	log    *zap.Logger
}

func NewRedisPublisher(rdb *redis.Client, prefix string, log *zap.Logger) *RedisPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisPublisher{rdb: rdb, prefix: prefix, log: log}
}

func (p *RedisPublisher) Channel(memberID string) string { return p.prefix + memberID }

func (p *RedisPublisher) Notify(ctx context.Context, memberID, event string, payload map[string]any) {
	b, err := json.Marshal(Message{MemberID: memberID, Event: event, Payload: payload, SentAt: time.Now().UTC()})
	if err != nil {
		p.log.Warn("notify: encode failed", zap.String("event", event), zap.Error(err))
		return
	}
	// Detached: the notification outlives a cancelled request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.rdb.Publish(ctx, p.Channel(memberID), b).Err(); err != nil {
		p.log.Warn("notify: publish failed",
			zap.String("member_id", memberID), zap.String("event", event), zap.Error(err))
	}
}

// LogPublisher writes events to the log; used when no Redis is configured.
type LogPublisher struct{ log *zap.Logger }

func NewLogPublisher(log *zap.Logger) *LogPublisher { return &LogPublisher{log: log} }

func (p *LogPublisher) Notify(_ context.Context, memberID, event string, payload map[string]any) {
	p.log.Info("member notification",
		zap.String("member_id", memberID), zap.String("event", event), zap.Any("payload", payload))
}

// Multi sends every event to each publisher in turn.
type Multi []domain.Publisher

func (m Multi) Notify(ctx context.Context, memberID, event string, payload map[string]any) {
	for _, p := range m {
		p.Notify(ctx, memberID, event, payload)
	}
}
