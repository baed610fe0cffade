package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"planes_maxsum/internal/domain"
)

// DecisionsChannel is the default pub/sub channel of a run.
func DecisionsChannel(runID string) string {
	return fmt.Sprintf("planes:%s:decisions", runID)
}

// Redis publishes every decision as JSON on a pub/sub channel. Delivery is
// at-most-once: entries published while nobody listens are lost.
type Redis struct {
	rdb     *redis.Client
	channel string
}

// NewRedis returns a publisher. An empty channel publishes each entry on
// the DecisionsChannel of its run.
func NewRedis(opts *redis.Options, channel string) *Redis {
	return &Redis{rdb: redis.NewClient(opts), channel: channel}
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) channelFor(runID string) string {
	if r.channel != "" {
		return r.channel
	}
	return DecisionsChannel(runID)
}

func (r *Redis) LogDecision(ctx context.Context, entry domain.DecisionLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channelFor(entry.RunID), raw).Err(); err != nil {
		return fmt.Errorf("publish decision: %w", err)
	}
	return nil
}

// Subscribe streams the decisions of runID until ctx is done. Malformed
// payloads are skipped.
func (r *Redis) Subscribe(ctx context.Context, runID string) (<-chan domain.DecisionLog, error) {
	pubsub := r.rdb.Subscribe(ctx, r.channelFor(runID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan domain.DecisionLog, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var entry domain.DecisionLog
				if err := json.Unmarshal([]byte(msg.Payload), &entry); err != nil {
					continue
				}
				select {
				case out <- entry:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
