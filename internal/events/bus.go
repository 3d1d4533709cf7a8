// Package events mirrors workflow stream events onto Redis Streams so that
// other processes can follow or replay a workflow.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/agri-assist/internal/workflow"
)

// DefaultPrefix is prepended to the workflow id to form the stream key.
const DefaultPrefix = "agri:workflow:"

const (
	maxStreamLen = 256
	streamTTL    = time.Hour
)

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Bus publishes workflow events, one stream per workflow.
type Bus struct {
	rdb    *redis.Client
	prefix string
	logger *zap.Logger
}

// NewBus creates a bus on an existing client. An empty prefix selects
// DefaultPrefix.
func NewBus(rdb *redis.Client, prefix string, logger *zap.Logger) *Bus {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Bus{rdb: rdb, prefix: prefix, logger: logger}
}

func (b *Bus) stream(workflowID string) string {
	return b.prefix + workflowID
}

// Publish appends ev to its workflow's stream. Streams are capped and
// expire an hour after the last event.
func (b *Bus) Publish(ctx context.Context, ev workflow.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	stream := b.stream(ev.WorkflowID)
	pipe := b.rdb.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]interface{}{
			"type": string(ev.Type),
			"data": string(data),
		},
	})
	pipe.Expire(ctx, stream, streamTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}

	b.logger.Debug("published workflow event",
		zap.String("workflow_id", ev.WorkflowID),
		zap.String("type", string(ev.Type)))
	return nil
}

// Replay returns every event still held for workflowID, oldest first.
func (b *Bus) Replay(ctx context.Context, workflowID string) ([]workflow.Event, error) {
	msgs, err := b.rdb.XRange(ctx, b.stream(workflowID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.stream(workflowID), err)
	}
	out := make([]workflow.Event, 0, len(msgs))
	for _, m := range msgs {
		if ev, ok := decode(m); ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Subscribe follows the events of workflowID from the start of its stream,
// so a late subscriber still sees what was already published. The channel
// closes after a complete or error event, or when ctx ends.
func (b *Bus) Subscribe(ctx context.Context, workflowID string) <-chan workflow.Event {
	ch := make(chan workflow.Event, 16)
	stream := b.stream(workflowID)

	go func() {
		defer close(ch)
		lastID := "0"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if !errors.Is(err, redis.Nil) {
					b.logger.Warn("read workflow events", zap.String("stream", stream), zap.Error(err))
				}
				continue
			}

			for _, r := range results {
				for _, m := range r.Messages {
					lastID = m.ID
					ev, ok := decode(m)
					if !ok {
						continue
					}
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
					if ev.Type == workflow.EventComplete || ev.Type == workflow.EventError {
						return
					}
				}
			}
		}
	}()

	return ch
}

// Delete drops the stream of workflowID. The orchestrator calls it when
// the workflow is cleaned up.
func (b *Bus) Delete(ctx context.Context, workflowID string) error {
	return b.rdb.Del(ctx, b.stream(workflowID)).Err()
}

func decode(m redis.XMessage) (workflow.Event, bool) {
	data, ok := m.Values["data"].(string)
	if !ok {
		return workflow.Event{}, false
	}
	var ev workflow.Event
	if json.Unmarshal([]byte(data), &ev) != nil {
		return workflow.Event{}, false
	}
	return ev, true
}
