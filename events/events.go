package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	TopicCheckCreated         = "check.created"
	TopicCheckInProgress      = "check.in_progress"
	TopicCheckCompleted       = "check.completed"
	TopicDisagreementSurfaced = "disagreement.surfaced"
	TopicDisagreementResolved = "disagreement.resolved"
)

// Event is a lifecycle notification handed to the presentation side.
type Event struct {
	Topic      string
	Payload    map[string]any
	OccurredAt time.Time
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// RedisStreamPublisher appends events to a Redis Stream with XADD.
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamPublisher writes to stream, trimming it to roughly maxLen
// entries when maxLen > 0.
func NewRedisStreamPublisher(client *redis.Client, stream string, maxLen int64) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, evt Event) error {
	if evt.Topic == "" {
		return fmt.Errorf("events: empty topic")
	}
	occurred := evt.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	body, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", evt.Topic, err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"topic":     evt.Topic,
			"data":      string(body),
			"timestamp": occurred.UTC().Unix(),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("events: xadd %s: %w", evt.Topic, err)
	}
	return nil
}
