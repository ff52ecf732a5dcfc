// Package events defines the sync event envelope and its publishers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event describes a change in a student's course-access state.
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	StudentID  string                 `json:"student_id,omitempty"`
	CourseID   string                 `json:"course_id,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	Source     string                 `json:"source,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// Publisher delivers events to one observer.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, event Event) error
}

// LogPublisher writes events to a zap logger.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher constructs a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

// Name implements Publisher.
func (p *LogPublisher) Name() string { return "log" }

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.StudentID != "" {
		fields = append(fields, zap.String("student_id", event.StudentID))
	}
	if event.CourseID != "" {
		fields = append(fields, zap.String("course_id", event.CourseID))
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if event.Source != "" {
		fields = append(fields, zap.String("source", event.Source))
	}
	if len(event.Payload) > 0 {
		fields = append(fields, zap.Any("payload", event.Payload))
	}
	p.logger.Info("sync event", fields...)
	return nil
}

type redisPublishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher fans events out over a Redis pub/sub channel as JSON.
type RedisPublisher struct {
	client  redisPublishClient
	channel string
}

// NewRedisPublisher constructs a RedisPublisher.
func NewRedisPublisher(client redisPublishClient, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Name implements Publisher.
func (p *RedisPublisher) Name() string { return "redis" }

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("redis publisher not initialised")
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	if err := p.client.Publish(ctx, p.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	return nil
}

// Subscribe forwards events published on channel to onEvent until ctx is done.
// Messages that fail to decode are skipped.
func Subscribe(ctx context.Context, client *redis.Client, channel string, onEvent func(Event)) error {
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			onEvent(event)
		}
	}
}
