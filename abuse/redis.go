package abuse

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream abuse events are appended to.
const DefaultStream = "dg:abuse"

// RedisStreamSink appends events to a capped Redis stream so operators can
// tail them with XREAD from any process.
type RedisStreamSink struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisStreamSink returns a sink writing to stream, trimmed approximately
// to maxLen entries (10000 when zero).
func NewRedisStreamSink(client redis.UniversalClient, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisStreamSink{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

func (s *RedisStreamSink) Emit(ctx context.Context, event Event) error {
	values := map[string]any{
		"id":       event.ID,
		"ts":       event.Timestamp.UnixMilli(),
		"category": string(event.Category),
		"ip":       event.IP,
		"detail":   event.Detail,
	}
	if len(event.Metadata) > 0 {
		meta, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal abuse metadata: %w", err)
		}
		values["meta"] = string(meta)
	}

	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}
