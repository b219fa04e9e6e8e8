package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// IngestStream receives one entry per finished ingestion call.
	IngestStream = "caddie.ingest"
	// TrainingStream receives one entry per training matrix build.
	TrainingStream = "caddie.training"

	// maxStreamLen caps each stream (approximate trimming).
	maxStreamLen = 10000
)

// RedisStreamPublisher publishes events to Redis streams
type RedisStreamPublisher struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStreamPublisher creates a new Redis stream publisher from existing client
func NewRedisStreamPublisher(client *redis.Client) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		client: client,
		now:    time.Now,
	}
}

// PublishIngest publishes an ingestion summary
func (p *RedisStreamPublisher) PublishIngest(ctx context.Context, summary interface{}) error {
	return p.publish(ctx, IngestStream, summary)
}

// PublishTraining publishes a training build summary
func (p *RedisStreamPublisher) PublishTraining(ctx context.Context, summary interface{}) error {
	return p.publish(ctx, TrainingStream, summary)
}

func (p *RedisStreamPublisher) publish(ctx context.Context, stream string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]interface{}{
			"event_id":  uuid.NewString(),
			"data":      string(data),
			"timestamp": p.now().Unix(),
		},
	}).Err()
}
