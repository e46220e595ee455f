package notifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"

	"math/rand/v2"

	"github.com/redis/go-redis/v9"

	"sjsage522/listingwatcher/logger"
	apperrors "sjsage522/listingwatcher/pkg/errors"
	"sjsage522/listingwatcher/services/store"
)

// RedisNotifier appends new listings to a set of Redis streams
type RedisNotifier struct {
	client          *redis.Client
	streamPrefix    string
	streamCount     int
	streamMaxLength int
	log             *logger.Logger
}

// NewRedisNotifier creates a Redis stream notifier
func NewRedisNotifier(addr string, db int, streamPrefix string, streamCount int, streamMaxLength int) *RedisNotifier {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if streamCount <= 0 {
		streamCount = 1
	}

	return &RedisNotifier{
		client:          client,
		streamPrefix:    streamPrefix,
		streamCount:     streamCount,
		streamMaxLength: streamMaxLength,
		log:             logger.ForNotifier("redis"),
	}
}

// Ping checks the Redis connection
func (r *RedisNotifier) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Notify adds the base64 encoded JSON record to a random stream, keyed by source
func (r *RedisNotifier) Notify(ctx context.Context, record store.Record) error {
	message, err := json.Marshal(record)
	if err != nil {
		return apperrors.NewNotify("redis", "encode record", err)
	}
	encoded := base64.StdEncoding.EncodeToString(message)

	// streamCount 10 spreads over <prefix>:0 ~ <prefix>:9
	stream := r.streamPrefix + ":" + strconv.Itoa(rand.IntN(r.streamCount))

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			record.Source: encoded,
		},
	}).Err()
	if err != nil {
		return apperrors.NewNotify("redis", "xadd "+stream, err)
	}
	return nil
}

// AfterPass trims the streams once per pass
func (r *RedisNotifier) AfterPass(ctx context.Context) error {
	return r.TrimStreams(ctx)
}

// TrimStreams trims all streams to the configured maximum length
func (r *RedisNotifier) TrimStreams(ctx context.Context) error {
	if r.streamMaxLength <= 0 {
		return nil
	}
	streams, err := r.client.Keys(ctx, r.streamPrefix+":*").Result()
	if err != nil {
		return apperrors.NewNotify("redis", "list streams", err)
	}

	for _, stream := range streams {
		if err := r.client.XTrimMaxLen(ctx, stream, int64(r.streamMaxLength)).Err(); err != nil {
			return apperrors.NewNotify("redis", "trim "+stream, err)
		}
	}
	r.log.Debug().Int("streams", len(streams)).Msg("Trimmed streams")
	return nil
}

// Close closes the Redis connection
func (r *RedisNotifier) Close() error {
	return r.client.Close()
}
