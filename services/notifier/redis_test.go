package notifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/listingwatcher/services/store"
)

func TestRedisNotifier(t *testing.T) {
	ctx := context.Background()
	notifier := NewRedisNotifier("localhost:6379", 0, "test_listings", 1, 2)
	defer notifier.Close()

	// Test if Redis is available
	if err := notifier.Ping(ctx); err != nil {
		t.Skip("Redis is not available, skipping test")
	}

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 0})
	defer client.Close()
	client.Del(ctx, "test_listings:0")
	defer client.Del(ctx, "test_listings:0")

	for i := 0; i < 3; i++ {
		require.NoError(t, notifier.Notify(ctx, testRecord()))
	}

	messages, err := client.XRange(ctx, "test_listings:0", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 3)

	encoded, ok := messages[0].Values["Marrkt"].(string)
	require.True(t, ok)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	var record store.Record
	require.NoError(t, json.Unmarshal(raw, &record))
	assert.Equal(t, testRecord().Id, record.Id)
	assert.Equal(t, testRecord().URL, record.URL)

	require.NoError(t, notifier.AfterPass(ctx))
	length, err := client.XLen(ctx, "test_listings:0").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)
}
