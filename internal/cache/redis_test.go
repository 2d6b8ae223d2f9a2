// internal/cache/redis_test.go
package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestPublishMatchEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	Rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { Rdb.Close() })

	actor := uuid.New()
	rec := MatchEventRecord{
		SessionCode: "AB23CD",
		SeqIndex:    3,
		ActorUserID: actor,
		EventType:   "move",
		EventPayload: map[string]interface{}{
			"uci": "e2e4",
			"san": "e4",
		},
		Timestamp: time.Now().UnixMilli(),
	}

	require.NoError(t, PublishMatchEvent(context.Background(), rec))

	raw, err := mr.Lpop(DefaultQueueName)
	require.NoError(t, err)

	var got MatchEventRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	require.Equal(t, "AB23CD", got.SessionCode)
	require.Equal(t, 3, got.SeqIndex)
	require.Equal(t, actor, got.ActorUserID)
	require.Equal(t, "e4", got.EventPayload["san"])
}

func TestPublishMatchEventOrdering(t *testing.T) {
	mr := miniredis.RunT(t)
	Rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { Rdb.Close() })

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, PublishMatchEvent(ctx, MatchEventRecord{
			SessionCode: "AB23CD",
			SeqIndex:    i,
			EventType:   "move",
		}))
	}

	// RPush + LPop preserves publish order for the consumer.
	for i := 0; i < 3; i++ {
		raw, err := mr.Lpop(DefaultQueueName)
		require.NoError(t, err)
		var got MatchEventRecord
		require.NoError(t, json.Unmarshal([]byte(raw), &got))
		require.Equal(t, i, got.SeqIndex)
	}
}

func TestConnectRedisLeavesClientNilOnFailure(t *testing.T) {
	Rdb = nil
	t.Setenv("REDIS_ADDR", "127.0.0.1:1")

	require.Error(t, ConnectRedis())
	require.Nil(t, Rdb, "a failed connect must not leave a live-looking client behind")
}

func TestConnectRedisAssignsClientOnSuccess(t *testing.T) {
	mr := miniredis.RunT(t)
	Rdb = nil
	t.Setenv("REDIS_ADDR", mr.Addr())

	require.NoError(t, ConnectRedis())
	require.NotNil(t, Rdb)
	t.Cleanup(func() { Rdb.Close(); Rdb = nil })
}
