package lib

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

func GetRedisClient() *redis.Client {
	if redisClient != nil {
		return redisClient
	}
	redisHost := os.Getenv("REDIS_HOST")
	opt, err := redis.ParseURL(redisHost)
	if err != nil {
		log.Printf("[redis] Error parsing connection string: %s\n", err.Error())
		return nil
	}
	rdb := redis.NewClient(opt)
	redisClient = rdb
	return rdb
}

// NewRedisClient Replace redis instance with custom client implementation
func NewRedisClient(c *redis.Client) *redis.Client {
	redisClient = c
	return redisClient
}

const callbackSeenTTL = 48 * time.Hour

func callbackKey(requestID, leg, outcome string) string {
	return fmt.Sprintf("callback:%s:%s:%s", requestID, leg, outcome)
}

// CallbackSeen is the duplicate-callback fast path. A miss (or an
// unreachable Redis) is never trusted on its own; the status history
// table stays the authority.
func CallbackSeen(ctx context.Context, requestID, leg, outcome string) bool {
	rdb := GetRedisClient()
	if rdb == nil {
		return false
	}
	n, err := rdb.Exists(ctx, callbackKey(requestID, leg, outcome)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

func MarkCallbackSeen(ctx context.Context, requestID, leg, outcome string) {
	rdb := GetRedisClient()
	if rdb == nil {
		return
	}
	if err := rdb.Set(ctx, callbackKey(requestID, leg, outcome), "1", callbackSeenTTL).Err(); err != nil {
		log.Printf("[redis] Failed to mark callback seen: %s\n", err.Error())
	}
}
