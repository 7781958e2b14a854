package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const docKeyPrefix = "offline:doc:"

// RedisCache stores cached documents as JSON values under per-URL keys.
// SetNX keeps the store additive: a document for an already-seen URL is a
// no-op, so earlier text is never clobbered by a later fetch.
type RedisCache struct {
	client *redis.Client
}

// Conn dials Redis and verifies the connection.
func Conn(ctx context.Context, addr, password string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func docKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return docKeyPrefix + hex.EncodeToString(sum[:8])
}

func (c *RedisCache) Save(ctx context.Context, topic string, entries []Entry) (int, error) {
	topic = normalizeTopic(topic)
	added := 0
	for _, e := range entries {
		if e.URL == "" {
			continue
		}
		e.Topic = topic
		data, err := json.Marshal(e)
		if err != nil {
			return added, err
		}
		ok, err := c.client.SetNX(ctx, docKey(e.URL), data, 0).Result()
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

func (c *RedisCache) Lookup(ctx context.Context, topic string) ([]Entry, error) {
	topic = normalizeTopic(topic)
	var out []Entry
	iter := c.client.Scan(ctx, 0, docKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		val, err := c.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, err
		}
		var e Entry
		if err := json.Unmarshal([]byte(val), &e); err != nil {
			continue
		}
		if topicMatches(e.Topic, topic) {
			out = append(out, e)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
