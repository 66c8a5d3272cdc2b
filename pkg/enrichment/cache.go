package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ideaforge/platform/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

// SignalsCache fronts idea signal reads. Misses and cache errors both fall
// through to the database.
type SignalsCache interface {
	Get(ctx context.Context, ideaID int64) (map[string]interface{}, bool)
	Set(ctx context.Context, ideaID int64, signals map[string]interface{})
}

type RedisSignalsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSignalsCache(client *redis.Client, ttl time.Duration) *RedisSignalsCache {
	return &RedisSignalsCache{client: client, ttl: ttl}
}

func signalsKey(ideaID int64) string {
	return fmt.Sprintf("enrichment:signals:%d", ideaID)
}

func (c *RedisSignalsCache) Get(ctx context.Context, ideaID int64) (map[string]interface{}, bool) {
	data, err := c.client.Get(ctx, signalsKey(ideaID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Log.WithError(err).WithField("idea_id", ideaID).Warn("signals cache read failed")
		}
		return nil, false
	}
	var signals map[string]interface{}
	if err := json.Unmarshal(data, &signals); err != nil {
		return nil, false
	}
	return signals, true
}

func (c *RedisSignalsCache) Set(ctx context.Context, ideaID int64, signals map[string]interface{}) {
	data, err := json.Marshal(signals)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, signalsKey(ideaID), data, c.ttl).Err(); err != nil {
		logger.Log.WithError(err).WithField("idea_id", ideaID).Warn("signals cache write failed")
	}
}

type noopCache struct{}

func (noopCache) Get(context.Context, int64) (map[string]interface{}, bool) { return nil, false }
func (noopCache) Set(context.Context, int64, map[string]interface{})        {}
