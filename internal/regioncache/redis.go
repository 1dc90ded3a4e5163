package regioncache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"mapvis/internal/doc"
	"mapvis/internal/logger"
)

// Redis：跨进程共享的区域缓存层，键为 region:{osm_id}，值为区域 JSON
type Redis struct {
	rc  *redis.Client
	ttl time.Duration
}

func NewRedis(rc *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Redis{rc: rc, ttl: ttl}
}

func Key(id int64) string { return "region:" + strconv.FormatInt(id, 10) }

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Get(ctx context.Context, id int64) (*doc.Region, error) {
	s, err := r.rc.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var out doc.Region
	if err := json.Unmarshal(s, &out); err != nil {
		// 损坏的条目按未命中处理，由下层回填覆盖
		logger.L().Warn("region_cache_corrupt", "osm_id", id, "err", err)
		return nil, ErrMiss
	}
	return &out, nil
}

func (r *Redis) Put(ctx context.Context, reg *doc.Region) error {
	b, err := json.Marshal(reg)
	if err != nil {
		return err
	}
	return r.rc.Set(ctx, Key(reg.OSMID), b, r.ttl).Err()
}
