// 包 regioncache：区域几何多级缓存，按 LRU -> Redis -> 数据库的固定顺序查询
package regioncache

import (
	"context"
	"errors"

	"mapvis/internal/doc"
	"mapvis/internal/logger"
	"mapvis/internal/metrics"
	"mapvis/internal/store"
)

// ErrMiss：所有层均未命中
var ErrMiss = errors.New("region not cached")

// Layer：单个缓存层；未命中返回 ErrMiss
type Layer interface {
	Name() string
	Get(ctx context.Context, id int64) (*doc.Region, error)
	Put(ctx context.Context, r *doc.Region) error
}

// StoreLayer：把 store.Store 适配为最底层
type StoreLayer struct{ S *store.Store }

func (l StoreLayer) Name() string { return "db" }

func (l StoreLayer) Get(ctx context.Context, id int64) (*doc.Region, error) {
	r, err := l.S.GetRegion(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMiss
	}
	return r, err
}

func (l StoreLayer) Put(ctx context.Context, r *doc.Region) error { return l.S.UpsertRegion(ctx, r) }

// 文档注释：多级缓存组合
// 背景：前层命中即返回；后层命中时回填所有前层，使下次请求在最快的一层结束。
// 约束：nil 层被跳过（例如 REDIS_DISABLED 时不传入 Redis）；非最底层的读写错误只记录日志，按未命中继续。
type Chain struct {
	layers []Layer
}

func NewChain(layers ...Layer) *Chain {
	c := &Chain{}
	for _, l := range layers {
		if l != nil {
			c.layers = append(c.layers, l)
		}
	}
	return c
}

func (c *Chain) Get(ctx context.Context, id int64) (*doc.Region, error) {
	last := len(c.layers) - 1
	for i, l := range c.layers {
		r, err := l.Get(ctx, id)
		if err == nil {
			metrics.CacheHitsTotal.WithLabelValues(l.Name()).Inc()
			c.fill(ctx, i, r)
			return r, nil
		}
		metrics.CacheMissesTotal.WithLabelValues(l.Name()).Inc()
		if errors.Is(err, ErrMiss) {
			continue
		}
		if i == last {
			return nil, err
		}
		logger.L().Warn("region_cache_layer_error", "layer", l.Name(), "osm_id", id, "err", err)
	}
	return nil, ErrMiss
}

// Put：写入全部层；返回最底层的错误
func (c *Chain) Put(ctx context.Context, r *doc.Region) error {
	if len(c.layers) == 0 {
		return nil
	}
	c.fill(ctx, len(c.layers)-1, r)
	return c.layers[len(c.layers)-1].Put(ctx, r)
}

func (c *Chain) fill(ctx context.Context, upto int, r *doc.Region) {
	for _, l := range c.layers[:upto] {
		if err := l.Put(ctx, r); err != nil {
			logger.L().Warn("region_cache_fill_error", "layer", l.Name(), "osm_id", r.OSMID, "err", err)
		}
	}
}
