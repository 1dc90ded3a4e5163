package regioncache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"mapvis/internal/doc"
)

// 文档注释：进程内 LRU（OSM 编号为键）
// 背景：同一批上传中的热点区域（国家、省份）被反复请求，进程内命中可绕过 Redis 往返；TTL 可调。
// 约束：值按拷贝保存与返回，调用方修改返回值不影响缓存。
type LRU struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	lst  *list.List
	dict map[int64]*list.Element
	now  func() time.Time
}

type entry struct {
	k   int64
	v   doc.Region
	exp time.Time
}

func NewLRU(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRU{cap: capacity, ttl: ttl, lst: list.New(), dict: make(map[int64]*list.Element), now: time.Now}
}

func (c *LRU) Name() string { return "lru" }

func (c *LRU) Get(_ context.Context, id int64) (*doc.Region, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.dict[id]
	if !ok {
		return nil, ErrMiss
	}
	it := e.Value.(entry)
	if c.now().Before(it.exp) {
		c.lst.MoveToFront(e)
		v := it.v
		return &v, nil
	}
	c.lst.Remove(e)
	delete(c.dict, id)
	return nil, ErrMiss
}

func (c *LRU) Put(_ context.Context, r *doc.Region) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := entry{k: r.OSMID, v: *r, exp: c.now().Add(c.ttl)}
	if e, ok := c.dict[r.OSMID]; ok {
		e.Value = it
		c.lst.MoveToFront(e)
		return nil
	}
	c.dict[r.OSMID] = c.lst.PushFront(it)
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		delete(c.dict, back.Value.(entry).k)
		c.lst.Remove(back)
	}
	return nil
}

// Len 当前条目数（含未清理的过期条目）
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}
