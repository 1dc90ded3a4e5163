// 包 resolver：按记录异步获取区域几何，带代际标记地插入共享场景
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"mapvis/internal/doc"
	"mapvis/internal/logger"
	"mapvis/internal/metrics"
	"mapvis/internal/scene"
)

// ErrUnknownRecord：事件指向的记录不存在于当前数据集
var ErrUnknownRecord = errors.New("unknown record")

// Fetcher：由 transport.Client 实现
type Fetcher interface {
	FetchRegion(ctx context.Context, id int64) (*doc.Region, error)
}

// TaskID：代际 + 记录下标
type TaskID struct {
	Generation uint64
	Record     int
}

// Arrived：单条记录的几何到达（或失败）
type Arrived struct {
	Region *doc.Region
	Err    error
}

// RegionID / BBoxID 场景节点 id
func RegionID(record int) string { return "region-" + strconv.Itoa(record) }
func BBoxID(record int) string   { return "bbox-" + strconv.Itoa(record) }

// 文档注释：区域解析器
// 背景：每次加载数据集开启新代际并取消上一代的上下文；迟到的旧代响应只计数丢弃，永不写入场景。
// 约束：Load / Resolve / OnEvent 仅由会话事件循环调用；抓取 goroutine 只通过 post 回报。
type Resolver struct {
	fetch Fetcher
	post  func(TaskID, Arrived)
	sc    *scene.Scene

	gen      uint64
	ctx      context.Context
	cancel   context.CancelFunc
	ds       *doc.Dataset
	onSelect func(record int)
	inflight map[int]bool
	settled  chan struct{}
}

func New(f Fetcher, sc *scene.Scene, post func(TaskID, Arrived)) *Resolver {
	settled := make(chan struct{})
	close(settled)
	return &Resolver{fetch: f, sc: sc, post: post, inflight: map[int]bool{}, settled: settled}
}

// Generation 当前代际
func (r *Resolver) Generation() uint64 { return r.gen }

// Pending 当前代际在途请求数
func (r *Resolver) Pending() int { return len(r.inflight) }

// Settled：当前代际全部请求回报后关闭
func (r *Resolver) Settled() <-chan struct{} { return r.settled }

// 文档注释：开启新代际并为每条可解析记录发起一次抓取
// 参数：onSelect 绑定到插入的区域形状，激活时回调记录下标。
// 返回：新代际编号。
func (r *Resolver) Load(ctx context.Context, ds *doc.Dataset, onSelect func(record int)) uint64 {
	r.Stop()
	r.gen++
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.ds = ds
	r.onSelect = onSelect
	r.inflight = map[int]bool{}
	r.settled = make(chan struct{})
	r.Resolve()
	return r.gen
}

// Stop：取消当前代际的在途请求；其迟到回报仍会按代际被丢弃
func (r *Resolver) Stop() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// 文档注释：为尚未解析且不在途的记录发起抓取
// 约束：幂等；已有 Region 或已在途的记录不会重复请求。
func (r *Resolver) Resolve() {
	if r.ds == nil {
		return
	}
	for i := range r.ds.Records {
		rec := &r.ds.Records[i]
		if !rec.Resolvable() || rec.Region != nil || r.inflight[i] {
			continue
		}
		r.inflight[i] = true
		id := TaskID{Generation: r.gen, Record: i}
		ctx, osmID := r.ctx, *rec.RegionID
		go func() {
			reg, err := r.fetch.FetchRegion(ctx, osmID)
			r.post(id, Arrived{Region: reg, Err: err})
		}()
	}
	r.checkSettled()
}

// 文档注释：处理几何到达事件
// 返回：inserted 表示本次写入了场景；err 为需要告警的抓取失败或场景冲突。旧代事件返回 (false, nil)。
func (r *Resolver) OnEvent(id TaskID, ev Arrived) (bool, error) {
	l := logger.L()
	if id.Generation != r.gen {
		metrics.StaleDropsTotal.Inc()
		l.Debug("region_stale_drop", "generation", id.Generation, "current", r.gen, "record", id.Record)
		return false, nil
	}
	if r.ds == nil || id.Record < 0 || id.Record >= len(r.ds.Records) {
		return false, fmt.Errorf("%w: %d", ErrUnknownRecord, id.Record)
	}
	delete(r.inflight, id.Record)
	defer r.checkSettled()

	rec := &r.ds.Records[id.Record]
	if ev.Err != nil {
		metrics.RegionFetchTotal.WithLabelValues("error").Inc()
		l.Error("region_fetch_error", "record", id.Record, "query", rec.Query, "err", ev.Err)
		return false, fmt.Errorf("resolve %q: %w", rec.Query, ev.Err)
	}
	if rec.Region != nil || ev.Region == nil {
		return false, nil
	}

	shape := scene.Path(RegionID(id.Record), ev.Region.SimplePath, "region")
	i := id.Record
	shape.OnActivate(func() {
		if r.onSelect != nil {
			r.onSelect(i)
		}
	})
	outline := scene.Path(BBoxID(id.Record), OutlinePath(ev.Region.BoundingBox), "bbox")
	if err := r.sc.AddAll(r.sc.Regions, shape, outline); err != nil {
		return false, fmt.Errorf("insert %s: %w", shape.ID, err)
	}
	rec.Region = ev.Region
	metrics.RegionFetchTotal.WithLabelValues("ok").Inc()
	l.Debug("region_inserted", "record", id.Record, "name", ev.Region.Name, "generation", id.Generation)
	return true, nil
}

func (r *Resolver) checkSettled() {
	if len(r.inflight) > 0 {
		return
	}
	select {
	case <-r.settled:
	default:
		close(r.settled)
	}
}

// OutlinePath：包围盒轮廓（数据空间，y 轴取反）
func OutlinePath(b doc.BBox) string {
	f := func(v float64) string {
		if v == 0 {
			v = 0
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "M " + f(b.Left()) + " " + f(-b.Top()) +
		" H " + f(b.Right()) +
		" V " + f(-b.Bottom()) +
		" H " + f(b.Left()) + " Z"
}
