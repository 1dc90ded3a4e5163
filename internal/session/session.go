// 包 session：可视化会话，单一事件循环独占数据集、选择状态、场景、上传跟踪与区域解析
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"mapvis/internal/doc"
	"mapvis/internal/logger"
	"mapvis/internal/metrics"
	"mapvis/internal/projection"
	"mapvis/internal/resolver"
	"mapvis/internal/scene"
	"mapvis/internal/selection"
	"mapvis/internal/upload"
)

// ErrClosed：事件循环已退出
var ErrClosed = errors.New("session closed")

// Client：会话依赖的服务端能力，由 transport.Client 实现
type Client interface {
	upload.Uploader
	resolver.Fetcher
	Document(ctx context.Context, id string) ([]byte, error)
}

// Notifier：顶层告警出口（等价于页面 alert）
type Notifier interface {
	Alert(err error)
}

// NotifierFunc 适配函数为 Notifier
type NotifierFunc func(error)

func (f NotifierFunc) Alert(err error) { f(err) }

// Config：视口与淡出延迟
type Config struct {
	Width     int
	Height    int
	FadeDelay time.Duration
}

// DefaultConfig：960×600，淡出延迟 100ms
func DefaultConfig() Config {
	return Config{Width: 960, Height: 600, FadeDelay: 100 * time.Millisecond}
}

// 文档注释：可视化会话
// 背景：上传 goroutine 与区域抓取 goroutine 只投递事件；所有共享状态只在 Run 所在 goroutine 中读写，
// 因此各组件本身无需加锁。新数据集加载时场景整体清空重建，不做增量比对。
type Session struct {
	cfg    Config
	client Client
	notify Notifier
	log    *slog.Logger

	events chan Event
	done   chan struct{}
	ctx    context.Context

	sc       *scene.Scene
	proj     *projection.Projector
	tracker  *upload.Tracker
	resolver *resolver.Resolver
	sel      *selection.Machine

	ds        *doc.Dataset
	history   []string
	pos       int
	uploading bool
	loading   int
	idle      chan struct{}
	// openSeq：每次 open 与成功 load 递增，旧序号的文档响应直接丢弃
	openSeq uint64
}

func New(cfg Config, client Client, notify Notifier) *Session {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		d := DefaultConfig()
		cfg.Width, cfg.Height = d.Width, d.Height
	}
	if notify == nil {
		notify = NotifierFunc(func(err error) { logger.L().Error("session_alert", "err", err) })
	}
	s := &Session{
		cfg:     cfg,
		client:  client,
		notify:  notify,
		log:     logger.L(),
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
		ctx:     context.Background(),
		sc:      scene.New(cfg.Width, cfg.Height),
		tracker: upload.NewTracker(),
		pos:     -1,
	}
	s.idle = make(chan struct{})
	close(s.idle)
	s.proj = projection.NewProjector(0, 0)
	s.resolver = resolver.New(client, s.sc, func(id resolver.TaskID, ev resolver.Arrived) {
		s.Post(regionEvent{id: id, ev: ev})
	})
	s.sel = selection.New(view{s})
	s.sel.Reset()
	s.layout()
	return s
}

// 文档注释：运行事件循环直到 ctx 结束
// 约束：同一会话只能运行一次；退出时取消在途的区域抓取。
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	defer close(s.done)
	defer s.resolver.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

// Post：投递事件；事件循环退出后丢弃
func (s *Session) Post(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// 文档注释：在事件循环内执行 fn 并等待其返回
// 背景：外部读取场景或状态的唯一安全方式。
func (s *Session) Do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case s.events <- funcEvent{fn: func() { errc <- fn() }}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// 文档注释：等待在途的上传与文档获取结束，且最新代际的区域解析全部回报
// 背景：上传或打开完成会触发新的加载，因此先等加载来源，再读取最新代际的 settled 通道。
func (s *Session) WaitSettled(ctx context.Context) error {
	var idle, regions <-chan struct{}
	if err := s.Do(ctx, func() error { idle = s.idle; return nil }); err != nil {
		return err
	}
	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.Do(ctx, func() error { regions = s.resolver.Settled(); return nil }); err != nil {
		return err
	}
	select {
	case <-regions:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// 便捷投递
func (s *Session) Upload(files []upload.File) { s.Post(UploadEvent{Files: files}) }
func (s *Session) Open(id string)             { s.Post(OpenEvent{ID: id, Push: true}) }
func (s *Session) Load(payload []byte)        { s.Post(LoadEvent{Payload: payload}) }
func (s *Session) Resize(w, h int)            { s.Post(ResizeEvent{Width: w, Height: h}) }
func (s *Session) Activate(nodeID string)     { s.Post(ActivateEvent{NodeID: nodeID}) }
func (s *Session) Key(key string)             { s.Post(KeyEvent{Key: key}) }

// Render：在事件循环内把当前场景写出为 SVG
func (s *Session) Render(ctx context.Context, w io.Writer) error {
	return s.Do(ctx, func() error { return s.sc.Render(w) })
}

func (s *Session) handle(ev Event) {
	switch e := ev.(type) {
	case funcEvent:
		e.fn()
	case UploadEvent:
		s.startUpload(e.Files)
	case uploadEvent:
		s.onUpload(e.id, e.ev)
	case fadeEvent:
		if s.tracker.Fade(e.batch) {
			s.drawProgress()
		}
	case regionEvent:
		if _, err := s.resolver.OnEvent(e.id, e.ev); err != nil {
			s.alert(err)
		}
	case LoadEvent:
		s.load(e.Payload, e.Push)
	case OpenEvent:
		s.open(e.ID, e.Push)
	case ResizeEvent:
		s.sc.Resize(e.Width, e.Height)
		s.layout()
	case ActivateEvent:
		if !s.sc.Activate(e.NodeID) {
			s.log.Debug("activate_miss", "node", e.NodeID)
		}
	case KeyEvent:
		if e.Key == KeyEscape {
			s.sel.Clear()
			s.layout()
		}
	case openResult:
		if e.seq != s.openSeq {
			metrics.StaleDropsTotal.Inc()
			s.log.Debug("open_stale_drop", "dataset_id", e.id, "seq", e.seq, "current", s.openSeq)
		} else if e.err != nil {
			s.alert(fmt.Errorf("open %s: %w", e.id, e.err))
		} else {
			s.load(e.payload, false)
		}
		s.endLoading()
	}
}

func (s *Session) beginLoading() {
	if s.loading == 0 {
		s.idle = make(chan struct{})
	}
	s.loading++
}

func (s *Session) endLoading() {
	s.loading--
	if s.loading == 0 {
		close(s.idle)
	}
}

func (s *Session) alert(err error) {
	s.log.Warn("session_alert", "err", err)
	s.notify.Alert(err)
}

func (s *Session) startUpload(files []upload.File) {
	if len(files) == 0 {
		return
	}
	batch := s.tracker.Begin(upload.Names(files))
	if !s.uploading {
		// 未完成的旧批次被新批次整体取代，只占用一次加载计数
		s.uploading = true
		s.beginLoading()
	}
	var size int64
	for _, f := range files {
		if f.Size > 0 {
			size += f.Size
		}
	}
	metrics.UploadBytesTotal.Add(float64(size))
	s.log.Info("upload_batch_start", "batch", batch, "files", len(files), "bytes", size)
	s.drawProgress()
	upload.Start(s.ctx, s.client, batch, files, func(id upload.TaskID, ev upload.Event) {
		s.Post(uploadEvent{id: id, ev: ev})
	})
}

func (s *Session) onUpload(id upload.TaskID, ev upload.Event) {
	res := s.tracker.OnEvent(id, ev)
	s.drawProgress()
	if res.Err != nil {
		s.alert(res.Err)
	}
	if res.Payload != nil {
		s.load(res.Payload, true)
	}
	if res.BatchComplete {
		s.log.Info("upload_batch_done", "batch", id.Batch)
		s.uploading = false
		s.endLoading()
		batch := id.Batch
		time.AfterFunc(s.cfg.FadeDelay, func() { s.Post(fadeEvent{batch: batch}) })
	}
}

// 文档注释：加载文档载荷
// 约束：先完整解码、校验并试算投影，任一失败即告警并保留旧状态；全部通过后才清空场景。
func (s *Session) load(payload []byte, push bool) {
	ds, err := doc.Decode(payload)
	if err == nil {
		_, err = projection.Fit(ds.BBox, 1, 1)
	}
	if err != nil {
		metrics.RenderErrorsTotal.Inc()
		s.alert(err)
		return
	}

	s.openSeq++
	s.sc.Reset()
	s.ds = ds
	s.sel.Reset()
	if _, err := s.proj.SetBBox(ds.BBox); err != nil {
		s.alert(err)
	}
	s.layout()
	gen := s.resolver.Load(s.ctx, ds, s.selectRecord)
	if push && ds.ID != "" {
		s.push(DocPath(ds.ID))
	}
	s.log.Info("dataset_loaded", "dataset_id", ds.ID, "name", ds.Name, "records", len(ds.Records), "generation", gen)
}

func (s *Session) open(id string, push bool) {
	if push {
		s.push(DocPath(id))
	}
	s.beginLoading()
	s.openSeq++
	seq := s.openSeq
	ctx := s.ctx
	go func() {
		b, err := s.client.Document(ctx, id)
		s.Post(openResult{id: id, seq: seq, payload: b, err: err})
	}()
}

func (s *Session) selectRecord(i int) {
	if err := s.sel.Select(i); err != nil {
		s.alert(err)
	}
	s.layout()
}

func (s *Session) selectHeading(h int) {
	s.sel.SelectHeading(h)
}

// DocPath：数据集的导航路径
func DocPath(id string) string { return "/doc/" + id }

// ParseDocPath：从 /doc/{id} 取出 id
func ParseDocPath(p string) (string, bool) {
	id, ok := strings.CutPrefix(p, "/doc/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
