package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"mapvis/internal/breakdown"
	"mapvis/internal/doc"
	"mapvis/internal/logger"
	"mapvis/internal/metrics"
	"mapvis/internal/resolver"
	"mapvis/internal/session"
)

var errHeadless = errors.New("upload not available in server-side rendering")

// localClient：服务端渲染会话的数据来源，直接读取存储与区域缓存，不经过网络
type localClient struct{ s *server }

func (c localClient) Upload(context.Context, string, io.Reader, int64, func(int64, int64), func()) (int, []byte, error) {
	return 0, nil, errHeadless
}

func (c localClient) FetchRegion(ctx context.Context, id int64) (*doc.Region, error) {
	return c.s.Regions.Get(ctx, id)
}

func (c localClient) Document(ctx context.Context, id string) ([]byte, error) {
	return c.s.Store.DatasetJSON(ctx, id)
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	metrics.RequestsTotal.WithLabelValues("index").Inc()
	w.Header().Set("content-type", "text/html; charset=utf-8")
	if err := indexPage.Execute(w, nil); err != nil {
		logger.L().Error("page_render_error", "page", "index", "err", err)
	}
}

// 文档注释：/doc/{id}、/doc/{id}.json、/doc/{id}.svg
// 背景：.svg 与 HTML 页面支持 ?record=N 与 ?stat=N，用于在服务端渲染出选中状态。
func (s *server) handleDoc(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	switch {
	case strings.HasSuffix(file, ".json"):
		metrics.RequestsTotal.WithLabelValues("doc_json").Inc()
		b, err := s.Store.DatasetJSON(r.Context(), strings.TrimSuffix(file, ".json"))
		if err != nil {
			writeError(w, "doc_json", err)
			return
		}
		w.Header().Set("content-type", "application/json; charset=utf-8")
		_, _ = w.Write(b)
	case strings.HasSuffix(file, ".svg"):
		metrics.RequestsTotal.WithLabelValues("doc_svg").Inc()
		b, err := s.Store.DatasetJSON(r.Context(), strings.TrimSuffix(file, ".svg"))
		if err != nil {
			writeError(w, "doc_svg", err)
			return
		}
		var buf bytes.Buffer
		if err := s.renderSVG(r.Context(), &buf, b, intParam(r, "record"), intParam(r, "stat")); err != nil {
			writeError(w, "doc_svg", err)
			return
		}
		w.Header().Set("content-type", "image/svg+xml")
		_, _ = buf.WriteTo(w)
	default:
		metrics.RequestsTotal.WithLabelValues("doc").Inc()
		ds, err := s.loadDataset(r.Context(), file)
		if err != nil {
			writeError(w, "doc", err)
			return
		}
		w.Header().Set("content-type", "text/html; charset=utf-8")
		data := docView{Dataset: ds, SVG: "/doc/" + ds.ID + ".svg"}
		if q := r.URL.RawQuery; q != "" {
			data.SVG += "?" + q
		}
		if err := docPage.Execute(w, data); err != nil {
			logger.L().Error("page_render_error", "page", "doc", "err", err)
		}
	}
}

func (s *server) loadDataset(ctx context.Context, id string) (*doc.Dataset, error) {
	b, err := s.Store.DatasetJSON(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.Decode(b)
}

func intParam(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return -1
	}
	return n
}

// 文档注释：服务端渲染
// 背景：复用客户端同一套会话事件循环：加载文档、等待全部区域回报、按需激活区域与统计标签后输出 SVG。
// 约束：文档本身无法加载（形状错误等）时返回首个告警；区域抓取失败只记录日志，输出其余部分。
func (s *server) renderSVG(ctx context.Context, w io.Writer, payload []byte, record, stat int) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	var mu sync.Mutex
	var alerts []error
	notify := session.NotifierFunc(func(err error) {
		mu.Lock()
		alerts = append(alerts, err)
		mu.Unlock()
	})
	sess := session.New(session.Config{Width: s.RenderW, Height: s.RenderH}, localClient{s}, notify)
	go func() { _ = sess.Run(ctx) }()

	sess.Load(payload)
	if err := sess.WaitSettled(ctx); err != nil {
		return err
	}
	st, err := sess.Snapshot(ctx)
	if err != nil {
		return err
	}
	mu.Lock()
	seen := append([]error(nil), alerts...)
	mu.Unlock()
	if st.DatasetID == "" {
		if len(seen) > 0 {
			return seen[0]
		}
		return fmt.Errorf("%w: dataset not loaded", doc.ErrDataShape)
	}
	if len(seen) > 0 {
		logger.L().Warn("svg_render_partial", "dataset_id", st.DatasetID, "alerts", len(seen), "first", seen[0])
	}
	if record >= 0 {
		sess.Activate(resolver.RegionID(record))
	}
	if stat >= 0 {
		sess.Activate(breakdown.StatID(stat))
	}
	return sess.Render(ctx, w)
}

func (s *server) handleRegion(w http.ResponseWriter, r *http.Request) {
	metrics.RequestsTotal.WithLabelValues("region").Inc()
	id, err := strconv.ParseInt(r.PathValue("osm_id"), 10, 64)
	if err != nil {
		writeError(w, "region", fmt.Errorf("%w: osm_id: %v", errBadRequest, err))
		return
	}
	reg, err := s.Regions.Get(r.Context(), id)
	if err != nil {
		writeError(w, "region", err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	metrics.RequestsTotal.WithLabelValues("stats").Inc()
	n, err := s.Store.DatasetCount(r.Context())
	if err != nil {
		writeError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "datasets": n})
}
