// 包 api：集中注册 HTTP 路由（上传、文档、区域、统计），主入口只负责组装依赖
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"mapvis/internal/doc"
	"mapvis/internal/logger"
	"mapvis/internal/metrics"
	"mapvis/internal/regioncache"
	"mapvis/internal/sheet"
	"mapvis/internal/store"
)

// DatasetStore：文档与查询词缓存的持久化，由 store.Store 实现
type DatasetStore interface {
	SaveDataset(ctx context.Context, ds *doc.Dataset) error
	DatasetJSON(ctx context.Context, id string) ([]byte, error)
	DatasetCount(ctx context.Context) (int64, error)
	LookupQuery(ctx context.Context, q string) (*int64, bool, error)
	SaveQuery(ctx context.Context, q string, osmID *int64) error
}

// RegionCache：区域几何读写，由 regioncache.Chain 实现；未命中返回 regioncache.ErrMiss
type RegionCache interface {
	Get(ctx context.Context, id int64) (*doc.Region, error)
	Put(ctx context.Context, r *doc.Region) error
}

// Geocoder：查询词 -> 区域，由 geocoder.Client 实现；无匹配返回 geocoder.ErrNoMatch
type Geocoder interface {
	Lookup(ctx context.Context, q string) (*doc.Region, error)
}

// Deps：路由依赖与限额
type Deps struct {
	Store       DatasetStore
	Regions     RegionCache
	Geocoder    Geocoder
	Concurrency int
	MaxUpload   int64
	RenderW     int
	RenderH     int
	NewID       func() string
}

type server struct {
	Deps
}

// 文档注释：构建并返回路由
// 背景：/doc/{file} 同时承载 HTML、.json 与 .svg 三种表示，按后缀分派。
func BuildRoutes(d Deps) *http.ServeMux {
	if d.Concurrency <= 0 {
		d.Concurrency = 12
	}
	if d.MaxUpload <= 0 {
		d.MaxUpload = 32 << 20
	}
	if d.RenderW <= 0 || d.RenderH <= 0 {
		d.RenderW, d.RenderH = 960, 600
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	s := &server{Deps: d}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /upload", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /doc/{file}", s.handleDoc)
	mux.HandleFunc("GET /region/{osm_id}", s.handleRegion)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// 文档注释：错误到状态码的映射
// 约束：存储未命中 -> 404，表格/文档形状错误 -> 400，超出上传限额 -> 413，其余 -> 500。
func writeError(w http.ResponseWriter, route string, err error) {
	code := http.StatusInternalServerError
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, regioncache.ErrMiss):
		code = http.StatusNotFound
	case errors.Is(err, sheet.ErrBadSheet), errors.Is(err, doc.ErrDataShape), errors.Is(err, errBadRequest):
		code = http.StatusBadRequest
	case errors.As(err, &tooBig):
		code = http.StatusRequestEntityTooLarge
	}
	if code == http.StatusInternalServerError {
		logger.L().Error("api_error", "route", route, "err", err)
	} else {
		logger.L().Debug("api_reject", "route", route, "status", code, "err", err)
	}
	writeJSON(w, code, map[string]any{"ok": false, "error": err.Error()})
}

var errBadRequest = errors.New("bad request")
