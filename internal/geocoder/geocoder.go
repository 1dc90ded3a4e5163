// 包 geocoder：Nominatim 兼容地理编码服务客户端（黑盒），把查询词映射为行政边界区域
package geocoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mapvis/internal/doc"
	"mapvis/internal/logger"
	"mapvis/internal/metrics"
)

// DefaultURL：公共 Nominatim 实例
const DefaultURL = "https://nominatim.openstreetmap.org"

// ErrNoMatch：结果中没有 boundary 类别的条目
var ErrNoMatch = errors.New("no boundary match")

// Place：jsonv2 搜索结果中本服务使用的字段
type Place struct {
	OSMID       int64    `json:"osm_id"`
	Category    string   `json:"category"`
	DisplayName string   `json:"display_name"`
	PlaceRank   int      `json:"place_rank"`
	Importance  float64  `json:"importance"`
	SVG         string   `json:"svg"`
	BoundingBox doc.BBox `json:"boundingbox"`
}

type Client struct {
	BaseURL   string
	HTTP      *http.Client
	UserAgent string
}

// New：hc 为空时使用 10s 超时的默认客户端
func New(baseURL string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: hc, UserAgent: "mapvis/1.0"}
}

// 文档注释：搜索边界
// 背景：请求 format=jsonv2&limit=5&polygon_svg=1，仅保留 category=boundary 的结果，保持服务返回顺序。
// 返回：非 2xx 与解码失败返回错误；无边界结果返回空切片。
func (c *Client) Search(ctx context.Context, q string) ([]Place, error) {
	v := url.Values{}
	v.Set("format", "jsonv2")
	v.Set("q", q)
	v.Set("limit", "5")
	v.Set("polygon_svg", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/search?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "application/json")

	t0 := time.Now()
	metrics.GeocoderRequestsTotal.Inc()
	logger.L().Debug("geocoder_req", "q", q)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		logger.L().Error("geocoder_http_error", "q", q, "err", err)
		metrics.GeocoderFailTotal.Inc()
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.GeocoderFailTotal.Inc()
		logger.L().Error("geocoder_status", "q", q, "status", resp.StatusCode)
		return nil, fmt.Errorf("geocoder: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var all []Place
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		logger.L().Error("geocoder_decode_error", "q", q, "err", err)
		metrics.GeocoderFailTotal.Inc()
		return nil, fmt.Errorf("geocoder: decode: %w", err)
	}
	dur := time.Since(t0).Milliseconds()
	metrics.GeocoderDurationMs.Observe(float64(dur))

	out := all[:0]
	for _, p := range all {
		if p.Category == "boundary" {
			out = append(out, p)
		}
	}
	logger.L().Debug("geocoder_resp", "q", q, "results", len(all), "boundaries", len(out), "duration_ms", dur)
	return out, nil
}

// 文档注释：查询词 -> 区域
// 背景：取第一个边界结果，几何经 SimplifyPath 压缩后返回。
func (c *Client) Lookup(ctx context.Context, q string) (*doc.Region, error) {
	places, err := c.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoMatch, q)
	}
	p := places[0]
	path, err := SimplifyPath(p.SVG)
	if err != nil {
		return nil, fmt.Errorf("geocoder: osm %d: %w", p.OSMID, err)
	}
	return &doc.Region{
		OSMID:       p.OSMID,
		PlaceRank:   p.PlaceRank,
		Name:        p.DisplayName,
		SimplePath:  path,
		BoundingBox: p.BoundingBox,
	}, nil
}
