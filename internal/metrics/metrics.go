package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapvis_requests_total",
		Help: "Total number of HTTP requests by route",
	}, []string{"route"})
	RequestDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mapvis_request_duration_ms",
		Help:    "Request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	})
	UploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapvis_uploads_total",
		Help: "Upload tasks by outcome",
	}, []string{"status"})
	UploadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapvis_upload_bytes_total",
		Help: "Total uploaded dataset bytes",
	})
	RegionFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapvis_region_fetch_total",
		Help: "Client region resolutions by outcome",
	}, []string{"status"})
	StaleDropsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapvis_region_stale_drops_total",
		Help: "Region or document responses discarded because a newer request superseded them",
	})
	RenderErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapvis_render_errors_total",
		Help: "Dataset loads aborted by data-shape errors",
	})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapvis_region_cache_hits_total",
		Help: "Region cache hits by layer",
	}, []string{"layer"})
	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapvis_region_cache_misses_total",
		Help: "Region cache misses by layer",
	}, []string{"layer"})
	GeocoderRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapvis_geocoder_requests_total",
		Help: "Total geocoder search requests",
	})
	GeocoderFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapvis_geocoder_fail_total",
		Help: "Total geocoder failures",
	})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapvis_rate_limited_total",
		Help: "Requests rejected by the token bucket",
	})
	GeocoderDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mapvis_geocoder_duration_ms",
		Help:    "Geocoder call duration in milliseconds",
		Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000},
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(UploadsTotal)
	prometheus.MustRegister(UploadBytesTotal)
	prometheus.MustRegister(RegionFetchTotal)
	prometheus.MustRegister(StaleDropsTotal)
	prometheus.MustRegister(RenderErrorsTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(GeocoderRequestsTotal)
	prometheus.MustRegister(GeocoderFailTotal)
	prometheus.MustRegister(GeocoderDurationMs)
	prometheus.MustRegister(RateLimitedTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 /metrics 路径，供 Prometheus 抓取；在服务入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
