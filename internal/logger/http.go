// 包 logger：http访问日志中间件
package logger

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"mapvis/internal/metrics"
)

// statusWriter 记录状态码与响应字节数
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap 供 http.ResponseController 访问底层连接
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// accessLevel：5xx 记 Warn，上传记 Info（低频且需审计文件大小），其余 Debug
func accessLevel(r *http.Request, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelWarn
	case r.Method == http.MethodPost:
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// AccessMiddleware：生成访问日志中间件
// 约束：不读取请求体（上传文件可能很大），只记录声明的 Content-Length；耗时同时记入请求耗时直方图。
func AccessMiddleware(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)
			dur := time.Since(start)
			metrics.RequestDurationMs.Observe(float64(dur.Milliseconds()))
			l.Log(context.Background(), accessLevel(r, sw.status), "http_access",
				"method", r.Method,
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
				"status", sw.status,
				"req_bytes", r.ContentLength,
				"bytes", sw.bytes,
				"duration_ms", dur.Milliseconds(),
			)
		})
	}
}
