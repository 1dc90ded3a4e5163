package api

import (
	"net/http"
	"strings"
)

// 文档注释：获取客户端 IP（仅用于日志）
// 背景：多层代理环境下，优先常见反向代理头，最后回退远端地址。
// 约束：头部可被伪造，结果不参与任何鉴权或限流判定。
func clientIP(r *http.Request) string {
	h := r.Header
	if x := h.Get("x-forwarded-for"); x != "" {
		return strings.TrimSpace(strings.Split(x, ",")[0])
	}
	if x := h.Get("cf-connecting-ip"); x != "" {
		return x
	}
	if x := h.Get("x-real-ip"); x != "" {
		return x
	}
	if x := h.Get("forwarded"); x != "" {
		i := strings.Index(strings.ToLower(x), "for=")
		if i >= 0 {
			y := x[i+4:]
			if p := strings.IndexAny(y, ";,"); p >= 0 {
				y = y[:p]
			}
			y = strings.Trim(y, "\" ")
			// for="[2001:db8::1]:4711"
			if strings.HasPrefix(y, "[") {
				if p := strings.Index(y, "]"); p > 0 {
					y = y[1:p]
				}
			}
			return y
		}
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		return host[:i]
	}
	return host
}
