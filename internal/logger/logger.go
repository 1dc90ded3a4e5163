package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// 默认日志器：进程级复用
var defaultLogger *slog.Logger

// Setup：按 LOG_LEVEL / LOG_FORMAT 初始化默认日志器
// 约束：服务端与客户端命令行共用；输出固定为标准错误。
func Setup() *slog.Logger {
	return SetupWriter(os.Stderr)
}

// SetupWriter：同 Setup，但输出到指定 writer（交互式客户端需把日志与 stdout 分离，测试用于捕获输出）
func SetupWriter(w io.Writer) *slog.Logger {
	lvl := ParseLevel(os.Getenv("LOG_LEVEL"))
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	defaultLogger = slog.New(h)
	return defaultLogger
}

// ParseLevel：未知值回退到 info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// L：获取默认日志器；若未初始化则回退到 Setup
func L() *slog.Logger {
	if defaultLogger == nil {
		return Setup()
	}
	return defaultLogger
}
