// 程序入口：仅负责读取配置、初始化依赖并启动服务；路由注册在 internal/api
package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"mapvis/internal/api"
	"mapvis/internal/geocoder"
	"mapvis/internal/logger"
	"mapvis/internal/middleware"
	"mapvis/internal/migrate"
	"mapvis/internal/regioncache"
	"mapvis/internal/store"
	"mapvis/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok")

	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(ctx); err != nil {
		l.Error("db_ping_error", "err", err)
	} else {
		l.Info("db_ping_ok")
	}
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		cancel()
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}
	cancel()
	st := store.AttachDB(db)

	ttl := time.Duration(utils.EnvInt("REGION_CACHE_TTL_S", 86400)) * time.Second
	var redisLayer regioncache.Layer
	if rc := utils.OpenRedisFromEnv(); rc != nil {
		if err := rc.Ping(context.Background()).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
		defer rc.Close()
		redisLayer = regioncache.NewRedis(rc, ttl)
	}
	regions := regioncache.NewChain(
		regioncache.NewLRU(utils.EnvInt("REGION_LRU_SIZE", 4096), ttl),
		redisLayer,
		regioncache.StoreLayer{S: st},
	)

	geoURL := utils.EnvOr("GEOCODER_URL", geocoder.DefaultURL)
	l.Debug("config_geocoder", "url", geoURL)

	mux := api.BuildRoutes(api.Deps{
		Store:       st,
		Regions:     regions,
		Geocoder:    geocoder.New(geoURL, nil),
		Concurrency: utils.EnvInt("GEOCODER_CONCURRENCY", 12),
		MaxUpload:   int64(utils.EnvInt("UPLOAD_MAX_BYTES", 32<<20)),
	})

	addr := utils.EnvOr("ADDR", ":8080")
	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	s := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	if os.Getenv("TLS_ENABLE") == "true" {
		certPath := utils.EnvOr("TLS_CERT_PATH", filepath.Join("data", "certs", "server.crt"))
		keyPath := utils.EnvOr("TLS_KEY_PATH", filepath.Join("data", "certs", "server.key"))
		if err := utils.EnsureSelfSignedCert(certPath, keyPath, "mapvis.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", addr, "cert", certPath)
		if err := s.ListenAndServeTLS(certPath, keyPath); err != nil {
			l.Error("server_error", "err", err)
		}
		return
	}
	l.Info("listening", "addr", addr)
	if err := s.ListenAndServe(); err != nil {
		l.Error("server_error", "err", err)
	}
}
