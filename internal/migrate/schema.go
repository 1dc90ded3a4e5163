package migrate

import (
	"context"
	"database/sql"

	"mapvis/internal/logger"
)

// 背景：首次运行自动创建所需表与索引
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
var statements = []string{
	`CREATE TABLE IF NOT EXISTS _mapvis_datasets (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        body BYTEA NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE TABLE IF NOT EXISTS _mapvis_regions (
        osm_id BIGINT PRIMARY KEY,
        place_rank INT NOT NULL DEFAULT 0,
        body BYTEA NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS _mapvis_queries (
        search_string TEXT PRIMARY KEY,
        osm_id BIGINT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_mapvis_datasets_created ON _mapvis_datasets(created_at)`,
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, s := range statements {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
