// 包 store: 提供与 PostgreSQL 的数据访问层，包含数据集文档、区域几何与查询词缓存的读写
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"mapvis/internal/doc"
	"mapvis/internal/logger"
)

// ErrNotFound: 记录不存在
var ErrNotFound = errors.New("not found")

// Store: 数据库访问入口，持有连接池
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Open: 使用 DSN 打开数据库连接并配置连接池参数
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	return &Store{db: db}, nil
}

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// 文档注释：保存数据集文档
// 背景：文档整体以 JSON 存储，与 /doc/{id}.json 的响应完全一致；同 id 覆盖写。
func (s *Store) SaveDataset(ctx context.Context, ds *doc.Dataset) error {
	b, err := json.Marshal(ds)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO _mapvis_datasets(id, name, body) VALUES($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, body=EXCLUDED.body`,
		ds.ID, ds.Name, b)
	if err != nil {
		return fmt.Errorf("save dataset %s: %w", ds.ID, err)
	}
	logger.L().Debug("db_dataset_saved", "dataset_id", ds.ID, "records", len(ds.Records), "bytes", len(b))
	return nil
}

// DatasetJSON: 读取数据集原始 JSON；不存在时返回 ErrNotFound
func (s *Store) DatasetJSON(ctx context.Context, id string) ([]byte, error) {
	var b []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM _mapvis_datasets WHERE id=$1`, id).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", id, err)
	}
	return b, nil
}

// LoadDataset: 读取并解码数据集
func (s *Store) LoadDataset(ctx context.Context, id string) (*doc.Dataset, error) {
	b, err := s.DatasetJSON(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.Decode(b)
}

// DatasetCount: 已保存的数据集数量
func (s *Store) DatasetCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM _mapvis_datasets`).Scan(&n)
	return n, err
}

// GetRegion: 按 OSM 编号读取区域几何；不存在时返回 ErrNotFound
func (s *Store) GetRegion(ctx context.Context, osmID int64) (*doc.Region, error) {
	var b []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM _mapvis_regions WHERE osm_id=$1`, osmID).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		logger.L().Debug("db_region_miss", "osm_id", osmID)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get region %d: %w", osmID, err)
	}
	var r doc.Region
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("get region %d: %w", osmID, err)
	}
	return &r, nil
}

// UpsertRegion: 写入或覆盖区域几何
func (s *Store) UpsertRegion(ctx context.Context, r *doc.Region) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO _mapvis_regions(osm_id, place_rank, body) VALUES($1, $2, $3)
		 ON CONFLICT (osm_id) DO UPDATE SET place_rank=EXCLUDED.place_rank, body=EXCLUDED.body`,
		r.OSMID, r.PlaceRank, b)
	if err != nil {
		return fmt.Errorf("upsert region %d: %w", r.OSMID, err)
	}
	return nil
}

// 文档注释：查询词到区域编号的缓存
// 返回：found=false 表示从未查询过；found=true 且 osmID 为 nil 表示已查询但地理编码无结果（负缓存）。
func (s *Store) LookupQuery(ctx context.Context, q string) (osmID *int64, found bool, err error) {
	var id sql.NullInt64
	err = s.db.QueryRowContext(ctx, `SELECT osm_id FROM _mapvis_queries WHERE search_string=$1`, q).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup query %q: %w", q, err)
	}
	if id.Valid {
		v := id.Int64
		return &v, true, nil
	}
	return nil, true, nil
}

// SaveQuery: 记录查询词结果；osmID 为 nil 时写入负缓存
func (s *Store) SaveQuery(ctx context.Context, q string, osmID *int64) error {
	var id sql.NullInt64
	if osmID != nil {
		id = sql.NullInt64{Int64: *osmID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO _mapvis_queries(search_string, osm_id) VALUES($1, $2)
		 ON CONFLICT (search_string) DO UPDATE SET osm_id=EXCLUDED.osm_id`,
		q, id)
	if err != nil {
		return fmt.Errorf("save query %q: %w", q, err)
	}
	return nil
}
