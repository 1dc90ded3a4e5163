package regioncache

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapvis/internal/doc"
	"mapvis/internal/store"
)

func region(id int64) *doc.Region {
	return &doc.Region{OSMID: id, PlaceRank: 8, Name: "r", SimplePath: "M 0 0 Z", BoundingBox: doc.BBox{0, 1, 0, 1}}
}

// mapLayer：内存实现的最底层，记录读取次数
type mapLayer struct {
	m     map[int64]doc.Region
	gets  int
	err   error
	label string
}

func newMapLayer() *mapLayer { return &mapLayer{m: map[int64]doc.Region{}, label: "map"} }

func (l *mapLayer) Name() string { return l.label }

func (l *mapLayer) Get(_ context.Context, id int64) (*doc.Region, error) {
	l.gets++
	if l.err != nil {
		return nil, l.err
	}
	r, ok := l.m[id]
	if !ok {
		return nil, ErrMiss
	}
	return &r, nil
}

func (l *mapLayer) Put(_ context.Context, r *doc.Region) error {
	if l.err != nil {
		return l.err
	}
	l.m[r.OSMID] = *r
	return nil
}

func TestLRUEvictionAndTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(0, 0)
	c := NewLRU(2, time.Minute)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put(ctx, region(1)))
	require.NoError(t, c.Put(ctx, region(2)))
	_, err := c.Get(ctx, 1) // 1 变为最近使用
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, region(3)))

	_, err = c.Get(ctx, 2)
	assert.ErrorIs(t, err, ErrMiss, "least recently used entry evicted")
	got, err := c.Get(ctx, 1)
	require.NoError(t, err)
	got.Name = "mutated"
	again, _ := c.Get(ctx, 1)
	assert.Equal(t, "r", again.Name)

	now = now.Add(2 * time.Minute)
	_, err = c.Get(ctx, 3)
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 1, c.Len())
}

func TestRedisLayer(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	ctx := context.Background()
	l := NewRedis(rc, 10*time.Second)

	_, err := l.Get(ctx, 5)
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, l.Put(ctx, region(5)))
	assert.Equal(t, 10*time.Second, mr.TTL("region:5"))
	got, err := l.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, region(5), got)

	mr.FastForward(11 * time.Second)
	_, err = l.Get(ctx, 5)
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, mr.Set("region:6", "{not json"))
	_, err = l.Get(ctx, 6)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestChainBackfill(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	ctx := context.Background()

	lru := NewLRU(16, time.Minute)
	db := newMapLayer()
	db.m[9] = *region(9)
	c := NewChain(lru, NewRedis(rc, time.Minute), nil, db)

	got, err := c.Get(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.OSMID)
	assert.True(t, mr.Exists("region:9"), "redis back-filled")
	assert.Equal(t, 1, lru.Len(), "lru back-filled")

	_, err = c.Get(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 1, db.gets, "second read served before the db layer")

	_, err = c.Get(ctx, 404)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestChainPutAndErrors(t *testing.T) {
	ctx := context.Background()
	front := newMapLayer()
	front.label = "front"
	front.err = errors.New("front down")
	db := newMapLayer()
	c := NewChain(front, db)

	require.NoError(t, c.Put(ctx, region(3)), "front errors are logged only")
	got, err := c.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.OSMID)

	boom := errors.New("db down")
	db.err = boom
	_, err = c.Get(ctx, 3)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, c.Put(ctx, region(4)), boom)

	assert.NoError(t, NewChain().Put(ctx, region(1)))
	_, err = NewChain().Get(ctx, 1)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestStoreLayerMiss(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	l := StoreLayer{S: store.AttachDB(sqlDB)}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT body FROM _mapvis_regions")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"body"}))
	_, err = l.Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, "db", l.Name())
	require.NoError(t, mock.ExpectationsWereMet())
}
