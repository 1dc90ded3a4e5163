package utils

import (
	"crypto/tls"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSNFromEnv(t *testing.T) {
	t.Setenv("PG_HOST", "db")
	t.Setenv("PG_PORT", "")
	t.Setenv("PG_USER", "mv")
	t.Setenv("PG_PASSWORD", "pw")
	t.Setenv("PG_DB", "")
	t.Setenv("PG_SSLMODE", "")
	assert.Equal(t, "postgres://mv:pw@db:5432/mapvis?sslmode=disable", BuildPostgresDSNFromEnv())
}

func TestEnvInt(t *testing.T) {
	t.Setenv("X_N", "12")
	assert.Equal(t, 12, EnvInt("X_N", 3))
	t.Setenv("X_N", "twelve")
	assert.Equal(t, 3, EnvInt("X_N", 3))
	assert.Equal(t, "d", EnvOr("X_MISSING_FOR_TEST", "d"))
}

func TestOpenRedisFromEnvDisabled(t *testing.T) {
	t.Setenv("REDIS_DISABLED", "true")
	assert.Nil(t, OpenRedisFromEnv())
	assert.Nil(t, OpenRedis("", ""))
}

func TestOpenRedisFromEnv(t *testing.T) {
	t.Setenv("REDIS_DISABLED", "")
	t.Setenv("REDIS_URL", "redis://:secret@cache.internal:6380/3")
	rc := OpenRedisFromEnv()
	require.NotNil(t, rc)
	defer rc.Close()
	assert.Equal(t, "cache.internal:6380", rc.Options().Addr)
	assert.Equal(t, 3, rc.Options().DB)
	assert.Equal(t, "secret", rc.Options().Password)

	t.Setenv("REDIS_URL", "http://nope")
	t.Setenv("REDIS_HOST", "10.1.1.1")
	t.Setenv("REDIS_PORT", "")
	t.Setenv("REDIS_DB", "-2")
	rc2 := OpenRedisFromEnv()
	require.NotNil(t, rc2)
	defer rc2.Close()
	assert.Equal(t, "10.1.1.1:6379", rc2.Options().Addr)
	assert.Equal(t, 0, rc2.Options().DB)
}

func TestEnsureSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "tls", "cert.pem")
	key := filepath.Join(dir, "tls", "key.pem")
	require.NoError(t, EnsureSelfSignedCert(cert, key, "mapvis.local"))
	_, err := tls.LoadX509KeyPair(cert, key)
	require.NoError(t, err)
	// 已存在时不覆盖
	require.NoError(t, EnsureSelfSignedCert(cert, key, "other"))
}
