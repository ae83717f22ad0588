package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/folio-blog/folioctl/internal/config"
	"github.com/folio-blog/folioctl/internal/logging"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "token", "abc"))
	require.NoError(t, s.Set(ctx, "token", "def"))
	v, ok, err := s.Get(ctx, "token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "def", v)

	require.NoError(t, s.Set(ctx, "other", "x"))
	require.NoError(t, s.Delete(ctx, "token", "other", "never-set"))
	_, ok, err = s.Get(ctx, "token")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Delete(ctx))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	s, err := OpenSQLite(context.Background(), path, "test", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}

func TestSQLiteStorePersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := OpenSQLite(ctx, path, "a", logging.Discard())
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", "v"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, "a", logging.Discard())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)

	other, err := OpenSQLite(ctx, path, "b", logging.Discard())
	require.NoError(t, err)
	defer func() { _ = other.Close() }()
	_, ok, err = other.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok, "namespaces must be isolated")
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("FOLIO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FOLIO_TEST_REDIS_ADDR not set")
	}
	s, err := OpenRedis(context.Background(), RedisOptions{Addr: addr, Prefix: "folioctl-test"}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StateConfig{Backend: "memory"}, nil)
	require.NoError(t, err)
	require.IsType(t, &Memory{}, s)

	_, err = Open(ctx, config.StateConfig{Backend: "sqlite"}, nil)
	require.ErrorContains(t, err, "state.path")

	_, err = Open(ctx, config.StateConfig{Backend: "redis"}, nil)
	require.ErrorContains(t, err, "state.redisAddr")

	_, err = Open(ctx, config.StateConfig{Backend: "etcd"}, nil)
	require.ErrorContains(t, err, "unsupported state backend")

	s, err = Open(ctx, config.StateConfig{Path: filepath.Join(t.TempDir(), "s.db")}, nil)
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	type profile struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
	}
	require.NoError(t, SetJSON(ctx, s, "user", profile{ID: 1, Login: "octo"}))

	var got profile
	ok, err := GetJSON(ctx, s, "user", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, profile{ID: 1, Login: "octo"}, got)

	require.NoError(t, s.Set(ctx, "broken", "{"))
	_, err = GetJSON(ctx, s, "broken", &got)
	require.Error(t, err)

	ok, err = GetJSON(ctx, s, "absent", &got)
	require.NoError(t, err)
	require.False(t, ok)
}
