package store

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thrillee/smppsim/db"
	"github.com/thrillee/smppsim/internal/message"
)

var (
	_ Store  = (*PostgresStore)(nil)
	_ Lister = (*PostgresStore)(nil)
	_ Store  = (*RedisStore)(nil)
	_ Lister = (*RedisStore)(nil)
)

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer sqlDB.Close()
	goose.SetBaseFS(db.Migrations)
	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(sqlDB, db.MigrationsDir))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	s := NewPostgresStore(pool)
	id := "pg_" + time.Now().Format("150405.000000000")
	rec := message.Record{ID: id, Direction: "IN", From: "pg-from", To: "pg-to", Text: "hi", ReceivedAt: time.Now().UTC()}
	require.True(t, s.PutOrUpdate(ctx, id, rec))

	got, ok := s.GetByID(ctx, id)
	require.True(t, ok)
	assert.Equal(t, "hi", got.Text)

	list, err := s.List(ctx, message.Filter{From: "pg-from", Limit: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	_, ok = s.GetByID(ctx, "does-not-exist")
	assert.False(t, ok)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(ctx).Err())

	s := NewRedisStore(client, time.Minute)
	id := "redis_" + time.Now().Format("150405.000000000")
	require.True(t, s.PutOrUpdate(ctx, id, message.Record{ID: id, From: "r-from", Text: "hey", ReceivedAt: time.Now()}))

	got, ok := s.GetByID(ctx, id)
	require.True(t, ok)
	assert.Equal(t, "hey", got.Text)

	list, err := s.List(ctx, message.Filter{From: "r-from"})
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	_, ok = s.GetByID(ctx, "missing")
	assert.False(t, ok)
}
