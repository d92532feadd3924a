package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisLockContention(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	first := New(rdb, nil, "campaign:acme", time.Minute)
	got, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, got)

	second := New(rdb, nil, "campaign:acme", time.Minute)
	got, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, got, "second acquire should be refused while held")

	// A different key is independent.
	other := New(rdb, nil, "campaign:beta", time.Minute)
	got, err = other.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, got)

	require.NoError(t, first.Release(ctx))
	got, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, got, "lock should be free after release")
}

func TestRedisLockReleaseOnlyByOwner(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	mr.Set("outreach:lock:campaign:acme", "someone-else")

	lock := New(rdb, nil, "campaign:acme", time.Minute)
	require.NoError(t, lock.Release(ctx))

	// The foreign holder's value survives a release we do not own.
	val, err := mr.Get("outreach:lock:campaign:acme")
	require.NoError(t, err)
	require.Equal(t, "someone-else", val)
}

func TestAdvisoryLockFallback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	lock := New(nil, db, "campaign:acme", time.Minute)
	got, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, got)
	require.NoError(t, lock.Release(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}
