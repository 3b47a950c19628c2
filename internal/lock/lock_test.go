package redlock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_Lock_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "test-key", "test-value")

	mock.ExpectSetNX("test-key", "test-value", 5*time.Second).SetVal(true)

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Lock_Failure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "test-key", "test-value")

	mock.ExpectSetNX("test-key", "test-value", 5*time.Second).SetVal(false)

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.EqualError(t, err, "lock for key test-key is already held")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Unlock_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "test-key", "test-value")

	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	mock.ExpectEval(script, []string{"test-key"}, "test-value").SetVal(int64(1))

	err := locker.Unlock(context.Background())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Unlock_NotHolder(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "test-key", "test-value")

	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	mock.ExpectEval(script, []string{"test-key"}, "test-value").SetVal(int64(0))

	err := locker.Unlock(context.Background())
	assert.EqualError(t, err, "unlock failed, either lock expired or you're not the lock holder for key test-key")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_ExtendLock_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "test-key", "test-value")

	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
	mock.ExpectEval(script, []string{"test-key"}, "test-value", "5000").SetVal(int64(1))

	err := locker.ExtendLock(context.Background(), 5*time.Second)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newMiniredisClient(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestMutualExclusion(t *testing.T) {
	client := newMiniredisClient(t)
	ctx := context.Background()

	const callers = 32
	var holders int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			locker := NewLocker(client, "hot-product", "holder-"+string(rune('a'+i%26)))
			if err := locker.Lock(ctx, time.Minute); err != nil {
				return
			}
			mu.Lock()
			holders++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	// only one concurrent caller can observe a successful acquire
	assert.Equal(t, 1, holders)
}

func TestWaitLockAcquiresAfterRelease(t *testing.T) {
	client := newMiniredisClient(t)
	ctx := context.Background()

	first := NewLocker(client, "contended", "first")
	require.NoError(t, first.Lock(ctx, time.Minute))

	done := make(chan error, 1)
	go func() {
		second := NewLocker(client, "contended", "second")
		done <- second.WaitLock(ctx, time.Minute, 2*time.Second)
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, first.Unlock(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}

func TestWaitLockTimesOut(t *testing.T) {
	client := newMiniredisClient(t)
	ctx := context.Background()

	first := NewLocker(client, "contended", "first")
	require.NoError(t, first.Lock(ctx, time.Minute))

	second := NewLocker(client, "contended", "second")
	err := second.WaitLock(ctx, time.Minute, 300*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockWaitTimeout)
}

func TestWithLockReleases(t *testing.T) {
	client := newMiniredisClient(t)
	ctx := context.Background()

	locker := NewLocker(client, "with-lock", "holder")
	ran := false
	err := locker.WithLock(ctx, time.Minute, time.Second, func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	// the lease must be gone once fn returns
	next := NewLocker(client, "with-lock", "next")
	assert.NoError(t, next.Lock(ctx, time.Minute))
}

func TestShardKey(t *testing.T) {
	assert.Equal(t, "lock:p1", ShardKey("lock:p1", 1, "usr_1"))

	sharded := ShardKey("lock:p1", 4, "usr_1")
	assert.Contains(t, sharded, "lock:p1:")
	// same identity always lands in the same bucket
	assert.Equal(t, sharded, ShardKey("lock:p1", 4, "usr_1"))
}
