package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dugerdev/TravelBooking-sub001/internal/pkg/metrics"
)

var (
	ErrLockNotAcquired = errors.New("ロックを取得できませんでした")
	ErrLockNotOwned    = errors.New("ロックの所有者ではありません")
)

// releaseScript は所有者確認と削除をアトミックに行う
const releaseScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// Lock は取得済みのロック
type Lock interface {
	Release(ctx context.Context) error
}

// LockManagerInterface はロックの取得を抽象化する
type LockManagerInterface interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// DistributedLock は Redis を使用した分散ロック
type DistributedLock struct {
	client redis.Cmdable
	key    string
	value  string
}

// LockManager は分散ロックを管理する
// 予約作成の冪等性キー単位の排他と、ワーカーの単一実行に使う
type LockManager struct {
	client   redis.Cmdable
	newToken func() string
}

func NewLockManager(client redis.Cmdable) *LockManager {
	return &LockManager{client: client, newToken: uuid.NewString}
}

// AcquireLock はロックを取得する。取得済みの場合は待たずに ErrLockNotAcquired を返す
func (m *LockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	start := time.Now()
	lockKey := fmt.Sprintf("lock:%s", key)
	lockValue := m.newToken()

	ok, err := m.client.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		metrics.ObserveLock("acquire", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("ロック取得に失敗: %w", err)
	}
	if !ok {
		metrics.ObserveLock("acquire", "failed", time.Since(start).Seconds())
		return nil, ErrLockNotAcquired
	}
	metrics.ObserveLock("acquire", "success", time.Since(start).Seconds())

	return &DistributedLock{
		client: m.client,
		key:    lockKey,
		value:  lockValue,
	}, nil
}

// Release はロックを解放する
func (l *DistributedLock) Release(ctx context.Context) error {
	start := time.Now()
	result, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Int()
	if err != nil {
		metrics.ObserveLock("release", "error", time.Since(start).Seconds())
		return fmt.Errorf("ロック解放に失敗: %w", err)
	}
	if result == 0 {
		metrics.ObserveLock("release", "failed", time.Since(start).Seconds())
		return ErrLockNotOwned
	}
	metrics.ObserveLock("release", "success", time.Since(start).Seconds())
	return nil
}

var _ LockManagerInterface = (*LockManager)(nil)
