package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	redisinfra "github.com/dugerdev/TravelBooking-sub001/internal/infrastructure/redis"
	"github.com/dugerdev/TravelBooking-sub001/internal/pkg/logger"
)

// Locker は複数インスタンス間でワーカーの実行を1つに絞るためのロック
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (redisinfra.Lock, error)
}

// runExclusive はロックを取得できた場合のみ fn を実行する
// locker が nil の場合は常に実行する。他のインスタンスが実行中なら false を返す
func runExclusive(ctx context.Context, locker Locker, key string, ttl time.Duration, fn func(ctx context.Context)) bool {
	if locker == nil {
		fn(ctx)
		return true
	}

	log := logger.With(zap.String("key", key))
	lock, err := locker.AcquireLock(ctx, key, ttl)
	if err != nil {
		if !errors.Is(err, redisinfra.ErrLockNotAcquired) {
			log.Warn("ワーカーのロック取得に失敗", zap.Error(err))
		}
		return false
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redisinfra.ErrLockNotOwned) {
			log.Warn("ワーカーのロック解放に失敗", zap.Error(err))
		}
	}()

	fn(ctx)
	return true
}

// loop は interval ごとに tick を呼び出す。ctx のキャンセルか stopCh のクローズで終了する
func loop(ctx context.Context, name string, interval time.Duration, stopCh <-chan struct{}, doneCh chan<- struct{}, tick func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info(name + "停止（コンテキストキャンセル）")
			return
		case <-stopCh:
			logger.Info(name + "停止（シグナル受信）")
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}
