package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// SeatCache はフライトの空席数キャッシュ
// 正はデータベースのカウンタであり、座席の確保・解放のたびに無効化する
type SeatCache struct {
	client redis.Cmdable
}

// NewSeatCache は新しいSeatCacheインスタンスを作成する
func NewSeatCache(client redis.Cmdable) *SeatCache {
	return &SeatCache{client: client}
}

// GetAvailableCount はフライトの空席数をキャッシュから取得する
func (c *SeatCache) GetAvailableCount(ctx context.Context, flightID string) (int, error) {
	val, err := c.client.Get(ctx, availableCountKey(flightID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

// SetAvailableCount はフライトの空席数をキャッシュに保存する
func (c *SeatCache) SetAvailableCount(ctx context.Context, flightID string, count int, ttl time.Duration) error {
	if err := c.client.Set(ctx, availableCountKey(flightID), count, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate は指定フライトのキャッシュを無効化する
func (c *SeatCache) Invalidate(ctx context.Context, flightIDs ...string) error {
	if len(flightIDs) == 0 {
		return nil
	}
	keys := make([]string, len(flightIDs))
	for i, id := range flightIDs {
		keys[i] = availableCountKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func availableCountKey(flightID string) string {
	return fmt.Sprintf("flights:available:%s", flightID)
}
