package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dugerdev/TravelBooking-sub001/internal/config"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/flight"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/transaction"
	redisinfra "github.com/dugerdev/TravelBooking-sub001/internal/infrastructure/redis"
	"github.com/dugerdev/TravelBooking-sub001/internal/pkg/logger"
	"github.com/dugerdev/TravelBooking-sub001/internal/pkg/metrics"
)

const (
	seatCacheTTL = 30 * time.Second
)

// SeatInventory はフライトの空席数カウンタに対する唯一の入口
// 確保・解放はリポジトリの条件付き更新で行い、一時的な競合のみ再試行する
type SeatInventory struct {
	flightRepo    flight.Repository
	cache         SeatCache
	maxRetries    int
	retryInterval time.Duration
}

func NewSeatInventory(fr flight.Repository, cache SeatCache, cfg config.InventoryConfig) *SeatInventory {
	return &SeatInventory{
		flightRepo:    fr,
		cache:         cache,
		maxRetries:    cfg.MaxRetries,
		retryInterval: cfg.RetryInterval,
	}
}

// Reserve は count 席を確保する
// tx が nil の場合は即時に確定し、キャッシュも無効化する
func (s *SeatInventory) Reserve(ctx context.Context, tx transaction.Tx, flightID string, count int) error {
	err := s.withRetry(ctx, tx, func() error {
		return s.flightRepo.ReserveSeats(ctx, tx, flightID, count)
	})
	metrics.RecordSeatOperation("reserve", seatResult(err))
	if err != nil {
		return err
	}
	if tx == nil {
		s.Invalidate(ctx, flightID)
	}
	return nil
}

// Release は count 席を返却する
// 総座席数を超える返却は不変条件違反としてアラートを出し、拒否する
func (s *SeatInventory) Release(ctx context.Context, tx transaction.Tx, flightID string, count int) error {
	err := s.withRetry(ctx, tx, func() error {
		return s.flightRepo.ReleaseSeats(ctx, tx, flightID, count)
	})
	metrics.RecordSeatOperation("release", seatResult(err))
	if errors.Is(err, flight.ErrOverRelease) {
		logger.Alert("総座席数を超える座席の返却を拒否しました",
			zap.String("flight_id", flightID),
			zap.Int("seats", count),
		)
		metrics.RecordInvariantViolation("over_release")
	}
	if err != nil {
		return err
	}
	if tx == nil {
		s.Invalidate(ctx, flightID)
	}
	return nil
}

// UpdateAvailableSeats は空席数を直接補正する
func (s *SeatInventory) UpdateAvailableSeats(ctx context.Context, flightID string, value int) error {
	err := s.flightRepo.UpdateAvailableSeats(ctx, flightID, value)
	metrics.RecordSeatOperation("update", seatResult(err))
	if err != nil {
		return err
	}
	s.Invalidate(ctx, flightID)
	return nil
}

// AvailableSeats は空席数を返す。キャッシュになければリポジトリから取得して保存する
func (s *SeatInventory) AvailableSeats(ctx context.Context, flightID string) (int, error) {
	if s.cache != nil {
		count, err := s.cache.GetAvailableCount(ctx, flightID)
		if err == nil {
			logger.Debug("キャッシュヒット", zap.String("flight_id", flightID), zap.Int("count", count))
			return count, nil
		}
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			logger.Warn("キャッシュ取得エラー", zap.Error(err))
		}
	}

	f, err := s.flightRepo.GetByID(ctx, flightID)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if cacheErr := s.cache.SetAvailableCount(ctx, flightID, f.AvailableSeats, seatCacheTTL); cacheErr != nil {
			logger.Warn("キャッシュ保存エラー", zap.Error(cacheErr))
		}
	}
	return f.AvailableSeats, nil
}

// Invalidate はフライトの空席数キャッシュを無効化する
func (s *SeatInventory) Invalidate(ctx context.Context, flightIDs ...string) {
	if s.cache == nil || len(flightIDs) == 0 {
		return
	}
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), flightIDs...); err != nil {
		logger.Warn("キャッシュ無効化エラー", zap.Strings("flight_ids", flightIDs), zap.Error(err))
	}
}

// withRetry は一時的な競合を再試行する
// 呼び出し元のトランザクション内では、失敗した文の後に同じトランザクションを続けられないため再試行しない
func (s *SeatInventory) withRetry(ctx context.Context, tx transaction.Tx, fn func() error) error {
	attempts := 1
	if tx == nil {
		attempts += max(s.maxRetries, 0)
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !errors.Is(err, transaction.ErrTransient) {
			return err
		}
		if i == attempts-1 {
			break
		}
		logger.Warn("一時的な競合のため座席操作を再試行します", zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryInterval):
		}
	}
	return err
}

func seatResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, flight.ErrInsufficientSeats):
		return "insufficient"
	case errors.Is(err, flight.ErrOverRelease):
		return "over_release"
	case errors.Is(err, transaction.ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
