package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dugerdev/TravelBooking-sub001/internal/pkg/logger"
)

const cleanerLockKey = "worker:expired-reservation-cleaner"

// ReservationCleaner は期限切れ予約をキャンセルするインターフェース
type ReservationCleaner interface {
	CancelExpiredReservations(ctx context.Context, limit int) (int, error)
}

// ExpiredReservationCleaner は期限切れの保留中予約をキャンセルし、座席を解放するワーカー
type ExpiredReservationCleaner struct {
	reservationService ReservationCleaner
	locker             Locker
	interval           time.Duration
	batchSize          int
	stopCh             chan struct{}
	doneCh             chan struct{}
}

// NewExpiredReservationCleaner は新しいクリーナーを作成
// locker が nil の場合はインスタンス間の排他を行わない
func NewExpiredReservationCleaner(
	rs ReservationCleaner,
	locker Locker,
	interval time.Duration,
	batchSize int,
) *ExpiredReservationCleaner {
	return &ExpiredReservationCleaner{
		reservationService: rs,
		locker:             locker,
		interval:           interval,
		batchSize:          batchSize,
		stopCh:             make(chan struct{}),
		doneCh:             make(chan struct{}),
	}
}

// Start はクリーナーを開始
func (c *ExpiredReservationCleaner) Start(ctx context.Context) {
	logger.Info("期限切れ予約クリーナー開始",
		zap.Duration("interval", c.interval),
		zap.Int("batch_size", c.batchSize),
	)
	loop(ctx, "期限切れ予約クリーナー", c.interval, c.stopCh, c.doneCh, c.tick)
}

// Stop はクリーナーを停止
func (c *ExpiredReservationCleaner) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *ExpiredReservationCleaner) tick(ctx context.Context) {
	if !runExclusive(ctx, c.locker, cleanerLockKey, c.interval, c.cleanup) {
		logger.Debug("他のインスタンスがクリーンアップ中のためスキップ")
	}
}

// cleanup は期限切れ予約をキャンセル
func (c *ExpiredReservationCleaner) cleanup(ctx context.Context) {
	log := logger.Get()
	log.Debug("期限切れ予約のクリーンアップ開始")

	count, err := c.reservationService.CancelExpiredReservations(ctx, c.batchSize)
	if err != nil {
		log.Error("期限切れ予約のクリーンアップ失敗", zap.Error(err))
		return
	}

	if count > 0 {
		log.Info("期限切れ予約をキャンセル", zap.Int("count", count))
	} else {
		log.Debug("期限切れ予約なし")
	}
}
