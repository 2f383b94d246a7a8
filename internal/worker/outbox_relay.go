package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/outbox"
	"github.com/dugerdev/TravelBooking-sub001/internal/pkg/logger"
	"github.com/dugerdev/TravelBooking-sub001/internal/pkg/metrics"
)

const outboxLockKey = "worker:outbox-relay"

// OutboxRelay は未配信のアウトボックスメッセージをブローカーに配信するワーカー
// 配信は作成順に行い、失敗したメッセージ以降は次回に持ち越す
type OutboxRelay struct {
	repo      outbox.Repository
	publisher outbox.Publisher
	locker    Locker
	interval  time.Duration
	batchSize int
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func NewOutboxRelay(repo outbox.Repository, publisher outbox.Publisher, locker Locker, interval time.Duration, batchSize int) *OutboxRelay {
	return &OutboxRelay{
		repo:      repo,
		publisher: publisher,
		locker:    locker,
		interval:  interval,
		batchSize: batchSize,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start はリレーを開始
func (r *OutboxRelay) Start(ctx context.Context) {
	logger.Info("アウトボックスリレー開始",
		zap.Duration("interval", r.interval),
		zap.Int("batch_size", r.batchSize),
	)
	loop(ctx, "アウトボックスリレー", r.interval, r.stopCh, r.doneCh, r.tick)
}

// Stop はリレーを停止
func (r *OutboxRelay) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *OutboxRelay) tick(ctx context.Context) {
	runExclusive(ctx, r.locker, outboxLockKey, r.interval, func(ctx context.Context) {
		if _, err := r.Relay(ctx); err != nil {
			logger.Error("アウトボックスの配信に失敗", zap.Error(err))
		}
	})
}

// Relay は1バッチ分のメッセージを配信し、配信済みにした件数を返す
func (r *OutboxRelay) Relay(ctx context.Context) (int, error) {
	msgs, err := r.repo.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	published := make([]string, 0, len(msgs))
	var publishErr error
	for _, msg := range msgs {
		if err := r.publisher.Publish(ctx, msg); err != nil {
			publishErr = err
			logger.Warn("メッセージの配信に失敗",
				zap.String("message_id", msg.ID),
				zap.String("type", msg.Type),
				zap.Error(err),
			)
			break
		}
		published = append(published, msg.ID)
	}

	if len(published) > 0 {
		// 配信済みの記録に失敗した場合は次回再配信される（購読側はIDで重複を除去する）
		if err := r.repo.MarkPublished(context.WithoutCancel(ctx), published, time.Now()); err != nil {
			return 0, err
		}
	}

	metrics.RecordOutbox("published", len(published))
	if publishErr != nil {
		metrics.RecordOutbox("failed", 1)
		return len(published), publishErr
	}
	logger.Debug("アウトボックスを配信", zap.Int("count", len(published)))
	return len(published), nil
}
