package application

import (
	"context"
	"time"

	paymentinfra "github.com/dugerdev/TravelBooking-sub001/internal/infrastructure/payment"
)

// SeatCache は空席数キャッシュのインターフェース
// 取得できない場合は redis.ErrCacheMiss を返す
type SeatCache interface {
	GetAvailableCount(ctx context.Context, flightID string) (int, error)
	SetAvailableCount(ctx context.Context, flightID string, count int, ttl time.Duration) error
	Invalidate(ctx context.Context, flightIDs ...string) error
}

// PaymentGateway は決済ゲートウェイのインターフェース
type PaymentGateway interface {
	Charge(ctx context.Context, req paymentinfra.ChargeRequest) (*paymentinfra.ChargeResult, error)
}
