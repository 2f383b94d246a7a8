package reservation

import (
	"context"
	"time"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/transaction"
)

// Repository は予約リポジトリのインターフェース
type Repository interface {
	// Create は予約・航空券・利用者・決済記録を作成する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, reservation *Reservation) error

	GetByID(ctx context.Context, id string) (*Reservation, error)

	GetByPNR(ctx context.Context, pnr string) (*Reservation, error)

	GetByIdempotencyKey(ctx context.Context, key string) (*Reservation, error)

	GetByOwnerID(ctx context.Context, ownerID string, limit, offset int) ([]*Reservation, error)

	// Update は予約を更新する（楽観的ロック、トランザクション必須）
	// 保存済みのバージョンが reservation.Version と一致しない場合は ErrConcurrencyConflict を返す。
	// 成功時は reservation.Version を1進める。決済記録は追記のみ。
	Update(ctx context.Context, tx transaction.Tx, reservation *Reservation) error

	// GetExpiredPending は now 時点で期限切れの保留中予約を取得する
	GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)

	// CountHeldSeatsByFlight はフライトで座席を保持している航空券の枚数を返す
	CountHeldSeatsByFlight(ctx context.Context, flightID string) (int, error)
}
