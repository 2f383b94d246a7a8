package flight

import (
	"context"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/transaction"
)

// Repository はフライトリポジトリのインターフェース
//
// 座席カウンタの更新は条件付き更新一回で行い、読み取り→書き込みの競合窓を作らないこと。
// tx が nil の場合は単独の文として即時に確定する。
type Repository interface {
	Create(ctx context.Context, f *Flight) error

	GetByID(ctx context.Context, id string) (*Flight, error)

	List(ctx context.Context, limit, offset int) ([]*Flight, error)

	// ReserveSeats は空席が count 以上ある場合のみ count 減算する
	// 不足時は ErrInsufficientSeats を返し、何も変更しない
	ReserveSeats(ctx context.Context, tx transaction.Tx, flightID string, count int) error

	// ReleaseSeats は結果が総座席数以下の場合のみ count 加算する
	// 超える場合は ErrOverRelease を返し、何も変更しない
	ReleaseSeats(ctx context.Context, tx transaction.Tx, flightID string, count int) error

	// UpdateAvailableSeats は空席数を直接設定する（管理用の補正）
	UpdateAvailableSeats(ctx context.Context, flightID string, value int) error
}
