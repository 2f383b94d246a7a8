package flight

import "errors"

// Flight ドメインのエラー定義
var (
	ErrFlightNotFound        = errors.New("フライトが見つかりません")
	ErrInsufficientSeats     = errors.New("空席が不足しています")
	ErrOverRelease           = errors.New("解放する座席数が総座席数を超えています")
	ErrInvalidSeatCount      = errors.New("座席数は1以上である必要があります")
	ErrInvalidAvailableSeats = errors.New("空席数は0以上かつ総座席数以下である必要があります")
	ErrInvalidTotalSeats     = errors.New("総座席数は1以上である必要があります")
	ErrFlightNumberRequired  = errors.New("便名は必須です")
	ErrRouteRequired         = errors.New("出発地と到着地は必須です")
	ErrInvalidSchedule       = errors.New("到着時刻は出発時刻より後である必要があります")
)
