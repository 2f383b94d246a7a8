package reservation

import "errors"

// Reservation ドメインのエラー定義
var (
	ErrReservationNotFound         = errors.New("予約が見つかりません")
	ErrReservationNotPending       = errors.New("予約は保留中ではありません")
	ErrReservationNotConfirmed     = errors.New("予約は確定されていません")
	ErrReservationExpired          = errors.New("予約の有効期限が切れています")
	ErrReservationAlreadyConfirmed = errors.New("予約は既に確定されています")
	ErrConcurrencyConflict         = errors.New("予約が他の操作によって更新されています。再読み込みして再試行してください")
	ErrOwnerIDRequired             = errors.New("予約者IDは必須です")
	ErrInvalidType                 = errors.New("予約種別が不正です")
	ErrTicketsRequired             = errors.New("フライト予約には1枚以上の航空券が必要です")
	ErrPassengersRequired          = errors.New("搭乗者・宿泊者などの利用者情報は必須です")
	ErrTicketsNotAllowed           = errors.New("フライト以外の予約に航空券は指定できません")
	ErrFlightIDRequired            = errors.New("航空券にはフライトIDが必要です")
	ErrPassengerNameRequired       = errors.New("利用者名は必須です")
	ErrIdempotencyKeyRequired      = errors.New("冪等性キーは必須です")
	ErrIdempotencyKeyAlreadyExists = errors.New("同じ冪等性キーの予約が既に存在します")
	ErrPaymentMethodRequired       = errors.New("支払い方法は必須です")
	ErrInvalidPNR                  = errors.New("予約番号（PNR）の形式が不正です")
	ErrPNRAlreadyExists            = errors.New("予約番号（PNR）が既に使用されています")
	ErrInvalidExpiration           = errors.New("有効期限が不正です")
	ErrTicketNotReserved           = errors.New("航空券は予約状態ではありません")
	ErrTicketNotFound              = errors.New("航空券が見つかりません")
)
