package money

import "errors"

// Money のエラー定義
var (
	ErrInvalidCurrency  = errors.New("通貨コードが不正です")
	ErrNegativeAmount   = errors.New("金額は0以上である必要があります")
	ErrCurrencyMismatch = errors.New("通貨が一致しません")
)
