package application

import "errors"

var (
	// ErrRequestInProgress は同じ冪等性キーの予約作成が処理中であることを示す
	ErrRequestInProgress = errors.New("同じ冪等性キーの予約リクエストを処理中です")
)
