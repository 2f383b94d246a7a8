package outbox

import "errors"

var (
	ErrEventTypeRequired   = errors.New("イベント種別は必須です")
	ErrAggregateIDRequired = errors.New("集約IDは必須です")
)
