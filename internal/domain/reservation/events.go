package reservation

import "time"

// EventType はドメインイベントの種別
type EventType string

const (
	EventReservationCreated       EventType = "reservation.created"
	EventReservationConfirmed     EventType = "reservation.confirmed"
	EventReservationPaymentFailed EventType = "reservation.payment_failed"
	EventReservationCancelled     EventType = "reservation.cancelled"
	EventSeatsReserved            EventType = "seats.reserved"
	EventSeatsReleased            EventType = "seats.released"
)

// Event は状態遷移の結果として記録されるドメインイベント
// 永続化が成功した後にアウトボックス経由で配信される
type Event struct {
	Type          EventType `json:"type"`
	ReservationID string    `json:"reservation_id"`
	PNR           string    `json:"pnr"`
	OwnerID       string    `json:"owner_id"`
	FlightID      string    `json:"flight_id,omitempty"`
	Seats         int       `json:"seats,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// SeatCount はフライトごとの座席数（確保・解放の単位）
type SeatCount struct {
	FlightID string
	Count    int
}
