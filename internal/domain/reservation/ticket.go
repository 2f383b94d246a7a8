package reservation

import (
	"time"

	"github.com/google/uuid"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/money"
)

// TicketStatus は航空券の状態を表す
type TicketStatus string

const (
	TicketStatusReserved  TicketStatus = "reserved"
	TicketStatusCancelled TicketStatus = "cancelled"
	TicketStatusUsed      TicketStatus = "used"
)

// Ticket は予約に属する航空券。1枚につき対象フライトの1席を保持する
type Ticket struct {
	ID            string
	ReservationID string
	FlightID      string
	PassengerName string
	Price         money.Money
	Status        TicketStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func newTicket(reservationID, flightID, passengerName string, price money.Money, now time.Time) *Ticket {
	return &Ticket{
		ID:            uuid.NewString(),
		ReservationID: reservationID,
		FlightID:      flightID,
		PassengerName: passengerName,
		Price:         price,
		Status:        TicketStatusReserved,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// HoldsSeat は座席を保持している（予約状態の）航空券かを返す
func (t *Ticket) HoldsSeat() bool {
	return t.Status == TicketStatusReserved
}

// Cancel は予約状態の航空券をキャンセルする
// 状態が遷移した場合のみ true を返す。座席の解放はこの戻り値に基づいて一度だけ行う
func (t *Ticket) Cancel(now time.Time) bool {
	if t.Status != TicketStatusReserved {
		return false
	}
	t.Status = TicketStatusCancelled
	t.UpdatedAt = now
	return true
}

// Use は航空券を使用済み（搭乗済み）にする。使用済みの席は解放しない
func (t *Ticket) Use() error {
	if t.Status != TicketStatusReserved {
		return ErrTicketNotReserved
	}
	t.Status = TicketStatusUsed
	t.UpdatedAt = time.Now()
	return nil
}
