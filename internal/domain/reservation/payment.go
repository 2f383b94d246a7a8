package reservation

import (
	"time"

	"github.com/google/uuid"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/money"
)

// PaymentStatus は支払いの状態を表す
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// TransactionType は取引の種別を表す
type TransactionType string

const (
	TransactionTypePayment TransactionType = "payment"
	TransactionTypeRefund  TransactionType = "refund"
)

// Payment は決済試行の記録。書き込み後は変更しない（追記のみ）
type Payment struct {
	ID              string
	ReservationID   string
	Amount          money.Money
	Method          string
	TransactionID   string
	Status          PaymentStatus
	TransactionType TransactionType
	CreatedAt       time.Time
}

func newPayment(reservationID string, amount money.Money, method, transactionID string, status PaymentStatus, now time.Time) *Payment {
	return &Payment{
		ID:              uuid.NewString(),
		ReservationID:   reservationID,
		Amount:          amount,
		Method:          method,
		TransactionID:   transactionID,
		Status:          status,
		TransactionType: TransactionTypePayment,
		CreatedAt:       now,
	}
}

// PaymentOutcome は決済ゲートウェイから受け取った結果
// Amount がゼロ値（通貨未指定）の場合は未払い残高を対象とみなす
type PaymentOutcome struct {
	Paid          bool
	TransactionID string
	Method        string
	Amount        money.Money
}
