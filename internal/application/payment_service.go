package application

import (
	"context"
	"fmt"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/money"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/reservation"
	paymentinfra "github.com/dugerdev/TravelBooking-sub001/internal/infrastructure/payment"
)

// PaymentService は未払い残高を請求し、結果を予約に反映する
type PaymentService struct {
	reservations *ReservationService
	gateway      PaymentGateway
}

func NewPaymentService(rs *ReservationService, gw PaymentGateway) *PaymentService {
	return &PaymentService{reservations: rs, gateway: gw}
}

// Checkout は未払い残高を請求する
// expectedVersion は請求前にのみ検証する。ゲートウェイとの通信に失敗した場合は何も記録しない
func (s *PaymentService) Checkout(ctx context.Context, id string, expectedVersion int) (*reservation.Reservation, error) {
	res, err := s.reservations.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := res.CheckVersion(expectedVersion); err != nil {
		return nil, err
	}
	if res.Status == reservation.StatusConfirmed {
		return nil, reservation.ErrReservationAlreadyConfirmed
	}
	if !res.IsPending() {
		return nil, reservation.ErrReservationNotPending
	}
	if res.IsExpired() {
		return nil, reservation.ErrReservationExpired
	}

	amount := res.OutstandingAmount()
	result, err := s.gateway.Charge(ctx, paymentinfra.ChargeRequest{
		ReservationID:  res.ID,
		PNR:            res.PNR,
		Amount:         amount,
		Method:         res.PaymentMethod,
		IdempotencyKey: chargeKey(res.ID, amount),
	})
	if err != nil {
		return nil, fmt.Errorf("決済処理に失敗: %w", err)
	}

	// ゲートウェイが応答した後は請求中の更新と競合しても結果を必ず反映する
	// 同じ取引IDの二重反映は RecordPaymentOutcome 側で除外される
	return s.reservations.RecordPaymentOutcome(ctx, id, nil, reservation.PaymentOutcome{
		Paid:          result.Approved,
		TransactionID: result.TransactionID,
		Method:        res.PaymentMethod,
		Amount:        amount,
	})
}

// chargeKey はゲートウェイに渡す冪等性キー
// 予約と請求額から決まるため、請求中に予約が更新されても再試行で二重に請求しない
func chargeKey(reservationID string, amount money.Money) string {
	return fmt.Sprintf("%s:%d%s", reservationID, amount.Amount, amount.Currency)
}
