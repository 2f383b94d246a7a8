// Package payment は決済ゲートウェイのシミュレータ
// 外部の決済サービスとの連携は対象外のため、設定に応じて承認または拒否を返す
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/money"
	"github.com/dugerdev/TravelBooking-sub001/internal/pkg/logger"
)

const (
	ModeApprove = "approve"
	ModeDecline = "decline"
)

var (
	ErrInvalidMode   = errors.New("決済モードが不正です")
	ErrInvalidAmount = errors.New("請求額は0より大きい必要があります")
)

// ChargeRequest は請求の入力
// IdempotencyKey が同じ請求は同じ結果を返す
type ChargeRequest struct {
	ReservationID  string
	PNR            string
	Amount         money.Money
	Method         string
	IdempotencyKey string
}

// ChargeResult は請求の結果
type ChargeResult struct {
	Approved      bool
	TransactionID string
	DeclineReason string
}

// SimulatedGateway は常に同じ判定を返すゲートウェイ
type SimulatedGateway struct {
	mode string
}

func NewSimulatedGateway(mode string) (*SimulatedGateway, error) {
	switch mode {
	case ModeApprove, ModeDecline:
		return &SimulatedGateway{mode: mode}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidMode, mode)
}

// Charge は請求を行う
func (g *SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Amount.Validate(); err != nil {
		return nil, err
	}
	if req.Amount.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	result := &ChargeResult{
		Approved:      g.mode == ModeApprove,
		TransactionID: "txn_" + uuid.NewString(),
	}
	if !result.Approved {
		result.DeclineReason = "card_declined"
	}

	logger.Info("決済を処理しました",
		zap.String("reservation_id", req.ReservationID),
		zap.String("transaction_id", result.TransactionID),
		zap.String("amount", req.Amount.String()),
		zap.Bool("approved", result.Approved),
	)
	return result, nil
}
