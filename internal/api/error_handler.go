package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/dugerdev/TravelBooking-sub001/internal/application"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/flight"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/money"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/reservation"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/transaction"
	"github.com/dugerdev/TravelBooking-sub001/internal/infrastructure/payment"
	"github.com/dugerdev/TravelBooking-sub001/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
// Retryable が true の場合、クライアントは再読み込みまたは時間をおいて再試行できる
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      int    `json:"code,omitempty"`
	Retryable bool   `json:"retryable"`
}

var (
	notFoundErrors = []error{
		reservation.ErrReservationNotFound,
		reservation.ErrTicketNotFound,
		flight.ErrFlightNotFound,
	}

	conflictErrors = []error{
		flight.ErrInsufficientSeats,
		reservation.ErrConcurrencyConflict,
		reservation.ErrIdempotencyKeyAlreadyExists,
		reservation.ErrPNRAlreadyExists,
		reservation.ErrReservationNotPending,
		reservation.ErrReservationNotConfirmed,
		reservation.ErrReservationAlreadyConfirmed,
		reservation.ErrReservationExpired,
		reservation.ErrTicketNotReserved,
		application.ErrRequestInProgress,
	}

	badRequestErrors = []error{
		reservation.ErrOwnerIDRequired,
		reservation.ErrInvalidType,
		reservation.ErrTicketsRequired,
		reservation.ErrPassengersRequired,
		reservation.ErrTicketsNotAllowed,
		reservation.ErrFlightIDRequired,
		reservation.ErrPassengerNameRequired,
		reservation.ErrIdempotencyKeyRequired,
		reservation.ErrPaymentMethodRequired,
		reservation.ErrInvalidPNR,
		reservation.ErrInvalidExpiration,
		flight.ErrInvalidSeatCount,
		flight.ErrInvalidAvailableSeats,
		flight.ErrInvalidTotalSeats,
		flight.ErrFlightNumberRequired,
		flight.ErrRouteRequired,
		flight.ErrInvalidSchedule,
		money.ErrInvalidCurrency,
		money.ErrNegativeAmount,
		money.ErrCurrencyMismatch,
		payment.ErrInvalidAmount,
	}

	retryableErrors = []error{
		reservation.ErrConcurrencyConflict,
		application.ErrRequestInProgress,
		transaction.ErrTransient,
	}
)

// ToHTTPError はサービス層のエラーをHTTPエラーに変換する
// 元のエラーは Internal に保持し、ログと再試行可否の判定に使う
func ToHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}

	code := http.StatusInternalServerError
	message := "内部サーバーエラー"
	switch {
	case isAny(err, notFoundErrors):
		code, message = http.StatusNotFound, err.Error()
	case isAny(err, conflictErrors):
		code, message = http.StatusConflict, err.Error()
	case isAny(err, badRequestErrors):
		code, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, transaction.ErrTransient):
		code, message = http.StatusServiceUnavailable, err.Error()
	}
	return echo.NewHTTPError(code, message).SetInternal(err)
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	he := ToHTTPError(err)
	message, ok := he.Message.(string)
	if !ok {
		message = http.StatusText(he.Code)
	}

	if he.Code >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", he.Code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	resp := ErrorResponse{
		Error:     message,
		Code:      he.Code,
		Retryable: he.Internal != nil && isAny(he.Internal, retryableErrors),
	}
	if err := c.JSON(he.Code, resp); err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
