package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dugerdev/TravelBooking-sub001/internal/api"
	"github.com/dugerdev/TravelBooking-sub001/internal/application"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/money"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/reservation"
)

const (
	headerUserID         = "X-User-ID"
	headerIdempotencyKey = "Idempotency-Key"
)

type ReservationHandler struct {
	service  ReservationServiceInterface
	payments PaymentServiceInterface
}

func NewReservationHandler(s ReservationServiceInterface, p PaymentServiceInterface) *ReservationHandler {
	return &ReservationHandler{service: s, payments: p}
}

type TicketRequest struct {
	FlightID      string `json:"flight_id" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	PassengerName string `json:"passenger_name" validate:"required" example:"YAMADA TARO"`
}

type PassengerRequest struct {
	FullName string `json:"full_name" validate:"required" example:"山田 太郎"`
	Email    string `json:"email" validate:"omitempty,email" example:"taro@example.com"`
}

// CreateReservationRequest は予約作成リクエスト
// 冪等性キーはボディか Idempotency-Key ヘッダーのどちらかで指定する
type CreateReservationRequest struct {
	Type           string             `json:"type" validate:"required,oneof=flight hotel car tour" example:"flight"`
	IdempotencyKey string             `json:"idempotency_key" example:"order-2025-001"`
	PaymentMethod  string             `json:"payment_method" validate:"required" example:"credit_card"`
	TotalPrice     *MoneyDTO          `json:"total_price,omitempty"`
	Tickets        []TicketRequest    `json:"tickets" validate:"dive"`
	Passengers     []PassengerRequest `json:"passengers,omitempty" validate:"omitempty,dive"`
}

// VersionRequest は並行制御トークンのみを持つリクエスト
type VersionRequest struct {
	Version *int `json:"version" validate:"required,min=0" example:"1"`
}

type PaymentOutcomeRequest struct {
	Paid          bool   `json:"paid"`
	TransactionID string `json:"transaction_id" validate:"required" example:"txn_0001"`
	Method        string `json:"method" example:"credit_card"`
	// Amount は省略可能。省略時は未払い残高を支払ったものとして扱う
	Amount *MoneyDTO `json:"amount,omitempty" validate:"omitempty"`
	// Version は省略可能。省略時は最新の状態に対して反映する
	Version *int `json:"version,omitempty" validate:"omitempty,min=0"`
}

type UpdatePriceRequest struct {
	VersionRequest
	TotalPrice MoneyDTO `json:"total_price"`
}

type SetPNRRequest struct {
	VersionRequest
	PNR string `json:"pnr" validate:"required,len=6" example:"ABC234"`
}

type SetExpirationRequest struct {
	VersionRequest
	ExpiresAt string `json:"expires_at" validate:"required" example:"2025-12-31T08:00:00+09:00"`
}

type TicketResponse struct {
	ID            string   `json:"id"`
	FlightID      string   `json:"flight_id"`
	PassengerName string   `json:"passenger_name"`
	Price         MoneyDTO `json:"price"`
	Status        string   `json:"status"`
}

type PassengerResponse struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
}

type PaymentResponse struct {
	ID              string    `json:"id"`
	Amount          MoneyDTO  `json:"amount"`
	Method          string    `json:"method"`
	TransactionID   string    `json:"transaction_id"`
	Status          string    `json:"status"`
	TransactionType string    `json:"transaction_type"`
	CreatedAt       time.Time `json:"created_at"`
}

type ReservationResponse struct {
	ID            string              `json:"id"`
	PNR           string              `json:"pnr" example:"ABC234"`
	OwnerID       string              `json:"owner_id"`
	Type          string              `json:"type" example:"flight"`
	Status        string              `json:"status" example:"pending"`
	PaymentStatus string              `json:"payment_status" example:"pending"`
	PaymentMethod string              `json:"payment_method"`
	TotalPrice    MoneyDTO            `json:"total_price"`
	Outstanding   MoneyDTO            `json:"outstanding"`
	Tickets       []TicketResponse    `json:"tickets"`
	Passengers    []PassengerResponse `json:"passengers"`
	Payments      []PaymentResponse   `json:"payments"`
	ExpiresAt     time.Time           `json:"expires_at"`
	ConfirmedAt   *time.Time          `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Version       int                 `json:"version" example:"1"`
}

func toReservationResponse(r *reservation.Reservation) ReservationResponse {
	resp := ReservationResponse{
		ID: r.ID, PNR: r.PNR, OwnerID: r.OwnerID,
		Type: string(r.Type), Status: string(r.Status),
		PaymentStatus: string(r.PaymentStatus), PaymentMethod: r.PaymentMethod,
		TotalPrice:  toMoneyDTO(r.TotalPrice),
		Outstanding: toMoneyDTO(r.OutstandingAmount()),
		Tickets:     make([]TicketResponse, len(r.Tickets)),
		Passengers:  make([]PassengerResponse, len(r.Passengers)),
		Payments:    make([]PaymentResponse, len(r.Payments)),
		ExpiresAt:   r.ExpiresAt, ConfirmedAt: r.ConfirmedAt, CancelledAt: r.CancelledAt,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		Version: r.Version,
	}
	for i, t := range r.Tickets {
		resp.Tickets[i] = TicketResponse{
			ID: t.ID, FlightID: t.FlightID, PassengerName: t.PassengerName,
			Price: toMoneyDTO(t.Price), Status: string(t.Status),
		}
	}
	for i, p := range r.Passengers {
		resp.Passengers[i] = PassengerResponse{ID: p.ID, FullName: p.FullName, Email: p.Email}
	}
	for i, p := range r.Payments {
		resp.Payments[i] = PaymentResponse{
			ID: p.ID, Amount: toMoneyDTO(p.Amount), Method: p.Method,
			TransactionID: p.TransactionID, Status: string(p.Status),
			TransactionType: string(p.TransactionType), CreatedAt: p.CreatedAt,
		}
	}
	return resp
}

// bindAndValidate はリクエストボディを読み込み、検証する
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	return c.Validate(req)
}

func (h *ReservationHandler) respond(c echo.Context, code int, r *reservation.Reservation, err error) error {
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(code, toReservationResponse(r))
}

// Create godoc
// @Summary 予約を作成
// @Description 航空券のフライトごとに座席を確保し、保留中の予約を作成します
// @Tags reservations
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param Idempotency-Key header string false "冪等性キー（ボディで指定しない場合）"
// @Param request body CreateReservationRequest true "予約情報"
// @Success 201 {object} ReservationResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 401 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "空席不足・処理中"
// @Router /reservations [post]
func (h *ReservationHandler) Create(c echo.Context) error {
	userID := c.Request().Header.Get(headerUserID)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	var req CreateReservationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.Request().Header.Get(headerIdempotencyKey)
	}
	if req.IdempotencyKey == "" {
		return api.ToHTTPError(reservation.ErrIdempotencyKeyRequired)
	}

	input := application.CreateReservationInput{
		OwnerID:        userID,
		Type:           reservation.Type(req.Type),
		IdempotencyKey: req.IdempotencyKey,
		PaymentMethod:  req.PaymentMethod,
		Tickets:        make([]application.TicketInput, len(req.Tickets)),
		Passengers:     make([]reservation.PassengerSpec, len(req.Passengers)),
	}
	if req.TotalPrice != nil {
		price, err := req.TotalPrice.toMoney()
		if err != nil {
			return api.ToHTTPError(err)
		}
		input.TotalPrice = price
	}
	for i, t := range req.Tickets {
		input.Tickets[i] = application.TicketInput{FlightID: t.FlightID, PassengerName: t.PassengerName}
	}
	for i, p := range req.Passengers {
		input.Passengers[i] = reservation.PassengerSpec{FullName: p.FullName, Email: p.Email}
	}

	r, err := h.service.CreateReservation(c.Request().Context(), input)
	return h.respond(c, http.StatusCreated, r, err)
}

// GetByID godoc
// @Summary 予約を取得
// @Tags reservations
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /reservations/{id} [get]
func (h *ReservationHandler) GetByID(c echo.Context) error {
	r, err := h.service.GetReservation(c.Request().Context(), c.Param("id"))
	return h.respond(c, http.StatusOK, r, err)
}

// GetByPNR godoc
// @Summary 予約番号で予約を取得
// @Tags reservations
// @Produce json
// @Param pnr path string true "予約番号"
// @Success 200 {object} ReservationResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /reservations/pnr/{pnr} [get]
func (h *ReservationHandler) GetByPNR(c echo.Context) error {
	r, err := h.service.GetReservationByPNR(c.Request().Context(), c.Param("pnr"))
	return h.respond(c, http.StatusOK, r, err)
}

// GetUserReservations godoc
// @Summary ユーザーの予約一覧を取得
// @Tags reservations
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} ReservationResponse
// @Failure 401 {object} api.ErrorResponse
// @Router /reservations [get]
func (h *ReservationHandler) GetUserReservations(c echo.Context) error {
	userID := c.Request().Header.Get(headerUserID)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	reservations, err := h.service.GetUserReservations(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return api.ToHTTPError(err)
	}
	resp := make([]ReservationResponse, len(reservations))
	for i, r := range reservations {
		resp[i] = toReservationResponse(r)
	}
	return c.JSON(http.StatusOK, resp)
}

// RecordPaymentOutcome godoc
// @Summary 決済結果を反映
// @Description 同じ取引IDの結果は一度だけ反映されます。失敗時は座席を解放します
// @Tags reservations
// @Accept json
// @Produce json
// @Param id path string true "予約ID"
// @Param request body PaymentOutcomeRequest true "決済結果"
// @Success 200 {object} ReservationResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /reservations/{id}/payment-outcome [post]
func (h *ReservationHandler) RecordPaymentOutcome(c echo.Context) error {
	var req PaymentOutcomeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	var amount money.Money
	if req.Amount != nil {
		var err error
		if amount, err = req.Amount.toMoney(); err != nil {
			return api.ToHTTPError(err)
		}
	}
	r, err := h.service.RecordPaymentOutcome(c.Request().Context(), c.Param("id"), req.Version, reservation.PaymentOutcome{
		Paid:          req.Paid,
		TransactionID: req.TransactionID,
		Method:        req.Method,
		Amount:        amount,
	})
	return h.respond(c, http.StatusOK, r, err)
}

// Checkout godoc
// @Summary 未払い残高を決済
// @Tags reservations
// @Accept json
// @Produce json
// @Param id path string true "予約ID"
// @Param request body VersionRequest true "並行制御トークン"
// @Success 200 {object} ReservationResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /reservations/{id}/checkout [post]
func (h *ReservationHandler) Checkout(c echo.Context) error {
	var req VersionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	r, err := h.payments.Checkout(c.Request().Context(), c.Param("id"), *req.Version)
	return h.respond(c, http.StatusOK, r, err)
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Description 予約をキャンセルし、保持していた座席を解放します
// @Tags reservations
// @Accept json
// @Produce json
// @Param id path string true "予約ID"
// @Param request body VersionRequest true "並行制御トークン"
// @Success 200 {object} ReservationResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /reservations/{id}/cancel [post]
func (h *ReservationHandler) Cancel(c echo.Context) error {
	var req VersionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	r, err := h.service.CancelReservation(c.Request().Context(), c.Param("id"), *req.Version)
	return h.respond(c, http.StatusOK, r, err)
}

// UpdatePrice godoc
// @Summary 合計金額を変更
// @Tags reservations
// @Accept json
// @Produce json
// @Param id path string true "予約ID"
// @Param request body UpdatePriceRequest true "合計金額"
// @Success 200 {object} ReservationResponse
// @Router /reservations/{id}/price [patch]
func (h *ReservationHandler) UpdatePrice(c echo.Context) error {
	var req UpdatePriceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	price, err := req.TotalPrice.toMoney()
	if err != nil {
		return api.ToHTTPError(err)
	}
	r, err := h.service.UpdateTotalPrice(c.Request().Context(), c.Param("id"), *req.Version, price)
	return h.respond(c, http.StatusOK, r, err)
}

// SetPNR godoc
// @Summary 予約番号を変更
// @Tags reservations
// @Accept json
// @Produce json
// @Param id path string true "予約ID"
// @Param request body SetPNRRequest true "予約番号"
// @Success 200 {object} ReservationResponse
// @Router /reservations/{id}/pnr [patch]
func (h *ReservationHandler) SetPNR(c echo.Context) error {
	var req SetPNRRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	r, err := h.service.SetPNR(c.Request().Context(), c.Param("id"), *req.Version, req.PNR)
	return h.respond(c, http.StatusOK, r, err)
}

// SetExpiration godoc
// @Summary 有効期限を変更
// @Tags reservations
// @Accept json
// @Produce json
// @Param id path string true "予約ID"
// @Param request body SetExpirationRequest true "有効期限"
// @Success 200 {object} ReservationResponse
// @Router /reservations/{id}/expiration [patch]
func (h *ReservationHandler) SetExpiration(c echo.Context) error {
	var req SetExpirationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	expiresAt, err := time.Parse(time.RFC3339, req.ExpiresAt)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "有効期限の形式が不正です（RFC3339）")
	}
	r, err := h.service.SetExpirationDate(c.Request().Context(), c.Param("id"), *req.Version, expiresAt)
	return h.respond(c, http.StatusOK, r, err)
}

// UseTicket godoc
// @Summary 航空券を使用済みにする
// @Description 確定済み予約の航空券のみ対象。使用済みの航空券は座席を保持し続けます
// @Tags reservations
// @Accept json
// @Produce json
// @Param id path string true "予約ID"
// @Param ticketId path string true "航空券ID"
// @Param request body VersionRequest true "並行制御トークン"
// @Success 200 {object} ReservationResponse
// @Router /reservations/{id}/tickets/{ticketId}/use [post]
func (h *ReservationHandler) UseTicket(c echo.Context) error {
	var req VersionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	r, err := h.service.UseTicket(c.Request().Context(), c.Param("id"), *req.Version, c.Param("ticketId"))
	return h.respond(c, http.StatusOK, r, err)
}
