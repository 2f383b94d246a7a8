package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dugerdev/TravelBooking-sub001/internal/api"
	"github.com/dugerdev/TravelBooking-sub001/internal/application"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/flight"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/money"
)

type FlightHandler struct {
	service FlightServiceInterface
}

func NewFlightHandler(s FlightServiceInterface) *FlightHandler {
	return &FlightHandler{service: s}
}

// MoneyDTO は金額（最小通貨単位の整数 + 通貨コード）
type MoneyDTO struct {
	Amount   int64  `json:"amount" validate:"min=0" example:"25000"`
	Currency string `json:"currency" validate:"required,currency" example:"JPY"`
}

func (m MoneyDTO) toMoney() (money.Money, error) {
	return money.New(m.Amount, m.Currency)
}

func toMoneyDTO(m money.Money) MoneyDTO {
	return MoneyDTO{Amount: m.Amount, Currency: m.Currency}
}

type CreateFlightRequest struct {
	FlightNumber string   `json:"flight_number" validate:"required" example:"NH101"`
	Origin       string   `json:"origin" validate:"required" example:"HND"`
	Destination  string   `json:"destination" validate:"required" example:"ITM"`
	DepartureAt  string   `json:"departure_at" validate:"required" example:"2025-12-31T08:00:00+09:00"`
	ArrivalAt    string   `json:"arrival_at" validate:"required" example:"2025-12-31T09:10:00+09:00"`
	TotalSeats   int      `json:"total_seats" validate:"required,min=1" example:"180"`
	SeatPrice    MoneyDTO `json:"seat_price"`
}

type UpdateAvailableSeatsRequest struct {
	AvailableSeats *int `json:"available_seats" validate:"required,min=0" example:"42"`
}

type FlightResponse struct {
	ID             string    `json:"id"`
	FlightNumber   string    `json:"flight_number"`
	Origin         string    `json:"origin"`
	Destination    string    `json:"destination"`
	DepartureAt    time.Time `json:"departure_at"`
	ArrivalAt      time.Time `json:"arrival_at"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
	SeatPrice      MoneyDTO  `json:"seat_price"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type AvailabilityResponse struct {
	FlightID       string `json:"flight_id"`
	AvailableSeats int    `json:"available_seats"`
}

type ReconcileResponse struct {
	FlightID  string `json:"flight_id"`
	Recorded  int    `json:"recorded"`
	Expected  int    `json:"expected"`
	Corrected bool   `json:"corrected"`
}

func toFlightResponse(f *flight.Flight) FlightResponse {
	return FlightResponse{
		ID: f.ID, FlightNumber: f.FlightNumber,
		Origin: f.Origin, Destination: f.Destination,
		DepartureAt: f.DepartureAt, ArrivalAt: f.ArrivalAt,
		TotalSeats: f.TotalSeats, AvailableSeats: f.AvailableSeats,
		SeatPrice: toMoneyDTO(f.SeatPrice),
		CreatedAt: f.CreatedAt, UpdatedAt: f.UpdatedAt,
	}
}

// Create godoc
// @Summary フライトを登録
// @Tags flights
// @Accept json
// @Produce json
// @Param request body CreateFlightRequest true "フライト情報"
// @Success 201 {object} FlightResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /flights [post]
func (h *FlightHandler) Create(c echo.Context) error {
	var req CreateFlightRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	departureAt, err := time.Parse(time.RFC3339, req.DepartureAt)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "出発時刻の形式が不正です（RFC3339）")
	}
	arrivalAt, err := time.Parse(time.RFC3339, req.ArrivalAt)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "到着時刻の形式が不正です（RFC3339）")
	}
	price, err := req.SeatPrice.toMoney()
	if err != nil {
		return api.ToHTTPError(err)
	}
	f, err := h.service.CreateFlight(c.Request().Context(), application.CreateFlightInput{
		FlightNumber: req.FlightNumber,
		Origin:       req.Origin,
		Destination:  req.Destination,
		DepartureAt:  departureAt,
		ArrivalAt:    arrivalAt,
		TotalSeats:   req.TotalSeats,
		SeatPrice:    price,
	})
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusCreated, toFlightResponse(f))
}

// GetByID godoc
// @Summary フライトを取得
// @Tags flights
// @Produce json
// @Param id path string true "フライトID"
// @Success 200 {object} FlightResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /flights/{id} [get]
func (h *FlightHandler) GetByID(c echo.Context) error {
	f, err := h.service.GetFlight(c.Request().Context(), c.Param("id"))
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toFlightResponse(f))
}

// List godoc
// @Summary フライト一覧を取得
// @Tags flights
// @Produce json
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} FlightResponse
// @Router /flights [get]
func (h *FlightHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	flights, err := h.service.ListFlights(c.Request().Context(), limit, offset)
	if err != nil {
		return api.ToHTTPError(err)
	}
	resp := make([]FlightResponse, len(flights))
	for i, f := range flights {
		resp[i] = toFlightResponse(f)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetAvailability godoc
// @Summary 空席数を取得
// @Description キャッシュがあればキャッシュの値を返す
// @Tags flights
// @Produce json
// @Param id path string true "フライトID"
// @Success 200 {object} AvailabilityResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /flights/{id}/availability [get]
func (h *FlightHandler) GetAvailability(c echo.Context) error {
	id := c.Param("id")
	n, err := h.service.GetAvailability(c.Request().Context(), id)
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, AvailabilityResponse{FlightID: id, AvailableSeats: n})
}

// UpdateAvailableSeats godoc
// @Summary 空席数を上書き
// @Tags flights
// @Accept json
// @Produce json
// @Param id path string true "フライトID"
// @Param request body UpdateAvailableSeatsRequest true "空席数"
// @Success 200 {object} FlightResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /flights/{id}/available-seats [put]
func (h *FlightHandler) UpdateAvailableSeats(c echo.Context) error {
	var req UpdateAvailableSeatsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	f, err := h.service.UpdateAvailableSeats(c.Request().Context(), c.Param("id"), *req.AvailableSeats)
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toFlightResponse(f))
}

// Reconcile godoc
// @Summary 空席数を照合・補正
// @Description 座席を保持している航空券の枚数から空席数を再計算する
// @Tags flights
// @Produce json
// @Param id path string true "フライトID"
// @Success 200 {object} ReconcileResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /flights/{id}/reconcile [post]
func (h *FlightHandler) Reconcile(c echo.Context) error {
	r, err := h.service.ReconcileSeats(c.Request().Context(), c.Param("id"))
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, ReconcileResponse{
		FlightID: r.FlightID, Recorded: r.Recorded,
		Expected: r.Expected, Corrected: r.Corrected,
	})
}
