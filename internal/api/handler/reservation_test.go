package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dugerdev/TravelBooking-sub001/internal/api"
	"github.com/dugerdev/TravelBooking-sub001/internal/application"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/flight"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/money"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/reservation"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/transaction"
)

// MockReservationService はReservationServiceInterfaceのモック
type MockReservationService struct {
	mock.Mock
}

func (m *MockReservationService) result(args mock.Arguments) (*reservation.Reservation, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationService) CreateReservation(ctx context.Context, input application.CreateReservationInput) (*reservation.Reservation, error) {
	return m.result(m.Called(ctx, input))
}

func (m *MockReservationService) GetReservation(ctx context.Context, id string) (*reservation.Reservation, error) {
	return m.result(m.Called(ctx, id))
}

func (m *MockReservationService) GetReservationByPNR(ctx context.Context, pnr string) (*reservation.Reservation, error) {
	return m.result(m.Called(ctx, pnr))
}

func (m *MockReservationService) GetUserReservations(ctx context.Context, ownerID string, limit, offset int) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationService) RecordPaymentOutcome(ctx context.Context, id string, expectedVersion *int, outcome reservation.PaymentOutcome) (*reservation.Reservation, error) {
	return m.result(m.Called(ctx, id, expectedVersion, outcome))
}

func (m *MockReservationService) CancelReservation(ctx context.Context, id string, expectedVersion int) (*reservation.Reservation, error) {
	return m.result(m.Called(ctx, id, expectedVersion))
}

func (m *MockReservationService) UpdateTotalPrice(ctx context.Context, id string, expectedVersion int, price money.Money) (*reservation.Reservation, error) {
	return m.result(m.Called(ctx, id, expectedVersion, price))
}

func (m *MockReservationService) SetPNR(ctx context.Context, id string, expectedVersion int, pnr string) (*reservation.Reservation, error) {
	return m.result(m.Called(ctx, id, expectedVersion, pnr))
}

func (m *MockReservationService) SetExpirationDate(ctx context.Context, id string, expectedVersion int, expiresAt time.Time) (*reservation.Reservation, error) {
	return m.result(m.Called(ctx, id, expectedVersion, expiresAt))
}

func (m *MockReservationService) UseTicket(ctx context.Context, id string, expectedVersion int, ticketID string) (*reservation.Reservation, error) {
	return m.result(m.Called(ctx, id, expectedVersion, ticketID))
}

// MockPaymentService はPaymentServiceInterfaceのモック
type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) Checkout(ctx context.Context, id string, expectedVersion int) (*reservation.Reservation, error) {
	args := m.Called(ctx, id, expectedVersion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func jpy(amount int64) money.Money {
	return money.Money{Amount: amount, Currency: "JPY"}
}

func testReservation(status reservation.Status, version int) *reservation.Reservation {
	now := time.Now()
	return &reservation.Reservation{
		ID:            "res-123",
		PNR:           "ABC234",
		OwnerID:       "user-123",
		Type:          reservation.TypeFlight,
		TotalPrice:    jpy(50000),
		Status:        status,
		PaymentStatus: reservation.PaymentStatusPending,
		PaymentMethod: "credit_card",
		Tickets: []*reservation.Ticket{
			{ID: "tkt-1", FlightID: "flight-1", PassengerName: "YAMADA TARO", Price: jpy(25000), Status: reservation.TicketStatusReserved},
			{ID: "tkt-2", FlightID: "flight-2", PassengerName: "YAMADA TARO", Price: jpy(25000), Status: reservation.TicketStatusReserved},
		},
		Passengers: []*reservation.Passenger{{ID: "psg-1", FullName: "山田 太郎"}},
		ExpiresAt:  now.Add(15 * time.Minute),
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    version,
	}
}

// newJSONContext はJSONボディとパスパラメータを持つコンテキストを作成する
func newJSONContext(e *echo.Echo, method, target, body string, params map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if len(params) > 0 {
		names := make([]string, 0, len(params))
		values := make([]string, 0, len(params))
		for name, value := range params {
			names = append(names, name)
			values = append(values, value)
		}
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	return c, rec
}

func requireHTTPError(t *testing.T, err error, code int) *echo.HTTPError {
	t.Helper()
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "echo.HTTPError が返されること: %v", err)
	assert.Equal(t, code, he.Code)
	return he
}

func TestReservationHandler_Create(t *testing.T) {
	e := NewTestEcho()

	validBody := `{
		"type": "flight",
		"idempotency_key": "idem-key",
		"payment_method": "credit_card",
		"tickets": [
			{"flight_id": "flight-1", "passenger_name": "YAMADA TARO"},
			{"flight_id": "flight-2", "passenger_name": "YAMADA TARO"}
		],
		"passengers": [{"full_name": "山田 太郎", "email": "taro@example.com"}]
	}`

	t.Run("正常に予約を作成できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CreateReservation", mock.Anything, mock.MatchedBy(func(in application.CreateReservationInput) bool {
			return in.OwnerID == "user-123" &&
				in.Type == reservation.TypeFlight &&
				in.IdempotencyKey == "idem-key" &&
				len(in.Tickets) == 2 && in.Tickets[1].FlightID == "flight-2" &&
				len(in.Passengers) == 1 && in.Passengers[0].Email == "taro@example.com"
		})).Return(testReservation(reservation.StatusPending, 1), nil)

		handler := NewReservationHandler(mockService, nil)
		c, rec := newJSONContext(e, http.MethodPost, "/api/v1/reservations", validBody, nil)
		c.Request().Header.Set("X-User-ID", "user-123")

		err := handler.Create(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp ReservationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "res-123", resp.ID)
		assert.Equal(t, "ABC234", resp.PNR)
		assert.Equal(t, "pending", resp.Status)
		assert.Equal(t, 1, resp.Version)
		assert.Len(t, resp.Tickets, 2)
		assert.Equal(t, MoneyDTO{Amount: 50000, Currency: "JPY"}, resp.Outstanding)

		mockService.AssertExpectations(t)
	})

	t.Run("冪等性キーをヘッダーで指定できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CreateReservation", mock.Anything, mock.MatchedBy(func(in application.CreateReservationInput) bool {
			return in.IdempotencyKey == "header-key"
		})).Return(testReservation(reservation.StatusPending, 1), nil)

		handler := NewReservationHandler(mockService, nil)
		body := strings.Replace(validBody, `"idempotency_key": "idem-key",`, "", 1)
		c, rec := newJSONContext(e, http.MethodPost, "/api/v1/reservations", body, nil)
		c.Request().Header.Set("X-User-ID", "user-123")
		c.Request().Header.Set("Idempotency-Key", "header-key")

		require.NoError(t, handler.Create(c))
		assert.Equal(t, http.StatusCreated, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("冪等性キーがない場合400", func(t *testing.T) {
		mockService := new(MockReservationService)
		handler := NewReservationHandler(mockService, nil)
		body := strings.Replace(validBody, `"idempotency_key": "idem-key",`, "", 1)
		c, _ := newJSONContext(e, http.MethodPost, "/api/v1/reservations", body, nil)
		c.Request().Header.Set("X-User-ID", "user-123")

		requireHTTPError(t, handler.Create(c), http.StatusBadRequest)
		mockService.AssertNotCalled(t, "CreateReservation", mock.Anything, mock.Anything)
	})

	t.Run("ユーザーIDがない場合401", func(t *testing.T) {
		mockService := new(MockReservationService)
		handler := NewReservationHandler(mockService, nil)
		c, _ := newJSONContext(e, http.MethodPost, "/api/v1/reservations", validBody, nil)

		requireHTTPError(t, handler.Create(c), http.StatusUnauthorized)
	})

	t.Run("不正なリクエストでエラー", func(t *testing.T) {
		mockService := new(MockReservationService)
		handler := NewReservationHandler(mockService, nil)
		c, _ := newJSONContext(e, http.MethodPost, "/api/v1/reservations", "invalid", nil)
		c.Request().Header.Set("X-User-ID", "user-123")

		requireHTTPError(t, handler.Create(c), http.StatusBadRequest)
	})

	t.Run("不明な予約種別は400", func(t *testing.T) {
		mockService := new(MockReservationService)
		handler := NewReservationHandler(mockService, nil)
		body := strings.Replace(validBody, `"type": "flight"`, `"type": "cruise"`, 1)
		c, _ := newJSONContext(e, http.MethodPost, "/api/v1/reservations", body, nil)
		c.Request().Header.Set("X-User-ID", "user-123")

		requireHTTPError(t, handler.Create(c), http.StatusBadRequest)
	})

	t.Run("フライト予約は利用者なしで作成できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CreateReservation", mock.Anything, mock.MatchedBy(func(in application.CreateReservationInput) bool {
			return in.Type == reservation.TypeFlight && len(in.Tickets) == 2 && len(in.Passengers) == 0
		})).Return(testReservation(reservation.StatusPending, 1), nil)

		handler := NewReservationHandler(mockService, nil)
		body := `{
			"type": "flight",
			"idempotency_key": "idem-key",
			"payment_method": "credit_card",
			"tickets": [
				{"flight_id": "flight-1", "passenger_name": "YAMADA TARO"},
				{"flight_id": "flight-2", "passenger_name": "YAMADA TARO"}
			]
		}`
		c, rec := newJSONContext(e, http.MethodPost, "/api/v1/reservations", body, nil)
		c.Request().Header.Set("X-User-ID", "user-123")

		require.NoError(t, handler.Create(c))
		assert.Equal(t, http.StatusCreated, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("ホテル予約の利用者不足はドメインの判定で400", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CreateReservation", mock.Anything, mock.MatchedBy(func(in application.CreateReservationInput) bool {
			return in.Type == reservation.TypeHotel && len(in.Passengers) == 0
		})).Return(nil, reservation.ErrPassengersRequired)

		handler := NewReservationHandler(mockService, nil)
		body := `{"type": "hotel", "idempotency_key": "idem-hotel", "payment_method": "credit_card",
			"total_price": {"amount": 30000, "currency": "JPY"}}`
		c, _ := newJSONContext(e, http.MethodPost, "/api/v1/reservations", body, nil)
		c.Request().Header.Set("X-User-ID", "user-123")

		he := requireHTTPError(t, handler.Create(c), http.StatusBadRequest)
		assert.ErrorIs(t, he.Internal, reservation.ErrPassengersRequired)
		mockService.AssertExpectations(t)
	})

	t.Run("空席不足は409", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CreateReservation", mock.Anything, mock.Anything).Return(nil, flight.ErrInsufficientSeats)

		handler := NewReservationHandler(mockService, nil)
		c, _ := newJSONContext(e, http.MethodPost, "/api/v1/reservations", validBody, nil)
		c.Request().Header.Set("X-User-ID", "user-123")

		he := requireHTTPError(t, handler.Create(c), http.StatusConflict)
		assert.ErrorIs(t, he.Internal, flight.ErrInsufficientSeats)
	})

	t.Run("同じキーの処理中は409で再試行可能", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CreateReservation", mock.Anything, mock.Anything).Return(nil, application.ErrRequestInProgress)

		handler := NewReservationHandler(mockService, nil)
		c, rec := newJSONContext(e, http.MethodPost, "/api/v1/reservations", validBody, nil)
		c.Request().Header.Set("X-User-ID", "user-123")

		err := handler.Create(c)
		requireHTTPError(t, err, http.StatusConflict)

		api.CustomHTTPErrorHandler(err, c)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), `"retryable":true`)
	})
}

func TestReservationHandler_GetByID(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に予約を取得できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("GetReservation", mock.Anything, "res-123").Return(testReservation(reservation.StatusPending, 3), nil)

		handler := NewReservationHandler(mockService, nil)
		c, rec := newJSONContext(e, http.MethodGet, "/api/v1/reservations/res-123", "", map[string]string{"id": "res-123"})

		require.NoError(t, handler.GetByID(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"version":3`)

		mockService.AssertExpectations(t)
	})

	t.Run("予約が見つからない場合404", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("GetReservation", mock.Anything, "nonexistent").Return(nil, reservation.ErrReservationNotFound)

		handler := NewReservationHandler(mockService, nil)
		c, _ := newJSONContext(e, http.MethodGet, "/api/v1/reservations/nonexistent", "", map[string]string{"id": "nonexistent"})

		requireHTTPError(t, handler.GetByID(c), http.StatusNotFound)
		mockService.AssertExpectations(t)
	})
}

func TestReservationHandler_GetByPNR(t *testing.T) {
	e := NewTestEcho()

	t.Run("予約番号で取得できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("GetReservationByPNR", mock.Anything, "ABC234").Return(testReservation(reservation.StatusConfirmed, 2), nil)

		handler := NewReservationHandler(mockService, nil)
		c, rec := newJSONContext(e, http.MethodGet, "/api/v1/reservations/pnr/ABC234", "", map[string]string{"pnr": "ABC234"})

		require.NoError(t, handler.GetByPNR(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("形式が不正な予約番号は400", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("GetReservationByPNR", mock.Anything, "abc").Return(nil, reservation.ErrInvalidPNR)

		handler := NewReservationHandler(mockService, nil)
		c, _ := newJSONContext(e, http.MethodGet, "/api/v1/reservations/pnr/abc", "", map[string]string{"pnr": "abc"})

		requireHTTPError(t, handler.GetByPNR(c), http.StatusBadRequest)
	})
}

func TestReservationHandler_GetUserReservations(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常にユーザーの予約一覧を取得できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		reservations := []*reservation.Reservation{
			testReservation(reservation.StatusPending, 1),
			testReservation(reservation.StatusConfirmed, 2),
		}
		mockService.On("GetUserReservations", mock.Anything, "user-123", 10, 5).Return(reservations, nil)

		handler := NewReservationHandler(mockService, nil)
		c, rec := newJSONContext(e, http.MethodGet, "/api/v1/reservations?limit=10&offset=5", "", nil)
		c.Request().Header.Set("X-User-ID", "user-123")

		require.NoError(t, handler.GetUserReservations(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp []ReservationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp, 2)

		mockService.AssertExpectations(t)
	})

	t.Run("ユーザーIDがない場合401", func(t *testing.T) {
		handler := NewReservationHandler(new(MockReservationService), nil)
		c, _ := newJSONContext(e, http.MethodGet, "/api/v1/reservations", "", nil)

		requireHTTPError(t, handler.GetUserReservations(c), http.StatusUnauthorized)
	})
}

func TestReservationHandler_RecordPaymentOutcome(t *testing.T) {
	e := NewTestEcho()

	t.Run("バージョン指定なしで反映できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("RecordPaymentOutcome", mock.Anything, "res-123", (*int)(nil), reservation.PaymentOutcome{
			Paid: true, TransactionID: "txn_1", Method: "credit_card", Amount: jpy(50000),
		}).Return(testReservation(reservation.StatusConfirmed, 2), nil)

		handler := NewReservationHandler(mockService, nil)
		body := `{"paid": true, "transaction_id": "txn_1", "method": "credit_card", "amount": {"amount": 50000, "currency": "JPY"}}`
		c, rec := newJSONContext(e, http.MethodPost, "/api/v1/reservations/res-123/payment-outcome", body, map[string]string{"id": "res-123"})

		require.NoError(t, handler.RecordPaymentOutcome(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"confirmed"`)
		mockService.AssertExpectations(t)
	})

	t.Run("バージョンを指定した場合は渡される", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("RecordPaymentOutcome", mock.Anything, "res-123", mock.MatchedBy(func(v *int) bool {
			return v != nil && *v == 4
		}), mock.Anything).Return(nil, reservation.ErrConcurrencyConflict)

		handler := NewReservationHandler(mockService, nil)
		body := `{"paid": false, "transaction_id": "txn_2", "amount": {"amount": 0, "currency": "JPY"}, "version": 4}`
		c, _ := newJSONContext(e, http.MethodPost, "/api/v1/reservations/res-123/payment-outcome", body, map[string]string{"id": "res-123"})

		requireHTTPError(t, handler.RecordPaymentOutcome(c), http.StatusConflict)
		mockService.AssertExpectations(t)
	})

	t.Run("金額を省略した場合は空の金額を渡す", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("RecordPaymentOutcome", mock.Anything, "res-123", (*int)(nil), reservation.PaymentOutcome{
			Paid: true, TransactionID: "txn_4", Method: "credit_card", Amount: money.Money{},
		}).Return(testReservation(reservation.StatusConfirmed, 2), nil)

		handler := NewReservationHandler(mockService, nil)
		body := `{"paid": true, "transaction_id": "txn_4", "method": "credit_card"}`
		c, rec := newJSONContext(e, http.MethodPost, "/api/v1/reservations/res-123/payment-outcome", body, map[string]string{"id": "res-123"})

		require.NoError(t, handler.RecordPaymentOutcome(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("取引IDがない場合400", func(t *testing.T) {
		handler := NewReservationHandler(new(MockReservationService), nil)
		body := `{"paid": true, "amount": {"amount": 100, "currency": "JPY"}}`
		c, _ := newJSONContext(e, http.MethodPost, "/api/v1/reservations/res-123/payment-outcome", body, map[string]string{"id": "res-123"})

		requireHTTPError(t, handler.RecordPaymentOutcome(c), http.StatusBadRequest)
	})

	t.Run("通貨コードが不正な場合400", func(t *testing.T) {
		handler := NewReservationHandler(new(MockReservationService), nil)
		body := `{"paid": true, "transaction_id": "txn_3", "amount": {"amount": 100, "currency": "yen"}}`
		c, _ := newJSONContext(e, http.MethodPost, "/api/v1/reservations/res-123/payment-outcome", body, map[string]string{"id": "res-123"})

		requireHTTPError(t, handler.RecordPaymentOutcome(c), http.StatusBadRequest)
	})
}

func TestReservationHandler_Checkout(t *testing.T) {
	e := NewTestEcho()

	t.Run("未払い残高を決済できる", func(t *testing.T) {
		mockPayment := new(MockPaymentService)
		mockPayment.On("Checkout", mock.Anything, "res-123", 1).Return(testReservation(reservation.StatusConfirmed, 2), nil)

		handler := NewReservationHandler(new(MockReservationService), mockPayment)
		c, rec := newJSONContext(e, http.MethodPost, "/api/v1/reservations/res-123/checkout", `{"version": 1}`, map[string]string{"id": "res-123"})

		require.NoError(t, handler.Checkout(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		mockPayment.AssertExpectations(t)
	})

	t.Run("バージョンがない場合400", func(t *testing.T) {
		mockPayment := new(MockPaymentService)
		handler := NewReservationHandler(new(MockReservationService), mockPayment)
		c, _ := newJSONContext(e, http.MethodPost, "/api/v1/reservations/res-123/checkout", `{}`, map[string]string{"id": "res-123"})

		requireHTTPError(t, handler.Checkout(c), http.StatusBadRequest)
		mockPayment.AssertNotCalled(t, "Checkout", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("期限切れは409", func(t *testing.T) {
		mockPayment := new(MockPaymentService)
		mockPayment.On("Checkout", mock.Anything, "res-123", 1).Return(nil, reservation.ErrReservationExpired)

		handler := NewReservationHandler(new(MockReservationService), mockPayment)
		c, _ := newJSONContext(e, http.MethodPost, "/api/v1/reservations/res-123/checkout", `{"version": 1}`, map[string]string{"id": "res-123"})

		requireHTTPError(t, handler.Checkout(c), http.StatusConflict)
	})
}

func TestReservationHandler_Cancel(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に予約をキャンセルできる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CancelReservation", mock.Anything, "res-123", 0).Return(testReservation(reservation.StatusCancelled, 1), nil)

		handler := NewReservationHandler(mockService, nil)
		c, rec := newJSONContext(e, http.MethodPost, "/api/v1/reservations/res-123/cancel", `{"version": 0}`, map[string]string{"id": "res-123"})

		require.NoError(t, handler.Cancel(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ReservationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "cancelled", resp.Status)
		assert.Equal(t, 1, resp.Version)

		mockService.AssertExpectations(t)
	})

	t.Run("古いバージョンは409で再試行可能", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CancelReservation", mock.Anything, "res-123", 0).Return(nil, reservation.ErrConcurrencyConflict)

		handler := NewReservationHandler(mockService, nil)
		c, rec := newJSONContext(e, http.MethodPost, "/api/v1/reservations/res-123/cancel", `{"version": 0}`, map[string]string{"id": "res-123"})

		err := handler.Cancel(c)
		requireHTTPError(t, err, http.StatusConflict)

		api.CustomHTTPErrorHandler(err, c)
		assert.Contains(t, rec.Body.String(), `"retryable":true`)
	})

	t.Run("予約が見つからない場合404", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CancelReservation", mock.Anything, "nonexistent", 2).Return(nil, reservation.ErrReservationNotFound)

		handler := NewReservationHandler(mockService, nil)
		c, _ := newJSONContext(e, http.MethodPost, "/api/v1/reservations/nonexistent/cancel", `{"version": 2}`, map[string]string{"id": "nonexistent"})

		requireHTTPError(t, handler.Cancel(c), http.StatusNotFound)
	})

	t.Run("ストアの一時的な競合は503", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CancelReservation", mock.Anything, "res-123", 1).Return(nil, transaction.ErrTransient)

		handler := NewReservationHandler(mockService, nil)
		c, _ := newJSONContext(e, http.MethodPost, "/api/v1/reservations/res-123/cancel", `{"version": 1}`, map[string]string{"id": "res-123"})

		requireHTTPError(t, handler.Cancel(c), http.StatusServiceUnavailable)
	})
}

func TestReservationHandler_FieldUpdates(t *testing.T) {
	e := NewTestEcho()
	params := map[string]string{"id": "res-123"}

	t.Run("合計金額を変更できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("UpdateTotalPrice", mock.Anything, "res-123", 1, jpy(42000)).Return(testReservation(reservation.StatusPending, 2), nil)

		handler := NewReservationHandler(mockService, nil)
		c, rec := newJSONContext(e, http.MethodPatch, "/api/v1/reservations/res-123/price",
			`{"version": 1, "total_price": {"amount": 42000, "currency": "JPY"}}`, params)

		require.NoError(t, handler.UpdatePrice(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("負の金額は400", func(t *testing.T) {
		handler := NewReservationHandler(new(MockReservationService), nil)
		c, _ := newJSONContext(e, http.MethodPatch, "/api/v1/reservations/res-123/price",
			`{"version": 1, "total_price": {"amount": -1, "currency": "JPY"}}`, params)

		requireHTTPError(t, handler.UpdatePrice(c), http.StatusBadRequest)
	})

	t.Run("予約番号を変更できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("SetPNR", mock.Anything, "res-123", 1, "XYZ789").Return(testReservation(reservation.StatusPending, 2), nil)

		handler := NewReservationHandler(mockService, nil)
		c, rec := newJSONContext(e, http.MethodPatch, "/api/v1/reservations/res-123/pnr", `{"version": 1, "pnr": "XYZ789"}`, params)

		require.NoError(t, handler.SetPNR(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("使用中の予約番号は409", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("SetPNR", mock.Anything, "res-123", 1, "XYZ789").Return(nil, reservation.ErrPNRAlreadyExists)

		handler := NewReservationHandler(mockService, nil)
		c, _ := newJSONContext(e, http.MethodPatch, "/api/v1/reservations/res-123/pnr", `{"version": 1, "pnr": "XYZ789"}`, params)

		requireHTTPError(t, handler.SetPNR(c), http.StatusConflict)
	})

	t.Run("有効期限を変更できる", func(t *testing.T) {
		expiresAt, err := time.Parse(time.RFC3339, "2030-01-02T03:04:05Z")
		require.NoError(t, err)

		mockService := new(MockReservationService)
		mockService.On("SetExpirationDate", mock.Anything, "res-123", 1, mock.MatchedBy(func(got time.Time) bool {
			return got.Equal(expiresAt)
		})).Return(testReservation(reservation.StatusPending, 2), nil)

		handler := NewReservationHandler(mockService, nil)
		c, rec := newJSONContext(e, http.MethodPatch, "/api/v1/reservations/res-123/expiration",
			`{"version": 1, "expires_at": "2030-01-02T03:04:05Z"}`, params)

		require.NoError(t, handler.SetExpiration(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("有効期限の形式が不正な場合400", func(t *testing.T) {
		handler := NewReservationHandler(new(MockReservationService), nil)
		c, _ := newJSONContext(e, http.MethodPatch, "/api/v1/reservations/res-123/expiration",
			`{"version": 1, "expires_at": "tomorrow"}`, params)

		requireHTTPError(t, handler.SetExpiration(c), http.StatusBadRequest)
	})

	t.Run("航空券を使用済みにできる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("UseTicket", mock.Anything, "res-123", 3, "tkt-1").Return(testReservation(reservation.StatusConfirmed, 4), nil)

		handler := NewReservationHandler(mockService, nil)
		c, rec := newJSONContext(e, http.MethodPost, "/api/v1/reservations/res-123/tickets/tkt-1/use", `{"version": 3}`,
			map[string]string{"id": "res-123", "ticketId": "tkt-1"})

		require.NoError(t, handler.UseTicket(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("未確定の予約の航空券は409", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("UseTicket", mock.Anything, "res-123", 1, "tkt-1").Return(nil, reservation.ErrReservationNotConfirmed)

		handler := NewReservationHandler(mockService, nil)
		c, _ := newJSONContext(e, http.MethodPost, "/api/v1/reservations/res-123/tickets/tkt-1/use", `{"version": 1}`,
			map[string]string{"id": "res-123", "ticketId": "tkt-1"})

		requireHTTPError(t, handler.UseTicket(c), http.StatusConflict)
	})
}

func TestToReservationResponse(t *testing.T) {
	r := testReservation(reservation.StatusPending, 5)
	r.Payments = []*reservation.Payment{{
		ID: "pay-1", Amount: jpy(20000), Method: "credit_card", TransactionID: "txn_1",
		Status: reservation.PaymentStatusPaid, TransactionType: reservation.TransactionTypePayment,
	}}

	resp := toReservationResponse(r)

	assert.Equal(t, r.ID, resp.ID)
	assert.Equal(t, r.PNR, resp.PNR)
	assert.Equal(t, r.OwnerID, resp.OwnerID)
	assert.Equal(t, "flight", resp.Type)
	assert.Equal(t, 5, resp.Version)
	assert.Equal(t, MoneyDTO{Amount: 50000, Currency: "JPY"}, resp.TotalPrice)
	assert.Equal(t, MoneyDTO{Amount: 30000, Currency: "JPY"}, resp.Outstanding)
	require.Len(t, resp.Tickets, 2)
	assert.Equal(t, "reserved", resp.Tickets[0].Status)
	require.Len(t, resp.Payments, 1)
	assert.Equal(t, "txn_1", resp.Payments[0].TransactionID)
}
