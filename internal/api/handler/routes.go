package handler

import "github.com/labstack/echo/v4"

// Handlers はルーティング対象のハンドラー一式
type Handlers struct {
	Health      *HealthHandler
	Flight      *FlightHandler
	Reservation *ReservationHandler
}

// RegisterRoutes は /api/v1 配下にルートを登録する
func RegisterRoutes(e *echo.Echo, h Handlers) {
	v1 := e.Group("/api/v1")

	v1.GET("/health", h.Health.Check)

	flights := v1.Group("/flights")
	flights.POST("", h.Flight.Create)
	flights.GET("", h.Flight.List)
	flights.GET("/:id", h.Flight.GetByID)
	flights.GET("/:id/availability", h.Flight.GetAvailability)
	flights.PUT("/:id/available-seats", h.Flight.UpdateAvailableSeats)
	flights.POST("/:id/reconcile", h.Flight.Reconcile)

	reservations := v1.Group("/reservations")
	reservations.POST("", h.Reservation.Create)
	reservations.GET("", h.Reservation.GetUserReservations)
	reservations.GET("/pnr/:pnr", h.Reservation.GetByPNR)
	reservations.GET("/:id", h.Reservation.GetByID)
	reservations.POST("/:id/payment-outcome", h.Reservation.RecordPaymentOutcome)
	reservations.POST("/:id/checkout", h.Reservation.Checkout)
	reservations.POST("/:id/cancel", h.Reservation.Cancel)
	reservations.PATCH("/:id/price", h.Reservation.UpdatePrice)
	reservations.PATCH("/:id/pnr", h.Reservation.SetPNR)
	reservations.PATCH("/:id/expiration", h.Reservation.SetExpiration)
	reservations.POST("/:id/tickets/:ticketId/use", h.Reservation.UseTicket)
}
