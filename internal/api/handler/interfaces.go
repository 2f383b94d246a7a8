package handler

import (
	"context"
	"time"

	"github.com/dugerdev/TravelBooking-sub001/internal/application"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/flight"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/money"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/reservation"
)

// FlightServiceInterface はフライトサービスのインターフェース
type FlightServiceInterface interface {
	CreateFlight(ctx context.Context, input application.CreateFlightInput) (*flight.Flight, error)
	GetFlight(ctx context.Context, id string) (*flight.Flight, error)
	ListFlights(ctx context.Context, limit, offset int) ([]*flight.Flight, error)
	GetAvailability(ctx context.Context, id string) (int, error)
	UpdateAvailableSeats(ctx context.Context, id string, value int) (*flight.Flight, error)
	ReconcileSeats(ctx context.Context, id string) (*application.ReconcileResult, error)
}

// ReservationServiceInterface は予約サービスのインターフェース
type ReservationServiceInterface interface {
	CreateReservation(ctx context.Context, input application.CreateReservationInput) (*reservation.Reservation, error)
	GetReservation(ctx context.Context, id string) (*reservation.Reservation, error)
	GetReservationByPNR(ctx context.Context, pnr string) (*reservation.Reservation, error)
	GetUserReservations(ctx context.Context, ownerID string, limit, offset int) ([]*reservation.Reservation, error)
	RecordPaymentOutcome(ctx context.Context, id string, expectedVersion *int, outcome reservation.PaymentOutcome) (*reservation.Reservation, error)
	CancelReservation(ctx context.Context, id string, expectedVersion int) (*reservation.Reservation, error)
	UpdateTotalPrice(ctx context.Context, id string, expectedVersion int, price money.Money) (*reservation.Reservation, error)
	SetPNR(ctx context.Context, id string, expectedVersion int, pnr string) (*reservation.Reservation, error)
	SetExpirationDate(ctx context.Context, id string, expectedVersion int, expiresAt time.Time) (*reservation.Reservation, error)
	UseTicket(ctx context.Context, id string, expectedVersion int, ticketID string) (*reservation.Reservation, error)
}

// PaymentServiceInterface は決済サービスのインターフェース
type PaymentServiceInterface interface {
	Checkout(ctx context.Context, id string, expectedVersion int) (*reservation.Reservation, error)
}
