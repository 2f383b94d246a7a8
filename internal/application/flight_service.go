package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/flight"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/money"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/reservation"
	"github.com/dugerdev/TravelBooking-sub001/internal/pkg/logger"
	"github.com/dugerdev/TravelBooking-sub001/internal/pkg/metrics"
)

type FlightService struct {
	flightRepo      flight.Repository
	reservationRepo reservation.Repository
	inventory       *SeatInventory
}

func NewFlightService(fr flight.Repository, rr reservation.Repository, inv *SeatInventory) *FlightService {
	return &FlightService{flightRepo: fr, reservationRepo: rr, inventory: inv}
}

type CreateFlightInput struct {
	FlightNumber string
	Origin       string
	Destination  string
	DepartureAt  time.Time
	ArrivalAt    time.Time
	TotalSeats   int
	SeatPrice    money.Money
}

func (s *FlightService) CreateFlight(ctx context.Context, input CreateFlightInput) (*flight.Flight, error) {
	f := flight.NewFlight(input.FlightNumber, input.Origin, input.Destination, input.DepartureAt, input.ArrivalAt, input.TotalSeats, input.SeatPrice)
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := s.flightRepo.Create(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *FlightService) GetFlight(ctx context.Context, id string) (*flight.Flight, error) {
	return s.flightRepo.GetByID(ctx, id)
}

func (s *FlightService) ListFlights(ctx context.Context, limit, offset int) ([]*flight.Flight, error) {
	return s.flightRepo.List(ctx, normalizeLimit(limit), max(offset, 0))
}

// GetAvailability は空席数を返す（キャッシュ優先）
func (s *FlightService) GetAvailability(ctx context.Context, id string) (int, error) {
	return s.inventory.AvailableSeats(ctx, id)
}

func (s *FlightService) UpdateAvailableSeats(ctx context.Context, id string, value int) (*flight.Flight, error) {
	if err := s.inventory.UpdateAvailableSeats(ctx, id, value); err != nil {
		return nil, err
	}
	return s.flightRepo.GetByID(ctx, id)
}

// ReconcileResult は空席数の照合結果
type ReconcileResult struct {
	FlightID  string
	Recorded  int
	Expected  int
	Corrected bool
}

// ReconcileSeats は保持中の航空券から空席数を算出し、カウンタとずれていれば補正する
// 予約作成の途中（座席確保後、予約保存前）は一時的にずれて見えるため、管理操作として実行すること
func (s *FlightService) ReconcileSeats(ctx context.Context, id string) (*ReconcileResult, error) {
	f, err := s.flightRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	held, err := s.reservationRepo.CountHeldSeatsByFlight(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("保持座席数の集計に失敗: %w", err)
	}

	expected := min(max(f.TotalSeats-held, 0), f.TotalSeats)
	result := &ReconcileResult{FlightID: id, Recorded: f.AvailableSeats, Expected: expected}
	if expected == f.AvailableSeats {
		return result, nil
	}

	logger.Alert("空席数のずれを検出しました",
		zap.String("flight_id", id),
		zap.Int("recorded", f.AvailableSeats),
		zap.Int("expected", expected),
		zap.Int("held_tickets", held),
	)
	metrics.RecordInvariantViolation("seat_drift")

	if err := s.inventory.UpdateAvailableSeats(ctx, id, expected); err != nil {
		return nil, fmt.Errorf("空席数の補正に失敗: %w", err)
	}
	result.Corrected = true
	return result, nil
}
