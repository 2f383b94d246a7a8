package flight

import (
	"time"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/money"
)

// Flight はフライト（予約可能な便）エンティティを表す
// 空席数カウンタはこの集約だけが持ち、Reserve/Release 以外で変更しない
type Flight struct {
	ID             string
	FlightNumber   string
	Origin         string
	Destination    string
	DepartureAt    time.Time
	ArrivalAt      time.Time
	TotalSeats     int
	AvailableSeats int
	SeatPrice      money.Money
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewFlight は全席空席の新しいフライトを作成する
func NewFlight(flightNumber, origin, destination string, departureAt, arrivalAt time.Time, totalSeats int, seatPrice money.Money) *Flight {
	now := time.Now()
	return &Flight{
		FlightNumber:   flightNumber,
		Origin:         origin,
		Destination:    destination,
		DepartureAt:    departureAt,
		ArrivalAt:      arrivalAt,
		TotalSeats:     totalSeats,
		AvailableSeats: totalSeats,
		SeatPrice:      seatPrice,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Reserve は count 席を確保する。空席が足りない場合は何も変更しない
func (f *Flight) Reserve(count int) error {
	if count <= 0 {
		return ErrInvalidSeatCount
	}
	if f.AvailableSeats < count {
		return ErrInsufficientSeats
	}
	f.AvailableSeats -= count
	f.UpdatedAt = time.Now()
	return nil
}

// Release は count 席を返却する。総座席数を超える場合は二重解放とみなして拒否する
func (f *Flight) Release(count int) error {
	if count <= 0 {
		return ErrInvalidSeatCount
	}
	if f.AvailableSeats+count > f.TotalSeats {
		return ErrOverRelease
	}
	f.AvailableSeats += count
	f.UpdatedAt = time.Now()
	return nil
}

// UpdateAvailableSeats は空席数を管理者が直接補正する
func (f *Flight) UpdateAvailableSeats(value int) error {
	if value < 0 || value > f.TotalSeats {
		return ErrInvalidAvailableSeats
	}
	f.AvailableSeats = value
	f.UpdatedAt = time.Now()
	return nil
}

// ReservedSeats は確保済みの席数を返す
func (f *Flight) ReservedSeats() int {
	return f.TotalSeats - f.AvailableSeats
}

// Validate はフライトの検証を行う
func (f *Flight) Validate() error {
	if f.FlightNumber == "" {
		return ErrFlightNumberRequired
	}
	if f.Origin == "" || f.Destination == "" {
		return ErrRouteRequired
	}
	if f.TotalSeats <= 0 {
		return ErrInvalidTotalSeats
	}
	if f.AvailableSeats < 0 || f.AvailableSeats > f.TotalSeats {
		return ErrInvalidAvailableSeats
	}
	if f.ArrivalAt.Before(f.DepartureAt) {
		return ErrInvalidSchedule
	}
	if err := f.SeatPrice.Validate(); err != nil {
		return err
	}
	return nil
}
