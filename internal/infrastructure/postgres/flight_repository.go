package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/flight"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/money"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/transaction"
)

type flightRow struct {
	ID             string    `db:"id"`
	FlightNumber   string    `db:"flight_number"`
	Origin         string    `db:"origin"`
	Destination    string    `db:"destination"`
	DepartureAt    time.Time `db:"departure_at"`
	ArrivalAt      time.Time `db:"arrival_at"`
	TotalSeats     int       `db:"total_seats"`
	AvailableSeats int       `db:"available_seats"`
	SeatPrice      int64     `db:"seat_price"`
	Currency       string    `db:"currency"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r *flightRow) toEntity() *flight.Flight {
	return &flight.Flight{
		ID:             r.ID,
		FlightNumber:   r.FlightNumber,
		Origin:         r.Origin,
		Destination:    r.Destination,
		DepartureAt:    r.DepartureAt,
		ArrivalAt:      r.ArrivalAt,
		TotalSeats:     r.TotalSeats,
		AvailableSeats: r.AvailableSeats,
		SeatPrice:      money.Money{Amount: r.SeatPrice, Currency: r.Currency},
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

const flightColumns = `id, flight_number, origin, destination, departure_at, arrival_at,
	total_seats, available_seats, seat_price, currency, created_at, updated_at`

// FlightRepository は flight.Repository のPostgreSQL実装
// 空席数の変更はすべて条件付きUPDATE一文で行い、CHECK制約を最後の防衛線とする
type FlightRepository struct{ db *sqlx.DB }

func NewFlightRepository(db *sqlx.DB) *FlightRepository { return &FlightRepository{db: db} }

func (r *FlightRepository) Create(ctx context.Context, f *flight.Flight) error {
	query := `INSERT INTO flights (flight_number, origin, destination, departure_at, arrival_at,
		total_seats, available_seats, seat_price, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		f.FlightNumber, f.Origin, f.Destination, f.DepartureAt, f.ArrivalAt,
		f.TotalSeats, f.AvailableSeats, f.SeatPrice.Amount, f.SeatPrice.Currency, f.CreatedAt, f.UpdatedAt,
	).Scan(&f.ID)
	if err != nil {
		if isCheckViolation(err) {
			return flight.ErrInvalidAvailableSeats
		}
		return fmt.Errorf("フライト作成に失敗: %w", err)
	}
	return nil
}

func (r *FlightRepository) GetByID(ctx context.Context, id string) (*flight.Flight, error) {
	var row flightRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+flightColumns+` FROM flights WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
			return nil, flight.ErrFlightNotFound
		}
		return nil, fmt.Errorf("フライト取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *FlightRepository) List(ctx context.Context, limit, offset int) ([]*flight.Flight, error) {
	var rows []flightRow
	query := `SELECT ` + flightColumns + ` FROM flights ORDER BY departure_at, flight_number LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, fmt.Errorf("フライト一覧取得に失敗: %w", err)
	}
	result := make([]*flight.Flight, len(rows))
	for i := range rows {
		result[i] = rows[i].toEntity()
	}
	return result, nil
}

// ReserveSeats は空席が count 以上ある場合のみ減算する
func (r *FlightRepository) ReserveSeats(ctx context.Context, tx transaction.Tx, flightID string, count int) error {
	if count <= 0 {
		return flight.ErrInvalidSeatCount
	}
	q := conn(r.db, tx)
	query := `UPDATE flights SET available_seats = available_seats - $1, updated_at = NOW()
		WHERE id = $2 AND available_seats >= $1`
	return r.applySeatUpdate(ctx, q, query, flightID, count, flight.ErrInsufficientSeats)
}

// ReleaseSeats は返却後の空席数が総座席数以下の場合のみ加算する
func (r *FlightRepository) ReleaseSeats(ctx context.Context, tx transaction.Tx, flightID string, count int) error {
	if count <= 0 {
		return flight.ErrInvalidSeatCount
	}
	q := conn(r.db, tx)
	query := `UPDATE flights SET available_seats = available_seats + $1, updated_at = NOW()
		WHERE id = $2 AND available_seats + $1 <= total_seats`
	return r.applySeatUpdate(ctx, q, query, flightID, count, flight.ErrOverRelease)
}

func (r *FlightRepository) UpdateAvailableSeats(ctx context.Context, flightID string, value int) error {
	if value < 0 {
		return flight.ErrInvalidAvailableSeats
	}
	query := `UPDATE flights SET available_seats = $1, updated_at = NOW()
		WHERE id = $2 AND $1 <= total_seats`
	return r.applySeatUpdate(ctx, r.db, query, flightID, value, flight.ErrInvalidAvailableSeats)
}

// applySeatUpdate は条件付きUPDATEを実行し、0行更新の場合は
// フライトが存在しないのか条件を満たさなかったのかを区別して返す
func (r *FlightRepository) applySeatUpdate(ctx context.Context, q sqlx.ExtContext, query, flightID string, n int, rejected error) error {
	result, err := q.ExecContext(ctx, query, n, flightID)
	if err != nil {
		if isInvalidText(err) {
			return flight.ErrFlightNotFound
		}
		if isCheckViolation(err) {
			return rejected
		}
		return fmt.Errorf("座席数更新に失敗: %w", translateError(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM flights WHERE id = $1)`, flightID); err != nil {
		return fmt.Errorf("フライト存在確認に失敗: %w", translateError(err))
	}
	if !exists {
		return flight.ErrFlightNotFound
	}
	return rejected
}

var _ flight.Repository = (*FlightRepository)(nil)
