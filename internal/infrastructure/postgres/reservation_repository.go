package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/money"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/reservation"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/transaction"
)

const (
	constraintPNR            = "reservations_pnr_key"
	constraintIdempotencyKey = "reservations_idempotency_key_key"
)

type reservationRow struct {
	ID             string     `db:"id"`
	PNR            string     `db:"pnr"`
	OwnerID        string     `db:"owner_id"`
	Type           string     `db:"type"`
	TotalAmount    int64      `db:"total_amount"`
	Currency       string     `db:"currency"`
	Status         string     `db:"status"`
	PaymentStatus  string     `db:"payment_status"`
	PaymentMethod  string     `db:"payment_method"`
	IdempotencyKey string     `db:"idempotency_key"`
	ExpiresAt      time.Time  `db:"expires_at"`
	ConfirmedAt    *time.Time `db:"confirmed_at"`
	CancelledAt    *time.Time `db:"cancelled_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	Version        int        `db:"version"`
}

type ticketRow struct {
	ID            string    `db:"id"`
	ReservationID string    `db:"reservation_id"`
	FlightID      string    `db:"flight_id"`
	PassengerName string    `db:"passenger_name"`
	Price         int64     `db:"price"`
	Currency      string    `db:"currency"`
	Status        string    `db:"status"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

type passengerRow struct {
	ID            string `db:"id"`
	ReservationID string `db:"reservation_id"`
	FullName      string `db:"full_name"`
	Email         string `db:"email"`
}

type paymentRow struct {
	ID              string    `db:"id"`
	ReservationID   string    `db:"reservation_id"`
	Amount          int64     `db:"amount"`
	Currency        string    `db:"currency"`
	Method          string    `db:"method"`
	TransactionID   string    `db:"transaction_id"`
	Status          string    `db:"status"`
	TransactionType string    `db:"transaction_type"`
	CreatedAt       time.Time `db:"created_at"`
}

const reservationColumns = `id, pnr, owner_id, type, total_amount, currency, status, payment_status,
	payment_method, idempotency_key, expires_at, confirmed_at, cancelled_at, created_at, updated_at, version`

// ReservationRepository は reservation.Repository のPostgreSQL実装
type ReservationRepository struct{ db *sqlx.DB }

func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Create(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	sqlTx := UnwrapTx(tx)
	if sqlTx == nil {
		return errTxRequired
	}

	query := `INSERT INTO reservations (` + reservationColumns + `)
		VALUES (:id, :pnr, :owner_id, :type, :total_amount, :currency, :status, :payment_status,
		:payment_method, :idempotency_key, :expires_at, :confirmed_at, :cancelled_at, :created_at, :updated_at, :version)`
	if _, err := sqlTx.NamedExecContext(ctx, query, toReservationRow(res)); err != nil {
		switch {
		case isUniqueViolation(err, constraintIdempotencyKey):
			return reservation.ErrIdempotencyKeyAlreadyExists
		case isUniqueViolation(err, constraintPNR):
			return reservation.ErrPNRAlreadyExists
		}
		return fmt.Errorf("予約作成に失敗: %w", translateError(err))
	}

	for _, t := range res.Tickets {
		if _, err := sqlTx.NamedExecContext(ctx, `INSERT INTO tickets
			(id, reservation_id, flight_id, passenger_name, price, currency, status, created_at, updated_at)
			VALUES (:id, :reservation_id, :flight_id, :passenger_name, :price, :currency, :status, :created_at, :updated_at)`,
			toTicketRow(t)); err != nil {
			return fmt.Errorf("航空券作成に失敗: %w", translateError(err))
		}
	}
	for _, p := range res.Passengers {
		if _, err := sqlTx.ExecContext(ctx,
			`INSERT INTO passengers (id, reservation_id, full_name, email) VALUES ($1, $2, $3, $4)`,
			p.ID, res.ID, p.FullName, p.Email); err != nil {
			return fmt.Errorf("利用者作成に失敗: %w", translateError(err))
		}
	}
	return r.insertPayments(ctx, sqlTx, res.Payments)
}

// Update は保存済みのバージョンが一致する場合のみ予約を更新し、バージョンを1進める
// 航空券は状態が変わったものだけを更新し、決済記録は未保存のものだけを追記する
func (r *ReservationRepository) Update(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	sqlTx := UnwrapTx(tx)
	if sqlTx == nil {
		return errTxRequired
	}

	query := `UPDATE reservations SET pnr = $1, total_amount = $2, currency = $3, status = $4,
		payment_status = $5, payment_method = $6, expires_at = $7, confirmed_at = $8, cancelled_at = $9,
		updated_at = $10, version = version + 1
		WHERE id = $11 AND version = $12`
	result, err := sqlTx.ExecContext(ctx, query,
		res.PNR, res.TotalPrice.Amount, res.TotalPrice.Currency, string(res.Status),
		string(res.PaymentStatus), res.PaymentMethod, res.ExpiresAt, res.ConfirmedAt, res.CancelledAt,
		res.UpdatedAt, res.ID, res.Version,
	)
	if err != nil {
		if isUniqueViolation(err, constraintPNR) {
			return reservation.ErrPNRAlreadyExists
		}
		return fmt.Errorf("予約更新に失敗: %w", translateError(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if rows == 0 {
		var exists bool
		if err := sqlTx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM reservations WHERE id = $1)`, res.ID); err != nil {
			return fmt.Errorf("予約存在確認に失敗: %w", translateError(err))
		}
		if !exists {
			return reservation.ErrReservationNotFound
		}
		return reservation.ErrConcurrencyConflict
	}

	for _, t := range res.Tickets {
		if _, err := sqlTx.ExecContext(ctx,
			`UPDATE tickets SET status = $1, updated_at = $2 WHERE id = $3 AND status <> $1`,
			string(t.Status), t.UpdatedAt, t.ID); err != nil {
			return fmt.Errorf("航空券更新に失敗: %w", translateError(err))
		}
	}
	if err := r.insertPayments(ctx, sqlTx, res.Payments); err != nil {
		return err
	}

	res.Version++
	return nil
}

// insertPayments は決済記録を追記する。既に保存済みの記録は無視する
func (r *ReservationRepository) insertPayments(ctx context.Context, sqlTx *sqlx.Tx, payments []*reservation.Payment) error {
	for _, p := range payments {
		if _, err := sqlTx.NamedExecContext(ctx, `INSERT INTO payments
			(id, reservation_id, amount, currency, method, transaction_id, status, transaction_type, created_at)
			VALUES (:id, :reservation_id, :amount, :currency, :method, :transaction_id, :status, :transaction_type, :created_at)
			ON CONFLICT (id) DO NOTHING`, toPaymentRow(p)); err != nil {
			return fmt.Errorf("決済記録の保存に失敗: %w", translateError(err))
		}
	}
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	return r.getOne(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
}

func (r *ReservationRepository) GetByPNR(ctx context.Context, pnr string) (*reservation.Reservation, error) {
	return r.getOne(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE pnr = $1`, pnr)
}

func (r *ReservationRepository) GetByIdempotencyKey(ctx context.Context, key string) (*reservation.Reservation, error) {
	return r.getOne(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE idempotency_key = $1`, key)
}

func (r *ReservationRepository) GetByOwnerID(ctx context.Context, ownerID string, limit, offset int) ([]*reservation.Reservation, error) {
	return r.getMany(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, ownerID, limit, offset)
}

func (r *ReservationRepository) GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	return r.getMany(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE status = 'pending' AND expires_at < $1 ORDER BY expires_at LIMIT $2`, now, limit)
}

// CountHeldSeatsByFlight は予約中・使用済みの航空券の枚数を返す（使用済みも座席を占有する）
func (r *ReservationRepository) CountHeldSeatsByFlight(ctx context.Context, flightID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM tickets WHERE flight_id = $1 AND status IN ('reserved', 'used')`
	if err := r.db.GetContext(ctx, &count, query, flightID); err != nil {
		if isInvalidText(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("保持座席数の集計に失敗: %w", err)
	}
	return count, nil
}

func (r *ReservationRepository) getOne(ctx context.Context, query string, arg any) (*reservation.Reservation, error) {
	var row reservationRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return r.load(ctx, &row)
}

func (r *ReservationRepository) getMany(ctx context.Context, query string, args ...any) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	result := make([]*reservation.Reservation, len(rows))
	for i := range rows {
		res, err := r.load(ctx, &rows[i])
		if err != nil {
			return nil, err
		}
		result[i] = res
	}
	return result, nil
}

// load は予約行に航空券・利用者・決済記録を読み込んで集約を組み立てる
func (r *ReservationRepository) load(ctx context.Context, row *reservationRow) (*reservation.Reservation, error) {
	var tickets []ticketRow
	if err := r.db.SelectContext(ctx, &tickets,
		`SELECT id, reservation_id, flight_id, passenger_name, price, currency, status, created_at, updated_at
		FROM tickets WHERE reservation_id = $1 ORDER BY created_at, id`, row.ID); err != nil {
		return nil, fmt.Errorf("航空券取得に失敗: %w", err)
	}
	var passengers []passengerRow
	if err := r.db.SelectContext(ctx, &passengers,
		`SELECT id, reservation_id, full_name, email FROM passengers WHERE reservation_id = $1 ORDER BY id`, row.ID); err != nil {
		return nil, fmt.Errorf("利用者取得に失敗: %w", err)
	}
	var payments []paymentRow
	if err := r.db.SelectContext(ctx, &payments,
		`SELECT id, reservation_id, amount, currency, method, transaction_id, status, transaction_type, created_at
		FROM payments WHERE reservation_id = $1 ORDER BY created_at, id`, row.ID); err != nil {
		return nil, fmt.Errorf("決済記録取得に失敗: %w", err)
	}

	res := &reservation.Reservation{
		ID:             row.ID,
		PNR:            row.PNR,
		OwnerID:        row.OwnerID,
		Type:           reservation.Type(row.Type),
		TotalPrice:     money.Money{Amount: row.TotalAmount, Currency: row.Currency},
		Status:         reservation.Status(row.Status),
		PaymentStatus:  reservation.PaymentStatus(row.PaymentStatus),
		PaymentMethod:  row.PaymentMethod,
		IdempotencyKey: row.IdempotencyKey,
		ExpiresAt:      row.ExpiresAt,
		ConfirmedAt:    row.ConfirmedAt,
		CancelledAt:    row.CancelledAt,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		Version:        row.Version,
	}
	for _, t := range tickets {
		res.Tickets = append(res.Tickets, &reservation.Ticket{
			ID:            t.ID,
			ReservationID: t.ReservationID,
			FlightID:      t.FlightID,
			PassengerName: t.PassengerName,
			Price:         money.Money{Amount: t.Price, Currency: t.Currency},
			Status:        reservation.TicketStatus(t.Status),
			CreatedAt:     t.CreatedAt,
			UpdatedAt:     t.UpdatedAt,
		})
	}
	for _, p := range passengers {
		res.Passengers = append(res.Passengers, &reservation.Passenger{ID: p.ID, FullName: p.FullName, Email: p.Email})
	}
	for _, p := range payments {
		res.Payments = append(res.Payments, &reservation.Payment{
			ID:              p.ID,
			ReservationID:   p.ReservationID,
			Amount:          money.Money{Amount: p.Amount, Currency: p.Currency},
			Method:          p.Method,
			TransactionID:   p.TransactionID,
			Status:          reservation.PaymentStatus(p.Status),
			TransactionType: reservation.TransactionType(p.TransactionType),
			CreatedAt:       p.CreatedAt,
		})
	}
	return res, nil
}

func toReservationRow(res *reservation.Reservation) *reservationRow {
	return &reservationRow{
		ID:             res.ID,
		PNR:            res.PNR,
		OwnerID:        res.OwnerID,
		Type:           string(res.Type),
		TotalAmount:    res.TotalPrice.Amount,
		Currency:       res.TotalPrice.Currency,
		Status:         string(res.Status),
		PaymentStatus:  string(res.PaymentStatus),
		PaymentMethod:  res.PaymentMethod,
		IdempotencyKey: res.IdempotencyKey,
		ExpiresAt:      res.ExpiresAt,
		ConfirmedAt:    res.ConfirmedAt,
		CancelledAt:    res.CancelledAt,
		CreatedAt:      res.CreatedAt,
		UpdatedAt:      res.UpdatedAt,
		Version:        res.Version,
	}
}

func toTicketRow(t *reservation.Ticket) *ticketRow {
	return &ticketRow{
		ID:            t.ID,
		ReservationID: t.ReservationID,
		FlightID:      t.FlightID,
		PassengerName: t.PassengerName,
		Price:         t.Price.Amount,
		Currency:      t.Price.Currency,
		Status:        string(t.Status),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func toPaymentRow(p *reservation.Payment) *paymentRow {
	return &paymentRow{
		ID:              p.ID,
		ReservationID:   p.ReservationID,
		Amount:          p.Amount.Amount,
		Currency:        p.Amount.Currency,
		Method:          p.Method,
		TransactionID:   p.TransactionID,
		Status:          string(p.Status),
		TransactionType: string(p.TransactionType),
		CreatedAt:       p.CreatedAt,
	}
}

var _ reservation.Repository = (*ReservationRepository)(nil)
