package application

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/flight"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/outbox"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/reservation"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/transaction"
	paymentinfra "github.com/dugerdev/TravelBooking-sub001/internal/infrastructure/payment"
	redisinfra "github.com/dugerdev/TravelBooking-sub001/internal/infrastructure/redis"
)

// MockTxManager implements transaction.Manager
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(transaction.Tx), args.Error(1)
}

// MockTx implements transaction.Tx
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTx) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

// MockReservationRepository implements reservation.Repository
type MockReservationRepository struct {
	mock.Mock
}

func (m *MockReservationRepository) Create(ctx context.Context, tx transaction.Tx, r *reservation.Reservation) error {
	args := m.Called(ctx, tx, r)
	return args.Error(0)
}

func (m *MockReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// 呼び出しごとに新しい値を返す場合
	if fn, ok := args.Get(0).(func(context.Context, string) *reservation.Reservation); ok {
		return fn(ctx, id), args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) GetByPNR(ctx context.Context, pnr string) (*reservation.Reservation, error) {
	args := m.Called(ctx, pnr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) GetByIdempotencyKey(ctx context.Context, key string) (*reservation.Reservation, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) GetByOwnerID(ctx context.Context, ownerID string, limit, offset int) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) Update(ctx context.Context, tx transaction.Tx, r *reservation.Reservation) error {
	args := m.Called(ctx, tx, r)
	return args.Error(0)
}

func (m *MockReservationRepository) GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) CountHeldSeatsByFlight(ctx context.Context, flightID string) (int, error) {
	args := m.Called(ctx, flightID)
	return args.Int(0), args.Error(1)
}

// MockFlightRepository implements flight.Repository
type MockFlightRepository struct {
	mock.Mock
}

func (m *MockFlightRepository) Create(ctx context.Context, f *flight.Flight) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

func (m *MockFlightRepository) GetByID(ctx context.Context, id string) (*flight.Flight, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*flight.Flight), args.Error(1)
}

func (m *MockFlightRepository) List(ctx context.Context, limit, offset int) ([]*flight.Flight, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*flight.Flight), args.Error(1)
}

func (m *MockFlightRepository) ReserveSeats(ctx context.Context, tx transaction.Tx, flightID string, count int) error {
	args := m.Called(ctx, tx, flightID, count)
	return args.Error(0)
}

func (m *MockFlightRepository) ReleaseSeats(ctx context.Context, tx transaction.Tx, flightID string, count int) error {
	args := m.Called(ctx, tx, flightID, count)
	return args.Error(0)
}

func (m *MockFlightRepository) UpdateAvailableSeats(ctx context.Context, flightID string, value int) error {
	args := m.Called(ctx, flightID, value)
	return args.Error(0)
}

// MockOutboxRepository implements outbox.Repository
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Save(ctx context.Context, tx transaction.Tx, msgs []*outbox.Message) error {
	args := m.Called(ctx, tx, msgs)
	return args.Error(0)
}

func (m *MockOutboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	args := m.Called(ctx, ids, at)
	return args.Error(0)
}

// MockLockManager implements redisinfra.LockManagerInterface
type MockLockManager struct {
	mock.Mock
}

func (m *MockLockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (redisinfra.Lock, error) {
	args := m.Called(ctx, key, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(redisinfra.Lock), args.Error(1)
}

// MockLock implements redisinfra.Lock
type MockLock struct {
	mock.Mock
}

func (m *MockLock) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockSeatCache implements SeatCache
type MockSeatCache struct {
	mock.Mock
}

func (m *MockSeatCache) GetAvailableCount(ctx context.Context, flightID string) (int, error) {
	args := m.Called(ctx, flightID)
	return args.Int(0), args.Error(1)
}

func (m *MockSeatCache) SetAvailableCount(ctx context.Context, flightID string, count int, ttl time.Duration) error {
	args := m.Called(ctx, flightID, count, ttl)
	return args.Error(0)
}

func (m *MockSeatCache) Invalidate(ctx context.Context, flightIDs ...string) error {
	args := m.Called(ctx, flightIDs)
	return args.Error(0)
}

// MockPaymentGateway implements PaymentGateway
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) Charge(ctx context.Context, req paymentinfra.ChargeRequest) (*paymentinfra.ChargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentinfra.ChargeResult), args.Error(1)
}
