package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/flight"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/transaction"
)

type FlightRepository struct{ store *Store }

func NewFlightRepository(store *Store) *FlightRepository { return &FlightRepository{store: store} }

func (r *FlightRepository) Create(ctx context.Context, f *flight.Flight) error {
	if err := f.Validate(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	c := *f
	r.store.flights[f.ID] = &c
	return nil
}

func (r *FlightRepository) GetByID(ctx context.Context, id string) (*flight.Flight, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	f, ok := r.store.flights[id]
	if !ok {
		return nil, flight.ErrFlightNotFound
	}
	c := *f
	return &c, nil
}

func (r *FlightRepository) List(ctx context.Context, limit, offset int) ([]*flight.Flight, error) {
	r.store.mu.Lock()
	all := make([]*flight.Flight, 0, len(r.store.flights))
	for _, f := range r.store.flights {
		c := *f
		all = append(all, &c)
	}
	r.store.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].DepartureAt.Equal(all[j].DepartureAt) {
			return all[i].DepartureAt.Before(all[j].DepartureAt)
		}
		return all[i].FlightNumber < all[j].FlightNumber
	})
	return page(all, limit, offset), nil
}

func (r *FlightRepository) ReserveSeats(ctx context.Context, tx transaction.Tx, flightID string, count int) error {
	return r.mutate(tx, flightID, func(f *flight.Flight) error { return f.Reserve(count) })
}

func (r *FlightRepository) ReleaseSeats(ctx context.Context, tx transaction.Tx, flightID string, count int) error {
	return r.mutate(tx, flightID, func(f *flight.Flight) error { return f.Release(count) })
}

func (r *FlightRepository) UpdateAvailableSeats(ctx context.Context, flightID string, value int) error {
	return r.mutate(nil, flightID, func(f *flight.Flight) error { return f.UpdateAvailableSeats(value) })
}

// mutate はロックを保持したまま検証と更新を行う（条件付き更新と同等）
func (r *FlightRepository) mutate(tx transaction.Tx, flightID string, fn func(f *flight.Flight) error) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	f, ok := r.store.flights[flightID]
	if !ok {
		return flight.ErrFlightNotFound
	}
	before := f.AvailableSeats
	if err := fn(f); err != nil {
		return err
	}
	f.UpdatedAt = time.Now()
	delta := f.AvailableSeats - before
	r.store.onRollback(tx, func() {
		// 他の操作による差分を保つため、この操作の増減だけを戻す
		// 行ロックがないため、確定前の解放分が他で確保されていると範囲外になりうる
		f.AvailableSeats = min(max(f.AvailableSeats-delta, 0), f.TotalSeats)
	})
	return nil
}

// page は limit/offset を適用する
func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var _ flight.Repository = (*FlightRepository)(nil)
