package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/reservation"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/transaction"
)

// ReservationRepository は reservation.Repository のインメモリ実装
// 保存・取得ともにディープコピーを扱い、呼び出し元との状態共有を避ける
type ReservationRepository struct{ store *Store }

func NewReservationRepository(store *Store) *ReservationRepository {
	return &ReservationRepository{store: store}
}

func (r *ReservationRepository) Create(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	// 同じキーの新規予約がコミット前なら、確定を待ってから一意性を検査する
	for r.collidesWithCreating(tx, res) {
		r.store.released.Wait()
	}
	for _, existing := range r.store.reservations {
		if existing.IdempotencyKey == res.IdempotencyKey {
			return reservation.ErrIdempotencyKeyAlreadyExists
		}
		if existing.PNR == res.PNR {
			return reservation.ErrPNRAlreadyExists
		}
	}

	t, err := r.store.lock(tx, res.ID)
	if err != nil {
		return err
	}
	created := res.Clone()
	id := res.ID
	if t != nil {
		r.store.creating[id] = created
	}
	r.store.stage(t, func() {
		delete(r.store.creating, id)
		r.store.reservations[id] = created
	}, func() {
		delete(r.store.creating, id)
	})
	return nil
}

func (r *ReservationRepository) collidesWithCreating(tx transaction.Tx, res *reservation.Reservation) bool {
	t, _ := tx.(*Tx)
	for id, c := range r.store.creating {
		if r.store.locks[id] == t {
			continue
		}
		if c.IdempotencyKey == res.IdempotencyKey || c.PNR == res.PNR {
			return true
		}
	}
	return false
}

// Update は保存済みのバージョンと一致する場合のみ更新する
// 他のトランザクションが同じ予約を更新中の場合はその終了を待ち、確定後のバージョンで判定する
func (r *ReservationRepository) Update(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	t, err := r.store.lock(tx, res.ID)
	if err != nil {
		return err
	}
	stored, ok := r.store.reservations[res.ID]
	if !ok {
		return reservation.ErrReservationNotFound
	}
	if stored.Version != res.Version {
		return reservation.ErrConcurrencyConflict
	}
	for _, other := range r.store.reservations {
		if other.ID != res.ID && other.PNR == res.PNR {
			return reservation.ErrPNRAlreadyExists
		}
	}

	next := res.Clone()
	next.Version = res.Version + 1
	next.Payments = appendOnly(stored.Payments, next.Payments)
	r.store.stage(t, func() { r.store.reservations[next.ID] = next }, nil)

	res.Version++
	return nil
}

// appendOnly は保存済みの決済記録をそのまま残し、未保存のものだけを追加する
func appendOnly(stored, incoming []*reservation.Payment) []*reservation.Payment {
	seen := make(map[string]struct{}, len(stored))
	result := make([]*reservation.Payment, 0, len(incoming))
	for _, p := range stored {
		seen[p.ID] = struct{}{}
		c := *p
		result = append(result, &c)
	}
	for _, p := range incoming {
		if _, ok := seen[p.ID]; !ok {
			result = append(result, p)
		}
	}
	return result
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	res, ok := r.store.reservations[id]
	if !ok {
		return nil, reservation.ErrReservationNotFound
	}
	return res.Clone(), nil
}

func (r *ReservationRepository) GetByPNR(ctx context.Context, pnr string) (*reservation.Reservation, error) {
	return r.findOne(func(res *reservation.Reservation) bool { return res.PNR == pnr })
}

func (r *ReservationRepository) GetByIdempotencyKey(ctx context.Context, key string) (*reservation.Reservation, error) {
	return r.findOne(func(res *reservation.Reservation) bool { return res.IdempotencyKey == key })
}

func (r *ReservationRepository) GetByOwnerID(ctx context.Context, ownerID string, limit, offset int) ([]*reservation.Reservation, error) {
	matched := r.findAll(func(res *reservation.Reservation) bool { return res.OwnerID == ownerID })
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return page(matched, limit, offset), nil
}

func (r *ReservationRepository) GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	matched := r.findAll(func(res *reservation.Reservation) bool {
		return res.Status == reservation.StatusPending && res.ExpiresAt.Before(now)
	})
	sort.Slice(matched, func(i, j int) bool { return matched[i].ExpiresAt.Before(matched[j].ExpiresAt) })
	return page(matched, limit, 0), nil
}

// CountHeldSeatsByFlight は予約中・使用済みの航空券の枚数を返す
func (r *ReservationRepository) CountHeldSeatsByFlight(ctx context.Context, flightID string) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	n := 0
	for _, res := range r.store.reservations {
		for _, t := range res.Tickets {
			if t.FlightID == flightID && (t.Status == reservation.TicketStatusReserved || t.Status == reservation.TicketStatusUsed) {
				n++
			}
		}
	}
	return n, nil
}

func (r *ReservationRepository) findOne(match func(*reservation.Reservation) bool) (*reservation.Reservation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, res := range r.store.reservations {
		if match(res) {
			return res.Clone(), nil
		}
	}
	return nil, reservation.ErrReservationNotFound
}

func (r *ReservationRepository) findAll(match func(*reservation.Reservation) bool) []*reservation.Reservation {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var result []*reservation.Reservation
	for _, res := range r.store.reservations {
		if match(res) {
			result = append(result, res.Clone())
		}
	}
	return result
}

var _ reservation.Repository = (*ReservationRepository)(nil)
