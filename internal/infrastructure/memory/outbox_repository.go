package memory

import (
	"context"
	"time"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/outbox"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/transaction"
)

type OutboxRepository struct{ store *Store }

func NewOutboxRepository(store *Store) *OutboxRepository { return &OutboxRepository{store: store} }

func (r *OutboxRepository) Save(ctx context.Context, tx transaction.Tx, msgs []*outbox.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	saved := make(map[*outbox.Message]struct{}, len(msgs))
	for _, m := range msgs {
		c := *m
		r.store.outbox = append(r.store.outbox, &c)
		saved[&c] = struct{}{}
	}
	r.store.onRollback(tx, func() {
		kept := r.store.outbox[:0]
		for _, m := range r.store.outbox {
			if _, ok := saved[m]; !ok {
				kept = append(kept, m)
			}
		}
		r.store.outbox = kept
	})
	return nil
}

func (r *OutboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]*outbox.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var result []*outbox.Message
	for _, m := range r.store.outbox {
		if m.PublishedAt != nil {
			continue
		}
		c := *m
		result = append(result, &c)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	targets := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		targets[id] = struct{}{}
	}
	for _, m := range r.store.outbox {
		if _, ok := targets[m.ID]; ok && m.PublishedAt == nil {
			published := at
			m.PublishedAt = &published
		}
	}
	return nil
}

var _ outbox.Repository = (*OutboxRepository)(nil)
