package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/outbox"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/transaction"
)

type outboxRow struct {
	ID          string     `db:"id"`
	EventType   string     `db:"event_type"`
	AggregateID string     `db:"aggregate_id"`
	Payload     []byte     `db:"payload"`
	CreatedAt   time.Time  `db:"created_at"`
	PublishedAt *time.Time `db:"published_at"`
}

// OutboxRepository は outbox.Repository のPostgreSQL実装
type OutboxRepository struct{ db *sqlx.DB }

func NewOutboxRepository(db *sqlx.DB) *OutboxRepository { return &OutboxRepository{db: db} }

func (r *OutboxRepository) Save(ctx context.Context, tx transaction.Tx, msgs []*outbox.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	sqlTx := UnwrapTx(tx)
	if sqlTx == nil {
		return errTxRequired
	}

	rows := make([]outboxRow, len(msgs))
	for i, m := range msgs {
		rows[i] = outboxRow{ID: m.ID, EventType: m.Type, AggregateID: m.AggregateID, Payload: m.Payload, CreatedAt: m.CreatedAt}
	}
	query := `INSERT INTO outbox_messages (id, event_type, aggregate_id, payload, created_at)
		VALUES (:id, :event_type, :aggregate_id, :payload, :created_at)`
	if _, err := sqlTx.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("アウトボックス保存に失敗: %w", translateError(err))
	}
	return nil
}

func (r *OutboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]*outbox.Message, error) {
	var rows []outboxRow
	query := `SELECT id, event_type, aggregate_id, payload, created_at, published_at
		FROM outbox_messages WHERE published_at IS NULL ORDER BY created_at, id LIMIT $1`
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("未配信メッセージ取得に失敗: %w", err)
	}
	result := make([]*outbox.Message, len(rows))
	for i, row := range rows {
		result[i] = &outbox.Message{
			ID:          row.ID,
			Type:        row.EventType,
			AggregateID: row.AggregateID,
			Payload:     row.Payload,
			CreatedAt:   row.CreatedAt,
			PublishedAt: row.PublishedAt,
		}
	}
	return result, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE outbox_messages SET published_at = $1 WHERE id = ANY($2::uuid[]) AND published_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, at, pq.Array(ids)); err != nil {
		return fmt.Errorf("配信済み更新に失敗: %w", err)
	}
	return nil
}

var _ outbox.Repository = (*OutboxRepository)(nil)
