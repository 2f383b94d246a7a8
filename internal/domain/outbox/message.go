package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/transaction"
)

// Message はアウトボックスに保存される配信待ちのイベント
type Message struct {
	ID          string
	Type        string
	AggregateID string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// NewMessage は payload を JSON にエンコードしてメッセージを作成する
func NewMessage(eventType, aggregateID string, payload any) (*Message, error) {
	if eventType == "" {
		return nil, ErrEventTypeRequired
	}
	if aggregateID == "" {
		return nil, ErrAggregateIDRequired
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ペイロードのエンコードに失敗: %w", err)
	}
	return &Message{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		Payload:     body,
		CreatedAt:   time.Now(),
	}, nil
}

// Envelope はブローカーに配信する際の共通形式
// 購読側は ID で重複を除去する
type Envelope struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Encode はメッセージを配信用の JSON に変換する
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(Envelope{
		ID:          m.ID,
		Type:        m.Type,
		AggregateID: m.AggregateID,
		Payload:     json.RawMessage(m.Payload),
		CreatedAt:   m.CreatedAt,
	})
}

// IsPublished は配信済みかを返す
func (m *Message) IsPublished() bool {
	return m.PublishedAt != nil
}

// Repository はアウトボックスのリポジトリインターフェース
type Repository interface {
	// Save は集約の更新と同じトランザクション内でメッセージを保存する
	Save(ctx context.Context, tx transaction.Tx, msgs []*Message) error

	// FetchUnpublished は未配信のメッセージを作成順に取得する
	FetchUnpublished(ctx context.Context, limit int) ([]*Message, error)

	MarkPublished(ctx context.Context, ids []string, at time.Time) error
}

// Publisher はメッセージブローカーへの配信を行う
// 配信は少なくとも1回（at-least-once）であり、購読側は ID で重複を除去する
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
	Close() error
}
