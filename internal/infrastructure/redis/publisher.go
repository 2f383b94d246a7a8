package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/outbox"
)

// Publisher は Redis Pub/Sub にアウトボックスのメッセージを配信する
// Pub/Sub は購読者不在時にメッセージを保持しないため、取りこぼしを許容できる通知向け
type Publisher struct {
	client  redis.Cmdable
	channel string
}

func NewPublisher(client redis.Cmdable, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

func (p *Publisher) Publish(ctx context.Context, msg *outbox.Message) error {
	body, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, string(body)).Err(); err != nil {
		return fmt.Errorf("Redisへの配信に失敗: %w", err)
	}
	return nil
}

// Close は何もしない（クライアントの寿命は呼び出し元が管理する）
func (p *Publisher) Close() error {
	return nil
}

var _ outbox.Publisher = (*Publisher)(nil)
