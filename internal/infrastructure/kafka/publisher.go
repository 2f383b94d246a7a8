package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/dugerdev/TravelBooking-sub001/internal/config"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/outbox"
	"github.com/dugerdev/TravelBooking-sub001/internal/pkg/logger"
)

// Publisher はアウトボックスのメッセージを Kafka に配信する
// キーを集約ID（予約ID）とし、同じ予約のイベントが同じパーティションに順序通り入るようにする
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducerConfig は冪等書き込みを有効にしたプロデューサー設定を返す
func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Timeout = 10 * time.Second
	cfg.Producer.Idempotent = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	// 冪等プロデューサーの要件
	cfg.Net.MaxOpenRequests = 1
	cfg.Version = sarama.V2_1_0_0
	return cfg
}

// NewPublisher はブローカーに接続してパブリッシャーを作成する
func NewPublisher(cfg *config.KafkaConfig) (*Publisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("Kafkaプロデューサー作成に失敗: %w", err)
	}
	return NewPublisherWithProducer(producer, cfg.Topic), nil
}

// NewPublisherWithProducer は既存のプロデューサーからパブリッシャーを作成する
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

func (p *Publisher) Publish(ctx context.Context, msg *outbox.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := msg.Encode()
	if err != nil {
		return err
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.AggregateID),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("message_id"), Value: []byte(msg.ID)},
			{Key: []byte("event_type"), Value: []byte(msg.Type)},
		},
		Timestamp: msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("Kafkaへの配信に失敗: %w", err)
	}

	logger.Debug("Kafkaへ配信",
		zap.String("message_id", msg.ID),
		zap.String("event_type", msg.Type),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}

var _ outbox.Publisher = (*Publisher)(nil)
