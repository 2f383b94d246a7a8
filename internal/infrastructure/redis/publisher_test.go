package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/outbox"
)

func TestPublisher_Publish(t *testing.T) {
	client, mock := redismock.NewClientMock()
	defer client.Close()
	publisher := NewPublisher(client, "reservation-events")
	ctx := context.Background()

	msg, err := outbox.NewMessage("reservation.confirmed", "res-1", map[string]string{"pnr": "ABC234"})
	require.NoError(t, err)
	body, err := msg.Encode()
	require.NoError(t, err)

	t.Run("チャネルに配信できる", func(t *testing.T) {
		mock.ExpectPublish("reservation-events", string(body)).SetVal(1)
		assert.NoError(t, publisher.Publish(ctx, msg))
	})

	t.Run("配信エラー", func(t *testing.T) {
		mock.ExpectPublish("reservation-events", string(body)).SetErr(errors.New("connection refused"))
		assert.Error(t, publisher.Publish(ctx, msg))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, publisher.Close())
}
