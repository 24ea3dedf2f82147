package infrastructure

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"higgs-distributed/internal/domain"
)

func TestMemoryBroker_PublishReceiveAck(t *testing.T) {
	ctx := context.Background()
	broker := NewMemoryBroker()
	conn := broker.Connect()
	require.NoError(t, conn.Declare(ctx, "tasks"))
	require.NoError(t, conn.Declare(ctx, "tasks"), "declare must be idempotent")

	require.NoError(t, conn.Publish(ctx, "tasks", []byte("a")))
	require.NoError(t, conn.Publish(ctx, "tasks", []byte("b")))
	assert.Equal(t, 2, broker.Len("tasks"))

	d, err := conn.TryReceive(ctx, "tasks")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, []byte("a"), d.Body)
	assert.False(t, d.Redelivered)
	require.NoError(t, conn.Ack(d))
	assert.ErrorIs(t, conn.Ack(d), domain.ErrUnknownDelivery)

	d, err = conn.TryReceive(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), d.Body)
	require.NoError(t, conn.Ack(d))

	d, err = conn.TryReceive(ctx, "tasks")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestMemoryBroker_ChannelsAreIndependent(t *testing.T) {
	ctx := context.Background()
	broker := NewMemoryBroker()
	conn := broker.Connect()
	require.NoError(t, conn.Publish(ctx, "results", []byte("r")))

	d, err := conn.TryReceive(ctx, "tasks")
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.Equal(t, 1, broker.Len("results"))
}

func TestMemoryBroker_NackRequeuesAtHead(t *testing.T) {
	ctx := context.Background()
	broker := NewMemoryBroker()
	conn := broker.Connect()
	require.NoError(t, conn.Publish(ctx, "tasks", []byte("a")))
	require.NoError(t, conn.Publish(ctx, "tasks", []byte("b")))

	d, err := conn.TryReceive(ctx, "tasks")
	require.NoError(t, err)
	require.NoError(t, conn.Nack(d, true))

	again, err := conn.TryReceive(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), again.Body)
	assert.True(t, again.Redelivered)
	assert.NotEqual(t, d.Tag, again.Tag)

	require.NoError(t, conn.Nack(again, false))
	assert.Equal(t, 1, broker.Len("tasks"), "rejected message must be discarded")
}

func TestMemoryBroker_CloseRequeuesUnacked(t *testing.T) {
	ctx := context.Background()
	broker := NewMemoryBroker()
	worker := broker.Connect()
	require.NoError(t, worker.Publish(ctx, "tasks", []byte("a")))

	d, err := worker.TryReceive(ctx, "tasks")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 0, broker.Len("tasks"))

	require.NoError(t, worker.Close())
	assert.Equal(t, 1, broker.Len("tasks"))
	assert.ErrorIs(t, worker.Ack(d), ErrConnectionClosed)

	_, err = worker.TryReceive(ctx, "tasks")
	assert.ErrorIs(t, err, ErrConnectionClosed)

	other := broker.Connect()
	redelivered, err := other.TryReceive(ctx, "tasks")
	require.NoError(t, err)
	assert.True(t, redelivered.Redelivered)
}

func TestMemoryBroker_DeliveryOwnedByOneConnection(t *testing.T) {
	ctx := context.Background()
	broker := NewMemoryBroker()
	a, b := broker.Connect(), broker.Connect()
	require.NoError(t, a.Publish(ctx, "tasks", []byte("x")))

	d, err := a.TryReceive(ctx, "tasks")
	require.NoError(t, err)
	none, err := b.TryReceive(ctx, "tasks")
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.ErrorIs(t, b.Ack(d), domain.ErrUnknownDelivery)
}

func TestMemoryBroker_PublishFilterDrops(t *testing.T) {
	ctx := context.Background()
	broker := NewMemoryBroker()
	broker.SetPublishFilter(func(channel string, body []byte) bool {
		return string(body) != "lost"
	})
	conn := broker.Connect()
	require.NoError(t, conn.Publish(ctx, "results", []byte("lost")))
	require.NoError(t, conn.Publish(ctx, "results", []byte("kept")))
	assert.Equal(t, 1, broker.Len("results"))
}
