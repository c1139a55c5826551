package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

func TestConsumerMessage_HandlesDeliveries(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	ch := openChannel(ctx, t, testAmqpURI(ctx, t))
	queue := GetPanelQueues()[0]
	purge(t, ch, queue)

	var (
		mu       sync.Mutex
		received []int64
	)
	handler := func(_ context.Context, body []byte) error {
		var task models.DeliveryTask
		if err := json.Unmarshal(body, &task); err != nil {
			return err
		}
		mu.Lock()
		received = append(received, task.UserID)
		mu.Unlock()
		return nil
	}
	require.NoError(t, ConsumerMessage(ctx, sl.Discard(), ch, queue.QueueName, handler))

	publisher := NewPublisher(ch)
	for _, userID := range []int64{101, 102, 103} {
		require.NoError(t, publisher.Publish(ctx, queue.RoutingKey, models.DeliveryTask{BroadcastID: 1, MessageID: 5, UserID: userID}))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 3
	}, 10*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []int64{101, 102, 103}, received)
}

func TestConsumerMessage_DeadLettersAfterRetry(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	ch := openChannel(ctx, t, testAmqpURI(ctx, t))
	queue := GetPanelQueues()[1]
	purge(t, ch, queue)

	var attempts atomic.Int32
	handler := func(_ context.Context, _ []byte) error {
		attempts.Add(1)
		return errors.New("bot api unavailable")
	}
	require.NoError(t, ConsumerMessage(ctx, sl.Discard(), ch, queue.QueueName, handler))

	req := models.AccessSync{UserID: 1, ChannelID: -100, DesiredStatus: models.SubscriptionStatusExpired}
	require.NoError(t, NewPublisher(ch).Publish(ctx, queue.RoutingKey, req))

	d := receive(t, ch, queue.DeadLetterQueue())
	var got models.AccessSync
	require.NoError(t, json.Unmarshal(d.Body, &got))
	assert.Equal(t, req.UserID, got.UserID)
	assert.Equal(t, req.ChannelID, got.ChannelID)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestConsumerMessage_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	ch := openChannel(ctx, t, testAmqpURI(ctx, t))
	queue := GetPanelQueues()[0]
	purge(t, ch, queue)

	consumeCtx, stop := context.WithCancel(ctx)
	var calls atomic.Int32
	require.NoError(t, ConsumerMessage(consumeCtx, sl.Discard(), ch, queue.QueueName, func(context.Context, []byte) error {
		calls.Add(1)
		return nil
	}))
	stop()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, NewPublisher(ch).Publish(ctx, queue.RoutingKey, models.DeliveryTask{UserID: 1}))
	time.Sleep(500 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestConsumerMessage_UnknownQueue(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	ch := openChannel(ctx, t, testAmqpURI(ctx, t))
	err := ConsumerMessage(ctx, sl.Discard(), ch, "panel.missing", func(context.Context, []byte) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rabbitmq.ConsumerMessage")
}
