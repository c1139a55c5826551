package rabbitmq

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
)

// testAmqpURI возвращает адрес внешнего RabbitMQ из TEST_RABBITMQ_URL или поднимает контейнер.
func testAmqpURI(ctx context.Context, t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping RabbitMQ test in short mode")
	}
	if url := os.Getenv("TEST_RABBITMQ_URL"); url != "" {
		return url
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3-alpine",
			ExposedPorts: []string{"5672/tcp"},
			WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate rabbitmq container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
}

// openChannel подключается к брокеру и объявляет очереди панели.
func openChannel(ctx context.Context, t *testing.T, amqpURI string) *amqp.Channel {
	t.Helper()
	conn, err := Connect(ctx, sl.Discard(), amqpURI, 3, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ch, err := SetupChannel(conn, GetPanelQueues())
	require.NoError(t, err)
	return ch
}

// purge очищает рабочую и dead очереди: внешний брокер сохраняет их между тестами.
func purge(t *testing.T, ch *amqp.Channel, q QueueConfig) {
	t.Helper()
	for _, name := range []string{q.QueueName, q.DeadLetterQueue()} {
		_, err := ch.QueuePurge(name, false)
		require.NoError(t, err)
	}
}

// receive ждёт одно сообщение из очереди.
func receive(t *testing.T, ch *amqp.Channel, queue string) amqp.Delivery {
	t.Helper()
	var d amqp.Delivery
	require.Eventually(t, func() bool {
		got, ok, err := ch.Get(queue, true)
		if err != nil || !ok {
			return false
		}
		d = got
		return true
	}, 10*time.Second, 50*time.Millisecond, "no message in %s", queue)
	return d
}
