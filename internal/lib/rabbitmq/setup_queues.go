package rabbitmq

// Ключи маршрутизации задач.
const (
	RoutingBroadcastDeliver = "broadcast.deliver"
	RoutingAccessSync       = "access.sync"
)

// QueueConfig очередь и ключ, которым она привязана к обменнику.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// DeadLetterQueue имя очереди, куда попадают отброшенные сообщения QueueName.
func (q QueueConfig) DeadLetterQueue() string {
	return q.QueueName + ".dead"
}

// GetPanelQueues возвращает очереди, которые обрабатывает sender.
func GetPanelQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "panel.broadcast.deliver", RoutingKey: RoutingBroadcastDeliver},
		{QueueName: "panel.access.sync", RoutingKey: RoutingAccessSync},
	}
}
